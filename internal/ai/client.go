package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrEmptyCompletion = errors.New("empty llm choices")

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Options struct {
	Timeout time.Duration
	// MinInterval is the minimum spacing between outbound requests. Zero disables throttling.
	MinInterval time.Duration
	// CacheSize bounds the completion cache. Zero disables caching.
	CacheSize int
	// CacheWindow is how many trailing messages take part in the cache key.
	CacheWindow int
}

// OpenAICompatibleClient talks to any /chat/completions and /embeddings endpoint that follows
// the OpenAI wire format. All requests share one throttle.
type OpenAICompatibleClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *ResponseCache
}

func NewOpenAICompatibleClient(opts Options) (*OpenAICompatibleClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	c := &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
	if opts.CacheSize > 0 {
		cache, err := NewResponseCache(opts.CacheSize, opts.CacheWindow)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// Complete returns the first choice of a non-streaming completion. Identical requests over the
// cached window are answered from the cache without a network call.
func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	if c.cache != nil {
		if text, ok := c.cache.Get(cfg.Model, messages); ok {
			return text, nil
		}
	}

	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   false,
	}
	raw, err := c.post(ctx, cfg.BaseURL, cfg.APIKey, "/chat/completions", reqBody, "llm")
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := parsed.Choices[0].Message.Content
	if c.cache != nil && strings.TrimSpace(text) != "" {
		c.cache.Add(cfg.Model, messages, text)
	}
	return text, nil
}

// Generate sends systemInstructions followed by promptContext.
func (c *OpenAICompatibleClient) Generate(ctx context.Context, cfg ChatConfig, promptContext []ChatMessage, systemInstructions string) (string, error) {
	messages := make([]ChatMessage, 0, len(promptContext)+1)
	if strings.TrimSpace(systemInstructions) != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: systemInstructions})
	}
	messages = append(messages, promptContext...)
	return c.Complete(ctx, cfg, messages)
}

func (c *OpenAICompatibleClient) StreamComplete(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   true,
	}
	resp, err := c.send(ctx, cfg.BaseURL, cfg.APIKey, "/chat/completions", reqBody, "llm stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil || len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}

		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan llm stream failed: %w", err)
	}
	return full.String(), nil
}

// post sends body and returns the full response payload.
func (c *OpenAICompatibleClient) post(ctx context.Context, baseURL, apiKey, path string, body interface{}, what string) ([]byte, error) {
	resp, err := c.send(ctx, baseURL, apiKey, path, body, what)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response failed: %w", what, err)
	}
	return raw, nil
}

// send waits for the throttle, issues the request and rejects non-2xx responses. The caller
// closes the body.
func (c *OpenAICompatibleClient) send(ctx context.Context, baseURL, apiKey, path string, body interface{}, what string) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request failed: %w", what, err)
	}

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build %s request failed: %w", what, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s throttle wait failed: %w", what, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", what, err)
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s response status %d: %s", what, resp.StatusCode, string(raw))
	}
	return resp, nil
}
