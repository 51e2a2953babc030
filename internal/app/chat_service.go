package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"transcript-assistant/internal/ai"
	"transcript-assistant/internal/contextwindow"
	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/retrieval"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageEmpty         = errors.New("message content is empty")
	ErrLLMConfig            = errors.New("llm config is invalid")
	ErrMessageEnqueue       = errors.New("message enqueue failed")
)

const emptyReply = "The model returned an empty response."

const noSourcesNote = "No relevant transcript excerpts were found for this question. Answer from general " +
	"business acquisition knowledge and say that the answer is not drawn from the transcripts."

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID uint) error
	MarkDirty(ctx context.Context, conversationID uint) error
	IsDirty(ctx context.Context, conversationID uint) (bool, error)
}

// Retriever finds the transcript excerpts that ground an answer.
type Retriever interface {
	Search(ctx context.Context, input SearchInput) ([]retrieval.Result, error)
}

type ChatOptions struct {
	SystemPrompt string
	MaxTokens    int
	HistoryLimit int
}

type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	publisher     AsyncMessagePublisher
	historyCache  HistoryCache
	generator     Generator
	retriever     Retriever
	assembler     *contextwindow.Assembler
	defaultLLM    ai.ChatConfig
	options       ChatOptions
	log           *logger.Logger
}

type CreateConversationInput struct {
	UserID uint
	Title  string
}

type SendMessageInput struct {
	UserID         uint
	ConversationID uint
	Content        string
	Source         string
	LLM            LLMOverride
}

type LLMOverride struct {
	BaseURL string
	APIKey  string
	Model   string
}

type LLMRequestLog struct {
	BaseURL      string           `json:"base_url"`
	Model        string           `json:"model"`
	APIKeyMasked string           `json:"api_key_masked"`
	Messages     []ai.ChatMessage `json:"messages"`
}

// Citation is a transcript excerpt that was placed in the prompt.
type Citation struct {
	TranscriptID  string  `json:"transcript_id"`
	ChunkID       string  `json:"chunk_id,omitempty"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	CategoryLabel string  `json:"category_label"`
	Description   string  `json:"description"`
	Score         float64 `json:"score"`
	Excerpt       string  `json:"excerpt"`
}

type SendMessageResult struct {
	Messages   []model.Message `json:"messages"`
	Citations  []Citation      `json:"citations"`
	LLMRequest LLMRequestLog   `json:"llm_request"`
}

type StreamResult struct {
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
}

func NewChatService(
	conversations ConversationStore,
	messages MessageStore,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	generator Generator,
	retriever Retriever,
	assembler *contextwindow.Assembler,
	defaultLLM ai.ChatConfig,
	options ChatOptions,
	log *logger.Logger,
) *ChatService {
	if options.MaxTokens <= 0 {
		options.MaxTokens = contextwindow.DefaultMaxTokens
	}
	if options.HistoryLimit <= 0 {
		options.HistoryLimit = 20
	}
	if assembler == nil {
		assembler = contextwindow.NewAssembler(nil, contextwindow.DefaultConfig())
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
		historyCache:  historyCache,
		generator:     generator,
		retriever:     retriever,
		assembler:     assembler,
		defaultLLM:    defaultLLM,
		options:       options,
		log:           log,
	}
}

func (s *ChatService) CreateConversation(input CreateConversationInput) (*model.Conversation, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	conversation := &model.Conversation{
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.conversations.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *ChatService) ListConversations(userID uint) ([]model.Conversation, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.conversations.ListByUserID(userID)
}

func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID uint) error {
	if _, err := s.conversation(userID, conversationID); err != nil {
		return err
	}
	if err := s.messages.DeleteByConversationID(conversationID); err != nil {
		return err
	}
	if err := s.conversations.DeleteByIDAndUserID(conversationID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		if err := s.historyCache.DeleteHistory(ctx, conversationID); err != nil {
			s.log.Warn("drop history cache failed", "conversation_id", conversationID, "error", err)
		}
	}
	return nil
}

// SendMessage answers a user message grounded on the best matching transcript excerpts.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	content, cfg, err := s.prepare(input)
	if err != nil {
		return nil, err
	}
	prompt, citations, err := s.buildPrompt(ctx, input, content)
	if err != nil {
		return nil, err
	}

	userMessage, err := s.enqueue(ctx, input, contextwindow.RoleUser, content)
	if err != nil {
		return nil, err
	}

	var system string
	history := prompt
	if len(prompt) > 0 && prompt[0].Role == contextwindow.RoleSystem {
		system, history = prompt[0].Content, prompt[1:]
	}
	reply, err := s.generator.Generate(ctx, cfg, history, system)
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyReply
	}

	assistantMessage, err := s.enqueue(ctx, input, contextwindow.RoleAssistant, reply)
	if err != nil {
		return nil, err
	}

	return &SendMessageResult{
		Messages:  []model.Message{*userMessage, *assistantMessage},
		Citations: citations,
		LLMRequest: LLMRequestLog{
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			APIKeyMasked: maskSecret(cfg.APIKey),
			Messages:     prompt,
		},
	}, nil
}

// StreamMessage is SendMessage with the reply delivered piecewise through onChunk. onCitations
// is called once before generation starts.
func (s *ChatService) StreamMessage(
	ctx context.Context,
	input SendMessageInput,
	onCitations func([]Citation) error,
	onChunk func(string) error,
) (*StreamResult, error) {
	content, cfg, err := s.prepare(input)
	if err != nil {
		return nil, err
	}
	prompt, citations, err := s.buildPrompt(ctx, input, content)
	if err != nil {
		return nil, err
	}
	if _, err := s.enqueue(ctx, input, contextwindow.RoleUser, content); err != nil {
		return nil, err
	}
	if onCitations != nil {
		if err := onCitations(citations); err != nil {
			return nil, err
		}
	}

	full, err := s.generator.StreamComplete(ctx, cfg, prompt, onChunk)
	if err != nil {
		return nil, err
	}
	full = strings.TrimSpace(full)
	if full == "" {
		full = emptyReply
	}
	if _, err := s.enqueue(ctx, input, contextwindow.RoleAssistant, full); err != nil {
		return nil, err
	}
	return &StreamResult{Content: full, Citations: citations}, nil
}

func (s *ChatService) GetHistory(ctx context.Context, userID, conversationID uint, limit int) ([]model.Message, error) {
	if _, err := s.conversation(userID, conversationID); err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, conversationID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, conversationID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messages.ListByConversationID(conversationID, 0)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, conversationID); dirtyErr == nil && !dirty {
			if err := s.historyCache.SetHistory(ctx, conversationID, messages); err != nil {
				s.log.Warn("fill history cache failed", "conversation_id", conversationID, "error", err)
			}
		}
	}
	return trimMessages(messages, limit), nil
}

func (s *ChatService) conversation(userID, conversationID uint) (*model.Conversation, error) {
	if userID == 0 || conversationID == 0 {
		return nil, ErrInvalidInput
	}
	conversation, err := s.conversations.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func (s *ChatService) prepare(input SendMessageInput) (string, ai.ChatConfig, error) {
	if _, err := s.conversation(input.UserID, input.ConversationID); err != nil {
		return "", ai.ChatConfig{}, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return "", ai.ChatConfig{}, ErrMessageEmpty
	}
	cfg, err := s.resolveLLM(input.LLM)
	if err != nil {
		return "", ai.ChatConfig{}, err
	}
	if s.publisher == nil || s.generator == nil {
		return "", ai.ChatConfig{}, ErrMessageEnqueue
	}
	return content, cfg, nil
}

// enqueue hands a message to the persistence queue and invalidates the cached history.
func (s *ChatService) enqueue(ctx context.Context, input SendMessageInput, role, content string) (*model.Message, error) {
	msg := &model.Message{
		ConversationID: input.ConversationID,
		UserID:         input.UserID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.ConversationID)
		_ = s.historyCache.DeleteHistory(ctx, input.ConversationID)
	}
	if err := s.publisher.Publish(ctx, *msg); err != nil {
		s.log.Error("publish message failed", "conversation_id", input.ConversationID, "error", err)
		return nil, ErrMessageEnqueue
	}
	if err := s.conversations.Touch(input.ConversationID, msg.CreatedAt); err != nil {
		s.log.Warn("touch conversation failed", "conversation_id", input.ConversationID, "error", err)
	}
	return msg, nil
}

// buildPrompt retrieves excerpts for the question and fits the system prompt, the excerpts and
// the recent history into the token budget. Retrieval failures degrade to an ungrounded answer.
func (s *ChatService) buildPrompt(ctx context.Context, input SendMessageInput, question string) ([]ai.ChatMessage, []Citation, error) {
	recent, err := s.messages.ListRecentByConversationID(input.ConversationID, s.options.HistoryLimit)
	if err != nil {
		return nil, nil, err
	}

	var results []retrieval.Result
	if s.retriever != nil {
		results, err = s.retriever.Search(ctx, SearchInput{UserID: input.UserID, Query: question, Source: input.Source})
		if err != nil {
			s.log.Warn("retrieval failed, answering without transcripts", "conversation_id", input.ConversationID, "error", err)
			results = nil
		}
	}

	system := strings.TrimSpace(s.options.SystemPrompt)
	if len(results) == 0 {
		system = joinNonEmpty(system, noSourcesNote)
	}
	excerpts := make([]string, len(results))
	for i, r := range results {
		excerpts[i] = formatExcerpt(i+1, r)
	}

	history := make([]contextwindow.Message, 0, len(recent)+1)
	for _, m := range recent {
		role := m.Role
		if role == "" {
			role = contextwindow.RoleUser
		}
		history = append(history, contextwindow.Message{Role: role, Content: m.Content})
	}
	history = append(history, contextwindow.Message{Role: contextwindow.RoleUser, Content: question})

	composed, used := s.assembler.Compose(contextwindow.Prompt{
		System:   system,
		Excerpts: excerpts,
		History:  history,
	}, s.options.MaxTokens)

	messages := make([]ai.ChatMessage, 0, len(composed))
	for _, m := range composed {
		if m.Role == contextwindow.RoleSystem && strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return messages, citationsOf(results[:used]), nil
}

func formatExcerpt(n int, r retrieval.Result) string {
	header := fmt.Sprintf("[Source %d] %s", n, r.Candidate.Title)
	if r.Category.Label != "" {
		header += " (" + r.Category.Label + ")"
	}
	return header + "\n" + r.Excerpt
}

func citationsOf(results []retrieval.Result) []Citation {
	out := make([]Citation, 0, len(results))
	for _, r := range results {
		c := Citation{
			TranscriptID:  r.Candidate.ID,
			Title:         r.Candidate.Title,
			Category:      r.Category.ID,
			CategoryLabel: r.Category.Label,
			Description:   r.Category.Description,
			Score:         r.Score,
			Excerpt:       r.Excerpt,
		}
		if r.Candidate.DocumentID != "" {
			c.TranscriptID = r.Candidate.DocumentID
			c.ChunkID = r.Candidate.ID
		}
		out = append(out, c)
	}
	return out
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

func (s *ChatService) resolveLLM(override LLMOverride) (ai.ChatConfig, error) {
	cfg := s.defaultLLM
	if strings.TrimSpace(override.BaseURL) != "" {
		cfg.BaseURL = strings.TrimSpace(override.BaseURL)
	}
	if strings.TrimSpace(override.APIKey) != "" {
		cfg.APIKey = strings.TrimSpace(override.APIKey)
	}
	if strings.TrimSpace(override.Model) != "" {
		cfg.Model = strings.TrimSpace(override.Model)
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return ai.ChatConfig{}, ErrLLMConfig
	}
	return cfg, nil
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
