package ai

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheWindow = 6

// ResponseCache memoizes completions keyed by a hash of the model, the system message and the
// trailing window of the conversation. The least recently used entry is evicted past size.
type ResponseCache struct {
	window  int
	entries *lru.Cache[uint64, string]
}

func NewResponseCache(size, window int) (*ResponseCache, error) {
	if window <= 0 {
		window = defaultCacheWindow
	}
	entries, err := lru.New[uint64, string](size)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{window: window, entries: entries}, nil
}

func (c *ResponseCache) Get(model string, messages []ChatMessage) (string, bool) {
	return c.entries.Get(c.key(model, messages))
}

func (c *ResponseCache) Add(model string, messages []ChatMessage, text string) {
	c.entries.Add(c.key(model, messages), text)
}

func (c *ResponseCache) Len() int {
	return c.entries.Len()
}

func (c *ResponseCache) key(model string, messages []ChatMessage) uint64 {
	d := xxhash.New()
	write := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	write(model)

	// Retrieved excerpts live in the system message, so it is always part of the key.
	rest := messages
	if len(rest) > 0 && rest[0].Role == "system" {
		write(rest[0].Content)
		rest = rest[1:]
	}
	if len(rest) > c.window {
		rest = rest[len(rest)-c.window:]
	}
	for _, m := range rest {
		write(m.Role)
		write(m.Content)
	}
	return d.Sum64()
}
