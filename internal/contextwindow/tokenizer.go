package contextwindow

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts model tokens in a piece of text.
type Tokenizer interface {
	Count(text string) (int, error)
}

// BPE counts tokens with a tiktoken encoding such as cl100k_base.
type BPE struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewBPE loads the named encoding. Loading may need network access the first time, so callers
// usually fall back to Heuristic when it fails.
func NewBPE(encoding string) (*BPE, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q failed: %w", encoding, err)
	}
	return &BPE{encoding: encoding, enc: enc}, nil
}

func (b *BPE) Count(text string) (n int, err error) {
	if text == "" {
		return 0, nil
	}
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("tiktoken %s encode failed: %v", b.encoding, r)
		}
	}()
	return len(b.enc.Encode(text, nil, nil)), nil
}

// Heuristic approximates tokens as ceil(bytes / CharsPerToken).
type Heuristic struct {
	CharsPerToken int
}

func (h Heuristic) Count(text string) (int, error) {
	per := h.CharsPerToken
	if per <= 0 {
		per = DefaultCharsPerToken
	}
	return (len(text) + per - 1) / per, nil
}
