package contextwindow

import (
	"strings"
	"unicode"
)

const (
	TruncationMarker = "... (truncated) "

	DefaultCharsPerToken   = 4
	DefaultMessageOverhead = 4
	DefaultMaxTokens       = 6000
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	// CharsPerToken drives how much text is kept when a single message must be cut.
	CharsPerToken int
	// MessageOverhead is added to every message for role and framing tokens.
	MessageOverhead int
}

func DefaultConfig() Config {
	return Config{CharsPerToken: DefaultCharsPerToken, MessageOverhead: DefaultMessageOverhead}
}

// Assembler fits conversation history and retrieved excerpts into a token budget. It holds no
// per-call state and is safe for concurrent use if its Tokenizer is.
type Assembler struct {
	tok Tokenizer
	cfg Config
}

func NewAssembler(tok Tokenizer, cfg Config) *Assembler {
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = DefaultCharsPerToken
	}
	if cfg.MessageOverhead < 0 {
		cfg.MessageOverhead = 0
	}
	if tok == nil {
		tok = Heuristic{CharsPerToken: cfg.CharsPerToken}
	}
	return &Assembler{tok: tok, cfg: cfg}
}

// Tokens returns the budget cost of one message. A tokenizer failure counts every byte as a
// token, which never undercounts a BPE encoding.
func (a *Assembler) Tokens(m Message) int {
	return a.textTokens(m.Content) + a.cfg.MessageOverhead
}

func (a *Assembler) textTokens(text string) int {
	n, err := a.tok.Count(text)
	if err != nil {
		return len(text)
	}
	return n
}

// Assemble keeps the longest run of most recent messages that fits maxTokens, in their
// original order. When the newest message alone is over budget its tail is kept behind
// TruncationMarker. The tail always holds at least the last word, so budgets smaller than the
// marker, the overhead and that word come back over budget. The result is empty only when
// maxTokens <= 0 or messages is empty.
func (a *Assembler) Assemble(messages []Message, maxTokens int) []Message {
	if maxTokens <= 0 || len(messages) == 0 {
		return nil
	}

	used, start := 0, len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		n := a.Tokens(messages[i])
		if used+n > maxTokens {
			break
		}
		used += n
		start = i
	}
	if start == len(messages) {
		return []Message{a.truncateTail(messages[len(messages)-1], maxTokens)}
	}

	out := make([]Message, len(messages)-start)
	copy(out, messages[start:])
	return out
}

func (a *Assembler) truncateTail(m Message, maxTokens int) Message {
	runes := []rune(strings.TrimRightFunc(m.Content, unicode.IsSpace))
	minKeep := 0
	if words := strings.Fields(string(runes)); len(words) > 0 {
		minKeep = len([]rune(words[len(words)-1]))
	}
	budget := maxTokens - a.cfg.MessageOverhead - a.textTokens(TruncationMarker)
	keep := max(min(max(budget, 1)*a.cfg.CharsPerToken, len(runes)), minKeep)

	for {
		out := Message{Role: m.Role, Content: TruncationMarker + tail(runes, keep)}
		if keep <= minKeep || a.Tokens(out) <= maxTokens {
			return out
		}
		keep = max(keep-max(keep/10, 1), minKeep)
	}
}

// tail returns the last keep runes, dropping a leading partial word when a whole word follows.
func tail(runes []rune, keep int) string {
	cut := len(runes) - keep
	s := string(runes[cut:])
	if cut > 0 && !unicode.IsSpace(runes[cut-1]) {
		if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 && strings.TrimSpace(s[i:]) != "" {
			s = s[i:]
		}
	}
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

// Prompt is the material for one generation call. Excerpts are ordered best first.
type Prompt struct {
	System   string
	Excerpts []string
	History  []Message
}

// Compose builds [system, history...] under maxTokens. Excerpts are appended to the system
// message best first and the lowest ranked are dropped when they do not fit. Room for the most
// recent history message is reserved up to half the budget. The second result is the number of
// excerpts included.
func (a *Assembler) Compose(p Prompt, maxTokens int) ([]Message, int) {
	if maxTokens <= 0 {
		return nil, 0
	}

	reserve := 0
	if len(p.History) > 0 {
		reserve = min(a.Tokens(p.History[len(p.History)-1]), maxTokens/2)
	}

	var sb strings.Builder
	sb.WriteString(p.System)
	used := 0
	for _, ex := range p.Excerpts {
		candidate := sb.String()
		if candidate != "" {
			candidate += "\n\n"
		}
		candidate += ex
		if a.Tokens(Message{Role: RoleSystem, Content: candidate})+reserve > maxTokens {
			break
		}
		sb.Reset()
		sb.WriteString(candidate)
		used++
	}

	system := Message{Role: RoleSystem, Content: sb.String()}
	historyBudget := maxTokens - a.Tokens(system)
	if historyBudget <= 0 && len(p.History) > 0 {
		historyBudget = max(maxTokens/4, 1)
	}

	out := []Message{system}
	out = append(out, a.Assemble(p.History, historyBudget)...)
	return out, used
}
