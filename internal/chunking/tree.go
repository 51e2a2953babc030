package chunking

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"transcript-assistant/internal/retrieval"
)

type Strategy string

const (
	StrategySentence  Strategy = "sentence"
	StrategyParagraph Strategy = "paragraph"
	StrategySection   Strategy = "section"
)

var (
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
	ErrInvalidTree     = errors.New("invalid chunk tree")
)

type Options struct {
	Strategy            Strategy
	ParagraphsPerParent int
	SentencesPerChild   int
	Overlap             int
	MaxChars            int
	TopicMaxChars       int
}

func DefaultOptions() Options {
	return Options{
		Strategy:            StrategySentence,
		ParagraphsPerParent: 3,
		SentencesPerChild:   5,
		Overlap:             1,
		MaxChars:            2000,
		TopicMaxChars:       120,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Strategy == "" {
		o.Strategy = d.Strategy
	}
	if o.ParagraphsPerParent <= 0 {
		o.ParagraphsPerParent = d.ParagraphsPerParent
	}
	if o.SentencesPerChild <= 0 {
		o.SentencesPerChild = d.SentencesPerChild
	}
	if o.Overlap < 0 || o.Overlap >= o.SentencesPerChild {
		o.Overlap = o.SentencesPerChild / 2
	}
	if o.MaxChars <= 0 {
		o.MaxChars = d.MaxChars
	}
	if o.TopicMaxChars <= 0 {
		o.TopicMaxChars = d.TopicMaxChars
	}
	return o
}

// Node is one chunk in the arena. ParentIndex is -1 for parents.
type Node struct {
	Index       int
	ParentIndex int
	Type        retrieval.ChunkType
	Topic       string
	Position    int
	Content     string
}

// Tree is the flat parent/child decomposition of one transcript. Parents precede their
// children in Nodes.
type Tree struct {
	Nodes []Node
}

func (t *Tree) Parents() []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Type == retrieval.ChunkParent {
			out = append(out, n)
		}
	}
	return out
}

func (t *Tree) Children(parentIndex int) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Type == retrieval.ChunkChild && n.ParentIndex == parentIndex {
			out = append(out, n)
		}
	}
	return out
}

// Contents returns the child chunk texts in order.
func (t *Tree) Contents() []string {
	var out []string
	for _, n := range t.Nodes {
		if n.Type == retrieval.ChunkChild {
			out = append(out, n.Content)
		}
	}
	return out
}

// Validate checks the parent back-references and sibling position uniqueness.
func (t *Tree) Validate() error {
	positions := make(map[[2]int]struct{}, len(t.Nodes))
	for i, n := range t.Nodes {
		if n.Index != i {
			return fmt.Errorf("%w: node %d has index %d", ErrInvalidTree, i, n.Index)
		}
		switch n.Type {
		case retrieval.ChunkParent:
			if n.ParentIndex != -1 {
				return fmt.Errorf("%w: parent %d has a parent", ErrInvalidTree, i)
			}
		case retrieval.ChunkChild:
			if n.ParentIndex < 0 || n.ParentIndex >= i || t.Nodes[n.ParentIndex].Type != retrieval.ChunkParent {
				return fmt.Errorf("%w: child %d has no parent", ErrInvalidTree, i)
			}
		default:
			return fmt.Errorf("%w: node %d has type %q", ErrInvalidTree, i, n.Type)
		}
		key := [2]int{n.ParentIndex, n.Position}
		if _, dup := positions[key]; dup {
			return fmt.Errorf("%w: duplicate position %d under %d", ErrInvalidTree, n.Position, n.ParentIndex)
		}
		positions[key] = struct{}{}
	}
	return nil
}

var sectionHeader = regexp.MustCompile(`(?m)^#+\s+`)

// Build splits text into parents (groups of paragraphs, or markdown sections) and children
// (sentence windows or paragraphs) according to opts.
func Build(text string, opts Options) (*Tree, error) {
	opts = opts.normalized()
	text = strings.TrimSpace(text)
	tree := &Tree{}
	if text == "" {
		return tree, nil
	}

	var groups []string
	switch opts.Strategy {
	case StrategySentence, StrategyParagraph:
		groups = groupParagraphs(retrieval.SplitParagraphs(text), opts.ParagraphsPerParent)
	case StrategySection:
		for _, s := range sectionHeader.Split(text, -1) {
			if s = strings.TrimSpace(s); s != "" {
				groups = append(groups, s)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}

	parents := 0
	for _, group := range groups {
		for _, parentText := range SplitByMaxLength(group, opts.MaxChars) {
			parent := Node{
				Index:       len(tree.Nodes),
				ParentIndex: -1,
				Type:        retrieval.ChunkParent,
				Topic:       topicOf(parentText, opts.TopicMaxChars),
				Position:    parents,
				Content:     parentText,
			}
			tree.Nodes = append(tree.Nodes, parent)
			parents++

			for pos, childText := range childTexts(parentText, opts) {
				tree.Nodes = append(tree.Nodes, Node{
					Index:       len(tree.Nodes),
					ParentIndex: parent.Index,
					Type:        retrieval.ChunkChild,
					Position:    pos,
					Content:     childText,
				})
			}
		}
	}
	return tree, nil
}

func groupParagraphs(paras []string, per int) []string {
	var out []string
	for i := 0; i < len(paras); i += per {
		end := min(i+per, len(paras))
		out = append(out, strings.Join(paras[i:end], "\n\n"))
	}
	return out
}

func childTexts(parent string, opts Options) []string {
	var pieces []string
	if opts.Strategy == StrategySentence {
		pieces = sentenceWindows(SplitSentences(parent), opts.SentencesPerChild, opts.Overlap)
	} else {
		pieces = retrieval.SplitParagraphs(parent)
	}

	var out []string
	for _, p := range pieces {
		out = append(out, SplitByMaxLength(p, opts.MaxChars)...)
	}
	return out
}

// sentenceWindows joins size sentences per window, advancing by size-overlap.
func sentenceWindows(sentences []string, size, overlap int) []string {
	step := size - overlap
	if step <= 0 {
		step = 1
	}
	var out []string
	for i := 0; i < len(sentences); i += step {
		end := min(i+size, len(sentences))
		out = append(out, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
	}
	return out
}

// topicOf returns the first sentence, clipped at a word boundary.
func topicOf(text string, maxChars int) string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	topic := sentences[0]
	if runeLen(topic) <= maxChars {
		return topic
	}
	r := []rune(topic)[:maxChars]
	if i := strings.LastIndex(string(r), " "); i > 0 {
		return string(r)[:i]
	}
	return string(r)
}
