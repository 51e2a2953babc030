package retrieval

import (
	"errors"
	"fmt"
	"time"
)

type ChunkType string

const (
	ChunkParent ChunkType = "parent"
	ChunkChild  ChunkType = "child"
)

var (
	ErrUnknownParent     = errors.New("child chunk references unknown parent")
	ErrParentMismatch    = errors.New("child chunk parent belongs to another transcript")
	ErrDuplicatePosition = errors.New("duplicate chunk position among siblings")
)

// ChunkNode is one chunk of a transcript as seen by the ranker.
type ChunkNode struct {
	ID              string
	TranscriptID    string
	TranscriptTitle string
	Source          string
	Type            ChunkType
	Topic           string
	Position        int
	ParentID        string
	Content         string
	FeedbackCount   int
	CreatedAt       time.Time
}

// ChunkIndex is a flat arena of chunks with parent lookups by id.
type ChunkIndex struct {
	nodes []ChunkNode
	byID  map[string]int
}

func NewChunkIndex(nodes []ChunkNode) *ChunkIndex {
	idx := &ChunkIndex{
		nodes: append([]ChunkNode(nil), nodes...),
		byID:  make(map[string]int, len(nodes)),
	}
	for i, n := range idx.nodes {
		idx.byID[n.ID] = i
	}
	return idx
}

func (idx *ChunkIndex) Len() int {
	return len(idx.nodes)
}

func (idx *ChunkIndex) Get(id string) (ChunkNode, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return ChunkNode{}, false
	}
	return idx.nodes[i], true
}

// Parent returns the parent of a child chunk.
func (idx *ChunkIndex) Parent(n ChunkNode) (ChunkNode, bool) {
	if n.Type != ChunkChild || n.ParentID == "" {
		return ChunkNode{}, false
	}
	p, ok := idx.Get(n.ParentID)
	if !ok || p.Type != ChunkParent {
		return ChunkNode{}, false
	}
	return p, true
}

// Validate checks that every child points at a parent of the same transcript and that sibling
// positions are unique.
func (idx *ChunkIndex) Validate() error {
	type sibling struct {
		transcript string
		parent     string
		position   int
	}
	seen := make(map[sibling]string, len(idx.nodes))
	for _, n := range idx.nodes {
		parentKey := ""
		if n.Type == ChunkChild {
			p, ok := idx.Get(n.ParentID)
			if !ok || p.Type != ChunkParent {
				return fmt.Errorf("chunk %s: %w", n.ID, ErrUnknownParent)
			}
			if p.TranscriptID != n.TranscriptID {
				return fmt.Errorf("chunk %s: %w", n.ID, ErrParentMismatch)
			}
			parentKey = p.ID
		}
		key := sibling{transcript: n.TranscriptID, parent: parentKey, position: n.Position}
		if other, dup := seen[key]; dup {
			return fmt.Errorf("chunks %s and %s: %w", other, n.ID, ErrDuplicatePosition)
		}
		seen[key] = n.ID
	}
	return nil
}

func (idx *ChunkIndex) hasChildren() map[string]bool {
	out := make(map[string]bool)
	for _, n := range idx.nodes {
		if n.Type == ChunkChild && n.ParentID != "" {
			out[n.ParentID] = true
		}
	}
	return out
}

// RankChunks scores child chunks (and parents that have no children), then collapses hits onto
// their parent so each parent is cited at most once with the score of its best child. Excerpts
// are drawn from the parent's content. It returns nil when nothing matches.
func (r *Ranker) RankChunks(q string, idx *ChunkIndex) []Result {
	if idx == nil || idx.Len() == 0 {
		return nil
	}
	pq := r.prepare(q)
	withChildren := idx.hasChildren()

	candidates := make([]Candidate, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		if n.Type == ChunkParent && withChildren[n.ID] {
			continue
		}
		title, topic, source := n.TranscriptTitle, n.Topic, n.Source
		if p, ok := idx.Parent(n); ok {
			topic = p.Topic
			if title == "" {
				title = p.TranscriptTitle
			}
			if source == "" {
				source = p.Source
			}
		}
		if topic != "" {
			title += ": " + topic
		}
		candidates = append(candidates, Candidate{
			ID:            n.ID,
			Title:         title,
			Content:       n.Content,
			Source:        source,
			CreatedAt:     n.CreatedAt,
			FeedbackCount: n.FeedbackCount,
		})
	}

	scored := r.rankAll(pq, candidates)
	if len(scored) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var results []Result
	for _, res := range scored {
		node, _ := idx.Get(res.Candidate.ID)
		target := node
		if p, ok := idx.Parent(node); ok {
			target = p
		}
		if seen[target.ID] {
			continue
		}
		seen[target.ID] = true
		res.Candidate.ID = target.ID
		res.Candidate.DocumentID = target.TranscriptID
		res.Candidate.Content = target.Content
		results = append(results, res)
	}

	results = r.limit(results)
	for i := range results {
		results[i].Excerpt = r.excerpt(pq, results[i].Candidate.Content)
		results[i].Category = r.categoryOf(results[i].Candidate)
	}
	return results
}
