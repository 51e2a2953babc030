package app

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"transcript-assistant/internal/ai"
	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/repository"
	"transcript-assistant/internal/retrieval"
)

var (
	ErrChunkNotFound = errors.New("chunk not found")
	ErrQueryEmpty    = errors.New("query is empty")
)

type SearchInput struct {
	UserID uint
	Query  string
	Source string
}

type FeedbackInput struct {
	UserID   uint
	ChunkID  uint
	Relevant bool
}

// SearchService ranks a user's transcripts against a query without calling the generator.
type SearchService struct {
	transcripts    TranscriptStore
	chunks         ChunkStore
	feedback       FeedbackStore
	ranker         *retrieval.Ranker
	embedder       Embedder
	embConfig      ai.EmbeddingConfig
	semanticWeight float64
	log            *logger.Logger
}

func NewSearchService(
	transcripts TranscriptStore,
	chunks ChunkStore,
	feedback FeedbackStore,
	ranker *retrieval.Ranker,
	embedder Embedder,
	embConfig ai.EmbeddingConfig,
	semanticWeight float64,
	log *logger.Logger,
) *SearchService {
	if ranker == nil {
		ranker = retrieval.NewRanker(retrieval.DefaultScoring(), nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SearchService{
		transcripts:    transcripts,
		chunks:         chunks,
		feedback:       feedback,
		ranker:         ranker,
		embedder:       embedder,
		embConfig:      embConfig,
		semanticWeight: semanticWeight,
		log:            log,
	}
}

// Search returns at most MaxResults results. Chunked transcripts are ranked chunk by chunk and
// collapsed to their parents; transcripts that have not been chunked are ranked whole. A nil
// slice with a nil error means nothing matched.
func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]retrieval.Result, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	q := strings.TrimSpace(input.Query)
	if q == "" {
		return nil, ErrQueryEmpty
	}

	docs, err := s.transcripts.ListDocuments(repository.TranscriptFilter{
		UserID:      input.UserID,
		Source:      strings.TrimSpace(input.Source),
		WithContent: true,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var (
		plain   []retrieval.Candidate
		chunked = make(map[uint]model.Transcript)
		ids     []uint
	)
	for _, d := range docs {
		if d.ChunkStatus == model.ChunkStatusReady && d.ChunkCount > 0 {
			chunked[d.ID] = d
			ids = append(ids, d.ID)
			continue
		}
		plain = append(plain, retrieval.Candidate{
			ID:        formatID(d.ID),
			Title:     d.Title,
			Content:   d.Content,
			Source:    d.Source,
			CreatedAt: d.CreatedAt,
		})
	}

	var (
		chunkHits []retrieval.Result
		stored    []model.TranscriptChunk
	)
	if len(ids) > 0 {
		stored, err = s.chunks.ListChunks(ids)
		if err != nil {
			return nil, err
		}
		idx, err := s.chunkIndex(chunked, stored)
		if err != nil {
			return nil, err
		}
		chunkHits = s.ranker.RankChunks(q, idx)
	}

	results := s.ranker.Merge(chunkHits, s.ranker.Rank(q, plain))
	if len(results) == 0 {
		return nil, nil
	}
	return s.rerank(ctx, q, results, stored), nil
}

func (s *SearchService) chunkIndex(transcripts map[uint]model.Transcript, stored []model.TranscriptChunk) (*retrieval.ChunkIndex, error) {
	chunkIDs := make([]uint, len(stored))
	for i, c := range stored {
		chunkIDs[i] = c.ID
	}
	counts := map[uint]int{}
	if s.feedback != nil && len(chunkIDs) > 0 {
		var err error
		if counts, err = s.feedback.CountRelevant(chunkIDs); err != nil {
			return nil, err
		}
	}

	nodes := make([]retrieval.ChunkNode, 0, len(stored))
	for _, c := range stored {
		t := transcripts[c.TranscriptID]
		node := retrieval.ChunkNode{
			ID:              formatID(c.ID),
			TranscriptID:    formatID(c.TranscriptID),
			TranscriptTitle: t.Title,
			Source:          t.Source,
			Type:            retrieval.ChunkType(c.ChunkType),
			Topic:           c.Topic,
			Position:        c.Position,
			Content:         c.Content,
			FeedbackCount:   counts[c.ID],
			CreatedAt:       t.CreatedAt,
		}
		if c.ParentID != nil {
			node.ParentID = formatID(*c.ParentID)
			node.FeedbackCount += counts[*c.ParentID]
		}
		nodes = append(nodes, node)
	}

	idx := retrieval.NewChunkIndex(nodes)
	if err := idx.Validate(); err != nil {
		s.log.Warn("chunk tree is inconsistent, ranking anyway", "error", err)
	}
	return idx, nil
}

// rerank fuses keyword scores with embedding similarity. It only applies when every result is
// a chunk hit and the query can be embedded; otherwise keyword order stands.
func (s *SearchService) rerank(ctx context.Context, q string, results []retrieval.Result, stored []model.TranscriptChunk) []retrieval.Result {
	if s.embedder == nil || !s.embConfig.Enabled() || s.semanticWeight <= 0 || len(stored) == 0 {
		return results
	}
	for _, r := range results {
		if r.Candidate.DocumentID == "" {
			return results
		}
	}

	// parent id -> embeddings of the parent and its children
	vectors := make(map[string][][]float32)
	for i := range stored {
		vec := stored[i].EmbeddingVector()
		if len(vec) == 0 {
			continue
		}
		key := formatID(stored[i].ID)
		if stored[i].ParentID != nil {
			key = formatID(*stored[i].ParentID)
		}
		vectors[key] = append(vectors[key], vec)
	}
	if len(vectors) == 0 {
		return results
	}

	qvec, err := s.embedder.Embed(ctx, s.embConfig, q)
	if err != nil {
		s.log.Warn("embed query failed, using keyword ranking", "error", err)
		return results
	}
	semantic := make(map[string]float64, len(results))
	for _, r := range results {
		best := 0.0
		for _, v := range vectors[r.Candidate.ID] {
			best = max(best, retrieval.CosineSimilarity(qvec, v))
		}
		semantic[r.Candidate.ID] = best
	}
	return retrieval.Fuse(results, semantic, s.semanticWeight)
}

func (s *SearchService) Classify(title, content string) retrieval.SourceCategory {
	return s.ranker.Classifier().Classify(title, content)
}

func (s *SearchService) Sources() []retrieval.SourceCategory {
	return s.ranker.Classifier().Catalog().Categories()
}

// Feedback records whether a chunk the user saw was relevant. Users can only vote on chunks of
// their own transcripts.
func (s *SearchService) Feedback(input FeedbackInput) (*model.ChunkFeedback, error) {
	if input.UserID == 0 || input.ChunkID == 0 {
		return nil, ErrInvalidInput
	}
	chunk, err := s.chunks.GetByID(input.ChunkID)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, ErrChunkNotFound
	}
	owner, err := s.transcripts.GetByIDAndUserID(chunk.TranscriptID, input.UserID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrChunkNotFound
	}

	fb := &model.ChunkFeedback{
		UserID:       input.UserID,
		ChunkID:      chunk.ID,
		TranscriptID: chunk.TranscriptID,
		Relevant:     input.Relevant,
	}
	if err := s.feedback.Upsert(fb); err != nil {
		return nil, err
	}
	return fb, nil
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
