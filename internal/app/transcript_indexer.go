package app

import (
	"context"
	"fmt"

	"transcript-assistant/internal/ai"
	"transcript-assistant/internal/chunking"
	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/repository"
)

const embeddingBatchSize = 10 // DashScope and similar APIs often limit batch size

type IndexResult struct {
	TranscriptID uint                   `json:"transcript_id"`
	ChunkCount   int                    `json:"chunk_count"`
	Embedded     bool                   `json:"embedded"`
	Quality      chunking.Quality       `json:"quality"`
	Tokens       chunking.TokenEstimate `json:"tokens"`
}

// TranscriptIndexer rebuilds the parent/child chunk tree of a transcript and, when an
// embedding model is configured, stores an embedding per chunk.
type TranscriptIndexer struct {
	transcripts TranscriptStore
	chunks      ChunkStore
	embedder    Embedder
	embConfig   ai.EmbeddingConfig
	options     chunking.Options
	log         *logger.Logger
}

func NewTranscriptIndexer(
	transcripts TranscriptStore,
	chunks ChunkStore,
	embedder Embedder,
	embConfig ai.EmbeddingConfig,
	options chunking.Options,
	log *logger.Logger,
) *TranscriptIndexer {
	if log == nil {
		log = logger.Nop()
	}
	return &TranscriptIndexer{
		transcripts: transcripts,
		chunks:      chunks,
		embedder:    embedder,
		embConfig:   embConfig,
		options:     options,
		log:         log,
	}
}

func (x *TranscriptIndexer) Index(ctx context.Context, transcriptID uint) (*IndexResult, error) {
	if transcriptID == 0 {
		return nil, ErrInvalidInput
	}
	transcript, err := x.transcripts.GetByID(transcriptID)
	if err != nil {
		return nil, err
	}
	if transcript == nil {
		return nil, ErrTranscriptNotFound
	}

	tree, err := chunking.Build(transcript.Content, x.options)
	if err != nil {
		_ = x.transcripts.UpdateChunkState(transcriptID, model.ChunkStatusFailed, 0)
		return nil, fmt.Errorf("chunk transcript %d failed: %w", transcriptID, err)
	}

	records := make([]repository.ChunkRecord, len(tree.Nodes))
	for i, n := range tree.Nodes {
		records[i] = repository.ChunkRecord{
			Chunk: model.TranscriptChunk{
				ChunkType: string(n.Type),
				Topic:     n.Topic,
				Position:  n.Position,
				Content:   n.Content,
			},
			ParentIndex: n.ParentIndex,
		}
	}
	embedded := x.embed(ctx, transcriptID, records)

	if _, err := x.chunks.ReplaceTree(transcriptID, records); err != nil {
		_ = x.transcripts.UpdateChunkState(transcriptID, model.ChunkStatusFailed, 0)
		return nil, err
	}
	if err := x.transcripts.UpdateChunkState(transcriptID, model.ChunkStatusReady, len(records)); err != nil {
		return nil, err
	}

	contents := tree.Contents()
	result := &IndexResult{
		TranscriptID: transcriptID,
		ChunkCount:   len(records),
		Embedded:     embedded,
		Quality:      chunking.Analyze(contents),
		Tokens:       chunking.EstimateTokens(contents),
	}
	x.log.Info("transcript indexed",
		"transcript_id", transcriptID,
		"chunks", result.ChunkCount,
		"embedded", embedded,
		"issues", result.Quality.PossibleIssues,
	)
	return result, nil
}

// embed fills in chunk embeddings in batches. Any failure leaves every chunk without an
// embedding; keyword retrieval does not need them.
func (x *TranscriptIndexer) embed(ctx context.Context, transcriptID uint, records []repository.ChunkRecord) bool {
	if x.embedder == nil || !x.embConfig.Enabled() || len(records) == 0 {
		return false
	}
	vectors := make([][]float32, 0, len(records))
	for i := 0; i < len(records); i += embeddingBatchSize {
		end := min(i+embeddingBatchSize, len(records))
		batch := make([]string, 0, end-i)
		for _, rec := range records[i:end] {
			batch = append(batch, rec.Chunk.Content)
		}
		got, err := x.embedder.EmbedBatch(ctx, x.embConfig, batch)
		if err != nil || len(got) != len(batch) {
			x.log.Warn("embedding chunks failed, continuing without embeddings",
				"transcript_id", transcriptID, "error", err)
			return false
		}
		vectors = append(vectors, got...)
	}
	for i := range records {
		records[i].Chunk.SetEmbedding(vectors[i])
	}
	return true
}
