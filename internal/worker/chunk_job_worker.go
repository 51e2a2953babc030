package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"transcript-assistant/internal/app"
	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/model"
)

type Indexer interface {
	Index(ctx context.Context, transcriptID uint) (*app.IndexResult, error)
}

func NewChunkJobWorker(conn *amqp.Connection, indexer Indexer, queueName string, log *logger.Logger) *Consumer {
	return NewConsumer(conn, queueName, IndexTranscript(indexer, log), log)
}

// IndexTranscript chunks and embeds the transcript named by each job. Jobs for transcripts that
// were deleted in the meantime are dropped.
func IndexTranscript(indexer Indexer, log *logger.Logger) Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(ctx context.Context, body []byte) error {
		var job model.ChunkJob
		if err := json.Unmarshal(body, &job); err != nil {
			return fmt.Errorf("decode chunk job failed: %w", err)
		}
		if job.TranscriptID == 0 {
			return fmt.Errorf("chunk job %s has no transcript", job.ID)
		}

		started := time.Now()
		res, err := indexer.Index(ctx, job.TranscriptID)
		if errors.Is(err, app.ErrTranscriptNotFound) {
			log.Warn("chunk job for missing transcript", "job_id", job.ID, "transcript_id", job.TranscriptID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("chunk job %s: %w", job.ID, err)
		}
		log.Info("chunk job done",
			"job_id", job.ID,
			"transcript_id", job.TranscriptID,
			"chunks", res.ChunkCount,
			"queued_for", started.Sub(job.RequestedAt).String(),
			"took", time.Since(started).String(),
		)
		return nil
	}
}
