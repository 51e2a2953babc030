package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"transcript-assistant/internal/model"
)

// ChunkRecord is one row of a chunk tree in arena order. ParentIndex points at an earlier
// record, or is -1 for parents.
type ChunkRecord struct {
	Chunk       model.TranscriptChunk
	ParentIndex int
}

type TranscriptChunkRepository struct {
	db *gorm.DB
}

func NewTranscriptChunkRepository(db *gorm.DB) *TranscriptChunkRepository {
	return &TranscriptChunkRepository{db: db}
}

// ReplaceTree swaps the stored chunks of a transcript for records in one transaction. Parent
// ids are resolved as rows are inserted.
func (r *TranscriptChunkRepository) ReplaceTree(transcriptID uint, records []ChunkRecord) ([]model.TranscriptChunk, error) {
	out := make([]model.TranscriptChunk, len(records))
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("transcript_id = ?", transcriptID).Delete(&model.ChunkFeedback{}).Error; err != nil {
			return err
		}
		if err := tx.Where("transcript_id = ?", transcriptID).Delete(&model.TranscriptChunk{}).Error; err != nil {
			return err
		}
		for i, rec := range records {
			chunk := rec.Chunk
			chunk.ID = 0
			chunk.TranscriptID = transcriptID
			chunk.ParentID = nil
			if rec.ParentIndex >= 0 {
				if rec.ParentIndex >= i {
					return fmt.Errorf("chunk %d references later parent %d", i, rec.ParentIndex)
				}
				parentID := out[rec.ParentIndex].ID
				chunk.ParentID = &parentID
			}
			if err := tx.Create(&chunk).Error; err != nil {
				return err
			}
			out[i] = chunk
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace transcript chunks failed: %w", err)
	}
	return out, nil
}

// ListChunks returns the chunks of the given transcripts ordered for tree reconstruction.
func (r *TranscriptChunkRepository) ListChunks(transcriptIDs []uint) ([]model.TranscriptChunk, error) {
	if len(transcriptIDs) == 0 {
		return nil, nil
	}
	var chunks []model.TranscriptChunk
	err := r.db.Where("transcript_id IN ?", transcriptIDs).
		Order("transcript_id ASC, id ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("list transcript chunks failed: %w", err)
	}
	return chunks, nil
}

func (r *TranscriptChunkRepository) GetByID(id uint) (*model.TranscriptChunk, error) {
	var chunk model.TranscriptChunk
	if err := r.db.First(&chunk, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transcript chunk failed: %w", err)
	}
	return &chunk, nil
}
