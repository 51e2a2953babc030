package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"transcript-assistant/internal/model"
)

type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Upsert stores the user's verdict on a chunk, replacing an earlier one.
func (r *FeedbackRepository) Upsert(fb *model.ChunkFeedback) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"relevant", "updated_at"}),
	}).Create(fb).Error
	if err != nil {
		return fmt.Errorf("upsert chunk feedback failed: %w", err)
	}
	return nil
}

// CountRelevant returns the number of positive verdicts per chunk id.
func (r *FeedbackRepository) CountRelevant(chunkIDs []uint) (map[uint]int, error) {
	out := make(map[uint]int)
	if len(chunkIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ChunkID uint
		Total   int
	}
	err := r.db.Model(&model.ChunkFeedback{}).
		Select("chunk_id, COUNT(*) AS total").
		Where("chunk_id IN ? AND relevant = ?", chunkIDs, true).
		Group("chunk_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count chunk feedback failed: %w", err)
	}
	for _, row := range rows {
		out[row.ChunkID] = row.Total
	}
	return out, nil
}
