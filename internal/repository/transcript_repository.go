package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"transcript-assistant/internal/model"
)

// listColumns leaves out the transcript body for listings.
var listColumns = []string{"id", "user_id", "title", "source", "file_name", "chunk_status", "chunk_count", "created_at", "updated_at"}

// TranscriptFilter narrows ListDocuments. Zero values mean "any".
type TranscriptFilter struct {
	UserID      uint
	IDs         []uint
	Source      string
	Untagged    bool
	WithContent bool
	Limit       int
}

type TranscriptRepository struct {
	db *gorm.DB
}

func NewTranscriptRepository(db *gorm.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) Create(t *model.Transcript) error {
	if err := r.db.Create(t).Error; err != nil {
		return fmt.Errorf("create transcript failed: %w", err)
	}
	return nil
}

// ListDocuments returns transcripts newest first.
func (r *TranscriptRepository) ListDocuments(filter TranscriptFilter) ([]model.Transcript, error) {
	q := r.db.Model(&model.Transcript{})
	if !filter.WithContent {
		q = q.Select(listColumns)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if len(filter.IDs) > 0 {
		q = q.Where("id IN ?", filter.IDs)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Untagged {
		q = q.Where("source = '' OR source IS NULL")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var list []model.Transcript
	if err := q.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list transcripts failed: %w", err)
	}
	return list, nil
}

func (r *TranscriptRepository) GetByIDAndUserID(id, userID uint) (*model.Transcript, error) {
	var t model.Transcript
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transcript failed: %w", err)
	}
	return &t, nil
}

func (r *TranscriptRepository) GetByID(id uint) (*model.Transcript, error) {
	var t model.Transcript
	if err := r.db.First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transcript failed: %w", err)
	}
	return &t, nil
}

func (r *TranscriptRepository) UpdateSource(id uint, source string) error {
	if err := r.db.Model(&model.Transcript{}).Where("id = ?", id).Update("source", source).Error; err != nil {
		return fmt.Errorf("update transcript source failed: %w", err)
	}
	return nil
}

func (r *TranscriptRepository) UpdateChunkState(id uint, status string, count int) error {
	err := r.db.Model(&model.Transcript{}).Where("id = ?", id).
		Updates(map[string]interface{}{"chunk_status": status, "chunk_count": count}).Error
	if err != nil {
		return fmt.Errorf("update transcript chunk state failed: %w", err)
	}
	return nil
}

// DeleteByIDAndUserID removes the transcript together with its chunks and their feedback.
func (r *TranscriptRepository) DeleteByIDAndUserID(id, userID uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Transcript{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where("transcript_id = ?", id).Delete(&model.ChunkFeedback{}).Error; err != nil {
			return err
		}
		return tx.Where("transcript_id = ?", id).Delete(&model.TranscriptChunk{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete transcript failed: %w", err)
	}
	return nil
}
