package model

import "time"

// ChunkFeedback records one user's verdict on a retrieved chunk. A user has at most one
// verdict per chunk; voting again replaces it.
type ChunkFeedback struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_feedback_user_chunk" json:"user_id"`
	ChunkID      uint      `gorm:"not null;uniqueIndex:idx_feedback_user_chunk;index" json:"chunk_id"`
	TranscriptID uint      `gorm:"not null;index" json:"transcript_id"`
	Relevant     bool      `gorm:"not null" json:"relevant"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
