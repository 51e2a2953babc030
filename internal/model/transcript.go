package model

import "time"

const (
	ChunkStatusPending = "pending"
	ChunkStatusReady   = "ready"
	ChunkStatusFailed  = "failed"
)

// Transcript is an uploaded call recording transcript or web article. Source holds a
// source category id and may be empty until the transcript is tagged.
type Transcript struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Title       string    `gorm:"size:256;not null" json:"title"`
	Content     string    `gorm:"type:longtext;not null" json:"content,omitempty"`
	Source      string    `gorm:"size:64;index" json:"source"`
	FileName    string    `gorm:"size:256" json:"file_name,omitempty"`
	ChunkStatus string    `gorm:"size:16;not null;default:pending" json:"chunk_status"`
	ChunkCount  int       `gorm:"not null;default:0" json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
