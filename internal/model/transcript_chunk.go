package model

import (
	"encoding/json"
	"time"
)

// TranscriptChunk is one node of a transcript's parent/child chunk tree. Children point at
// their parent through ParentID; Position orders siblings.
type TranscriptChunk struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TranscriptID uint      `gorm:"not null;index;uniqueIndex:idx_chunk_sibling" json:"transcript_id"`
	ParentID     *uint     `gorm:"index;uniqueIndex:idx_chunk_sibling" json:"parent_id,omitempty"`
	ChunkType    string    `gorm:"size:16;not null;uniqueIndex:idx_chunk_sibling" json:"chunk_type"`
	Position     int       `gorm:"not null;uniqueIndex:idx_chunk_sibling" json:"position"`
	Topic        string    `gorm:"size:256" json:"topic,omitempty"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Embedding    string    `gorm:"type:mediumtext" json:"-"` // JSON array of float32
	CreatedAt    time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *TranscriptChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

func (c *TranscriptChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = ""
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
