package model

import "time"

// ChunkJob asks the chunking worker to rebuild a transcript's chunk tree. It travels over the
// message queue and is not a table.
type ChunkJob struct {
	ID           string    `json:"id"`
	TranscriptID uint      `json:"transcript_id"`
	RequestedAt  time.Time `json:"requested_at"`
}
