package app

import (
	"context"
	"time"

	"transcript-assistant/internal/ai"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/repository"
)

// The services depend on these narrow views of the repositories.

type UserStore interface {
	Create(user *model.User) error
	GetByUsername(username string) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	GetByID(id uint) (*model.User, error)
	TouchLastLogin(id uint, at time.Time) error
}

type TranscriptStore interface {
	Create(t *model.Transcript) error
	ListDocuments(filter repository.TranscriptFilter) ([]model.Transcript, error)
	GetByID(id uint) (*model.Transcript, error)
	GetByIDAndUserID(id, userID uint) (*model.Transcript, error)
	UpdateSource(id uint, source string) error
	UpdateChunkState(id uint, status string, count int) error
	DeleteByIDAndUserID(id, userID uint) error
}

type ChunkStore interface {
	ReplaceTree(transcriptID uint, records []repository.ChunkRecord) ([]model.TranscriptChunk, error)
	ListChunks(transcriptIDs []uint) ([]model.TranscriptChunk, error)
	GetByID(id uint) (*model.TranscriptChunk, error)
}

type FeedbackStore interface {
	Upsert(fb *model.ChunkFeedback) error
	CountRelevant(chunkIDs []uint) (map[uint]int, error)
}

type ConversationStore interface {
	Create(conversation *model.Conversation) error
	ListByUserID(userID uint) ([]model.Conversation, error)
	GetByIDAndUserID(conversationID, userID uint) (*model.Conversation, error)
	Touch(conversationID uint, at time.Time) error
	DeleteByIDAndUserID(conversationID, userID uint) error
}

type MessageStore interface {
	ListByConversationID(conversationID uint, limit int) ([]model.Message, error)
	ListRecentByConversationID(conversationID uint, limit int) ([]model.Message, error)
	DeleteByConversationID(conversationID uint) error
}

type Embedder interface {
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error)
}

// Generator is the external text generation service.
type Generator interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	Generate(ctx context.Context, cfg ai.ChatConfig, promptContext []ai.ChatMessage, systemInstructions string) (string, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

var (
	_ UserStore         = (*repository.UserRepository)(nil)
	_ TranscriptStore   = (*repository.TranscriptRepository)(nil)
	_ ChunkStore        = (*repository.TranscriptChunkRepository)(nil)
	_ FeedbackStore     = (*repository.FeedbackRepository)(nil)
	_ ConversationStore = (*repository.ConversationRepository)(nil)
	_ MessageStore      = (*repository.MessageRepository)(nil)
	_ Embedder          = (*ai.OpenAICompatibleClient)(nil)
	_ Generator         = (*ai.OpenAICompatibleClient)(nil)
)
