package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/model"
)

type MessageWriter interface {
	Create(msg *model.Message) error
}

func NewMessagePersistWorker(conn *amqp.Connection, repo MessageWriter, queueName string, log *logger.Logger) *Consumer {
	return NewConsumer(conn, queueName, PersistMessage(repo), log)
}

// PersistMessage stores each queued chat message.
func PersistMessage(repo MessageWriter) Handler {
	return func(ctx context.Context, body []byte) error {
		var msg model.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decode message failed: %w", err)
		}
		if msg.ConversationID == 0 || msg.Role == "" {
			return fmt.Errorf("message without conversation or role")
		}
		msg.ID = 0
		if err := repo.Create(&msg); err != nil {
			return fmt.Errorf("persist message failed: %w", err)
		}
		return nil
	}
}
