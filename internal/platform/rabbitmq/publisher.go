package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"transcript-assistant/internal/model"
)

// Publisher sends persistent JSON messages to one queue through the default exchange.
type Publisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewPublisher(conn *amqp.Connection, queueName string) *Publisher {
	return &Publisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *Publisher) Queue() string {
	return p.queueName
}

func (p *Publisher) publishJSON(ctx context.Context, messageType, messageID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload failed: %w", messageType, err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Type:         messageType,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	); err != nil {
		return fmt.Errorf("publish %s failed: %w", messageType, err)
	}
	return nil
}

// MessagePublisher queues chat messages for asynchronous persistence.
type MessagePublisher struct {
	*Publisher
}

func NewMessagePublisher(conn *amqp.Connection, queueName string) *MessagePublisher {
	return &MessagePublisher{Publisher: NewPublisher(conn, queueName)}
}

func (p *MessagePublisher) Publish(ctx context.Context, msg model.Message) error {
	return p.publishJSON(ctx, "chat.message", "", msg)
}

// ChunkJobPublisher queues transcripts for chunking and embedding.
type ChunkJobPublisher struct {
	*Publisher
}

func NewChunkJobPublisher(conn *amqp.Connection, queueName string) *ChunkJobPublisher {
	return &ChunkJobPublisher{Publisher: NewPublisher(conn, queueName)}
}

func (p *ChunkJobPublisher) Publish(ctx context.Context, job model.ChunkJob) error {
	return p.publishJSON(ctx, "transcript.chunk", job.ID, job)
}
