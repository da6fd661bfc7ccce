package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fitbet/bet-engine/internal/model"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes notification events to a Kafka topic for the
// delivery system (push, email). Messages are keyed by recipient so one
// user's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *slog.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
	return newKafkaPublisher(writer, topic)
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		log:    slog.Default().With("component", "kafka", "topic", topic),
	}
}

// Event is the wire form of a notification on the topic.
type Event struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Type      model.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]any         `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Publish serializes n and writes it to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, n model.Notification) error {
	value, err := json.Marshal(Event{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(n.UserID),
		Value: value,
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write notification %s: %w", n.ID, err)
	}

	p.log.Debug("published notification", "notification_id", n.ID, "type", n.Type)
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
