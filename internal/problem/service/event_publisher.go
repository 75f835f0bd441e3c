package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"itsm/internal/common/mq"
	"itsm/internal/problem/model"

	"github.com/google/uuid"
)

// EventPublisher publishes problem change events.
type EventPublisher struct {
	producer mq.Producer
	topic    string
	now      func() time.Time
}

// NewEventPublisher creates a publisher writing to topic.
func NewEventPublisher(producer mq.Producer, topic string) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish sends event keyed by problem id so events of one problem stay ordered.
func (p *EventPublisher) Publish(ctx context.Context, event model.ProblemEvent) error {
	if p == nil || p.producer == nil {
		return errors.New("event publisher is nil")
	}
	if p.topic == "" {
		return errors.New("event topic is empty")
	}
	if event.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal problem event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.EventID
	message.Key = strconv.FormatInt(event.ProblemID, 10)
	message.Timestamp = event.OccurredAt
	message.SetHeader("event_type", event.EventType)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish problem event failed: %w", err)
	}
	return nil
}
