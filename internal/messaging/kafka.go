package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/config"
	"github.com/temcen/shopwise/pkg/models"
)

const publishTimeout = 10 * time.Second

// messageWriter is the part of kafka.Writer the bus depends on.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventBus publishes tracked interactions and training outcomes to Kafka.
type EventBus struct {
	interactions     messageWriter
	training         messageWriter
	interactionTopic string
	trainingTopic    string
	logger           *logrus.Logger
}

func NewEventBus(cfg *config.Config, logger *logrus.Logger) (*EventBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Key by entity id so per-user order is kept
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}
	}

	return newEventBus(
		newWriter(cfg.Kafka.Topics.UserInteractions),
		newWriter(cfg.Kafka.Topics.ModelTraining),
		cfg.Kafka.Topics.UserInteractions,
		cfg.Kafka.Topics.ModelTraining,
		logger,
	), nil
}

func newEventBus(interactions, training messageWriter, interactionTopic, trainingTopic string, logger *logrus.Logger) *EventBus {
	return &EventBus{
		interactions:     interactions,
		training:         training,
		interactionTopic: interactionTopic,
		trainingTopic:    trainingTopic,
		logger:           logger,
	}
}

// PublishInteraction writes one interaction event keyed by user id.
func (b *EventBus) PublishInteraction(ctx context.Context, event models.InteractionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "interaction_type", Value: []byte(event.InteractionType)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := b.write(ctx, b.interactions, message); err != nil {
		return fmt.Errorf("failed to write interaction event to Kafka: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"topic":    b.interactionTopic,
	}).Debug("Interaction event published")
	return nil
}

// PublishTraining writes one training outcome event.
func (b *EventBus) PublishTraining(ctx context.Context, event models.TrainingEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal training event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(fmt.Sprintf("model-v%d", event.ModelVersion)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(event.Status)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := b.write(ctx, b.training, message); err != nil {
		return fmt.Errorf("failed to write training event to Kafka: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"model_version": event.ModelVersion,
		"status":        event.Status,
		"topic":         b.trainingTopic,
	}).Info("Training event published")
	return nil
}

func (b *EventBus) write(ctx context.Context, w messageWriter, message kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return w.WriteMessages(ctx, message)
}

func (b *EventBus) Close() error {
	var errors []error

	if err := b.interactions.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close interaction writer: %w", err))
	}

	if err := b.training.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close training writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing event bus: %v", errors)
	}

	return nil
}
