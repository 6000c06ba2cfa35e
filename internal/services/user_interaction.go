package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// ErrInvalidInteractionType rejects tracking requests whose type is not view,
// cart_add or purchase. Nothing is stored when it is returned.
var ErrInvalidInteractionType = errors.New("invalid interaction type: must be one of view, cart_add, purchase")

// UserInteractionService is the tracking boundary for user behaviour.
type UserInteractionService struct {
	store     InteractionRepository
	publisher EventPublisher
	metrics   *MetricsCollector
	logger    *logrus.Logger
	now       func() time.Time
}

// NewUserInteractionService wires the store. publisher and metrics may be nil.
func NewUserInteractionService(store InteractionRepository, publisher EventPublisher, metrics *MetricsCollector, logger *logrus.Logger) *UserInteractionService {
	return &UserInteractionService{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// TrackInteraction validates and records one interaction event.
func (s *UserInteractionService) TrackInteraction(ctx context.Context, req *models.TrackInteractionRequest) (*models.UserInteraction, error) {
	interactionType := models.InteractionType(req.InteractionType)
	if !interactionType.Valid() {
		s.logger.WithFields(logrus.Fields{
			"user_id":          req.UserID,
			"interaction_type": req.InteractionType,
		}).Warn("Rejected interaction with invalid type")
		return nil, ErrInvalidInteractionType
	}

	interaction := &models.UserInteraction{
		ID:              uuid.New(),
		UserID:          req.UserID,
		ProductID:       req.ProductID,
		InteractionType: interactionType,
		SessionID:       req.SessionID,
		Timestamp:       s.now().UTC(),
	}

	if err := s.store.InsertInteraction(ctx, interaction); err != nil {
		return nil, fmt.Errorf("failed to store interaction: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordInteraction(interactionType)
	}

	if s.publisher != nil {
		event := models.InteractionEvent{
			EventID:         interaction.ID,
			UserID:          interaction.UserID,
			ProductID:       interaction.ProductID,
			InteractionType: interaction.InteractionType,
			SessionID:       interaction.SessionID,
			Timestamp:       interaction.Timestamp,
		}
		if err := s.publisher.PublishInteraction(ctx, event); err != nil {
			s.logger.WithError(err).WithField("interaction_id", interaction.ID).Warn("Failed to publish interaction event")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":          interaction.UserID,
		"product_id":       interaction.ProductID,
		"interaction_type": interaction.InteractionType,
	}).Info("Tracked interaction")

	return interaction, nil
}

// GetUserInteractions returns a user's history, most recent first.
func (s *UserInteractionService) GetUserInteractions(ctx context.Context, userID string, interactionType string, limit int) ([]models.UserInteraction, error) {
	t, err := parseTypeFilter(interactionType)
	if err != nil {
		return nil, err
	}
	return s.store.UserInteractions(ctx, userID, t, limit)
}

func (s *UserInteractionService) GetProductInteractions(ctx context.Context, productID string, interactionType string, limit int) ([]models.UserInteraction, error) {
	t, err := parseTypeFilter(interactionType)
	if err != nil {
		return nil, err
	}
	return s.store.ProductInteractions(ctx, productID, t, limit)
}

func (s *UserInteractionService) GetInteractionStats(ctx context.Context, userID string) (models.InteractionStats, error) {
	return s.store.InteractionStats(ctx, userID)
}

func parseTypeFilter(raw string) (models.InteractionType, error) {
	if raw == "" {
		return "", nil
	}
	t := models.InteractionType(raw)
	if !t.Valid() {
		return "", ErrInvalidInteractionType
	}
	return t, nil
}
