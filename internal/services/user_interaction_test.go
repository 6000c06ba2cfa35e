package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shopwise/pkg/models"
)

// MockInteractionRepository is a mock implementation for testing
type MockInteractionRepository struct {
	mock.Mock
}

func (m *MockInteractionRepository) InsertInteraction(ctx context.Context, interaction *models.UserInteraction) error {
	args := m.Called(ctx, interaction)
	return args.Error(0)
}

func (m *MockInteractionRepository) UserInteractions(ctx context.Context, userID string, interactionType models.InteractionType, limit int) ([]models.UserInteraction, error) {
	args := m.Called(ctx, userID, interactionType, limit)
	return args.Get(0).([]models.UserInteraction), args.Error(1)
}

func (m *MockInteractionRepository) ProductInteractions(ctx context.Context, productID string, interactionType models.InteractionType, limit int) ([]models.UserInteraction, error) {
	args := m.Called(ctx, productID, interactionType, limit)
	return args.Get(0).([]models.UserInteraction), args.Error(1)
}

func (m *MockInteractionRepository) InteractionStats(ctx context.Context, userID string) (models.InteractionStats, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.InteractionStats), args.Error(1)
}

func TestUserInteractionService_TrackInteraction(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	t.Run("StoresAndPublishes", func(t *testing.T) {
		repo := &MockInteractionRepository{}
		publisher := &mockPublisher{}
		registry := prometheus.NewRegistry()
		metrics := NewMetricsCollector(registry, testLogger())
		service := NewUserInteractionService(repo, publisher, metrics, testLogger())
		service.now = func() time.Time { return fixed }

		session := "s-9"
		repo.On("InsertInteraction", ctx, mock.MatchedBy(func(i *models.UserInteraction) bool {
			return i.UserID == "u1" && i.ProductID == "p1" && i.InteractionType == models.InteractionPurchase && i.Timestamp.Equal(fixed)
		})).Return(nil)
		publisher.On("PublishInteraction", ctx, mock.MatchedBy(func(e models.InteractionEvent) bool {
			return e.UserID == "u1" && e.SessionID != nil && *e.SessionID == "s-9"
		})).Return(nil)

		interaction, err := service.TrackInteraction(ctx, &models.TrackInteractionRequest{
			UserID:          "u1",
			ProductID:       "p1",
			InteractionType: "purchase",
			SessionID:       &session,
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, interaction.ID)
		assert.Equal(t, fixed, interaction.Timestamp)

		repo.AssertExpectations(t)
		publisher.AssertExpectations(t)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.interactionsTracked.WithLabelValues("purchase")))
	})

	t.Run("InvalidTypeStoresNothing", func(t *testing.T) {
		repo := &MockInteractionRepository{}
		service := NewUserInteractionService(repo, nil, nil, testLogger())

		_, err := service.TrackInteraction(ctx, &models.TrackInteractionRequest{
			UserID:          "u1",
			ProductID:       "p1",
			InteractionType: "wishlist",
		})
		assert.ErrorIs(t, err, ErrInvalidInteractionType)
		repo.AssertNotCalled(t, "InsertInteraction", mock.Anything, mock.Anything)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		repo := &MockInteractionRepository{}
		publisher := &mockPublisher{}
		service := NewUserInteractionService(repo, publisher, nil, testLogger())

		repo.On("InsertInteraction", ctx, mock.Anything).Return(errors.New("connection reset"))

		_, err := service.TrackInteraction(ctx, &models.TrackInteractionRequest{UserID: "u1", ProductID: "p1", InteractionType: "view"})
		assert.ErrorContains(t, err, "connection reset")
		publisher.AssertNotCalled(t, "PublishInteraction", mock.Anything, mock.Anything)
	})

	t.Run("PublishFailureIsNotFatal", func(t *testing.T) {
		repo := &MockInteractionRepository{}
		publisher := &mockPublisher{}
		service := NewUserInteractionService(repo, publisher, nil, testLogger())

		repo.On("InsertInteraction", ctx, mock.Anything).Return(nil)
		publisher.On("PublishInteraction", ctx, mock.Anything).Return(errors.New("broker unavailable"))

		_, err := service.TrackInteraction(ctx, &models.TrackInteractionRequest{UserID: "u1", ProductID: "p1", InteractionType: "cart_add"})
		assert.NoError(t, err)
	})
}

func TestUserInteractionService_Queries(t *testing.T) {
	ctx := context.Background()
	repo := &MockInteractionRepository{}
	service := NewUserInteractionService(repo, nil, nil, testLogger())

	history := []models.UserInteraction{{UserID: "u1", ProductID: "p1", InteractionType: models.InteractionView}}
	repo.On("UserInteractions", ctx, "u1", models.InteractionView, 20).Return(history, nil)
	repo.On("ProductInteractions", ctx, "p1", models.InteractionType(""), 50).Return(history, nil)
	repo.On("InteractionStats", ctx, "u1").Return(models.InteractionStats{"view": 1, "total": 1}, nil)

	got, err := service.GetUserInteractions(ctx, "u1", "view", 20)
	require.NoError(t, err)
	assert.Equal(t, history, got)

	got, err = service.GetProductInteractions(ctx, "p1", "", 50)
	require.NoError(t, err)
	assert.Equal(t, history, got)

	stats, err := service.GetInteractionStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["total"])

	_, err = service.GetUserInteractions(ctx, "u1", "like", 20)
	assert.ErrorIs(t, err, ErrInvalidInteractionType)

	repo.AssertExpectations(t)
}
