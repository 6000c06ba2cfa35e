package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shopwise/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func TestInteractionStore_EnsureSchema(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewInteractionStore(mockDB, testLogger())

	mockDB.ExpectExec("CREATE TABLE IF NOT EXISTS user_interactions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockDB.ExpectExec("idx_user_interactions_user_time").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockDB.ExpectExec("idx_user_interactions_product_time").
		WillReturnError(errors.New("permission denied"))
	mockDB.ExpectExec("idx_user_interactions_type_time").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockDB.ExpectExec("idx_user_interactions_user_product").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	// A failed index is not fatal
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestInteractionStore_EnsureSchema_TableFailure(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewInteractionStore(mockDB, testLogger())
	mockDB.ExpectExec("CREATE TABLE").WillReturnError(errors.New("connection refused"))

	assert.Error(t, store.EnsureSchema(context.Background()))
}

func TestInteractionStore_InsertInteraction(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewInteractionStore(mockDB, testLogger())
	session := "s-42"
	interaction := &models.UserInteraction{
		ID:              uuid.New(),
		UserID:          "u1",
		ProductID:       "p1",
		InteractionType: models.InteractionCartAdd,
		SessionID:       &session,
		Timestamp:       time.Now().UTC(),
	}

	mockDB.ExpectExec("INSERT INTO user_interactions").
		WithArgs(interaction.ID, "u1", "p1", "cart_add", &session, interaction.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertInteraction(context.Background(), interaction))
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestInteractionStore_UserInteractions(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewInteractionStore(mockDB, testLogger())
	ctx := context.Background()
	newer := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	session := "s-1"

	t.Run("all types with default limit", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "user_id", "product_id", "interaction_type", "session_id", "timestamp"}).
			AddRow(uuid.New(), "u1", "p2", "purchase", &session, newer).
			AddRow(uuid.New(), "u1", "p1", "view", &session, older)

		mockDB.ExpectQuery("FROM user_interactions").
			WithArgs("u1", DefaultInteractionLimit).
			WillReturnRows(rows)

		interactions, err := store.UserInteractions(ctx, "u1", "", 0)
		require.NoError(t, err)
		require.Len(t, interactions, 2)
		assert.Equal(t, "p2", interactions[0].ProductID)
		assert.Equal(t, models.InteractionPurchase, interactions[0].InteractionType)
		assert.Equal(t, newer, interactions[0].Timestamp)
	})

	t.Run("filtered by type", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "user_id", "product_id", "interaction_type", "session_id", "timestamp"}).
			AddRow(uuid.New(), "u1", "p1", "view", &session, older)

		mockDB.ExpectQuery("AND interaction_type = \\$2").
			WithArgs("u1", "view", 5).
			WillReturnRows(rows)

		interactions, err := store.UserInteractions(ctx, "u1", models.InteractionView, 5)
		require.NoError(t, err)
		assert.Len(t, interactions, 1)
	})

	t.Run("product history", func(t *testing.T) {
		mockDB.ExpectQuery("WHERE product_id = \\$1").
			WithArgs("p1", 100).
			WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "product_id", "interaction_type", "session_id", "timestamp"}))

		interactions, err := store.ProductInteractions(ctx, "p1", "", 100)
		require.NoError(t, err)
		assert.Empty(t, interactions)
		assert.NotNil(t, interactions)
	})

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestInteractionStore_InteractionStats(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewInteractionStore(mockDB, testLogger())
	rows := pgxmock.NewRows([]string{"interaction_type", "count"}).
		AddRow("view", int64(7)).
		AddRow("purchase", int64(2))

	mockDB.ExpectQuery("GROUP BY interaction_type").WithArgs("u1").WillReturnRows(rows)

	stats, err := store.InteractionStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.InteractionStats{"view": 7, "purchase": 2, "total": 9}, stats)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestInteractionStore_FetchAggregatedInteractions(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewInteractionStore(mockDB, testLogger())
	last := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"user_id", "product_id", "count", "max", "array_agg"}).
		AddRow("u1", "p1", int64(5), last, []string{"cart_add", "purchase", "view"}).
		AddRow("u2", "p1", int64(1), last, []string{"view"})

	mockDB.ExpectQuery("GROUP BY user_id, product_id").WillReturnRows(rows)

	records, err := store.FetchAggregatedInteractions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 5, records[0].InteractionCount)
	assert.True(t, records[0].Types.Contains(models.InteractionView, models.InteractionCartAdd, models.InteractionPurchase))
	assert.Equal(t, 6.0, records[0].Score())
	assert.Equal(t, 1.0, records[1].Score())
	assert.Equal(t, last, records[1].LastInteraction)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestInteractionStore_CountAndPopularity(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewInteractionStore(mockDB, testLogger())
	ctx := context.Background()
	since := time.Now().Add(-time.Hour)

	mockDB.ExpectQuery("SELECT COUNT").WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := store.CountInteractionsSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)

	mockDB.ExpectQuery("ORDER BY interaction_count DESC").WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "interaction_count"}).
			AddRow("p9", int64(30)).
			AddRow("p2", int64(12)))

	popular, err := store.PopularProducts(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []models.ScoredItem{{ID: "p9", Score: 30}, {ID: "p2", Score: 12}}, popular)

	mockDB.ExpectQuery("ORDER BY interaction_count DESC").WithArgs(3).
		WillReturnError(errors.New("timeout"))
	_, err = store.PopularProducts(ctx, 3)
	assert.Error(t, err)

	require.NoError(t, mockDB.ExpectationsWereMet())
}
