package services

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// DefaultInteractionLimit caps interaction history queries when no limit is given.
const DefaultInteractionLimit = 100

const interactionsTableDDL = `
	CREATE TABLE IF NOT EXISTS user_interactions (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		interaction_type TEXT NOT NULL,
		session_id TEXT,
		timestamp TIMESTAMPTZ NOT NULL
	)`

var interactionIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_user_interactions_user_time ON user_interactions (user_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_user_interactions_product_time ON user_interactions (product_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_user_interactions_type_time ON user_interactions (interaction_type, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_user_interactions_user_product ON user_interactions (user_id, product_id)`,
}

// InteractionStore persists raw interaction events in PostgreSQL and serves
// the aggregated views the recommendation engine trains on.
type InteractionStore struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewInteractionStore(db DatabaseQuerier, logger *logrus.Logger) *InteractionStore {
	return &InteractionStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the interactions table and its indexes. Index failures
// are logged and do not abort startup.
func (s *InteractionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, interactionsTableDDL); err != nil {
		return fmt.Errorf("failed to create user_interactions table: %w", err)
	}

	created := 0
	for _, ddl := range interactionIndexes {
		if _, err := s.db.Exec(ctx, ddl); err != nil {
			s.logger.WithError(err).Warn("Failed to create user_interactions index")
			continue
		}
		created++
	}

	s.logger.WithField("indexes", created).Info("Ensured user_interactions schema")
	return nil
}

func (s *InteractionStore) InsertInteraction(ctx context.Context, interaction *models.UserInteraction) error {
	query := `
		INSERT INTO user_interactions (id, user_id, product_id, interaction_type, session_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(ctx, query,
		interaction.ID,
		interaction.UserID,
		interaction.ProductID,
		string(interaction.InteractionType),
		interaction.SessionID,
		interaction.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// UserInteractions returns a user's events, most recent first. An empty
// interactionType matches every type.
func (s *InteractionStore) UserInteractions(ctx context.Context, userID string, interactionType models.InteractionType, limit int) ([]models.UserInteraction, error) {
	return s.queryInteractions(ctx, "user_id", userID, interactionType, limit)
}

// ProductInteractions returns the events recorded against a product, most recent first.
func (s *InteractionStore) ProductInteractions(ctx context.Context, productID string, interactionType models.InteractionType, limit int) ([]models.UserInteraction, error) {
	return s.queryInteractions(ctx, "product_id", productID, interactionType, limit)
}

// FetchUserInteractions returns the history the content filter builds a profile from.
func (s *InteractionStore) FetchUserInteractions(ctx context.Context, userID string) ([]models.UserInteraction, error) {
	return s.UserInteractions(ctx, userID, "", DefaultInteractionLimit)
}

func (s *InteractionStore) queryInteractions(ctx context.Context, column, id string, interactionType models.InteractionType, limit int) ([]models.UserInteraction, error) {
	if limit <= 0 {
		limit = DefaultInteractionLimit
	}

	query := `
		SELECT id, user_id, product_id, interaction_type, session_id, timestamp
		FROM user_interactions
		WHERE ` + column + ` = $1`

	args := []any{id}
	argCount := 1

	if interactionType != "" {
		argCount++
		query += fmt.Sprintf(" AND interaction_type = $%d", argCount)
		args = append(args, string(interactionType))
	}

	argCount++
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", argCount)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	interactions := []models.UserInteraction{}
	for rows.Next() {
		var interaction models.UserInteraction
		var interactionTypeStr string

		if err := rows.Scan(
			&interaction.ID,
			&interaction.UserID,
			&interaction.ProductID,
			&interactionTypeStr,
			&interaction.SessionID,
			&interaction.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}

		interaction.InteractionType = models.InteractionType(interactionTypeStr)
		interactions = append(interactions, interaction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interactions: %w", err)
	}

	return interactions, nil
}

// InteractionStats counts a user's events per type and adds a "total" entry.
func (s *InteractionStore) InteractionStats(ctx context.Context, userID string) (models.InteractionStats, error) {
	query := `
		SELECT interaction_type, COUNT(*)
		FROM user_interactions
		WHERE user_id = $1
		GROUP BY interaction_type`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction stats: %w", err)
	}
	defer rows.Close()

	stats := models.InteractionStats{}
	var total int64
	for rows.Next() {
		var interactionType string
		var count int64
		if err := rows.Scan(&interactionType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan interaction stats: %w", err)
		}
		stats[interactionType] = count
		total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interaction stats: %w", err)
	}

	stats["total"] = total
	return stats, nil
}

// FetchAggregatedInteractions groups all events by (user, product).
func (s *InteractionStore) FetchAggregatedInteractions(ctx context.Context) ([]models.InteractionRecord, error) {
	query := `
		SELECT user_id, product_id, COUNT(*), MAX(timestamp), ARRAY_AGG(DISTINCT interaction_type)
		FROM user_interactions
		GROUP BY user_id, product_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregated interactions: %w", err)
	}
	defer rows.Close()

	records := []models.InteractionRecord{}
	for rows.Next() {
		var record models.InteractionRecord
		var count int64
		var types []string

		if err := rows.Scan(&record.UserID, &record.ProductID, &count, &record.LastInteraction, &types); err != nil {
			return nil, fmt.Errorf("failed to scan aggregated interaction: %w", err)
		}

		record.InteractionCount = int(count)
		record.Types = mapset.NewThreadUnsafeSet[models.InteractionType]()
		for _, t := range types {
			record.Types.Add(models.InteractionType(t))
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read aggregated interactions: %w", err)
	}

	return records, nil
}

// CountInteractionsSince counts events strictly after since.
func (s *InteractionStore) CountInteractionsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_interactions WHERE timestamp > $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}

// PopularProducts ranks products by all-time event count.
func (s *InteractionStore) PopularProducts(ctx context.Context, limit int) ([]models.ScoredItem, error) {
	query := `
		SELECT product_id, COUNT(*) AS interaction_count
		FROM user_interactions
		GROUP BY product_id
		ORDER BY interaction_count DESC, product_id
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular products: %w", err)
	}
	defer rows.Close()

	popular := []models.ScoredItem{}
	for rows.Next() {
		var productID string
		var count int64
		if err := rows.Scan(&productID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan popular product: %w", err)
		}
		popular = append(popular, models.ScoredItem{ID: productID, Score: float64(count)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read popular products: %w", err)
	}

	return popular, nil
}
