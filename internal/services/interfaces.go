package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/temcen/shopwise/internal/ml"
	"github.com/temcen/shopwise/pkg/models"
)

// DatabaseQuerier is the subset of pgxpool.Pool used by the Postgres stores.
// pgxmock.PgxPoolIface satisfies it in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InteractionSource supplies interaction data to the recommendation engine.
type InteractionSource interface {
	FetchAggregatedInteractions(ctx context.Context) ([]models.InteractionRecord, error)
	FetchUserInteractions(ctx context.Context, userID string) ([]models.UserInteraction, error)
	CountInteractionsSince(ctx context.Context, since time.Time) (int64, error)
	PopularProducts(ctx context.Context, limit int) ([]models.ScoredItem, error)
}

// InteractionRepository is the tracking-side view of the interaction store.
type InteractionRepository interface {
	InsertInteraction(ctx context.Context, interaction *models.UserInteraction) error
	UserInteractions(ctx context.Context, userID string, interactionType models.InteractionType, limit int) ([]models.UserInteraction, error)
	ProductInteractions(ctx context.Context, productID string, interactionType models.InteractionType, limit int) ([]models.UserInteraction, error)
	InteractionStats(ctx context.Context, userID string) (models.InteractionStats, error)
}

// CatalogSource supplies products for training and enrichment.
type CatalogSource interface {
	FetchAllProducts(ctx context.Context) ([]models.Product, error)
	FetchProductsByIDs(ctx context.Context, ids []string) (map[string]models.ProductDetails, error)
}

// CollaborativeModel is implemented by ml.CollaborativeFilter.
type CollaborativeModel interface {
	IsTrained() bool
	TrainedAt() time.Time
	Train(records []models.InteractionRecord) error
	UserRecommendations(userID string, n int) ([]models.ScoredItem, error)
	SimilarUsers(userID string, n int) ([]models.ScoredItem, error)
	SimilarityEdges(k int) []ml.SimilarityEdge
	SaveSnapshot(ctx context.Context, store ml.SnapshotStore) error
	LoadSnapshot(ctx context.Context, store ml.SnapshotStore) error
}

// ContentModel is implemented by ml.ContentFilter.
type ContentModel interface {
	IsTrained() bool
	TrainedAt() time.Time
	Train(products []models.Product) error
	SimilarProducts(productID string, n int) ([]models.ScoredItem, error)
	UserContentRecommendations(interactions []models.UserInteraction, n int) ([]models.ScoredItem, error)
	CategoryRecommendations(category string, n int) ([]models.ScoredItem, error)
	SimilarityEdges(k int) []ml.SimilarityEdge
	SaveSnapshot(ctx context.Context, store ml.SnapshotStore) error
	LoadSnapshot(ctx context.Context, store ml.SnapshotStore) error
}

// RecommendationCache stores enriched recommendation responses.
type RecommendationCache interface {
	Get(ctx context.Context, key string) (*models.RecommendationResponse, error)
	Set(ctx context.Context, key string, resp *models.RecommendationResponse) error
}

// SimilarityExporter publishes similarity neighbourhoods to an external graph.
type SimilarityExporter interface {
	ExportUserSimilarities(ctx context.Context, edges []ml.SimilarityEdge, version int64) error
	ExportProductSimilarities(ctx context.Context, edges []ml.SimilarityEdge, version int64) error
}

// EventPublisher emits domain events. Publishing is best effort.
type EventPublisher interface {
	PublishInteraction(ctx context.Context, event models.InteractionEvent) error
	PublishTraining(ctx context.Context, event models.TrainingEvent) error
}

var (
	_ CollaborativeModel = (*ml.CollaborativeFilter)(nil)
	_ ContentModel       = (*ml.ContentFilter)(nil)
)
