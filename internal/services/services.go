package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/config"
	"github.com/temcen/shopwise/internal/database"
	"github.com/temcen/shopwise/internal/messaging"
	"github.com/temcen/shopwise/internal/ml"
	"github.com/temcen/shopwise/pkg/models"
)

type Services struct {
	Auth            *AuthService
	RateLimit       *RateLimitService
	Health          *HealthService
	Metrics         *MetricsCollector
	EventBus        *messaging.EventBus
	Interactions    *InteractionStore
	Catalog         *CatalogStore
	UserInteraction *UserInteractionService
	Engine          *RecommendationEngine
	Trainer         *ModelTrainer
}

func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, db *database.Database, registerer prometheus.Registerer) (*Services, error) {
	metrics := NewMetricsCollector(registerer, logger)

	interactionStore := NewInteractionStore(db.PG, logger)
	catalogStore := NewCatalogStore(db.PG, logger)
	if err := interactionStore.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := catalogStore.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	registry, err := ml.NewModelRegistry(cfg.Models.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open model registry: %w", err)
	}

	recCfg := cfg.Recommendation
	collaborative := ml.NewCollaborativeFilter(ml.CollaborativeConfig{
		NComponents:     recCfg.Collaborative.NComponents,
		MinInteractions: recCfg.Collaborative.MinInteractions,
		Neighbours:      recCfg.Collaborative.Neighbours,
	}, logger)
	content := ml.NewContentFilter(ml.ContentConfig{
		MaxFeatures: recCfg.Content.MaxFeatures,
	}, logger)

	deps := EngineDeps{
		Interactions:  interactionStore,
		Catalog:       catalogStore,
		Collaborative: collaborative,
		Content:       content,
		Snapshots:     registry,
		Metrics:       metrics,
	}

	// Optional collaborators stay nil interfaces when their backend is not configured
	if db.Redis != nil {
		deps.Cache = NewRedisRecommendationCache(db.Redis, recCfg.Caching.RecommendationsTTL, logger)
	}
	if db.Neo4j != nil {
		deps.Exporter = NewNeo4jSimilarityGraph(db.Neo4j, logger)
	}

	var eventBus *messaging.EventBus
	var publisher EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		eventBus, err = messaging.NewEventBus(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		publisher = eventBus
		deps.Publisher = eventBus
	}

	engine := NewRecommendationEngine(deps, EngineConfig{
		RetrainInterval:    recCfg.Retrain.Interval(),
		MinNewInteractions: recCfg.Retrain.MinNewInteractions,
		InlineRetrain:      recCfg.Retrain.Mode == config.RetrainModeInline,
		DefaultLimit:       recCfg.DefaultLimit,
		MaxLimit:           recCfg.MaxLimit,
		GraphEdgesPerNode:  recCfg.Graph.EdgesPerNode,
	}, logger)
	engine.LoadModels(ctx)

	var trainer *ModelTrainer
	if recCfg.Retrain.Mode != config.RetrainModeInline {
		trainer = NewModelTrainer(engine, recCfg.Retrain.CheckInterval, logger)
	}

	healthService := NewHealthService(logger, registerer)
	healthService.AddCheck("postgresql", true, db.PG.Ping)
	if db.Redis != nil {
		healthService.AddCheck("redis", false, func(ctx context.Context) error {
			return db.Redis.Ping(ctx).Err()
		})
	}
	if db.Neo4j != nil {
		healthService.AddCheck("neo4j", false, db.Neo4j.VerifyConnectivity)
	}
	healthService.SetModelStatus(func(ctx context.Context) models.ModelStatus {
		return engine.ModelStatus(ctx)
	})
	healthService.WatchPool(db.PG)

	var rateLimit *RateLimitService
	if db.Redis != nil && cfg.Security.RateLimit.Requests > 0 {
		rateLimit = NewRateLimitService(cfg, logger, db.Redis)
	}

	return &Services{
		Auth:            NewAuthService(cfg, logger, db.Redis),
		RateLimit:       rateLimit,
		Health:          healthService,
		Metrics:         metrics,
		EventBus:        eventBus,
		Interactions:    interactionStore,
		Catalog:         catalogStore,
		UserInteraction: NewUserInteractionService(interactionStore, publisher, metrics, logger),
		Engine:          engine,
		Trainer:         trainer,
	}, nil
}

// Start launches the background workers.
func (s *Services) Start() {
	s.Health.Start()
	if s.Trainer != nil {
		s.Trainer.Start()
	}
}

// Close stops the workers and releases the event bus.
func (s *Services) Close() error {
	if s.Trainer != nil {
		s.Trainer.Stop()
	}
	s.Health.Stop()
	if s.EventBus != nil {
		return s.EventBus.Close()
	}
	return nil
}
