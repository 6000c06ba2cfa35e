package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/config"
	"github.com/temcen/shopwise/internal/database"
	"github.com/temcen/shopwise/internal/handlers"
	"github.com/temcen/shopwise/internal/middleware"
	"github.com/temcen/shopwise/internal/services"
	"github.com/temcen/shopwise/internal/validation"
)

type App struct {
	config     *config.Config
	logger     *logrus.Logger
	db         *database.Database
	services   *services.Services
	handlers   *handlers.Handlers
	validation *middleware.ValidationMiddleware
	router     *gin.Engine
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	svcs, err := services.New(ctx, cfg, app.logger, db, prometheus.DefaultRegisterer)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	schemaValidator, err := validation.NewSchemaValidator()
	if err != nil {
		svcs.Close()
		db.Close()
		return nil, fmt.Errorf("failed to load request schemas: %w", err)
	}
	app.validation = middleware.NewValidationMiddleware(schemaValidator, cfg.Recommendation.MaxLimit)

	// Initialize handlers
	app.handlers = handlers.New(app.logger, svcs, prometheus.DefaultGatherer)

	// Setup router
	app.setupRouter()

	svcs.Start()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Services exposes the wired services, mainly for operator commands.
func (a *App) Services() *services.Services {
	return a.services
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if err := a.services.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing services")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Compression())

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, a.handlers.Metrics.Serve)
	}

	api := router.Group("/api/v1")
	if a.services.RateLimit != nil {
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))
	}
	api.Use(a.validation.ValidateHeaders())
	api.Use(a.validation.ValidateQueryParams())
	{
		// Recommendation routes
		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/:userId", a.handlers.Recommendation.Get)
			recommendations.GET("/:userId/similar-users", a.handlers.Recommendation.SimilarUsers)
		}

		api.GET("/categories/:category/recommendations", a.handlers.Recommendation.Category)

		// Product routes
		products := api.Group("/products")
		{
			products.GET("/:productId/similar", a.handlers.Recommendation.SimilarProducts)
			products.GET("/:productId/interactions", a.handlers.Interaction.ProductInteractions)
		}

		// Interaction routes
		api.POST("/interactions", a.validation.ValidateTrackInteraction(), a.handlers.Interaction.Track)

		users := api.Group("/users")
		{
			users.GET("/:userId/interactions", a.handlers.Interaction.UserInteractions)
			users.GET("/:userId/interactions/stats", a.handlers.Interaction.UserStats)
		}

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuth(a.services.Auth, a.logger))
		{
			admin.POST("/train", a.validation.ValidateTrainRequest(), a.handlers.Admin.Train)
			admin.POST("/retrain", a.handlers.Admin.Retrain)
			admin.GET("/models/status", a.handlers.Admin.ModelStatus)
		}
	}

	a.router = router
}
