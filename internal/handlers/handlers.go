package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/services"
	"github.com/temcen/shopwise/pkg/models"
)

// RecommendationService is implemented by services.RecommendationEngine.
type RecommendationService interface {
	GetRecommendations(ctx context.Context, userID string, limit int, filter models.AlgorithmFilter) (*models.RecommendationResponse, error)
	GetSimilarProducts(ctx context.Context, productID string, limit int) []models.Recommendation
	GetSimilarUsers(ctx context.Context, userID string, limit int) []models.ScoredItem
	GetCategoryRecommendations(ctx context.Context, category string, limit int) []models.Recommendation
}

// TrainingService is implemented by services.RecommendationEngine.
type TrainingService interface {
	TrainModels(ctx context.Context, force bool) *models.TrainingResult
	ModelStatus(ctx context.Context) models.ModelStatus
}

// InteractionService is implemented by services.UserInteractionService.
type InteractionService interface {
	TrackInteraction(ctx context.Context, req *models.TrackInteractionRequest) (*models.UserInteraction, error)
	GetUserInteractions(ctx context.Context, userID string, interactionType string, limit int) ([]models.UserInteraction, error)
	GetProductInteractions(ctx context.Context, productID string, interactionType string, limit int) ([]models.UserInteraction, error)
	GetInteractionStats(ctx context.Context, userID string) (models.InteractionStats, error)
}

// HealthChecker is implemented by services.HealthService.
type HealthChecker interface {
	CheckHealth(ctx context.Context) *services.HealthStatus
}

var (
	_ RecommendationService = (*services.RecommendationEngine)(nil)
	_ TrainingService       = (*services.RecommendationEngine)(nil)
	_ InteractionService    = (*services.UserInteractionService)(nil)
	_ HealthChecker         = (*services.HealthService)(nil)
)

type Handlers struct {
	Health         *HealthHandler
	Interaction    *InteractionHandler
	Recommendation *RecommendationHandler
	Admin          *AdminHandler
	Metrics        *MetricsHandler
}

func New(logger *logrus.Logger, svcs *services.Services, gatherer prometheus.Gatherer) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svcs.Health),
		Interaction:    NewInteractionHandler(logger, svcs.UserInteraction),
		Recommendation: NewRecommendationHandler(svcs.Engine, logger),
		Admin:          NewAdminHandler(logger, svcs.Engine),
		Metrics:        NewMetricsHandler(gatherer),
	}
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, models.SuccessResponse(data))
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse(code, message))
}

// queryLimit returns the limit query parameter, or 0 to use the engine default.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func requireParam(c *gin.Context, name, code string) (string, bool) {
	value := c.Param(name)
	if value == "" {
		respondError(c, http.StatusBadRequest, code, name+" is required")
		return "", false
	}
	return value, true
}
