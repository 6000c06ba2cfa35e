package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/services"
	"github.com/temcen/shopwise/pkg/models"
)

type RecommendationHandler struct {
	engine RecommendationService
	logger *logrus.Logger
}

func NewRecommendationHandler(engine RecommendationService, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		engine: engine,
		logger: logger,
	}
}

// Get serves GET /recommendations/:userId?limit=&algorithm=
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, ok := requireParam(c, "userId", "INVALID_USER_ID")
	if !ok {
		return
	}

	filter := models.AlgorithmFilter(c.Query("algorithm"))
	resp, err := h.engine.GetRecommendations(c.Request.Context(), userID, queryLimit(c), filter)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAlgorithm) {
			respondError(c, http.StatusBadRequest, "INVALID_ALGORITHM", err.Error())
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to generate recommendations")
		respondError(c, http.StatusInternalServerError, "RECOMMENDATION_GENERATION_FAILED", "Failed to generate recommendations")
		return
	}

	respond(c, http.StatusOK, resp)
}

func (h *RecommendationHandler) SimilarUsers(c *gin.Context) {
	userID, ok := requireParam(c, "userId", "INVALID_USER_ID")
	if !ok {
		return
	}

	respond(c, http.StatusOK, models.SimilarUsersResponse{
		UserID: userID,
		Users:  h.engine.GetSimilarUsers(c.Request.Context(), userID, queryLimit(c)),
	})
}

func (h *RecommendationHandler) SimilarProducts(c *gin.Context) {
	productID, ok := requireParam(c, "productId", "INVALID_PRODUCT_ID")
	if !ok {
		return
	}

	respond(c, http.StatusOK, models.SimilarProductsResponse{
		ProductID: productID,
		Similar:   h.engine.GetSimilarProducts(c.Request.Context(), productID, queryLimit(c)),
	})
}

func (h *RecommendationHandler) Category(c *gin.Context) {
	category := c.Param("category")

	respond(c, http.StatusOK, gin.H{
		"category":        category,
		"recommendations": h.engine.GetCategoryRecommendations(c.Request.Context(), category, queryLimit(c)),
	})
}
