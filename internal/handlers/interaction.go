package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/services"
	"github.com/temcen/shopwise/pkg/models"
)

type InteractionHandler struct {
	logger             *logrus.Logger
	userInteractionSvc InteractionService
	validator          *validator.Validate
}

func NewInteractionHandler(logger *logrus.Logger, userInteractionSvc InteractionService) *InteractionHandler {
	return &InteractionHandler{
		logger:             logger,
		userInteractionSvc: userInteractionSvc,
		validator:          validator.New(),
	}
}

// Track serves POST /interactions
func (h *InteractionHandler) Track(c *gin.Context) {
	var req models.TrackInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to bind interaction request")
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 && validationErrors[0].Field() == "InteractionType" {
			respondError(c, http.StatusBadRequest, "INVALID_INTERACTION_TYPE", services.ErrInvalidInteractionType.Error())
			return
		}
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	interaction, err := h.userInteractionSvc.TrackInteraction(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInteractionType) {
			respondError(c, http.StatusBadRequest, "INVALID_INTERACTION_TYPE", err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to track interaction")
		respondError(c, http.StatusInternalServerError, "INTERACTION_FAILED", "Failed to record interaction")
		return
	}

	respond(c, http.StatusCreated, models.TrackInteractionResponse{
		InteractionID: interaction.ID,
		Status:        "recorded",
		Timestamp:     interaction.Timestamp,
	})
}

// UserInteractions serves GET /users/:userId/interactions?type=&limit=
func (h *InteractionHandler) UserInteractions(c *gin.Context) {
	userID, ok := requireParam(c, "userId", "INVALID_USER_ID")
	if !ok {
		return
	}

	interactions, err := h.userInteractionSvc.GetUserInteractions(c.Request.Context(), userID, c.Query("type"), queryLimit(c))
	h.respondInteractions(c, interactions, err)
}

// ProductInteractions serves GET /products/:productId/interactions?type=&limit=
func (h *InteractionHandler) ProductInteractions(c *gin.Context) {
	productID, ok := requireParam(c, "productId", "INVALID_PRODUCT_ID")
	if !ok {
		return
	}

	interactions, err := h.userInteractionSvc.GetProductInteractions(c.Request.Context(), productID, c.Query("type"), queryLimit(c))
	h.respondInteractions(c, interactions, err)
}

func (h *InteractionHandler) respondInteractions(c *gin.Context, interactions []models.UserInteraction, err error) {
	if err != nil {
		if errors.Is(err, services.ErrInvalidInteractionType) {
			respondError(c, http.StatusBadRequest, "INVALID_INTERACTION_TYPE", err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to get interactions")
		respondError(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to get interactions")
		return
	}

	respond(c, http.StatusOK, gin.H{
		"interactions": interactions,
		"count":        len(interactions),
	})
}

// UserStats serves GET /users/:userId/interactions/stats
func (h *InteractionHandler) UserStats(c *gin.Context) {
	userID, ok := requireParam(c, "userId", "INVALID_USER_ID")
	if !ok {
		return
	}

	stats, err := h.userInteractionSvc.GetInteractionStats(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to get interaction stats")
		respondError(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to get interaction stats")
		return
	}

	respond(c, http.StatusOK, gin.H{
		"user_id": userID,
		"stats":   stats,
	})
}
