package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// AdminHandler exposes model training to operators
type AdminHandler struct {
	logger  *logrus.Logger
	trainer TrainingService
}

func NewAdminHandler(logger *logrus.Logger, trainer TrainingService) *AdminHandler {
	return &AdminHandler{
		logger:  logger,
		trainer: trainer,
	}
}

// Train serves POST /admin/train. The body is optional and defaults to an
// unforced run that respects the retraining policy.
func (h *AdminHandler) Train(c *gin.Context) {
	var req models.TrainRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
			return
		}
	}

	h.runTraining(c, req.Force)
}

// Retrain serves POST /admin/retrain, always forcing a run.
func (h *AdminHandler) Retrain(c *gin.Context) {
	h.runTraining(c, true)
}

func (h *AdminHandler) runTraining(c *gin.Context, force bool) {
	h.logger.WithFields(logrus.Fields{
		"force":   force,
		"subject": c.GetString("admin_subject"),
	}).Info("Training requested")

	result := h.trainer.TrainModels(c.Request.Context(), force)
	if result.Status == models.TrainingError {
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Data:  result,
			Error: &models.APIError{Code: "TRAINING_FAILED", Message: result.Error},
		})
		return
	}

	respond(c, http.StatusOK, result)
}

// ModelStatus serves GET /admin/models/status
func (h *AdminHandler) ModelStatus(c *gin.Context) {
	respond(c, http.StatusOK, h.trainer.ModelStatus(c.Request.Context()))
}
