package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/temcen/shopwise/internal/validation"
)

const maxIDLength = 255

var (
	validInteractionTypes = []string{"view", "cart_add", "purchase"}
	validAlgorithms       = []string{"collaborative", "content"}
)

// ValidationMiddleware provides request validation middleware
type ValidationMiddleware struct {
	validator *validation.SchemaValidator
	maxLimit  int
}

func NewValidationMiddleware(validator *validation.SchemaValidator, maxLimit int) *ValidationMiddleware {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &ValidationMiddleware{
		validator: validator,
		maxLimit:  maxLimit,
	}
}

func (vm *ValidationMiddleware) ValidateTrackInteraction() gin.HandlerFunc {
	return vm.validateRequestBody(validation.SchemaTrackInteraction, false)
}

// ValidateTrainRequest accepts an empty body, which means an unforced run.
func (vm *ValidationMiddleware) ValidateTrainRequest() gin.HandlerFunc {
	return vm.validateRequestBody(validation.SchemaTrainRequest, true)
}

// validateRequestBody creates a middleware that validates request body against a schema
func (vm *ValidationMiddleware) validateRequestBody(schemaName string, allowEmpty bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "BODY_READ_ERROR", "Failed to read request body", nil)
			return
		}

		// Restore request body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		if len(bytes.TrimSpace(bodyBytes)) == 0 {
			if allowEmpty {
				c.Next()
				return
			}
			abortWithError(c, http.StatusBadRequest, "EMPTY_BODY", "Request body is required", nil)
			return
		}

		if !json.Valid(bodyBytes) {
			abortWithError(c, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", nil)
			return
		}

		result := vm.validator.Validate(schemaName, bodyBytes)
		if !result.Valid {
			for _, e := range result.Errors {
				if e.Field == "interaction_type" {
					abortWithError(c, http.StatusBadRequest, "INVALID_INTERACTION_TYPE", "interaction_type must be one of view, cart_add, purchase", result.Details())
					return
				}
			}
			abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", result.Details())
			return
		}

		c.Next()
	}
}

// ValidateQueryParams validates the shared query and path parameters
func (vm *ValidationMiddleware) ValidateQueryParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		errors := make([]validation.ValidationError, 0)

		if limit := c.Query("limit"); limit != "" {
			if !isValidPositiveInt(limit, 1, vm.maxLimit) {
				errors = append(errors, validation.ValidationError{
					Field:   "limit",
					Message: fmt.Sprintf("Limit must be an integer between 1 and %d", vm.maxLimit),
					Code:    "INVALID_QUERY_PARAM",
					Value:   limit,
				})
			}
		}

		if interactionType := c.Query("type"); interactionType != "" {
			if !isValidEnum(interactionType, validInteractionTypes) {
				errors = append(errors, validation.ValidationError{
					Field:   "type",
					Message: fmt.Sprintf("Interaction type must be one of: %s", strings.Join(validInteractionTypes, ", ")),
					Code:    "INVALID_QUERY_PARAM",
					Value:   interactionType,
				})
			}
		}

		if algorithm := c.Query("algorithm"); algorithm != "" {
			if !isValidEnum(algorithm, validAlgorithms) {
				errors = append(errors, validation.ValidationError{
					Field:   "algorithm",
					Message: fmt.Sprintf("Algorithm must be one of: %s", strings.Join(validAlgorithms, ", ")),
					Code:    "INVALID_QUERY_PARAM",
					Value:   algorithm,
				})
			}
		}

		for _, param := range []string{"userId", "productId", "category"} {
			if value := c.Param(param); len(value) > maxIDLength {
				errors = append(errors, validation.ValidationError{
					Field:   param,
					Message: fmt.Sprintf("%s must be at most %d characters", param, maxIDLength),
					Code:    "INVALID_PATH_PARAM",
				})
			}
		}

		if len(errors) > 0 {
			sendValidationErrors(c, errors)
			return
		}

		c.Next()
	}
}

// ValidateHeaders requires a JSON content type on requests that carry a body
func (vm *ValidationMiddleware) ValidateHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		contentType := c.GetHeader("Content-Type")
		if !strings.Contains(contentType, "application/json") {
			sendValidationErrors(c, []validation.ValidationError{{
				Field:   "Content-Type",
				Message: "Content-Type must be application/json",
				Code:    "INVALID_HEADER",
				Value:   contentType,
			}})
			return
		}

		c.Next()
	}
}

func isValidPositiveInt(value string, min, max int) bool {
	num, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	return num >= min && num <= max
}

func isValidEnum(value string, validValues []string) bool {
	for _, valid := range validValues {
		if value == valid {
			return true
		}
	}
	return false
}

func sendValidationErrors(c *gin.Context, errors []validation.ValidationError) {
	result := &validation.ValidationResult{Valid: false, Errors: errors}
	abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", result.Details())
}
