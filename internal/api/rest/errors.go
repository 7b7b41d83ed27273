package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/tokenforge/presale-engine/internal/api/shared/errors"
	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/logger"
)

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError(message, details...))
}

// respondNotFound responds with a not found error
func respondNotFound(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusNotFound, apierrors.NewNotFoundError(message, details...))
}

// respondValidationError responds with a validation error
func respondValidationError(c *gin.Context, message string) {
	c.JSON(http.StatusUnprocessableEntity, apierrors.NewValidationError(message))
}

// respondInternalError responds with an internal server error and logs it
func respondInternalError(c *gin.Context, err error, message string) {
	logger.ErrorCtx(c.Request.Context(), err, zap.String("path", c.Request.URL.Path))
	c.JSON(http.StatusInternalServerError, apierrors.NewInternalError(message))
}

// respondDomainError maps a domain error to an HTTP response. Rule
// violations are expected outcomes and map to 4xx with a stable error code;
// everything else (storage failures, consistency violations) is a 500.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidBuyerAddress):
		respondBadRequest(c, "Invalid buyer address", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		respondValidationError(c, "Amount must be a positive base-unit integer")
	case errors.Is(err, domain.ErrBelowMinimum):
		respondValidationError(c, "Amount is below the tier minimum purchase")
	case errors.Is(err, domain.ErrExceedsPerBuyerLimit):
		c.JSON(http.StatusConflict, apierrors.NewConflictError("Purchase exceeds the per-buyer limit for this tier"))
	case errors.Is(err, domain.ErrTierExhausted):
		c.JSON(http.StatusConflict, apierrors.NewConflictError("Tier allocation is exhausted"))
	case errors.Is(err, domain.ErrTierNotActive):
		c.JSON(http.StatusConflict, apierrors.NewConflictError("Tier is not currently active"))
	default:
		respondInternalError(c, err, "Internal server error")
	}
}
