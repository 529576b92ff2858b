package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
	"github.com/noah-isme/homeschool-api/pkg/response"
)

type completionService interface {
	Toggle(ctx context.Context, viewer models.Viewer, req dto.ToggleCompletionRequest) (*dto.ToggleCompletionResponse, error)
}

// CompletionHandler exposes the completion toggle.
type CompletionHandler struct {
	completions completionService
}

// NewCompletionHandler constructs CompletionHandler.
func NewCompletionHandler(completions completionService) *CompletionHandler {
	return &CompletionHandler{completions: completions}
}

// Toggle godoc
// @Summary Mark an assignment done or not done
// @Description Recurring assignments are tracked per occurrence; instanceDate defaults to today
// @Tags Completions
// @Accept json
// @Produce json
// @Param payload body dto.ToggleCompletionRequest true "Toggle payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /completions/toggle [post]
func (h *CompletionHandler) Toggle(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ToggleCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.completions.Toggle(c.Request.Context(), viewer, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
