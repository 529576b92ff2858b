package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/middleware"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
	"github.com/noah-isme/homeschool-api/pkg/response"
)

type dashboardService interface {
	Live(ctx context.Context, viewer models.Viewer, studentID string, date *calendar.Date) (*dto.DashboardResponse, bool, error)
	History(ctx context.Context, viewer models.Viewer, studentID string, date *calendar.Date) (*dto.HistoryResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Live godoc
// @Summary Live dashboard
// @Description Overdue, today and upcoming assignments relative to the reference date
// @Tags Dashboard
// @Produce json
// @Param studentId query string false "Student ID; students default to themselves"
// @Param date query string false "Reference date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard [get]
func (h *DashboardHandler) Live(c *gin.Context) {
	viewer, studentID, date, ok := h.parse(c)
	if !ok {
		return
	}
	resp, cacheHit, err := h.service.Live(c.Request.Context(), viewer, studentID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, resp, nil, middleware.ExtractMeta(c))
}

// History godoc
// @Summary Assignment history
// @Description Everything whose effective date is on or before the reference date
// @Tags Dashboard
// @Produce json
// @Param studentId query string false "Student ID; students default to themselves"
// @Param date query string false "Reference date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard/history [get]
func (h *DashboardHandler) History(c *gin.Context) {
	viewer, studentID, date, ok := h.parse(c)
	if !ok {
		return
	}
	resp, cacheHit, err := h.service.History(c.Request.Context(), viewer, studentID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, resp, nil, middleware.ExtractMeta(c))
}

func (h *DashboardHandler) parse(c *gin.Context) (models.Viewer, string, *calendar.Date, bool) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return models.Viewer{}, "", nil, false
	}
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Viewer{}, "", nil, false
	}
	date, err := queryDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return models.Viewer{}, "", nil, false
	}
	return viewer, strings.TrimSpace(c.Query("studentId")), date, true
}
