package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/internal/service"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
	"github.com/noah-isme/homeschool-api/pkg/response"
)

type exportService interface {
	History(ctx context.Context, viewer models.Viewer, studentID, format string, date *calendar.Date) (*service.ExportResult, error)
}

// ExportHandler streams history downloads.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// History godoc
// @Summary Export assignment history
// @Tags Dashboard
// @Produce text/csv
// @Produce application/pdf
// @Param studentId query string false "Student ID"
// @Param format query string false "csv or pdf" default(csv)
// @Param date query string false "Reference date (YYYY-MM-DD), defaults to today"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard/history/export [get]
func (h *ExportHandler) History(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	date, err := queryDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	format := strings.TrimSpace(c.DefaultQuery("format", "csv"))
	result, err := h.exports.History(c.Request.Context(), viewer, strings.TrimSpace(c.Query("studentId")), format, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
