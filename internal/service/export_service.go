package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
	"github.com/noah-isme/homeschool-api/pkg/export"
)

type historyProvider interface {
	History(ctx context.Context, viewer models.Viewer, studentID string, date *calendar.Date) (*dto.HistoryResponse, bool, error)
}

var historyColumns = []string{"Title", "Category", "Due", "Recurring", "Status", "Completed At"}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled bool
}

// ExportResult is a rendered history file ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the history view as a downloadable file.
type ExportService struct {
	history historyProvider
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(history historyProvider, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{history: history, logger: logger, cfg: cfg}
}

// History renders the viewer's history for studentID in the requested format.
func (s *ExportService) History(ctx context.Context, viewer models.Viewer, studentID, format string, date *calendar.Date) (*ExportResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "history export is disabled")
	}
	f, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(format)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	history, _, err := s.history.History(ctx, viewer, studentID, date)
	if err != nil {
		return nil, err
	}

	data, err := export.RendererFor(f).Render(historyTable(history))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("history exported",
		zap.String("student_id", history.StudentID),
		zap.String("format", string(f)),
		zap.Int("rows", len(history.Past)),
	)
	return &ExportResult{
		Filename:    historyFilename(history, f),
		ContentType: f.ContentType(),
		Data:        data,
	}, nil
}

func historyTable(history *dto.HistoryResponse) export.Table {
	table := export.Table{
		Title:    "Assignment history",
		Subtitle: "Up to " + history.Date.String(),
		Columns:  historyColumns,
		Rows:     make([]map[string]string, 0, len(history.Past)),
	}
	for _, item := range history.Past {
		status := "Pending"
		switch {
		case item.Completed:
			status = "Completed"
		case item.Ended:
			status = "Ended"
		case item.EffectiveDate.Before(history.Date) && !item.Assignment.IsRecurring:
			status = "Overdue"
		}
		row := map[string]string{
			"Title":     item.Assignment.Title,
			"Category":  "",
			"Due":       item.EffectiveDate.String(),
			"Recurring": "No",
			"Status":    status,
		}
		if item.Assignment.Category != nil {
			row["Category"] = *item.Assignment.Category
		}
		if item.Assignment.IsRecurring {
			row["Recurring"] = "Yes"
		}
		if item.CompletedAt != nil {
			row["Completed At"] = item.CompletedAt.UTC().Format("2006-01-02 15:04")
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func historyFilename(history *dto.HistoryResponse, f export.Format) string {
	owner := history.StudentID
	if owner == "" {
		owner = "all"
	}
	return fmt.Sprintf("history_%s_%s.%s", sanitizeFilename(owner), history.Date, f)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
