package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	"github.com/noah-isme/homeschool-api/pkg/jobs"
)

// warmViewer reads dashboards on behalf of the system; it bypasses the
// ownership guard the same way an administrator does.
var warmViewer = models.Viewer{UserID: "system:warmer", Role: models.RoleAdmin}

type dashboardReader interface {
	Live(ctx context.Context, viewer models.Viewer, studentID string, date *calendar.Date) (*dto.DashboardResponse, bool, error)
	History(ctx context.Context, viewer models.Viewer, studentID string, date *calendar.Date) (*dto.HistoryResponse, bool, error)
}

type warmTask struct {
	StudentID string
	Date      calendar.Date
}

// DashboardWarmerConfig tunes the background rebuild pool.
type DashboardWarmerConfig struct {
	Workers    int
	MaxRetries int
	Timeout    time.Duration
}

// DashboardWarmer rebuilds a student's cached dashboards after a write
// invalidated them, so the next read is served from cache.
type DashboardWarmer struct {
	dashboard dashboardReader
	queue     *jobs.Queue[warmTask]
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDashboardWarmer constructs a stopped warmer.
func NewDashboardWarmer(dashboard dashboardReader, cfg DashboardWarmerConfig, logger *zap.Logger) *DashboardWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	w := &DashboardWarmer{dashboard: dashboard, timeout: cfg.Timeout, logger: logger}
	w.queue = jobs.New("dashboard-warm", w.handle, jobs.Config{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return w
}

// Start launches the worker pool. A nil warmer is inert.
func (w *DashboardWarmer) Start(ctx context.Context) {
	if w != nil {
		w.queue.Start(ctx)
	}
}

// Stop cancels pending rebuilds and waits for the workers.
func (w *DashboardWarmer) Stop() {
	if w != nil {
		w.queue.Stop()
	}
}

// Warm schedules a rebuild of the student's live and history views for date.
// A full queue only costs a cache miss later.
func (w *DashboardWarmer) Warm(studentID string, date calendar.Date) {
	if w == nil || studentID == "" {
		return
	}
	key := studentID + ":" + date.String()
	if err := w.queue.TryEnqueue(key, warmTask{StudentID: studentID, Date: date}); err != nil {
		w.logger.Debug("dashboard warm skipped", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (w *DashboardWarmer) handle(ctx context.Context, task warmTask) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	date := task.Date
	if _, _, err := w.dashboard.Live(ctx, warmViewer, task.StudentID, &date); err != nil {
		return err
	}
	if _, _, err := w.dashboard.History(ctx, warmViewer, task.StudentID, &date); err != nil {
		return err
	}
	return nil
}
