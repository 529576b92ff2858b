package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

type assignmentScopeLister interface {
	ListAll(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL   time.Duration
	Location   *time.Location
	Recurrence RecurrenceOptions
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Assignments assignmentScopeLister
	Completions completionLister
	Students    studentReader
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      DashboardServiceConfig
}

// DashboardService composes the per-student assignment dashboard.
type DashboardService struct {
	assignments assignmentScopeLister
	completions completionLister
	guard       studentGuard
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
	cfg         DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.Recurrence = cfg.Recurrence.withDefaults()
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		assignments: params.Assignments,
		completions: params.Completions,
		guard:       studentGuard{students: params.Students},
		cache:       params.Cache,
		metrics:     params.Metrics,
		logger:      logger,
		now:         time.Now,
		cfg:         cfg,
	}
}

// Live returns the overdue/today/upcoming buckets for the selected student on
// date (today when nil) and reports whether it was served from cache.
func (s *DashboardService) Live(ctx context.Context, viewer models.Viewer, studentID string, date *calendar.Date) (*dto.DashboardResponse, bool, error) {
	scope, err := s.scope(ctx, viewer, studentID, date)
	if err != nil {
		return nil, false, err
	}
	key := scope.key(false)
	var cached dto.DashboardResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	groups, err := s.compose(ctx, scope)
	if err != nil {
		return nil, false, err
	}
	resp := &dto.DashboardResponse{
		StudentID: scope.studentID,
		Date:      scope.today,
		Overdue:   groups.Overdue,
		Today:     groups.Today,
		Upcoming:  groups.Upcoming,
		Counts: dto.DashboardCounts{
			Overdue:  len(groups.Overdue),
			Today:    len(groups.Today),
			Upcoming: len(groups.Upcoming),
		},
	}
	s.metrics.ObserveDashboardBuckets(map[string]int{
		string(calendar.BucketOverdue):  resp.Counts.Overdue,
		string(calendar.BucketToday):    resp.Counts.Today,
		string(calendar.BucketUpcoming): resp.Counts.Upcoming,
	})
	s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	return resp, false, nil
}

// History returns every assignment whose effective date is on or before date.
func (s *DashboardService) History(ctx context.Context, viewer models.Viewer, studentID string, date *calendar.Date) (*dto.HistoryResponse, bool, error) {
	scope, err := s.scope(ctx, viewer, studentID, date)
	if err != nil {
		return nil, false, err
	}
	key := scope.key(true)
	var cached dto.HistoryResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	groups, err := s.compose(ctx, scope)
	if err != nil {
		return nil, false, err
	}
	resp := &dto.HistoryResponse{StudentID: scope.studentID, Date: scope.today, Past: groups.Past}
	s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	return resp, false, nil
}

type dashboardScope struct {
	viewer    models.Viewer
	studentID string
	today     calendar.Date
	filter    models.AssignmentFilter
}

func (d dashboardScope) key(history bool) string {
	if d.studentID != "" {
		return studentDashboardKey(d.studentID, d.today, history)
	}
	return ownerDashboardKey(d.viewer.UserID, d.today, history)
}

func (s *DashboardService) scope(ctx context.Context, viewer models.Viewer, studentID string, date *calendar.Date) (dashboardScope, error) {
	student, err := s.guard.resolve(ctx, viewer, studentID)
	if err != nil {
		return dashboardScope{}, err
	}
	scope := dashboardScope{viewer: viewer, today: calendar.Today(s.now(), s.cfg.Location)}
	if date != nil && !date.IsZero() {
		scope.today = *date
	}
	switch {
	case student != nil:
		scope.studentID = student.ID
		scope.filter.StudentID = student.ID
	case viewer.IsParent():
		scope.filter.ParentID = viewer.UserID
	}
	return scope, nil
}

func (s *DashboardService) compose(ctx context.Context, scope dashboardScope) (DashboardGroups, error) {
	var (
		assignments []models.Assignment
		records     []models.StudentAssignment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		start := time.Now()
		assignments, err = s.assignments.ListAll(gctx, scope.filter)
		s.metrics.ObserveDBQuery("dashboard_assignments", time.Since(start))
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
		}
		return nil
	})
	if scope.studentID != "" && s.completions != nil {
		g.Go(func() error {
			var err error
			start := time.Now()
			records, err = s.completions.ListByStudent(gctx, scope.studentID, nil)
			s.metrics.ObserveDBQuery("dashboard_completions", time.Since(start))
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completions")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DashboardGroups{}, err
	}

	items := make([]dto.DashboardItem, 0, len(assignments))
	for _, assignment := range assignments {
		items = append(items, ResolveItem(assignment, records, scope.studentID, scope.today, s.cfg.Recurrence))
	}
	groups := GroupAssignments(items, scope.today)
	s.logger.Debug("dashboard composed",
		zap.String("student_id", scope.studentID),
		zap.String("date", scope.today.String()),
		zap.Int("assignments", len(assignments)),
		zap.Int("records", len(records)),
	)
	return groups, nil
}
