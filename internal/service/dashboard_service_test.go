package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

type dashboardFixture struct {
	svc         *DashboardService
	assignments *fakeAssignmentRepo
	completions *fakeCompletionRepo
	cache       *stubCacheRepo
	metrics     *MetricsService
}

// newDashboardFixture seeds kid-1 with an overdue essay, a quiz due today, a
// project due later and a Monday/Wednesday reading log. Today is Monday 2024-01-15.
func newDashboardFixture() dashboardFixture {
	assignments := &fakeAssignmentRepo{}
	assignments.put(models.Assignment{ID: "essay", CreatedBy: "parent-1", Title: "Essay", DueDate: calendar.MustParse("2024-01-10"), StudentIDs: []string{"kid-1"}})
	assignments.put(models.Assignment{ID: "quiz", CreatedBy: "parent-1", Title: "Quiz", DueDate: calendar.MustParse("2024-01-15"), StudentIDs: []string{"kid-1"}})
	assignments.put(models.Assignment{ID: "project", CreatedBy: "parent-1", Title: "Project", DueDate: calendar.MustParse("2024-01-25"), StudentIDs: []string{"kid-1"}})
	reading := recurring("reading", "2024-01-01", "monday", "wednesday")
	reading.CreatedBy = "parent-1"
	reading.StudentIDs = []string{"kid-1"}
	assignments.put(reading)
	assignments.put(models.Assignment{ID: "elsewhere", CreatedBy: "parent-2", Title: "Other family", DueDate: calendar.MustParse("2024-01-15"), StudentIDs: []string{"kid-2"}})

	completions := &fakeCompletionRepo{}
	cache := &stubCacheRepo{}
	metrics := NewMetricsService()
	svc := NewDashboardService(DashboardServiceParams{
		Assignments: assignments,
		Completions: completions,
		Students: &fakeStudents{items: map[string]models.Student{
			"kid-1": {ID: "kid-1", ParentID: "parent-1", FullName: "Ada"},
			"kid-2": {ID: "kid-2", ParentID: "parent-2", FullName: "Grace"},
		}},
		Cache:   NewCacheService(cache, metrics, time.Minute, zap.NewNop(), true),
		Metrics: metrics,
		Logger:  zap.NewNop(),
	})
	svc.now = func() time.Time { return time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC) }
	return dashboardFixture{svc: svc, assignments: assignments, completions: completions, cache: cache, metrics: metrics}
}

func TestDashboardServiceLiveComposesAndCaches(t *testing.T) {
	fx := newDashboardFixture()
	ctx := context.Background()

	resp, hit, err := fx.svc.Live(ctx, parentOne, "kid-1", nil)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "kid-1", resp.StudentID)
	assert.Equal(t, calendar.MustParse("2024-01-15"), resp.Date)
	assert.Equal(t, []string{"essay"}, ids(resp.Overdue))
	assert.Equal(t, []string{"quiz", "reading"}, ids(resp.Today))
	assert.Equal(t, []string{"project"}, ids(resp.Upcoming))
	assert.Equal(t, 1, resp.Counts.Overdue)
	assert.Equal(t, 2, resp.Counts.Today)
	assert.Contains(t, fx.cache.store, "dash:student:kid-1:2024-01-15")

	cached, hit, err := fx.svc.Live(ctx, parentOne, "kid-1", nil)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, ids(resp.Today), ids(cached.Today))
}

func TestDashboardServiceReflectsCompletion(t *testing.T) {
	fx := newDashboardFixture()
	monday := calendar.MustParse("2024-01-15")
	fx.completions.records = []models.StudentAssignment{
		{AssignmentID: "essay", StudentID: "kid-1", Completed: true},
		{AssignmentID: "reading", StudentID: "kid-1", InstanceDate: &monday, Completed: true},
	}

	resp, _, err := fx.svc.Live(context.Background(), kidOne, "", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Overdue)
	require.Len(t, resp.Today, 2)
	reading := resp.Today[1]
	assert.Equal(t, "reading", reading.Assignment.ID)
	assert.True(t, reading.Completed)
	require.NotEmpty(t, reading.Instances)
	assert.True(t, reading.Instances[0].Completed)
	assert.False(t, reading.Instances[1].Completed)
}

func TestDashboardServiceHistoryOverlapsToday(t *testing.T) {
	fx := newDashboardFixture()

	resp, hit, err := fx.svc.History(context.Background(), parentOne, "kid-1", nil)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"essay", "quiz", "reading"}, ids(resp.Past))
	assert.Contains(t, fx.cache.store, "dash:student:kid-1:2024-01-15:history")
}

func TestDashboardServiceExplicitDate(t *testing.T) {
	fx := newDashboardFixture()
	date := calendar.MustParse("2024-01-26")

	resp, _, err := fx.svc.Live(context.Background(), parentOne, "kid-1", &date)
	require.NoError(t, err)
	assert.Equal(t, date, resp.Date)
	assert.Equal(t, []string{"essay", "quiz", "project"}, ids(resp.Overdue))
	assert.Empty(t, resp.Today)
	assert.Equal(t, []string{"reading"}, ids(resp.Upcoming))
}

func TestDashboardServiceWithoutStudent(t *testing.T) {
	fx := newDashboardFixture()
	fx.completions.records = []models.StudentAssignment{{AssignmentID: "essay", StudentID: "kid-1", Completed: true}}

	resp, _, err := fx.svc.Live(context.Background(), parentOne, "", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.StudentID)
	assert.Equal(t, "parent-1", fx.assignments.lastFilter.ParentID)
	assert.Equal(t, []string{"essay"}, ids(resp.Overdue), "completion is unresolved without a student")
	assert.Contains(t, fx.cache.store, "dash:owner:parent-1:2024-01-15")
}

func TestDashboardServiceGuardsStudents(t *testing.T) {
	fx := newDashboardFixture()

	_, _, err := fx.svc.Live(context.Background(), parentOne, "kid-2", nil)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, _, err = fx.svc.Live(context.Background(), kidOne, "kid-2", nil)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, _, err = fx.svc.Live(context.Background(), adminUser, "kid-404", nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDashboardServiceLoadFailure(t *testing.T) {
	fx := newDashboardFixture()
	fx.completions.err = errors.New("db down")

	_, _, err := fx.svc.Live(context.Background(), parentOne, "kid-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Empty(t, fx.cache.store)
}

func TestDashboardServiceInvalidatedByToggle(t *testing.T) {
	fx := newDashboardFixture()
	ctx := context.Background()

	_, _, err := fx.svc.Live(ctx, parentOne, "kid-1", nil)
	require.NoError(t, err)

	toggles := NewCompletionService(CompletionServiceParams{
		Completions: fx.completions,
		Assignments: fx.assignments,
		Students:    fx.svc.guard.students,
		Cache:       fx.svc.cache,
		Metrics:     fx.metrics,
	})
	toggles.now = fx.svc.now
	_, err = toggles.Toggle(ctx, parentOne, dto.ToggleCompletionRequest{AssignmentID: "essay", StudentID: "kid-1", Completed: boolPtr(true)})
	require.NoError(t, err)

	resp, hit, err := fx.svc.Live(ctx, parentOne, "kid-1", nil)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, resp.Overdue)
	assert.Equal(t, uint64(1), fx.metrics.Snapshot().CompletionToggles)
}
