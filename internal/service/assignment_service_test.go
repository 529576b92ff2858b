package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/internal/repository"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

type fakeAssignmentRepo struct {
	items      map[string]models.Assignment
	order      []string
	lastFilter models.AssignmentFilter
	createErr  error
	listErr    error
}

func (f *fakeAssignmentRepo) put(a models.Assignment) {
	if f.items == nil {
		f.items = make(map[string]models.Assignment)
	}
	if _, ok := f.items[a.ID]; !ok {
		f.order = append(f.order, a.ID)
	}
	f.items[a.ID] = a
}

func (f *fakeAssignmentRepo) matching(filter models.AssignmentFilter) []models.Assignment {
	var out []models.Assignment
	for _, id := range f.order {
		a, ok := f.items[id]
		if !ok {
			continue
		}
		if filter.StudentID != "" && !containsString(a.StudentIDs, filter.StudentID) {
			continue
		}
		if filter.ParentID != "" && a.CreatedBy != filter.ParentID {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (f *fakeAssignmentRepo) List(_ context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	items := f.matching(filter)
	return items, len(items), nil
}

func (f *fakeAssignmentRepo) ListAll(_ context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.matching(filter), nil
}

func (f *fakeAssignmentRepo) FindByID(_ context.Context, id string) (*models.Assignment, error) {
	a, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (f *fakeAssignmentRepo) Create(_ context.Context, a *models.Assignment) error {
	if f.createErr != nil {
		return f.createErr
	}
	if a.ID == "" {
		a.ID = fmt.Sprintf("a-%d", len(f.order)+1)
	}
	f.put(*a)
	return nil
}

func (f *fakeAssignmentRepo) Update(_ context.Context, a *models.Assignment) error {
	if _, ok := f.items[a.ID]; !ok {
		return sql.ErrNoRows
	}
	f.put(*a)
	return nil
}

func (f *fakeAssignmentRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

type assignmentFixture struct {
	svc         *AssignmentService
	repo        *fakeAssignmentRepo
	completions *fakeCompletionRepo
	cache       *stubCacheRepo
}

func newAssignmentFixture(now time.Time) assignmentFixture {
	repo := &fakeAssignmentRepo{}
	completions := &fakeCompletionRepo{}
	cache := &stubCacheRepo{}
	students := &fakeStudents{items: map[string]models.Student{
		"kid-1": {ID: "kid-1", ParentID: "parent-1", FullName: "Ada"},
		"kid-2": {ID: "kid-2", ParentID: "parent-2", FullName: "Grace"},
	}}
	svc := NewAssignmentService(AssignmentServiceParams{
		Assignments: repo,
		Completions: completions,
		Students:    students,
		Cache:       NewCacheService(cache, nil, 0, nil, true),
		Logger:      zap.NewNop(),
	})
	svc.now = func() time.Time { return now }
	return assignmentFixture{svc: svc, repo: repo, completions: completions, cache: cache}
}

func weeklyRequest(days ...string) AssignmentRequest {
	return AssignmentRequest{
		Title:             "Reading log",
		DueDate:           calendar.MustParse("2024-06-03"),
		IsRecurring:       true,
		RecurrencePattern: &models.RecurrencePattern{Days: days, Frequency: models.FrequencyWeekly},
		StudentIDs:        []string{"kid-1"},
	}
}

func TestAssignmentServiceCreate(t *testing.T) {
	fx := newAssignmentFixture(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))

	req := AssignmentRequest{
		Title:      " Essay ",
		Content:    json.RawMessage(`{"blocks":[]}`),
		Links:      []models.AssignmentLink{{Title: "Prompt", URL: "https://example.com/prompt", Kind: models.LinkKindLink}},
		DueDate:    calendar.MustParse("2024-06-05"),
		StudentIDs: []string{"kid-1", "kid-1", " "},
	}
	created, err := fx.svc.Create(context.Background(), parentOne, req)
	require.NoError(t, err)
	assert.Equal(t, "Essay", created.Title)
	assert.Equal(t, "parent-1", created.CreatedBy)
	assert.Equal(t, []string{"kid-1"}, created.StudentIDs)
	assert.JSONEq(t, `{"blocks":[]}`, string(created.Content))
	assert.Contains(t, fx.cache.invalidated, "dash:student:kid-1:*")
	assert.Contains(t, fx.cache.invalidated, ownerDashboardPattern)
}

func TestAssignmentServiceCreateRejectsBadRecurrence(t *testing.T) {
	fx := newAssignmentFixture(time.Now())

	_, err := fx.svc.Create(context.Background(), parentOne, weeklyRequest())
	assert.ErrorIs(t, err, appErrors.ErrInvalidRecurrencePattern)

	_, err = fx.svc.Create(context.Background(), parentOne, weeklyRequest("funday"))
	assert.ErrorIs(t, err, appErrors.ErrInvalidRecurrencePattern)

	noPattern := weeklyRequest("monday")
	noPattern.RecurrencePattern = nil
	_, err = fx.svc.Create(context.Background(), parentOne, noPattern)
	assert.ErrorIs(t, err, appErrors.ErrInvalidRecurrencePattern)

	endsEarly := weeklyRequest("monday")
	end := calendar.MustParse("2024-06-01")
	endsEarly.RecurrenceEndDate = &end
	_, err = fx.svc.Create(context.Background(), parentOne, endsEarly)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = fx.svc.Create(context.Background(), parentOne, AssignmentRequest{Title: "No date"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, fx.repo.items)
}

func TestAssignmentServiceCreateNormalisesPattern(t *testing.T) {
	fx := newAssignmentFixture(time.Now())

	created, err := fx.svc.Create(context.Background(), parentOne, weeklyRequest("Wednesday", "monday", "MONDAY"))
	require.NoError(t, err)
	assert.Equal(t, []string{"monday", "wednesday"}, created.RecurrencePattern.Days)
}

func TestAssignmentServiceCreateGuardsAssignees(t *testing.T) {
	fx := newAssignmentFixture(time.Now())

	req := weeklyRequest("monday")
	req.StudentIDs = []string{"kid-2"}
	_, err := fx.svc.Create(context.Background(), parentOne, req)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = fx.svc.Create(context.Background(), adminUser, req)
	assert.NoError(t, err)
}

func TestAssignmentServiceCreateUnknownStudent(t *testing.T) {
	fx := newAssignmentFixture(time.Now())
	fx.repo.createErr = fmt.Errorf("%w: kid-9", repository.ErrUnknownStudent)

	req := weeklyRequest("monday")
	req.StudentIDs = nil
	_, err := fx.svc.Create(context.Background(), adminUser, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAssignmentServiceUpdateAndDeleteRequireCreator(t *testing.T) {
	fx := newAssignmentFixture(time.Now())
	fx.repo.put(models.Assignment{ID: "essay", CreatedBy: "parent-2", Title: "Essay", DueDate: calendar.MustParse("2024-06-05"), StudentIDs: []string{"kid-2"}})

	_, err := fx.svc.Update(context.Background(), parentOne, "essay", AssignmentRequest{Title: "Mine now", DueDate: calendar.MustParse("2024-06-05")})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.ErrorIs(t, fx.svc.Delete(context.Background(), parentOne, "essay"), appErrors.ErrForbidden)
	assert.ErrorIs(t, fx.svc.Delete(context.Background(), parentOne, "missing"), appErrors.ErrNotFound)

	require.NoError(t, fx.svc.Delete(context.Background(), adminUser, "essay"))
	assert.Contains(t, fx.cache.invalidated, "dash:student:kid-2:*")
}

func TestAssignmentServiceUpdateReplacesAssignees(t *testing.T) {
	fx := newAssignmentFixture(time.Now())
	fx.repo.put(models.Assignment{ID: "essay", CreatedBy: "parent-1", Title: "Essay", DueDate: calendar.MustParse("2024-06-05"), StudentIDs: []string{"kid-1"}})

	updated, err := fx.svc.Update(context.Background(), parentOne, "essay", AssignmentRequest{Title: "Essay v2", DueDate: calendar.MustParse("2024-06-06")})
	require.NoError(t, err)
	assert.Equal(t, "essay", updated.ID)
	assert.Equal(t, "parent-1", updated.CreatedBy)
	assert.Empty(t, updated.StudentIDs)
	assert.Contains(t, fx.cache.invalidated, "dash:student:kid-1:*")
}

func TestAssignmentServiceGetVisibility(t *testing.T) {
	fx := newAssignmentFixture(time.Now())
	fx.repo.put(models.Assignment{ID: "essay", CreatedBy: "parent-2", Title: "Essay", DueDate: calendar.MustParse("2024-06-05"), StudentIDs: []string{"kid-1"}})
	fx.repo.put(models.Assignment{ID: "other", CreatedBy: "parent-2", Title: "Other", DueDate: calendar.MustParse("2024-06-05"), StudentIDs: []string{"kid-2"}})

	_, err := fx.svc.Get(context.Background(), parentOne, "essay")
	assert.NoError(t, err, "assigned to own child")
	_, err = fx.svc.Get(context.Background(), kidOne, "essay")
	assert.NoError(t, err)
	_, err = fx.svc.Get(context.Background(), parentOne, "other")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = fx.svc.Get(context.Background(), kidOne, "other")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAssignmentServiceListScoping(t *testing.T) {
	fx := newAssignmentFixture(time.Now())

	_, _, err := fx.svc.List(context.Background(), parentOne, models.AssignmentFilter{CreatedBy: "someone"})
	require.NoError(t, err)
	assert.Equal(t, "parent-1", fx.repo.lastFilter.ParentID)
	assert.Empty(t, fx.repo.lastFilter.CreatedBy)

	_, _, err = fx.svc.List(context.Background(), kidOne, models.AssignmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, "kid-1", fx.repo.lastFilter.StudentID)

	_, _, err = fx.svc.List(context.Background(), parentOne, models.AssignmentFilter{StudentID: "kid-2"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAssignmentServiceInstances(t *testing.T) {
	fx := newAssignmentFixture(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	fx.repo.put(models.Assignment{
		ID:                "reading",
		CreatedBy:         "parent-1",
		Title:             "Reading log",
		DueDate:           calendar.MustParse("2024-06-03"),
		IsRecurring:       true,
		RecurrencePattern: &models.RecurrencePattern{Days: []string{"monday", "wednesday"}, Frequency: models.FrequencyWeekly},
		StudentIDs:        []string{"kid-1"},
	})
	wednesday := calendar.MustParse("2024-06-05")
	stamp := time.Date(2024, 6, 5, 15, 0, 0, 0, time.UTC)
	fx.completions.records = []models.StudentAssignment{
		{AssignmentID: "reading", StudentID: "kid-1", InstanceDate: &wednesday, Completed: true, CompletedAt: &stamp},
	}

	resp, err := fx.svc.Instances(context.Background(), parentOne, "reading", "kid-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "kid-1", resp.StudentID)
	require.Len(t, resp.Instances, 3)
	assert.Equal(t, "Today", resp.Instances[0].DayLabel)
	assert.False(t, resp.Instances[0].Completed)
	assert.Equal(t, wednesday, resp.Instances[1].Date)
	assert.True(t, resp.Instances[1].Completed)
	assert.Equal(t, calendar.MustParse("2024-06-10"), resp.Instances[2].Date)

	resp, err = fx.svc.Instances(context.Background(), parentOne, "reading", "", nil)
	require.NoError(t, err)
	for _, inst := range resp.Instances {
		assert.False(t, inst.Completed)
	}
}
