package service

import (
	"context"
	"database/sql"
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

type fakeCompletionRepo struct {
	records []models.StudentAssignment
	err     error
}

func (f *fakeCompletionRepo) Upsert(_ context.Context, record *models.StudentAssignment) error {
	if f.err != nil {
		return f.err
	}
	key := models.CompletionKey{AssignmentID: record.AssignmentID, StudentID: record.StudentID, InstanceDate: record.InstanceDate}
	for i := range f.records {
		if key.Matches(f.records[i]) {
			f.records[i].Completed = record.Completed
			f.records[i].CompletedAt = record.CompletedAt
			return nil
		}
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeCompletionRepo) ListByStudent(_ context.Context, studentID string, assignmentIDs []string) ([]models.StudentAssignment, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.StudentAssignment
	for _, rec := range f.records {
		if rec.StudentID == studentID && (len(assignmentIDs) == 0 || containsString(assignmentIDs, rec.AssignmentID)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeCompletionRepo) find(key models.CompletionKey) *models.StudentAssignment {
	for i := range f.records {
		if key.Matches(f.records[i]) {
			return &f.records[i]
		}
	}
	return nil
}

type fakeAssignmentFinder struct {
	items map[string]models.Assignment
}

func (f *fakeAssignmentFinder) FindByID(_ context.Context, id string) (*models.Assignment, error) {
	a, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

type fakeStudents struct {
	items map[string]models.Student
}

func (f *fakeStudents) FindByID(_ context.Context, id string) (*models.Student, error) {
	s, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func boolPtr(v bool) *bool { return &v }

func newCompletionFixture(now time.Time) (*CompletionService, *fakeCompletionRepo) {
	repo := &fakeCompletionRepo{}
	assignments := &fakeAssignmentFinder{items: map[string]models.Assignment{
		"essay": {ID: "essay", Title: "Essay", DueDate: calendar.MustParse("2024-06-05"), StudentIDs: []string{"kid-1"}},
		"reading": {
			ID:                "reading",
			Title:             "Reading log",
			DueDate:           calendar.MustParse("2024-06-03"),
			IsRecurring:       true,
			RecurrencePattern: &models.RecurrencePattern{Days: []string{"monday"}, Frequency: models.FrequencyWeekly},
			StudentIDs:        []string{"kid-1"},
		},
	}}
	students := &fakeStudents{items: map[string]models.Student{
		"kid-1": {ID: "kid-1", ParentID: "parent-1", FullName: "Ada"},
		"kid-2": {ID: "kid-2", ParentID: "parent-2", FullName: "Grace"},
	}}
	svc := NewCompletionService(CompletionServiceParams{
		Completions: repo,
		Assignments: assignments,
		Students:    students,
		Logger:      zap.NewNop(),
	})
	svc.now = func() time.Time { return now }
	return svc, repo
}

func TestResolveCompletionNonRecurring(t *testing.T) {
	today := calendar.MustParse("2024-06-05")
	stamp := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)
	a := models.Assignment{ID: "essay", DueDate: today}
	records := []models.StudentAssignment{
		{AssignmentID: "essay", StudentID: "kid-2", Completed: false},
		{AssignmentID: "essay", StudentID: "kid-1", Completed: true, CompletedAt: &stamp},
	}

	res := ResolveCompletion(a, records, "kid-1", today)
	assert.True(t, res.Completed)
	assert.Equal(t, &stamp, res.CompletedAt)
	assert.Nil(t, res.Instances)

	assert.False(t, ResolveCompletion(a, records, "kid-2", today).Completed)
	assert.False(t, ResolveCompletion(a, nil, "kid-1", today).Completed)
}

func TestResolveCompletionWithoutStudentIsNotCompleted(t *testing.T) {
	today := calendar.MustParse("2024-06-05")
	a := models.Assignment{ID: "essay", DueDate: today}
	records := []models.StudentAssignment{{AssignmentID: "essay", StudentID: "kid-1", Completed: true}}
	res := ResolveCompletion(a, records, "", today)
	assert.False(t, res.Completed)
	assert.False(t, res.Instance(today).Completed)
}

func TestResolveCompletionInstancesAreIndependent(t *testing.T) {
	a := models.Assignment{
		ID:                "reading",
		DueDate:           calendar.MustParse("2024-06-03"),
		IsRecurring:       true,
		RecurrencePattern: &models.RecurrencePattern{Days: []string{"monday"}, Frequency: models.FrequencyWeekly},
	}
	stamp := time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC)
	records := []models.StudentAssignment{
		{AssignmentID: "reading", StudentID: "kid-1", Completed: false},
		{AssignmentID: "reading", StudentID: "kid-1", InstanceDate: datePtr("2024-06-03"), Completed: true, CompletedAt: &stamp},
	}

	onThird := ResolveCompletion(a, records, "kid-1", calendar.MustParse("2024-06-03"))
	assert.True(t, onThird.Completed)
	assert.True(t, onThird.Instance(calendar.MustParse("2024-06-03")).Completed)
	assert.False(t, onThird.Instance(calendar.MustParse("2024-06-10")).Completed)

	onTenth := ResolveCompletion(a, records, "kid-1", calendar.MustParse("2024-06-10"))
	assert.False(t, onTenth.Completed)
	assert.Nil(t, onTenth.CompletedAt)
}

func TestToggleNonRecurringRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	svc, repo := newCompletionFixture(now)
	parent := models.Viewer{UserID: "parent-1", Role: models.RoleParent}
	ctx := context.Background()

	resp, err := svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "essay", StudentID: "kid-1", Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, resp.Completed)
	require.NotNil(t, resp.CompletedAt)
	assert.Nil(t, resp.InstanceDate)

	stored := repo.find(models.CompletionKey{AssignmentID: "essay", StudentID: "kid-1"})
	require.NotNil(t, stored)
	assert.True(t, stored.Completed)
	assert.NotNil(t, stored.CompletedAt)

	resp, err = svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "essay", StudentID: "kid-1", Completed: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, resp.Completed)
	assert.Nil(t, resp.CompletedAt)

	stored = repo.find(models.CompletionKey{AssignmentID: "essay", StudentID: "kid-1"})
	require.NotNil(t, stored)
	assert.False(t, stored.Completed)
	assert.Nil(t, stored.CompletedAt)
	assert.Len(t, repo.records, 1)
}

func TestToggleRecurringDefaultsToToday(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, repo := newCompletionFixture(now)
	student := models.Viewer{UserID: "user-kid-1", Role: models.RoleStudent, StudentID: "kid-1"}

	resp, err := svc.Toggle(context.Background(), student, dto.ToggleCompletionRequest{AssignmentID: "reading", Completed: boolPtr(true)})
	require.NoError(t, err)
	require.NotNil(t, resp.InstanceDate)
	assert.Equal(t, "2024-06-10", resp.InstanceDate.String())
	assert.Equal(t, "kid-1", resp.StudentID)

	assert.NotNil(t, repo.find(models.CompletionKey{AssignmentID: "reading", StudentID: "kid-1", InstanceDate: datePtr("2024-06-10")}))
	assert.Nil(t, repo.find(models.CompletionKey{AssignmentID: "reading", StudentID: "kid-1", InstanceDate: datePtr("2024-06-03")}))
}

func TestToggleRecurringInstanceIndependence(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc, repo := newCompletionFixture(now)
	parent := models.Viewer{UserID: "parent-1", Role: models.RoleParent}
	ctx := context.Background()

	_, err := svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "reading", StudentID: "kid-1", InstanceDate: datePtr("2024-06-03"), Completed: boolPtr(true)})
	require.NoError(t, err)

	a := models.Assignment{ID: "reading", DueDate: calendar.MustParse("2024-06-03"), IsRecurring: true, RecurrencePattern: &models.RecurrencePattern{Days: []string{"monday"}, Frequency: models.FrequencyWeekly}}
	res := ResolveCompletion(a, repo.records, "kid-1", calendar.MustParse("2024-06-10"))
	assert.True(t, res.Instance(calendar.MustParse("2024-06-03")).Completed)
	assert.False(t, res.Instance(calendar.MustParse("2024-06-10")).Completed)
}

func TestToggleRejectsInvalidTargets(t *testing.T) {
	now := time.Date(2024, 6, 11, 8, 0, 0, 0, time.UTC)
	svc, _ := newCompletionFixture(now)
	parent := models.Viewer{UserID: "parent-1", Role: models.RoleParent}
	ctx := context.Background()

	_, err := svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "reading", StudentID: "kid-1", Completed: boolPtr(true)})
	assert.ErrorIs(t, err, appErrors.ErrInvalidInstanceDate)

	_, err = svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "essay", StudentID: "kid-1", InstanceDate: datePtr("2024-06-05"), Completed: boolPtr(true)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "essay", Completed: boolPtr(true)})
	assert.ErrorIs(t, err, appErrors.ErrMissingStudentContext)

	_, err = svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "essay", StudentID: "kid-2", Completed: boolPtr(true)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "missing", StudentID: "kid-1", Completed: boolPtr(true)})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Toggle(ctx, parent, dto.ToggleCompletionRequest{AssignmentID: "essay", StudentID: "kid-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	other := models.Viewer{UserID: "user-kid-2", Role: models.RoleStudent, StudentID: "kid-2"}
	_, err = svc.Toggle(ctx, other, dto.ToggleCompletionRequest{AssignmentID: "essay", StudentID: "kid-1", Completed: boolPtr(true)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestToggleRepositoryFailureIsInternal(t *testing.T) {
	now := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	svc, repo := newCompletionFixture(now)
	repo.err = assert.AnError
	admin := models.Viewer{UserID: "admin", Role: models.RoleAdmin}

	_, err := svc.Toggle(context.Background(), admin, dto.ToggleCompletionRequest{AssignmentID: "essay", StudentID: "kid-1", Completed: boolPtr(true)})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
