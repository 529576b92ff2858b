package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/models"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]models.Student
	deleted    []string
	lastFilter models.StudentFilter
	listTotal  int
	err        error
}

func (m *mockStudentRepo) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		if filter.ParentID == "" || s.ParentID == filter.ParentID {
			out = append(out, s)
		}
	}
	return out, m.listTotal, nil
}

func (m *mockStudentRepo) FindByID(_ context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(_ context.Context, student *models.Student) error {
	if m.err != nil {
		return m.err
	}
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(_ context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	m.deleted = append(m.deleted, id)
	delete(m.students, id)
	return nil
}

func familyRepo() *mockStudentRepo {
	return &mockStudentRepo{students: map[string]models.Student{
		"kid-1": {ID: "kid-1", ParentID: "parent-1", FullName: "Ada"},
		"kid-2": {ID: "kid-2", ParentID: "parent-2", FullName: "Grace"},
	}}
}

var (
	parentOne = models.Viewer{UserID: "parent-1", Role: models.RoleParent}
	adminUser = models.Viewer{UserID: "admin-1", Role: models.RoleAdmin}
	kidOne    = models.Viewer{UserID: "user-kid-1", Role: models.RoleStudent, StudentID: "kid-1"}
)

func TestStudentServiceCreateUsesViewerAsParent(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := NewStudentService(repo, nil, nil, zap.NewNop())

	student, err := svc.Create(context.Background(), parentOne, CreateStudentRequest{FullName: "  Ada  ", ParentID: "00000000-0000-0000-0000-000000000009"})
	require.NoError(t, err)
	assert.Equal(t, "generated", student.ID)
	assert.Equal(t, "parent-1", student.ParentID)
	assert.Equal(t, "Ada", student.FullName)
}

func TestStudentServiceCreateValidates(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), parentOne, CreateStudentRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestStudentServiceListScopesParents(t *testing.T) {
	repo := familyRepo()
	repo.listTotal = 1
	svc := NewStudentService(repo, nil, nil, zap.NewNop())

	items, pagination, err := svc.List(context.Background(), parentOne, models.StudentFilter{ParentID: "parent-2"})
	require.NoError(t, err)
	assert.Equal(t, "parent-1", repo.lastFilter.ParentID)
	require.Len(t, items, 1)
	assert.Equal(t, "kid-1", items[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestStudentServiceListForStudentReturnsSelf(t *testing.T) {
	svc := NewStudentService(familyRepo(), nil, nil, zap.NewNop())

	items, _, err := svc.List(context.Background(), kidOne, models.StudentFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "kid-1", items[0].ID)
}

func TestStudentServiceGuardsOtherFamilies(t *testing.T) {
	svc := NewStudentService(familyRepo(), nil, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), parentOne, "kid-2")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Get(context.Background(), adminUser, "kid-2")
	assert.NoError(t, err)

	_, err = svc.Get(context.Background(), parentOne, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentServiceUpdate(t *testing.T) {
	repo := familyRepo()
	svc := NewStudentService(repo, nil, nil, zap.NewNop())

	grade := "4"
	updated, err := svc.Update(context.Background(), parentOne, "kid-1", UpdateStudentRequest{FullName: "Ada L.", GradeLevel: &grade})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.FullName)
	assert.Equal(t, "Ada L.", repo.students["kid-1"].FullName)
}

func TestStudentServiceDelete(t *testing.T) {
	repo := familyRepo()
	cache := &stubCacheRepo{}
	svc := NewStudentService(repo, NewCacheService(cache, nil, 0, nil, true), nil, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), parentOne, "kid-1"))
	assert.Contains(t, repo.deleted, "kid-1")
	assert.Contains(t, cache.invalidated, "dash:student:kid-1:*")

	err := svc.Delete(context.Background(), parentOne, "kid-2")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
