package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/models"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
	"github.com/noah-isme/homeschool-api/pkg/response"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

// CreateStudentRequest holds payload for adding a child profile. ParentID is
// honoured for admins only; parents always create under their own account.
type CreateStudentRequest struct {
	FullName   string  `json:"full_name" validate:"required,max=120"`
	GradeLevel *string `json:"grade_level" validate:"omitempty,max=40"`
	UserID     *string `json:"user_id" validate:"omitempty,uuid"`
	ParentID   string  `json:"parent_id" validate:"omitempty,uuid"`
}

// UpdateStudentRequest holds payload for updating a child profile.
type UpdateStudentRequest struct {
	FullName   string  `json:"full_name" validate:"required,max=120"`
	GradeLevel *string `json:"grade_level" validate:"omitempty,max=40"`
	UserID     *string `json:"user_id" validate:"omitempty,uuid"`
}

// StudentService handles child profile use-cases.
type StudentService struct {
	repo      studentRepository
	guard     studentGuard
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, guard: studentGuard{students: repo}, cache: cache, validator: validate, logger: logger}
}

// List returns the students visible to the viewer.
func (s *StudentService) List(ctx context.Context, viewer models.Viewer, filter models.StudentFilter) ([]models.Student, *response.Pagination, error) {
	switch {
	case viewer.IsStudent():
		student, err := s.guard.require(ctx, viewer, "")
		if err != nil {
			return nil, nil, err
		}
		return []models.Student{*student}, &response.Pagination{Page: 1, PageSize: 1, TotalCount: 1}, nil
	case viewer.IsParent():
		filter.ParentID = viewer.UserID
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	return students, &response.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student the viewer may access.
func (s *StudentService) Get(ctx context.Context, viewer models.Viewer, id string) (*models.Student, error) {
	return s.guard.require(ctx, viewer, id)
}

// Create registers a new child profile.
func (s *StudentService) Create(ctx context.Context, viewer models.Viewer, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	parentID := viewer.UserID
	if viewer.IsAdmin() && req.ParentID != "" {
		parentID = req.ParentID
	}
	student := &models.Student{
		ParentID:   parentID,
		UserID:     req.UserID,
		FullName:   strings.TrimSpace(req.FullName),
		GradeLevel: req.GradeLevel,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies a child profile.
func (s *StudentService) Update(ctx context.Context, viewer models.Viewer, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.guard.require(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	student.FullName = strings.TrimSpace(req.FullName)
	student.GradeLevel = req.GradeLevel
	student.UserID = req.UserID
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a child profile and its completion history.
func (s *StudentService) Delete(ctx context.Context, viewer models.Viewer, id string) error {
	if _, err := s.guard.require(ctx, viewer, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, studentDashboardPattern(id))
	}
	return nil
}
