package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/internal/repository"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
	"github.com/noah-isme/homeschool-api/pkg/response"
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

type completionLister interface {
	ListByStudent(ctx context.Context, studentID string, assignmentIDs []string) ([]models.StudentAssignment, error)
}

// AssignmentRequest is the create/update payload for assignments.
type AssignmentRequest struct {
	Title             string                    `json:"title" validate:"required,max=200"`
	Content           json.RawMessage           `json:"content" swaggertype:"object"`
	Links             []models.AssignmentLink   `json:"links" validate:"omitempty,max=20,dive"`
	DueDate           calendar.Date             `json:"due_date" validate:"required" swaggertype:"string" example:"2024-01-15"`
	IsRecurring       bool                      `json:"is_recurring"`
	RecurrencePattern *models.RecurrencePattern `json:"recurrence_pattern"`
	RecurrenceEndDate *calendar.Date            `json:"recurrence_end_date" swaggertype:"string"`
	Category          *string                   `json:"category" validate:"omitempty,max=60"`
	StudentIDs        []string                  `json:"student_ids" validate:"omitempty,max=50,dive,required"`
}

// AssignmentServiceParams groups constructor dependencies.
type AssignmentServiceParams struct {
	Assignments assignmentRepository
	Completions completionLister
	Students    studentReader
	Cache       *CacheService
	Validator   *validator.Validate
	Logger      *zap.Logger
	Location    *time.Location
	Recurrence  RecurrenceOptions
}

// AssignmentService manages assignments and their assignees.
type AssignmentService struct {
	repo        assignmentRepository
	completions completionLister
	guard       studentGuard
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	location    *time.Location
	recurrence  RecurrenceOptions
	now         func() time.Time
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(params AssignmentServiceParams) *AssignmentService {
	validate := params.Validator
	if validate == nil {
		validate = NewValidator()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &AssignmentService{
		repo:        params.Assignments,
		completions: params.Completions,
		guard:       studentGuard{students: params.Students},
		cache:       params.Cache,
		validator:   validate,
		logger:      logger,
		location:    loc,
		recurrence:  params.Recurrence.withDefaults(),
		now:         time.Now,
	}
}

// List returns assignments visible to the viewer.
func (s *AssignmentService) List(ctx context.Context, viewer models.Viewer, filter models.AssignmentFilter) ([]models.Assignment, *response.Pagination, error) {
	filter.CreatedBy = ""
	filter.ParentID = ""
	student, err := s.guard.resolve(ctx, viewer, filter.StudentID)
	if err != nil {
		return nil, nil, err
	}
	if student != nil {
		filter.StudentID = student.ID
	} else if viewer.IsParent() {
		filter.ParentID = viewer.UserID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	return items, &response.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single assignment visible to the viewer.
func (s *AssignmentService) Get(ctx context.Context, viewer models.Viewer, id string) (*models.Assignment, error) {
	assignment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, viewer, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// Create validates and stores a new assignment, fanning it out to assignees.
func (s *AssignmentService) Create(ctx context.Context, viewer models.Viewer, req AssignmentRequest) (*models.Assignment, error) {
	assignment, err := s.build(ctx, viewer, req)
	if err != nil {
		return nil, err
	}
	assignment.CreatedBy = viewer.UserID
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, s.writeError(err, "failed to create assignment")
	}
	s.invalidate(ctx, assignment.StudentIDs)
	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.Bool("recurring", assignment.IsRecurring),
		zap.Int("assignees", len(assignment.StudentIDs)),
	)
	return assignment, nil
}

// Update rewrites an assignment and replaces its assignee set.
func (s *AssignmentService) Update(ctx context.Context, viewer models.Viewer, id string, req AssignmentRequest) (*models.Assignment, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeManage(viewer, current); err != nil {
		return nil, err
	}
	assignment, err := s.build(ctx, viewer, req)
	if err != nil {
		return nil, err
	}
	assignment.ID = current.ID
	assignment.CreatedBy = current.CreatedBy
	assignment.CreatedAt = current.CreatedAt
	if err := s.repo.Update(ctx, assignment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, s.writeError(err, "failed to update assignment")
	}
	s.invalidate(ctx, append(append([]string{}, current.StudentIDs...), assignment.StudentIDs...))
	return assignment, nil
}

// Delete removes an assignment together with every completion record.
func (s *AssignmentService) Delete(ctx context.Context, viewer models.Viewer, id string) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeManage(viewer, current); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	s.invalidate(ctx, current.StudentIDs)
	return nil
}

// Instances lists the occurrences of a recurring assignment in the lookahead
// window starting at date (today when nil), with the student's completion.
func (s *AssignmentService) Instances(ctx context.Context, viewer models.Viewer, id, studentID string, date *calendar.Date) (*dto.AssignmentInstancesResponse, error) {
	assignment, err := s.Get(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	student, err := s.guard.resolve(ctx, viewer, studentID)
	if err != nil {
		return nil, err
	}
	today := calendar.Today(s.now(), s.location)
	if date != nil && !date.IsZero() {
		today = *date
	}

	var (
		records  []models.StudentAssignment
		resolved string
	)
	if student != nil {
		if !containsString(assignment.StudentIDs, student.ID) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment is not assigned to this student")
		}
		resolved = student.ID
		if s.completions != nil {
			records, err = s.completions.ListByStudent(ctx, student.ID, []string{assignment.ID})
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completions")
			}
		}
	}

	res := ResolveCompletion(*assignment, records, resolved, today)
	instances := DescribeInstances(InstancesFor(*assignment, today, s.recurrence), today)
	for i := range instances {
		state := res.Instance(instances[i].Date)
		instances[i].Completed = state.Completed
		instances[i].CompletedAt = state.CompletedAt
	}
	return &dto.AssignmentInstancesResponse{
		AssignmentID: assignment.ID,
		StudentID:    resolved,
		Date:         today,
		Instances:    instances,
	}, nil
}

func (s *AssignmentService) build(ctx context.Context, viewer models.Viewer, req AssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	assignment := &models.Assignment{
		Title:             strings.TrimSpace(req.Title),
		Links:             models.AssignmentLinks(req.Links),
		DueDate:           req.DueDate,
		IsRecurring:       req.IsRecurring,
		RecurrenceEndDate: req.RecurrenceEndDate,
		Category:          normaliseCategory(req.Category),
		StudentIDs:        dedupe(req.StudentIDs),
	}
	if len(req.Content) > 0 {
		assignment.Content = types.JSONText(req.Content)
	}
	if assignment.Links == nil {
		assignment.Links = models.AssignmentLinks{}
	}
	if req.RecurrencePattern != nil {
		pattern := *req.RecurrencePattern
		pattern.Frequency = models.Frequency(strings.ToLower(string(pattern.Frequency)))
		assignment.RecurrencePattern = &pattern
	}
	if err := assignment.Validate(); err != nil {
		return nil, err
	}
	if assignment.RecurrencePattern != nil {
		normalized := assignment.RecurrencePattern.Normalized()
		assignment.RecurrencePattern = &normalized
	}
	for _, studentID := range assignment.StudentIDs {
		if _, err := s.guard.require(ctx, viewer, studentID); err != nil {
			return nil, err
		}
	}
	return assignment, nil
}

func (s *AssignmentService) load(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func (s *AssignmentService) authorizeView(ctx context.Context, viewer models.Viewer, assignment *models.Assignment) error {
	switch {
	case viewer.IsAdmin():
		return nil
	case viewer.IsStudent():
		if viewer.StudentID != "" && containsString(assignment.StudentIDs, viewer.StudentID) {
			return nil
		}
	case viewer.IsParent():
		if assignment.CreatedBy == viewer.UserID {
			return nil
		}
		for _, studentID := range assignment.StudentIDs {
			if student, err := s.guard.resolve(ctx, viewer, studentID); err == nil && student != nil {
				return nil
			}
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
}

func authorizeManage(viewer models.Viewer, assignment *models.Assignment) error {
	if viewer.IsAdmin() || (viewer.IsParent() && assignment.CreatedBy == viewer.UserID) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the creator may change this assignment")
}

func (s *AssignmentService) writeError(err error, message string) error {
	if errors.Is(err, repository.ErrUnknownStudent) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student_ids contains an unknown student")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *AssignmentService) invalidate(ctx context.Context, studentIDs []string) {
	if s.cache == nil {
		return
	}
	for _, id := range dedupe(studentIDs) {
		_ = s.cache.Invalidate(ctx, studentDashboardPattern(id))
	}
	_ = s.cache.Invalidate(ctx, ownerDashboardPattern)
}

func normaliseCategory(category *string) *string {
	if category == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*category)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
