package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

// Resolution is the completion state of one assignment for one student.
type Resolution struct {
	Completed   bool
	CompletedAt *time.Time
	// Instances is keyed by instance date (YYYY-MM-DD); recurring assignments only.
	Instances map[string]dto.InstanceCompletion
}

// Instance returns the state of a single occurrence; absent means not completed.
func (r Resolution) Instance(date calendar.Date) dto.InstanceCompletion {
	if r.Instances == nil {
		return dto.InstanceCompletion{}
	}
	return r.Instances[date.String()]
}

// ResolveCompletion derives completion for one assignment from a student's
// records. Without a student every state resolves to not completed.
// For recurring assignments the headline flag is today's instance.
func ResolveCompletion(assignment models.Assignment, records []models.StudentAssignment, studentID string, today calendar.Date) Resolution {
	if studentID == "" {
		return Resolution{}
	}
	if !assignment.IsRecurring {
		for _, rec := range records {
			if rec.AssignmentID == assignment.ID && rec.StudentID == studentID && rec.InstanceDate == nil {
				return Resolution{Completed: rec.Completed, CompletedAt: rec.CompletedAt}
			}
		}
		return Resolution{}
	}

	res := Resolution{Instances: make(map[string]dto.InstanceCompletion)}
	for _, rec := range records {
		if rec.AssignmentID != assignment.ID || rec.StudentID != studentID || rec.InstanceDate == nil {
			continue
		}
		res.Instances[rec.InstanceDate.String()] = dto.InstanceCompletion{Completed: rec.Completed, CompletedAt: rec.CompletedAt}
	}
	headline := res.Instance(today)
	res.Completed = headline.Completed
	res.CompletedAt = headline.CompletedAt
	return res
}

type completionRepository interface {
	Upsert(ctx context.Context, record *models.StudentAssignment) error
	ListByStudent(ctx context.Context, studentID string, assignmentIDs []string) ([]models.StudentAssignment, error)
}

type dashboardWarmer interface {
	Warm(studentID string, date calendar.Date)
}

type assignmentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

// CompletionServiceParams groups constructor dependencies.
type CompletionServiceParams struct {
	Completions completionRepository
	Assignments assignmentFinder
	Students    studentReader
	Cache       *CacheService
	Warmer      dashboardWarmer
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
	Location    *time.Location
}

// CompletionService toggles per-student completion.
type CompletionService struct {
	completions completionRepository
	assignments assignmentFinder
	guard       studentGuard
	cache       *CacheService
	warmer      dashboardWarmer
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	location    *time.Location
	now         func() time.Time
}

// NewCompletionService constructs the completion service.
func NewCompletionService(params CompletionServiceParams) *CompletionService {
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
	return &CompletionService{
		completions: params.Completions,
		assignments: params.Assignments,
		guard:       studentGuard{students: params.Students},
		cache:       params.Cache,
		warmer:      params.Warmer,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		location:    loc,
		now:         time.Now,
	}
}

// Toggle upserts the completion record addressed by the request. Recurring
// assignments target one instance, defaulting to today.
func (s *CompletionService) Toggle(ctx context.Context, viewer models.Viewer, req dto.ToggleCompletionRequest) (*dto.ToggleCompletionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}
	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	student, err := s.guard.require(ctx, viewer, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !containsString(assignment.StudentIDs, student.ID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment is not assigned to this student")
	}

	now := s.now()
	record := &models.StudentAssignment{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		Completed:    *req.Completed,
	}
	kind := "assignment"
	if assignment.IsRecurring {
		kind = "instance"
		target := calendar.Today(now, s.location)
		if req.InstanceDate != nil && !req.InstanceDate.IsZero() {
			target = *req.InstanceDate
		}
		if !IsInstanceDate(*assignment, target) {
			return nil, appErrors.Clone(appErrors.ErrInvalidInstanceDate, fmt.Sprintf("%s is not an instance of this assignment", target))
		}
		record.InstanceDate = &target
	} else if req.InstanceDate != nil && !req.InstanceDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instanceDate applies only to recurring assignments")
	}
	if record.Completed {
		stamp := now.UTC()
		record.CompletedAt = &stamp
	}

	if err := s.completions.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save completion")
	}
	s.metrics.RecordCompletionToggle(kind, record.Completed)
	s.invalidate(ctx, student.ID)
	if s.warmer != nil && s.cache.Enabled() {
		s.warmer.Warm(student.ID, calendar.Today(now, s.location))
	}
	s.logger.Debug("completion toggled",
		zap.String("assignment_id", assignment.ID),
		zap.String("student_id", student.ID),
		zap.Bool("completed", record.Completed),
	)

	return &dto.ToggleCompletionResponse{
		AssignmentID: record.AssignmentID,
		StudentID:    record.StudentID,
		InstanceDate: record.InstanceDate,
		Completed:    record.Completed,
		CompletedAt:  record.CompletedAt,
	}, nil
}

func (s *CompletionService) invalidate(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, studentDashboardPattern(studentID))
}
