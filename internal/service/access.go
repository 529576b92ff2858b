package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/homeschool-api/internal/models"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// studentGuard decides which student a viewer may act for.
type studentGuard struct {
	students studentReader
}

// resolve returns the student the request targets. Students always act for
// themselves; parents only for their own children; admins for anyone.
// An empty studentID for a non-student viewer yields (nil, nil).
func (g studentGuard) resolve(ctx context.Context, viewer models.Viewer, studentID string) (*models.Student, error) {
	if viewer.IsStudent() {
		if viewer.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "account is not linked to a student profile")
		}
		if studentID != "" && studentID != viewer.StudentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only access their own assignments")
		}
		studentID = viewer.StudentID
	}
	if studentID == "" {
		return nil, nil
	}
	if g.students == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "student lookup unavailable")
	}
	student, err := g.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if viewer.IsParent() && student.ParentID != viewer.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another family")
	}
	return student, nil
}

// require is resolve for writes, where a target student is mandatory.
func (g studentGuard) require(ctx context.Context, viewer models.Viewer, studentID string) (*models.Student, error) {
	student, err := g.resolve(ctx, viewer, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, appErrors.ErrMissingStudentContext
	}
	return student, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// pageDefaults mirrors the repository paging bounds so pagination metadata
// reports what was actually queried.
func pageDefaults(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
