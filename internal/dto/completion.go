package dto

import (
	"time"

	"github.com/noah-isme/homeschool-api/pkg/calendar"
)

// ToggleCompletionRequest marks an assignment, or one instance of a recurring
// assignment, as done or not done for a student.
type ToggleCompletionRequest struct {
	AssignmentID string         `json:"assignmentId" validate:"required"`
	StudentID    string         `json:"studentId"`
	InstanceDate *calendar.Date `json:"instanceDate"`
	Completed    *bool          `json:"completed" validate:"required"`
}

// ToggleCompletionResponse echoes the persisted state.
type ToggleCompletionResponse struct {
	AssignmentID string         `json:"assignmentId"`
	StudentID    string         `json:"studentId"`
	InstanceDate *calendar.Date `json:"instanceDate,omitempty"`
	Completed    bool           `json:"completed"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}
