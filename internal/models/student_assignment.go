package models

import (
	"time"

	"github.com/noah-isme/homeschool-api/pkg/calendar"
)

// StudentAssignment is one student's completion record for an assignment.
// InstanceDate is nil for the base (assignee) record and set for the record
// of one occurrence of a recurring assignment.
type StudentAssignment struct {
	ID           string         `db:"id" json:"id"`
	AssignmentID string         `db:"assignment_id" json:"assignment_id"`
	StudentID    string         `db:"student_id" json:"student_id"`
	InstanceDate *calendar.Date `db:"instance_date" json:"instance_date,omitempty"`
	Completed    bool           `db:"completed" json:"completed"`
	CompletedAt  *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// CompletionKey identifies the record a toggle targets.
type CompletionKey struct {
	AssignmentID string
	StudentID    string
	InstanceDate *calendar.Date
}

// Matches reports whether r is the record addressed by k.
func (k CompletionKey) Matches(r StudentAssignment) bool {
	if r.AssignmentID != k.AssignmentID || r.StudentID != k.StudentID {
		return false
	}
	if k.InstanceDate == nil || r.InstanceDate == nil {
		return k.InstanceDate == nil && r.InstanceDate == nil
	}
	return k.InstanceDate.Equal(*r.InstanceDate)
}
