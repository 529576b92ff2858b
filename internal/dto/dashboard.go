package dto

import (
	"time"

	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
)

// InstanceDescriptor is one concrete occurrence of a recurring assignment.
type InstanceDescriptor struct {
	Date        calendar.Date `json:"date"`
	DayLabel    string        `json:"dayLabel"`
	Completed   bool          `json:"completed"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// InstanceCompletion is the per-date completion state of a recurring assignment.
type InstanceCompletion struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// DashboardItem is an assignment together with its resolved completion state.
// EffectiveDate is the due date, or for recurring assignments the occurrence
// the item stands for. Ended marks recurrences with no occurrence left.
type DashboardItem struct {
	Assignment          models.Assignment             `json:"assignment"`
	EffectiveDate       calendar.Date                 `json:"effectiveDate"`
	Ended               bool                          `json:"ended,omitempty"`
	Completed           bool                          `json:"completed"`
	CompletedAt         *time.Time                    `json:"completedAt,omitempty"`
	InstanceCompletions map[string]InstanceCompletion `json:"instanceCompletions,omitempty"`
	Instances           []InstanceDescriptor          `json:"instances,omitempty"`
}

// DashboardCounts summarises bucket sizes.
type DashboardCounts struct {
	Overdue  int `json:"overdue"`
	Today    int `json:"today"`
	Upcoming int `json:"upcoming"`
}

// DashboardResponse is the live dashboard for one student (or owner) and day.
type DashboardResponse struct {
	StudentID string          `json:"studentId,omitempty"`
	Date      calendar.Date   `json:"date"`
	Overdue   []DashboardItem `json:"overdue"`
	Today     []DashboardItem `json:"today"`
	Upcoming  []DashboardItem `json:"upcoming"`
	Counts    DashboardCounts `json:"counts"`
}

// HistoryResponse lists assignments whose effective date is on or before Date.
type HistoryResponse struct {
	StudentID string          `json:"studentId,omitempty"`
	Date      calendar.Date   `json:"date"`
	Past      []DashboardItem `json:"past"`
}

// AssignmentInstancesResponse lists upcoming instances of one recurring assignment.
type AssignmentInstancesResponse struct {
	AssignmentID string               `json:"assignmentId"`
	StudentID    string               `json:"studentId,omitempty"`
	Date         calendar.Date        `json:"date"`
	Instances    []InstanceDescriptor `json:"instances"`
}
