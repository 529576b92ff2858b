package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

// LinkKind distinguishes plain resource links from embedded videos.
type LinkKind string

const (
	LinkKindLink  LinkKind = "link"
	LinkKindVideo LinkKind = "video"
)

// AssignmentLink is one resource attached to an assignment.
type AssignmentLink struct {
	Title string   `json:"title" validate:"required,max=200"`
	URL   string   `json:"url" validate:"required,url"`
	Kind  LinkKind `json:"kind" validate:"required,oneof=link video"`
}

// AssignmentLinks is stored as a jsonb array.
type AssignmentLinks []AssignmentLink

// Value implements driver.Valuer.
func (l AssignmentLinks) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *AssignmentLinks) Scan(src interface{}) error {
	return scanJSON(src, l, "assignment links")
}

// Frequency is the recurrence cadence.
type Frequency string

const (
	FrequencyWeekly Frequency = "weekly"
	FrequencyDaily  Frequency = "daily"
)

// RecurrencePattern describes on which weekdays a recurring assignment repeats.
// Days holds lowercase English weekday names.
type RecurrencePattern struct {
	Days      []string  `json:"days"`
	Frequency Frequency `json:"frequency"`
}

// Validate enforces the pattern invariant: weekly needs at least one known weekday.
func (p RecurrencePattern) Validate() error {
	switch p.Frequency {
	case FrequencyWeekly:
		if len(p.Days) == 0 {
			return appErrors.Clone(appErrors.ErrInvalidRecurrencePattern, "weekly recurrence needs at least one day")
		}
	case FrequencyDaily:
	default:
		return appErrors.Clone(appErrors.ErrInvalidRecurrencePattern, fmt.Sprintf("unsupported frequency %q", p.Frequency))
	}
	for _, day := range p.Days {
		if _, err := calendar.ParseWeekday(day); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInvalidRecurrencePattern.Code, appErrors.ErrInvalidRecurrencePattern.Status, err.Error())
		}
	}
	return nil
}

// Normalized lowercases and deduplicates Days in week order (Sunday first).
func (p RecurrencePattern) Normalized() RecurrencePattern {
	set := p.Weekdays()
	days := make([]string, 0, len(set))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if set[wd] {
			days = append(days, calendar.WeekdayName(wd))
		}
	}
	if p.Frequency == FrequencyDaily && len(p.Days) == 0 {
		days = nil
	}
	return RecurrencePattern{Days: days, Frequency: p.Frequency}
}

// Weekdays returns the set of matching weekdays. Daily patterns match every day.
// Unknown names are skipped; they are rejected by Validate at write time.
func (p RecurrencePattern) Weekdays() map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, 7)
	if p.Frequency == FrequencyDaily {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			set[wd] = true
		}
		return set
	}
	for _, day := range p.Days {
		if wd, err := calendar.ParseWeekday(day); err == nil {
			set[wd] = true
		}
	}
	return set
}

// Value implements driver.Valuer.
func (p RecurrencePattern) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *RecurrencePattern) Scan(src interface{}) error {
	return scanJSON(src, p, "recurrence pattern")
}

// Assignment is a unit of work a parent or admin hands to one or more students.
// DueDate anchors one-time assignments and is the start date of recurring ones.
type Assignment struct {
	ID                string             `db:"id" json:"id"`
	CreatedBy         string             `db:"created_by" json:"created_by"`
	Title             string             `db:"title" json:"title"`
	Content           types.JSONText     `db:"content" json:"content,omitempty"`
	Links             AssignmentLinks    `db:"links" json:"links"`
	DueDate           calendar.Date      `db:"due_date" json:"due_date"`
	IsRecurring       bool               `db:"is_recurring" json:"is_recurring"`
	RecurrencePattern *RecurrencePattern `db:"recurrence_pattern" json:"recurrence_pattern,omitempty"`
	RecurrenceEndDate *calendar.Date     `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	Category          *string            `db:"category" json:"category,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`

	StudentIDs []string `db:"-" json:"student_ids"`
}

// Validate checks the invariants that must hold before an assignment is stored.
func (a Assignment) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if a.DueDate.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "due_date is required")
	}
	for _, link := range a.Links {
		if link.Kind != LinkKindLink && link.Kind != LinkKindVideo {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported link kind %q", link.Kind))
		}
		if u, err := url.Parse(link.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid link url %q", link.URL))
		}
	}
	if !a.IsRecurring {
		if a.RecurrencePattern != nil || a.RecurrenceEndDate != nil {
			return appErrors.Clone(appErrors.ErrValidation, "recurrence settings require is_recurring")
		}
		return nil
	}
	if a.RecurrencePattern == nil {
		return appErrors.Clone(appErrors.ErrInvalidRecurrencePattern, "recurring assignments need a recurrence_pattern")
	}
	if err := a.RecurrencePattern.Validate(); err != nil {
		return err
	}
	if a.RecurrenceEndDate != nil && a.RecurrenceEndDate.Before(a.DueDate) {
		return appErrors.Clone(appErrors.ErrValidation, "recurrence_end_date must not be before due_date")
	}
	return nil
}

// AssignmentFilter scopes assignment listings. Scope fields are set by the
// service from the viewer, never from user input.
type AssignmentFilter struct {
	StudentID string
	CreatedBy string
	ParentID  string
	Category  string
	From      *calendar.Date
	To        *calendar.Date
	Page      int
	PageSize  int
}

func scanJSON(src interface{}, dest interface{}, label string) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, label)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", label, err)
	}
	return nil
}
