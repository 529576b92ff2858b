package models

import "time"

// Student is a child profile owned by a parent account. UserID links the
// profile to a login when the child has their own account.
type Student struct {
	ID         string    `db:"id" json:"id"`
	ParentID   string    `db:"parent_id" json:"parent_id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	FullName   string    `db:"full_name" json:"full_name"`
	GradeLevel *string   `db:"grade_level" json:"grade_level,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	ParentID string
	Search   string
	Page     int
	PageSize int
}
