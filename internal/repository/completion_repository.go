package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/homeschool-api/internal/models"
)

const completionColumns = `id, assignment_id, student_id, instance_date, completed, completed_at, created_at, updated_at`

// CompletionRepository persists student_assignments rows.
type CompletionRepository struct {
	db *sqlx.DB
}

// NewCompletionRepository constructs a CompletionRepository.
func NewCompletionRepository(db *sqlx.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// Upsert writes the completion state for the record's key. Concurrent writers
// on the same key resolve to the last statement executed.
func (r *CompletionRepository) Upsert(ctx context.Context, record *models.StudentAssignment) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	conflict := `ON CONFLICT (assignment_id, student_id) WHERE instance_date IS NULL`
	if record.InstanceDate != nil {
		conflict = `ON CONFLICT (assignment_id, student_id, instance_date) WHERE instance_date IS NOT NULL`
	}
	query := `INSERT INTO student_assignments (` + completionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
` + conflict + `
DO UPDATE SET completed = EXCLUDED.completed, completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at
RETURNING ` + completionColumns

	var stored models.StudentAssignment
	if err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.AssignmentID, record.StudentID, record.InstanceDate,
		record.Completed, record.CompletedAt, record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert completion: %w", err)
	}
	*record = stored
	return nil
}

// ListByStudent returns a student's records, optionally restricted to assignments.
func (r *CompletionRepository) ListByStudent(ctx context.Context, studentID string, assignmentIDs []string) ([]models.StudentAssignment, error) {
	query := `SELECT ` + completionColumns + ` FROM student_assignments WHERE student_id = $1`
	args := []interface{}{studentID}
	if len(assignmentIDs) > 0 {
		query += ` AND assignment_id = ANY($2)`
		args = append(args, pq.Array(assignmentIDs))
	}
	query += ` ORDER BY instance_date ASC NULLS FIRST`

	var records []models.StudentAssignment
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return records, nil
}
