package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/homeschool-api/internal/models"
)

const assignmentColumns = `a.id, a.created_by, a.title, a.content, a.links, a.due_date, a.is_recurring, a.recurrence_pattern, a.recurrence_end_date, a.category, a.created_at, a.updated_at`

// ErrUnknownStudent is returned when an assignee does not reference an existing student.
var ErrUnknownStudent = errors.New("assignee references unknown student")

const pqForeignKeyViolation = "23503"

// AssignmentRepository persists assignments and their assignee fan-out.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func buildAssignmentWhere(filter models.AssignmentFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("a.created_by = $%d", len(args)))
	}
	if filter.ParentID != "" {
		args = append(args, filter.ParentID)
		conditions = append(conditions, fmt.Sprintf(`(a.created_by = $%d OR EXISTS (
SELECT 1 FROM student_assignments psa JOIN students ps ON ps.id = psa.student_id
WHERE psa.assignment_id = a.id AND psa.instance_date IS NULL AND ps.parent_id = $%d))`, len(args), len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf(`EXISTS (SELECT 1 FROM student_assignments ssa WHERE ssa.assignment_id = a.id AND ssa.instance_date IS NULL AND ssa.student_id = $%d)`, len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("a.category = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("(a.due_date >= $%d OR (a.is_recurring AND (a.recurrence_end_date IS NULL OR a.recurrence_end_date >= $%d)))", len(args), len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("a.due_date <= $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns a page of assignments with the total count.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	if !validFilterIDs(filter.CreatedBy, filter.ParentID, filter.StudentID) {
		return []models.Assignment{}, 0, nil
	}
	where, args := buildAssignmentWhere(filter)
	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM assignments a%s ORDER BY a.due_date ASC, a.created_at ASC LIMIT %d OFFSET %d", assignmentColumns, where, size, (page-1)*size)

	var items []models.Assignment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM assignments a"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	if err := r.attachAssignees(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListAll returns every assignment matching the filter, ignoring pagination.
func (r *AssignmentRepository) ListAll(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	if !validFilterIDs(filter.CreatedBy, filter.ParentID, filter.StudentID) {
		return []models.Assignment{}, nil
	}
	where, args := buildAssignmentWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM assignments a%s ORDER BY a.due_date ASC, a.created_at ASC", assignmentColumns, where)

	var items []models.Assignment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list all assignments: %w", err)
	}
	if err := r.attachAssignees(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID returns an assignment with its assignee ids.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if !validID(id) {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments a WHERE a.id = $1`
	var item models.Assignment
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	items := []models.Assignment{item}
	if err := r.attachAssignees(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (r *AssignmentRepository) attachAssignees(ctx context.Context, items []models.Assignment) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
		items[i].StudentIDs = []string{}
	}
	var rows []struct {
		AssignmentID string `db:"assignment_id"`
		StudentID    string `db:"student_id"`
	}
	const query = `SELECT assignment_id, student_id FROM student_assignments WHERE instance_date IS NULL AND assignment_id = ANY($1) ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load assignees: %w", err)
	}
	index := make(map[string]int, len(items))
	for i := range items {
		index[items[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := index[row.AssignmentID]; ok {
			items[i].StudentIDs = append(items[i].StudentIDs, row.StudentID)
		}
	}
	return nil
}

// Create inserts the assignment and one base completion record per assignee.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) (err error) {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create assignment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO assignments (id, created_by, title, content, links, due_date, is_recurring, recurrence_pattern, recurrence_end_date, category, created_at, updated_at)
VALUES (:id, :created_by, :title, :content, :links, :due_date, :is_recurring, :recurrence_pattern, :recurrence_end_date, :category, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, assignment); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	if err = insertAssignees(ctx, tx, assignment.ID, assignment.StudentIDs, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create assignment: %w", err)
	}
	return nil
}

// Update rewrites the assignment and replaces its assignee set. Students no
// longer assigned lose all their records; retained students keep theirs.
func (r *AssignmentRepository) Update(ctx context.Context, assignment *models.Assignment) (err error) {
	now := time.Now().UTC()
	assignment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update assignment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE assignments SET title = :title, content = :content, links = :links, due_date = :due_date, is_recurring = :is_recurring,
recurrence_pattern = :recurrence_pattern, recurrence_end_date = :recurrence_end_date, category = :category, updated_at = :updated_at WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, updateQuery, assignment)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	keep := assignment.StudentIDs
	if keep == nil {
		keep = []string{}
	}
	const pruneQuery = `DELETE FROM student_assignments WHERE assignment_id = $1 AND NOT (student_id = ANY($2))`
	if _, err = tx.ExecContext(ctx, pruneQuery, assignment.ID, pq.Array(keep)); err != nil {
		return fmt.Errorf("prune assignees: %w", err)
	}
	if err = insertAssignees(ctx, tx, assignment.ID, assignment.StudentIDs, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update assignment: %w", err)
	}
	return nil
}

func insertAssignees(ctx context.Context, tx *sqlx.Tx, assignmentID string, studentIDs []string, now time.Time) error {
	const query = `INSERT INTO student_assignments (id, assignment_id, student_id, instance_date, completed, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, NULL, FALSE, NULL, $4, $4)
ON CONFLICT (assignment_id, student_id) WHERE instance_date IS NULL DO NOTHING`
	for _, studentID := range studentIDs {
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), assignmentID, studentID, now); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
				return fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
			}
			return fmt.Errorf("insert assignee %s: %w", studentID, err)
		}
	}
	return nil
}

// Delete removes an assignment and every completion record attached to it.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete assignment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM student_assignments WHERE assignment_id = $1`, id); err != nil {
		return fmt.Errorf("delete assignment completions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete assignment: %w", err)
	}
	return nil
}
