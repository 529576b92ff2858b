package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
)

var completionRowColumns = []string{"id", "assignment_id", "student_id", "instance_date", "completed", "completed_at", "created_at", "updated_at"}

func TestCompletionUpsertTargetsBaseRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO student_assignments .* ON CONFLICT \(assignment_id, student_id\) WHERE instance_date IS NULL DO UPDATE`).
		WillReturnRows(sqlmock.NewRows(completionRowColumns).AddRow("sa-1", "a-1", "kid-1", nil, true, now, now, now))

	record := &models.StudentAssignment{AssignmentID: "a-1", StudentID: "kid-1", Completed: true, CompletedAt: &now}
	require.NoError(t, repo.Upsert(context.Background(), record))
	assert.Equal(t, "sa-1", record.ID)
	assert.Nil(t, record.InstanceDate)
	assert.True(t, record.Completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionUpsertTargetsInstanceRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	now := time.Now().UTC()
	instance := calendar.MustParse("2024-06-03")
	mock.ExpectQuery(`ON CONFLICT \(assignment_id, student_id, instance_date\) WHERE instance_date IS NOT NULL DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "a-1", "kid-1", "2024-06-03", false, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(completionRowColumns).AddRow("sa-2", "a-1", "kid-1", "2024-06-03", false, nil, now, now))

	record := &models.StudentAssignment{AssignmentID: "a-1", StudentID: "kid-1", InstanceDate: &instance}
	require.NoError(t, repo.Upsert(context.Background(), record))
	require.NotNil(t, record.InstanceDate)
	assert.Equal(t, instance, *record.InstanceDate)
	assert.Nil(t, record.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionListByStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM student_assignments WHERE student_id = \$1 AND assignment_id = ANY\(\$2\) ORDER BY instance_date ASC NULLS FIRST`).
		WithArgs("kid-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(completionRowColumns).
			AddRow("sa-1", "a-1", "kid-1", nil, false, nil, now, now).
			AddRow("sa-2", "a-1", "kid-1", "2024-06-03", true, now, now, now))

	records, err := repo.ListByStudent(context.Background(), "kid-1", []string{"a-1"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].InstanceDate)
	assert.Equal(t, "2024-06-03", records[1].InstanceDate.String())

	mock.ExpectQuery(`FROM student_assignments WHERE student_id = \$1 ORDER BY`).
		WithArgs("kid-1").
		WillReturnRows(sqlmock.NewRows(completionRowColumns))
	records, err = repo.ListByStudent(context.Background(), "kid-1", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
