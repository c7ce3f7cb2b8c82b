package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSnapshot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, student_strength FROM classes ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "student_strength"}).AddRow(1, "Class A", 30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_id, name, lectures_per_week, is_lab, priority_morning FROM subjects ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "name", "lectures_per_week", "is_lab", "priority_morning"}).AddRow(1, 1, "Math", 3, false, false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, max_lectures_per_day FROM teachers ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "max_lectures_per_day"}).AddRow(1, "Teacher 1", 6))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, capacity, room_type FROM rooms ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "room_type"}).AddRow(1, "Room 1", 40, "classroom"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id, subject_id FROM teacher_subjects ORDER BY subject_id, teacher_id")).
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "subject_id"}).AddRow(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, day_of_week, slot_order, is_break, start_time, end_time FROM time_slots ORDER BY day_of_week, slot_order")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "day_of_week", "slot_order", "is_break", "start_time", "end_time"}).AddRow(1, 1, 1, false, "09:00", "10:00"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id, slot_id, available FROM teacher_availability WHERE available = FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "slot_id", "available"}))

	data, err := repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Classes, 1)
	assert.Len(t, data.Subjects, 1)
	assert.Len(t, data.Teachers, 1)
	assert.Len(t, data.Rooms, 1)
	assert.Len(t, data.TeacherSubjects, 1)
	assert.Len(t, data.Slots, 1)
	assert.Empty(t, data.Availability)
	assert.NoError(t, mock.ExpectationsWereMet())
}
