package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classgrid/timetable-engine/internal/dto"
	"github.com/classgrid/timetable-engine/internal/models"
	"github.com/classgrid/timetable-engine/internal/repository"
	"github.com/classgrid/timetable-engine/pkg/config"
)

func newSQLMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() { db.Close() }
}

func expectValidSnapshot(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT id, name, student_strength FROM classes").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "student_strength"}).AddRow(1, "Class A", 30))
	mock.ExpectQuery("SELECT id, class_id, name, lectures_per_week, is_lab, priority_morning FROM subjects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "name", "lectures_per_week", "is_lab", "priority_morning"}).AddRow(1, 1, "Math", 3, false, false))
	mock.ExpectQuery("SELECT id, name, max_lectures_per_day FROM teachers").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "max_lectures_per_day"}).AddRow(1, "Teacher 1", 6))
	mock.ExpectQuery("SELECT id, name, capacity, room_type FROM rooms").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "room_type"}).AddRow(1, "Room 1", 40, "classroom"))
	mock.ExpectQuery("SELECT teacher_id, subject_id FROM teacher_subjects").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "subject_id"}).AddRow(1, 1))
	mock.ExpectQuery("SELECT id, day_of_week, slot_order, is_break, start_time, end_time FROM time_slots").
		WillReturnRows(sqlmock.NewRows([]string{"id", "day_of_week", "slot_order", "is_break", "start_time", "end_time"}).AddRow(1, 1, 1, false, "09:00", "10:00"))
	mock.ExpectQuery("SELECT teacher_id, slot_id, available FROM teacher_availability").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "slot_id", "available"}))
}

func newTestTimetableService(t *testing.T) (*TimetableService, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := newSQLMock(t)
	logger := zap.NewNop()
	svc := NewTimetableService(
		repository.NewInstanceRepository(db),
		repository.NewTimetableRepository(db),
		nil,
		logger,
		config.SchedulerConfig{SuggestionLimit: 3},
	)
	return svc, mock, cleanup
}

func TestValidateNoViolations(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()
	expectValidSnapshot(mock)

	req := dto.ValidateRequest{Entries: []dto.EntryInput{
		{ID: "e1", ClassID: 1, SubjectID: 1, TeacherID: 1, RoomID: 1, SlotID: 1},
	}}
	resp, err := svc.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Violations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateInstanceInvalid(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, student_strength FROM classes").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "student_strength"}).AddRow(1, "Class A", 30))
	mock.ExpectQuery("SELECT id, class_id, name, lectures_per_week, is_lab, priority_morning FROM subjects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "name", "lectures_per_week", "is_lab", "priority_morning"}))
	mock.ExpectQuery("SELECT id, name, max_lectures_per_day FROM teachers").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "max_lectures_per_day"}))
	mock.ExpectQuery("SELECT id, name, capacity, room_type FROM rooms").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "room_type"}))
	mock.ExpectQuery("SELECT teacher_id, subject_id FROM teacher_subjects").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "subject_id"}))
	mock.ExpectQuery("SELECT id, day_of_week, slot_order, is_break, start_time, end_time FROM time_slots").
		WillReturnRows(sqlmock.NewRows([]string{"id", "day_of_week", "slot_order", "is_break", "start_time", "end_time"}))
	mock.ExpectQuery("SELECT teacher_id, slot_id, available FROM teacher_availability").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "slot_id", "available"}))

	_, err := svc.Validate(context.Background(), dto.ValidateRequest{Entries: []dto.EntryInput{
		{ID: "e1", ClassID: 1, SubjectID: 1, TeacherID: 1, RoomID: 1, SlotID: 1},
	}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveEntryNotFound(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Move(context.Background(), "missing", 2)
	assert.Error(t, err)
}

func TestMoveEntryLocked(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE id = \\$1").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "class_id", "subject_id", "teacher_id", "room_id", "slot_id", "is_locked"}).
			AddRow("e1", "v1", 1, 1, 1, 1, 1, true))

	_, err := svc.Move(context.Background(), "e1", 2)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateNotFound(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := svc.Activate(context.Background(), "missing")
	assert.Error(t, err)
}

func TestActivateFailedVersionRejected(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "score", "is_active", "status", "seed", "meta", "created_at", "updated_at"}).
			AddRow("v1", "candidate-1", 0.0, false, models.VersionStatusFailed, 1, nil, now, now))

	err := svc.Activate(context.Background(), "v1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictLogsWrapsRepository(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT id, version_id, kind, message, created_at FROM conflict_logs WHERE version_id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "kind", "message", "created_at"}).
			AddRow("c1", "v1", models.ConflictLogSuccess, "ok", now))

	logs, err := svc.ConflictLogs(context.Background(), "v1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstitutesNeededNoActiveVersion(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE is_active = TRUE").
		WillReturnError(sql.ErrNoRows)

	needed, err := svc.SubstitutesNeeded(context.Background())
	require.NoError(t, err)
	assert.Empty(t, needed)
}

func TestSubstitutesNeededListsFreeTeachers(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE is_active = TRUE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "score", "is_active", "status", "seed", "meta", "created_at", "updated_at"}).
			AddRow("v1", "candidate-1", 88.0, true, models.VersionStatusScored, 1, nil, now, now))

	mock.ExpectQuery("SELECT id, name, student_strength FROM classes").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "student_strength"}).AddRow(1, "Class A", 30))
	mock.ExpectQuery("SELECT id, class_id, name, lectures_per_week, is_lab, priority_morning FROM subjects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "name", "lectures_per_week", "is_lab", "priority_morning"}).AddRow(1, 1, "Math", 3, false, false))
	mock.ExpectQuery("SELECT id, name, max_lectures_per_day FROM teachers").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "max_lectures_per_day"}).AddRow(1, "Teacher 1", 6).AddRow(2, "Teacher 2", 6))
	mock.ExpectQuery("SELECT id, name, capacity, room_type FROM rooms").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "room_type"}).AddRow(1, "Room 1", 40, "classroom"))
	mock.ExpectQuery("SELECT teacher_id, subject_id FROM teacher_subjects").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "subject_id"}).AddRow(1, 1))
	mock.ExpectQuery("SELECT id, day_of_week, slot_order, is_break, start_time, end_time FROM time_slots").
		WillReturnRows(sqlmock.NewRows([]string{"id", "day_of_week", "slot_order", "is_break", "start_time", "end_time"}).AddRow(1, 1, 1, false, "09:00", "10:00"))
	mock.ExpectQuery("SELECT teacher_id, slot_id, available FROM teacher_availability").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "slot_id", "available"}).AddRow(1, 1, false))

	mock.ExpectQuery("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE version_id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "class_id", "subject_id", "teacher_id", "room_id", "slot_id", "is_locked"}).
			AddRow("e1", "v1", 1, 1, 1, 1, 1, false))

	needed, err := svc.SubstitutesNeeded(context.Background())
	require.NoError(t, err)
	require.Len(t, needed, 1)
	assert.Equal(t, "e1", needed[0].EntryID)
	assert.Equal(t, int64(1), needed[0].AbsentTeacherID)
	require.Len(t, needed[0].AvailableSubstitutes, 1)
	assert.Equal(t, int64(2), needed[0].AvailableSubstitutes[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignSubstituteLocked(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE id = \\$1").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "class_id", "subject_id", "teacher_id", "room_id", "slot_id", "is_locked"}).
			AddRow("e1", "v1", 1, 1, 1, 1, 1, true))

	err := svc.AssignSubstitute(context.Background(), "e1", 2)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildReportPayloadAggregates(t *testing.T) {
	svc, mock, cleanup := newTestTimetableService(t)
	defer cleanup()
	expectValidSnapshot(mock)

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "score", "is_active", "status", "seed", "meta", "created_at", "updated_at"}).
			AddRow("v1", "candidate-1", 88.0, true, models.VersionStatusScored, 1, nil, now, now))
	mock.ExpectQuery("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE version_id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "class_id", "subject_id", "teacher_id", "room_id", "slot_id", "is_locked"}).
			AddRow("e1", "v1", 1, 1, 1, 1, 1, false))
	mock.ExpectQuery("SELECT id, version_id, kind, message, created_at FROM conflict_logs WHERE version_id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "kind", "message", "created_at"}))

	payload, err := svc.Report(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, payload.TeacherWorkload["Teacher 1"])
	assert.Equal(t, 1, payload.RoomUsage["Room 1"])
	assert.Equal(t, 1, payload.SubjectDistribution["Math"])
	assert.Equal(t, 0, payload.ConflictCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
