package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classgrid/timetable-engine/internal/models"
)

func TestCreateVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_versions")).WillReturnResult(sqlmock.NewResult(1, 1))

	v := &models.ScheduleVersion{Name: "candidate-1", Score: 95.5, Status: models.VersionStatusScored}
	err := repo.CreateVersion(context.Background(), db, v)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_versions SET is_active = FALSE")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_versions SET is_active = TRUE")).WithArgs("v1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ActivateVersion(context.Background(), "v1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateVersionNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_versions SET is_active = FALSE")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_versions SET is_active = TRUE")).WithArgs("missing", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ActivateVersion(context.Background(), "missing")
	assert.Error(t, err)
}

func TestBulkCreateEntries(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_entries")).WillReturnResult(sqlmock.NewResult(0, 2))

	entries := []models.Entry{
		{VersionID: "v1", ClassID: 1, SubjectID: 1, TeacherID: 1, RoomID: 1, SlotID: 1},
		{VersionID: "v1", ClassID: 1, SubjectID: 1, TeacherID: 1, RoomID: 1, SlotID: 2},
	}
	err := repo.BulkCreateEntries(context.Background(), db, entries)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkCreateEntriesEmpty(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	err := repo.BulkCreateEntries(context.Background(), db, nil)
	require.NoError(t, err)
}

func TestFindEntryByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE id = $1")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "class_id", "subject_id", "teacher_id", "room_id", "slot_id", "is_locked"}).
			AddRow("e1", "v1", 1, 1, 1, 1, 1, true))

	entry, err := repo.FindEntryByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, entry.IsLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEntrySlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_entries SET slot_id = $2 WHERE id = $1")).
		WithArgs("e1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateEntrySlot(context.Background(), "e1", 5)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEntryTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_entries SET teacher_id = $2 WHERE id = $1")).
		WithArgs("e1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateEntryTeacher(context.Background(), "e1", 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE is_active = TRUE LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "score", "is_active", "status", "seed", "meta", "created_at", "updated_at"}).
			AddRow("v1", "candidate-1", 88.0, true, models.VersionStatusScored, 1, nil, now, now))

	v, err := repo.FindActiveVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveVersionNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE is_active = TRUE LIMIT 1")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveVersion(context.Background())
	assert.Error(t, err)
}

func TestCreateConflictLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conflict_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.ConflictLog{VersionID: "v1", Kind: models.ConflictLogSuccess, Message: "ok", CreatedAt: time.Now()}
	err := repo.CreateConflictLog(context.Background(), db, log)
	require.NoError(t, err)
	assert.NotEmpty(t, log.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListConflictLogs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, version_id, kind, message, created_at FROM conflict_logs WHERE version_id = $1 ORDER BY created_at DESC")).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "kind", "message", "created_at"}).
			AddRow("c1", "v1", models.ConflictLogSuccess, "ok", time.Now()))

	logs, err := repo.ListConflictLogs(context.Background(), "v1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
