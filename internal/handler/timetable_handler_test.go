package handler

import (
	"bytes"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classgrid/timetable-engine/internal/models"
	"github.com/classgrid/timetable-engine/internal/repository"
	"github.com/classgrid/timetable-engine/internal/service"
	"github.com/classgrid/timetable-engine/pkg/config"
)

func newTimetableMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func newTestTimetableHandler(t *testing.T) (*TimetableHandler, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := newTimetableMock(t)
	logger := zap.NewNop()
	timetableSvc := service.NewTimetableService(
		repository.NewInstanceRepository(db),
		repository.NewTimetableRepository(db),
		nil,
		logger,
		config.SchedulerConfig{SuggestionLimit: 3},
	)
	reportSvc := service.NewReportService(timetableSvc, nil, nil, logger, config.ReportsConfig{})
	h := NewTimetableHandler(timetableSvc, reportSvc, validator.New())
	return h, mock, cleanup
}

func TestTimetableValidateBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, cleanup := newTestTimetableHandler(t)
	defer cleanup()

	req, _ := http.NewRequest(http.MethodPost, "/timetable/validate", bytes.NewReader([]byte(`{"entries":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Validate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableValidateRequiresEntries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, cleanup := newTestTimetableHandler(t)
	defer cleanup()

	req, _ := http.NewRequest(http.MethodPost, "/timetable/validate", bytes.NewReader([]byte(`{"entries":[]}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Validate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableMoveLockedReturnsForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock, cleanup := newTestTimetableHandler(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE id = \\$1").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "class_id", "subject_id", "teacher_id", "room_id", "slot_id", "is_locked"}).
			AddRow("e1", "v1", 1, 1, 1, 1, 1, true))

	req, _ := http.NewRequest(http.MethodPost, "/timetable/entries/e1/move", bytes.NewReader([]byte(`{"new_slot_id":2}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "entry_id", Value: "e1"}}

	h.Move(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableActivateNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock, cleanup := newTestTimetableHandler(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	req, _ := http.NewRequest(http.MethodPost, "/timetable/versions/missing/activate", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "version_id", Value: "missing"}}

	h.Activate(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableReportCSVDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock, cleanup := newTestTimetableHandler(t)
	defer cleanup()

	expectValidHandlerSnapshot(mock)
	now := time.Now()
	mock.ExpectQuery("SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "score", "is_active", "status", "seed", "meta", "created_at", "updated_at"}).
			AddRow("v1", "candidate-1", 88.0, true, models.VersionStatusScored, 1, nil, now, now))
	mock.ExpectQuery("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE version_id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "class_id", "subject_id", "teacher_id", "room_id", "slot_id", "is_locked"}))
	mock.ExpectQuery("SELECT id, version_id, kind, message, created_at FROM conflict_logs WHERE version_id = \\$1").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "kind", "message", "created_at"}))

	req, _ := http.NewRequest(http.MethodGet, "/timetable/versions/v1/report.csv", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "version_id", Value: "v1"}}

	h.ReportCSV(c)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestAssignSubstituteBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, cleanup := newTestTimetableHandler(t)
	defer cleanup()

	req, _ := http.NewRequest(http.MethodPost, "/timetable/entries/e1/substitute", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "entry_id", Value: "e1"}}

	h.AssignSubstitute(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignSubstituteNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock, cleanup := newTestTimetableHandler(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	req, _ := http.NewRequest(http.MethodPost, "/timetable/entries/missing/substitute", bytes.NewReader([]byte(`{"substitute_teacher_id":2}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "entry_id", Value: "missing"}}

	h.AssignSubstitute(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectValidHandlerSnapshot(mock sqlmock.Sqlmock) {
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
