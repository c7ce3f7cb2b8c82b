package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classgrid/timetable-engine/internal/models"
)

// TimetableRepository persists ScheduleVersions, their Entries, and the
// generation ConflictLog. Reads may run against the pool; the write paths
// accept an sqlx.ExtContext so the service layer can fold several writes
// (version + entries + conflict log) into one transaction.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a TimetableRepository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// BeginTx starts a transaction for callers that need to persist a version,
// its entries, and a conflict log entry atomically.
func (r *TimetableRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

// CreateVersion inserts a new ScheduleVersion row.
func (r *TimetableRepository) CreateVersion(ctx context.Context, exec sqlx.ExtContext, v *models.ScheduleVersion) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	const query = `INSERT INTO schedule_versions (id, name, score, is_active, status, seed, meta, created_at, updated_at)
		VALUES (:id, :name, :score, :is_active, :status, :seed, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, v); err != nil {
		return fmt.Errorf("create schedule version: %w", err)
	}
	return nil
}

// ActivateVersion clears every other version's active flag and sets this
// one, inside a single transaction, per the spec §5 Selector serialization
// requirement and P10.
func (r *TimetableRepository) ActivateVersion(ctx context.Context, versionID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE schedule_versions SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE`, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear active versions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE schedule_versions SET is_active = TRUE, updated_at = $2 WHERE id = $1`, versionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set active version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check activate result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// FindVersionByID returns a single schedule version.
func (r *TimetableRepository) FindVersionByID(ctx context.Context, id string) (*models.ScheduleVersion, error) {
	var v models.ScheduleVersion
	const query = `SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE id = $1`
	if err := r.db.GetContext(ctx, &v, query, id); err != nil {
		return nil, fmt.Errorf("find schedule version: %w", err)
	}
	return &v, nil
}

// ListVersions returns every schedule version, newest first, matching the
// Selector's tie-break rule.
func (r *TimetableRepository) ListVersions(ctx context.Context) ([]models.ScheduleVersion, error) {
	var versions []models.ScheduleVersion
	const query = `SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &versions, query); err != nil {
		return nil, fmt.Errorf("list schedule versions: %w", err)
	}
	return versions, nil
}

// FindActiveVersion returns the one schedule version currently flagged
// active, if any.
func (r *TimetableRepository) FindActiveVersion(ctx context.Context) (*models.ScheduleVersion, error) {
	var v models.ScheduleVersion
	const query = `SELECT id, name, score, is_active, status, seed, meta, created_at, updated_at FROM schedule_versions WHERE is_active = TRUE LIMIT 1`
	if err := r.db.GetContext(ctx, &v, query); err != nil {
		return nil, fmt.Errorf("find active schedule version: %w", err)
	}
	return &v, nil
}

// BulkCreateEntries inserts every entry of a freshly placed candidate in one
// batched statement.
func (r *TimetableRepository) BulkCreateEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
	}
	const query = `INSERT INTO schedule_entries (id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked)
		VALUES (:id, :version_id, :class_id, :subject_id, :teacher_id, :room_id, :slot_id, :is_locked)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, entries); err != nil {
		return fmt.Errorf("bulk create entries: %w", err)
	}
	return nil
}

// ListEntries returns every entry of a schedule version.
func (r *TimetableRepository) ListEntries(ctx context.Context, versionID string) ([]models.Entry, error) {
	var entries []models.Entry
	const query = `SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE version_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &entries, query, versionID); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// FindEntryByID returns a single entry, used to check the is_locked guard
// before a move.
func (r *TimetableRepository) FindEntryByID(ctx context.Context, id string) (*models.Entry, error) {
	var e models.Entry
	const query = `SELECT id, version_id, class_id, subject_id, teacher_id, room_id, slot_id, is_locked FROM schedule_entries WHERE id = $1`
	if err := r.db.GetContext(ctx, &e, query, id); err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	return &e, nil
}

// UpdateEntrySlot commits an accepted move.
func (r *TimetableRepository) UpdateEntrySlot(ctx context.Context, id string, slotID int64) error {
	const query = `UPDATE schedule_entries SET slot_id = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, slotID); err != nil {
		return fmt.Errorf("update entry slot: %w", err)
	}
	return nil
}

// UpdateEntryTeacher reassigns an entry to a substitute teacher.
func (r *TimetableRepository) UpdateEntryTeacher(ctx context.Context, id string, teacherID int64) error {
	const query = `UPDATE schedule_entries SET teacher_id = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, teacherID); err != nil {
		return fmt.Errorf("update entry teacher: %w", err)
	}
	return nil
}

// CreateConflictLog records one generation attempt or validation violation.
func (r *TimetableRepository) CreateConflictLog(ctx context.Context, exec sqlx.ExtContext, log *models.ConflictLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO conflict_logs (id, version_id, kind, message, created_at) VALUES (:id, :version_id, :kind, :message, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, log); err != nil {
		return fmt.Errorf("create conflict log: %w", err)
	}
	return nil
}

// ListConflictLogs returns the audit trail for one schedule version, newest
// first.
func (r *TimetableRepository) ListConflictLogs(ctx context.Context, versionID string) ([]models.ConflictLog, error) {
	var logs []models.ConflictLog
	const query = `SELECT id, version_id, kind, message, created_at FROM conflict_logs WHERE version_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &logs, query, versionID); err != nil {
		return nil, fmt.Errorf("list conflict logs: %w", err)
	}
	return logs, nil
}
