package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/classgrid/timetable-engine/internal/engine"
)

// InstanceRepository provides the read-only listing views the Instance
// Loader needs: classes, subjects, teachers, rooms, teacher-subject
// mappings, slots and availability overrides. None of these tables are
// mutated by the generator; they are owned by the surrounding
// school-administration system.
type InstanceRepository struct {
	db *sqlx.DB
}

// NewInstanceRepository creates an InstanceRepository.
func NewInstanceRepository(db *sqlx.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// LoadSnapshot reads every instance-defining table and returns a raw
// snapshot ready for engine.NewInstance.
func (r *InstanceRepository) LoadSnapshot(ctx context.Context) (engine.InstanceData, error) {
	var data engine.InstanceData

	if err := r.db.SelectContext(ctx, &data.Classes, `SELECT id, name, student_strength FROM classes ORDER BY id`); err != nil {
		return data, fmt.Errorf("list classes: %w", err)
	}
	if err := r.db.SelectContext(ctx, &data.Subjects, `SELECT id, class_id, name, lectures_per_week, is_lab, priority_morning FROM subjects ORDER BY id`); err != nil {
		return data, fmt.Errorf("list subjects: %w", err)
	}
	if err := r.db.SelectContext(ctx, &data.Teachers, `SELECT id, name, max_lectures_per_day FROM teachers ORDER BY id`); err != nil {
		return data, fmt.Errorf("list teachers: %w", err)
	}
	if err := r.db.SelectContext(ctx, &data.Rooms, `SELECT id, name, capacity, room_type FROM rooms ORDER BY id`); err != nil {
		return data, fmt.Errorf("list rooms: %w", err)
	}
	if err := r.db.SelectContext(ctx, &data.TeacherSubjects, `SELECT teacher_id, subject_id FROM teacher_subjects ORDER BY subject_id, teacher_id`); err != nil {
		return data, fmt.Errorf("list teacher subjects: %w", err)
	}
	if err := r.db.SelectContext(ctx, &data.Slots, `SELECT id, day_of_week, slot_order, is_break, start_time, end_time FROM time_slots ORDER BY day_of_week, slot_order`); err != nil {
		return data, fmt.Errorf("list time slots: %w", err)
	}
	if err := r.db.SelectContext(ctx, &data.Availability, `SELECT teacher_id, slot_id, available FROM teacher_availability WHERE available = FALSE`); err != nil {
		return data, fmt.Errorf("list availability: %w", err)
	}

	return data, nil
}
