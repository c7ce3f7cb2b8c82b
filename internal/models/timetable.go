package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RoomType distinguishes the two kinds of teaching space the generator knows about.
type RoomType string

const (
	RoomClassroom RoomType = "classroom"
	RoomLab       RoomType = "lab"
)

// Class is a student group the timetable is built for.
type Class struct {
	ID              int64  `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	StudentStrength int    `db:"student_strength" json:"student_strength"`
}

// Subject is one (class, subject) teaching requirement for the week.
type Subject struct {
	ID               int64  `db:"id" json:"id"`
	ClassID          int64  `db:"class_id" json:"class_id"`
	Name             string `db:"name" json:"name"`
	LecturesPerWeek  int    `db:"lectures_per_week" json:"lectures_per_week"`
	IsLab            bool   `db:"is_lab" json:"is_lab"`
	PriorityMorning  bool   `db:"priority_morning" json:"priority_morning"`
}

// Teacher is a staff member eligible to be assigned entries.
type Teacher struct {
	ID               int64  `db:"id" json:"id"`
	Name             string `db:"name" json:"name"`
	MaxLecturesPerDay int   `db:"max_lectures_per_day" json:"max_lectures_per_day"`
}

// Room is a physical space entries are placed into.
type Room struct {
	ID       int64    `db:"id" json:"id"`
	Name     string   `db:"name" json:"name"`
	Capacity int      `db:"capacity" json:"capacity"`
	RoomType RoomType `db:"room_type" json:"room_type"`
}

// TeacherSubject maps a subject to an eligible teacher. The mapping is
// modeled many-to-many at the storage layer but the generator uses only the
// first row per subject (see DESIGN.md open question on multi-teacher subjects).
type TeacherSubject struct {
	TeacherID int64 `db:"teacher_id" json:"teacher_id"`
	SubjectID int64 `db:"subject_id" json:"subject_id"`
}

// TimeSlot is one cell of the fixed weekly grid.
type TimeSlot struct {
	ID         int64  `db:"id" json:"id"`
	DayOfWeek  int    `db:"day_of_week" json:"day_of_week"`
	SlotOrder  int    `db:"slot_order" json:"slot_order"`
	IsBreak    bool   `db:"is_break" json:"is_break"`
	StartTime  string `db:"start_time" json:"start_time"`
	EndTime    string `db:"end_time" json:"end_time"`
}

// Availability overrides a teacher's default availability for one slot.
// A missing row means the teacher is available.
type Availability struct {
	TeacherID int64 `db:"teacher_id" json:"teacher_id"`
	SlotID    int64 `db:"slot_id" json:"slot_id"`
	Available bool  `db:"available" json:"available"`
}

// ScheduleVersion is one candidate timetable produced by a generator run.
// Meta carries the generation stats (attempt count, rejection reason) that
// don't warrant their own columns.
type ScheduleVersion struct {
	ID        string        `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Score     float64       `db:"score" json:"score"`
	IsActive  bool          `db:"is_active" json:"is_active"`
	Status    string        `db:"status" json:"status"`
	Seed      int64         `db:"seed" json:"seed"`
	Meta      types.JSONText `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Candidate lifecycle states, per spec §4.8.
const (
	VersionStatusBuilding = "building"
	VersionStatusPlaced   = "placed"
	VersionStatusFailed   = "failed"
	VersionStatusScored   = "scored"
)

// Entry is one atomic slot occupancy within a ScheduleVersion. A lab subject
// occupies two Entries sharing class/subject/teacher/room on consecutive
// slot orders of the same day.
type Entry struct {
	ID        string `db:"id" json:"id"`
	VersionID string `db:"version_id" json:"version_id"`
	ClassID   int64  `db:"class_id" json:"class_id"`
	SubjectID int64  `db:"subject_id" json:"subject_id"`
	TeacherID int64  `db:"teacher_id" json:"teacher_id"`
	RoomID    int64  `db:"room_id" json:"room_id"`
	SlotID    int64  `db:"slot_id" json:"slot_id"`
	IsLocked  bool   `db:"is_locked" json:"is_locked"`
}

// Violation records a single invariant breach found by the validator.
type Violation struct {
	Kind          string  `json:"kind"`
	Message       string  `json:"message"`
	OffendingIDs  []string `json:"offending_entry_ids"`
}

// Violation kinds, per spec §4.5.
const (
	ViolationTeacherClash         = "teacher_clash"
	ViolationRoomClash            = "room_clash"
	ViolationClassClash           = "class_clash"
	ViolationSubjectRepeat        = "subject_repeat"
	ViolationRoomCapacityMismatch = "room_capacity_mismatch"
	ViolationTeacherOverload      = "teacher_overload"
	ViolationTeacherUnavailable   = "teacher_unavailable"
	ViolationBreakSlot            = "break_slot"
	// ViolationRoomTypeMismatch and ViolationLabContiguity supplement the
	// explicit Kind examples with checks the §3 invariants and P4/P6
	// properties still require.
	ViolationRoomTypeMismatch = "room_type_mismatch"
	ViolationLabContiguity    = "lab_contiguity"
)

// ConflictLog is an audit record of one generation attempt or validation
// violation, persisted independently of whether the candidate succeeded.
type ConflictLog struct {
	ID        string    `db:"id" json:"id"`
	VersionID string    `db:"version_id" json:"version_id"`
	Kind      string    `db:"kind" json:"kind"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ConflictLog kinds.
const (
	ConflictLogSuccess          = "success"
	ConflictLogGenerationFailed = "generation_failed"
	ConflictLogViolation        = "violation"
)

// AlternateSlot is one candidate target the Suggester offers for a move.
type AlternateSlot struct {
	SlotID int64  `json:"slot_id"`
	Day    int    `json:"day_of_week"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// ReportPayload aggregates a generated schedule into summary counters for
// display, per spec §6 "Outbound from the core".
type ReportPayload struct {
	VersionID           string           `json:"version_id"`
	Score               float64          `json:"score"`
	ConflictCount       int              `json:"conflict_count"`
	TeacherWorkload      map[string]int   `json:"teacher_workload"`
	RoomUsage            map[string]int   `json:"room_usage"`
	SubjectDistribution  map[string]int   `json:"subject_distribution"`
	FreeSlotsByClassDay  map[string]int   `json:"free_slots_by_class_day"`
}
