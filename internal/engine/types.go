package engine

import "github.com/classgrid/timetable-engine/internal/models"

// EntryDraft is an engine-internal placement before it has been assigned a
// persistent ID or version. The service layer materialises these into
// models.Entry rows at persist time.
type EntryDraft struct {
	ClassID   int64
	SubjectID int64
	TeacherID int64
	RoomID    int64
	SlotID    int64
}

// Candidate is the result of one generator attempt, per spec §4.8's
// building -> placed|failed -> scored -> active|inactive lifecycle. The
// engine only ever returns placed/failed; GenerateCandidate leaves Score and
// Violations unset, and scoring and activation are done by the caller.
type Candidate struct {
	Seed       int64
	Status     string
	Entries    []EntryDraft
	Violations []models.Violation
	Score      float64
	Attempts   int
	Reason     string
}
