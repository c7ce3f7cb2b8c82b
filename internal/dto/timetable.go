package dto

// GenerateRequest triggers the generator, per spec §6's
// generate(seed, num_versions, max_retries) operation. Every field is
// optional; zero values fall back to the configured scheduler defaults.
type GenerateRequest struct {
	Seed        int64 `json:"seed" validate:"omitempty,min=1"`
	NumVersions int   `json:"num_versions" validate:"omitempty,min=1,max=16"`
	MaxRetries  int   `json:"max_retries" validate:"omitempty,min=1,max=500"`
}

// EntryInput is the wire shape of one Entry used by ValidateRequest.
type EntryInput struct {
	ID        string `json:"id" validate:"required"`
	ClassID   int64  `json:"class_id" validate:"required"`
	SubjectID int64  `json:"subject_id" validate:"required"`
	TeacherID int64  `json:"teacher_id" validate:"required"`
	RoomID    int64  `json:"room_id" validate:"required"`
	SlotID    int64  `json:"slot_id" validate:"required"`
	IsLocked  bool   `json:"is_locked"`
}

// ValidateRequest asks the Conflict Detector to check an arbitrary entry set.
type ValidateRequest struct {
	Entries []EntryInput `json:"entries" validate:"required,min=1,dive"`
}

// SuggestQuery bounds how many alternates the Suggester returns.
type SuggestQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=50"`
}

// MoveRequest relocates one entry to a new slot.
type MoveRequest struct {
	NewSlotID int64 `json:"new_slot_id" validate:"required"`
}

// CandidateSummary is one generated candidate's outward-facing result.
type CandidateSummary struct {
	VersionID     string  `json:"version_id"`
	Status        string  `json:"status"`
	Score         float64 `json:"score"`
	EntryCount    int     `json:"entry_count"`
	ConflictCount int     `json:"conflict_count"`
	Active        bool    `json:"active"`
}

// GenerateResponse reports every candidate produced by one generate() call.
type GenerateResponse struct {
	Candidates []CandidateSummary `json:"candidates"`
	ActiveID   string             `json:"active_version_id,omitempty"`
}

// ValidateResponse reports the violations found, if any.
type ValidateResponse struct {
	Violations []ViolationOutput `json:"violations"`
}

// ViolationOutput mirrors models.Violation for API stability independent of
// the internal representation.
type ViolationOutput struct {
	Kind         string   `json:"kind"`
	Message      string   `json:"message"`
	OffendingIDs []string `json:"offending_entry_ids"`
}

// MoveResponse reports the outcome of a move attempt.
type MoveResponse struct {
	Accepted   bool              `json:"accepted"`
	Violations []ViolationOutput `json:"violations,omitempty"`
	Alternates []AlternateOutput `json:"alternates,omitempty"`
}

// AlternateOutput mirrors models.AlternateSlot.
type AlternateOutput struct {
	SlotID int64  `json:"slot_id"`
	Day    int    `json:"day_of_week"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// SubstituteCandidate is one teacher free to cover an absent-marked entry.
type SubstituteCandidate struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SubstituteNeeded is one entry whose assigned teacher is marked unavailable
// for its slot, with the teachers free to cover it.
type SubstituteNeeded struct {
	EntryID              string                 `json:"entry_id"`
	AbsentTeacherID      int64                  `json:"absent_teacher_id"`
	AbsentTeacherName    string                 `json:"absent_teacher_name"`
	ClassName            string                 `json:"class_name"`
	SubjectName          string                 `json:"subject_name"`
	Day                  int                    `json:"day_of_week"`
	Start                string                 `json:"start"`
	End                  string                 `json:"end"`
	AvailableSubstitutes []SubstituteCandidate  `json:"available_substitutes"`
}

// AssignSubstituteRequest names the replacement teacher for one entry.
type AssignSubstituteRequest struct {
	SubstituteTeacherID int64 `json:"substitute_teacher_id" validate:"required"`
}
