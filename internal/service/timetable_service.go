package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classgrid/timetable-engine/internal/dto"
	"github.com/classgrid/timetable-engine/internal/engine"
	"github.com/classgrid/timetable-engine/internal/models"
	"github.com/classgrid/timetable-engine/internal/repository"
	"github.com/classgrid/timetable-engine/pkg/config"
	appErrors "github.com/classgrid/timetable-engine/pkg/errors"
)

// generationStats is the JSON shape stored in ScheduleVersion.Meta.
type generationStats struct {
	Attempts       int    `json:"attempts"`
	Reason         string `json:"reason,omitempty"`
	ViolationCount int    `json:"violation_count"`
}

// TimetableService is the surrounding-system boundary around the pure
// engine package: it loads the Instance, fans candidate generation out
// across goroutines, persists results, and exposes validate/suggest/
// move/activate to the HTTP layer.
type TimetableService struct {
	instances  *repository.InstanceRepository
	timetables *repository.TimetableRepository
	cache      *redis.Client
	logger     *zap.Logger
	cfg        config.SchedulerConfig
}

// NewTimetableService creates a TimetableService. cache may be nil, in
// which case Suggest results are computed fresh on every call.
func NewTimetableService(instances *repository.InstanceRepository, timetables *repository.TimetableRepository, cache *redis.Client, logger *zap.Logger, cfg config.SchedulerConfig) *TimetableService {
	return &TimetableService{instances: instances, timetables: timetables, cache: cache, logger: logger, cfg: cfg}
}

func (s *TimetableService) loadInstance(ctx context.Context) (*engine.Instance, error) {
	raw, err := s.instances.LoadSnapshot(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load problem instance")
	}
	inst, issues := engine.NewInstance(raw)
	if issues != nil {
		msgs := make([]string, 0, len(issues))
		for _, issue := range issues {
			msgs = append(msgs, issue.Message)
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "instance invalid: "+strings.Join(msgs, "; "))
	}
	return inst, nil
}

// Generate runs generate(seed, num_versions, max_retries), per spec §6.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResponse, error) {
	inst, err := s.loadInstance(ctx)
	if err != nil {
		return nil, err
	}

	seed := req.Seed
	if seed == 0 {
		seed = s.cfg.Seed
	}
	numVersions := req.NumVersions
	if numVersions == 0 {
		numVersions = s.cfg.NumVersions
	}
	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.cfg.MaxRetries
	}

	candidates := s.runCandidates(ctx, inst, seed, numVersions, maxRetries)

	tx, err := s.timetables.BeginTx(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin persistence transaction")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	summaries := make([]dto.CandidateSummary, 0, len(candidates))
	var bestID string
	var bestScore float64 = -1

	for i, cand := range candidates {
		version := &models.ScheduleVersion{
			Name:   fmt.Sprintf("candidate-%d", i+1),
			Seed:   cand.Seed,
			Status: cand.Status,
		}

		var entries []models.Entry
		var violationCount int
		var score float64

		if cand.Status == models.VersionStatusPlaced {
			entries = materializeEntries(cand.Entries, "")
			violations := engine.Validate(inst, entries)
			violationCount = len(violations)
			score = engine.Score(inst, cand.Entries, violationCount)
			version.Status = models.VersionStatusScored
		}
		version.Score = score
		if meta, err := json.Marshal(generationStats{Attempts: cand.Attempts, Reason: cand.Reason, ViolationCount: violationCount}); err == nil {
			version.Meta = types.JSONText(meta)
		}

		if err := s.timetables.CreateVersion(ctx, tx, version); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist candidate")
		}

		for i := range entries {
			entries[i].VersionID = version.ID
		}
		if err := s.timetables.BulkCreateEntries(ctx, tx, entries); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist entries")
		}

		logKind := models.ConflictLogSuccess
		logMessage := fmt.Sprintf("candidate placed in %d attempts", cand.Attempts)
		if cand.Status != models.VersionStatusPlaced {
			logKind = models.ConflictLogGenerationFailed
			logMessage = cand.Reason
		}
		if err := s.timetables.CreateConflictLog(ctx, tx, &models.ConflictLog{VersionID: version.ID, Kind: logKind, Message: logMessage}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist conflict log")
		}

		if version.Status == models.VersionStatusScored && score >= bestScore {
			bestScore = score
			bestID = version.ID
		}

		summaries = append(summaries, dto.CandidateSummary{
			VersionID:     version.ID,
			Status:        version.Status,
			Score:         score,
			EntryCount:    len(entries),
			ConflictCount: violationCount,
		})

		s.logger.Sugar().Infow("generation attempt complete", "version_id", version.ID, "status", version.Status, "score", score, "attempts", cand.Attempts)
	}

	if bestID == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "all candidates failed to place every item")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit generation")
	}
	committed = true

	if err := s.timetables.ActivateVersion(ctx, bestID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate selected candidate")
	}
	for i := range summaries {
		summaries[i].Active = summaries[i].VersionID == bestID
	}

	return &dto.GenerateResponse{Candidates: summaries, ActiveID: bestID}, nil
}

// runCandidates fans num_versions candidate generations out across
// goroutines bounded by Scheduler.Concurrency, each owning a disjoint
// subseed and its own busy-sets/grid, per spec §5.
func (s *TimetableService) runCandidates(ctx context.Context, inst *engine.Instance, seed int64, numVersions, maxRetries int) []engine.Candidate {
	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	results := make([]engine.Candidate, numVersions)

	var wg sync.WaitGroup
	for i := 0; i < numVersions; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			candCtx := ctx
			var cancel context.CancelFunc
			if s.cfg.CandidateTimeout > 0 {
				candCtx, cancel = context.WithTimeout(ctx, s.cfg.CandidateTimeout)
				defer cancel()
			}
			results[idx] = engine.GenerateCandidate(candCtx, inst, seed+int64(idx), maxRetries)
		}(i)
	}
	wg.Wait()
	return results
}

// Validate runs validate(entries), per spec §6. It never mutates state.
func (s *TimetableService) Validate(ctx context.Context, req dto.ValidateRequest) (*dto.ValidateResponse, error) {
	inst, err := s.loadInstance(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]models.Entry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = models.Entry{ID: e.ID, ClassID: e.ClassID, SubjectID: e.SubjectID, TeacherID: e.TeacherID, RoomID: e.RoomID, SlotID: e.SlotID, IsLocked: e.IsLocked}
	}
	violations := engine.Validate(inst, entries)
	return &dto.ValidateResponse{Violations: toViolationOutputs(violations)}, nil
}

// Suggest runs suggest(version_id, entry_id, limit), per spec §6. Results
// are cached per (version, entry, limit) for Scheduler.ProposalTTL, since
// the entry set underlying a version is immutable between moves.
func (s *TimetableService) Suggest(ctx context.Context, versionID, entryID string, limit int) ([]dto.AlternateOutput, error) {
	if limit <= 0 {
		limit = s.cfg.SuggestionLimit
	}

	cacheKey := fmt.Sprintf("suggest:%s:%s:%d", versionID, entryID, limit)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var cached []dto.AlternateOutput
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return cached, nil
			}
		}
	}

	inst, err := s.loadInstance(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.timetables.ListEntries(ctx, versionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule version not found")
	}
	alternates := engine.Suggest(inst, entries, entryID, limit)
	out := make([]dto.AlternateOutput, len(alternates))
	for i, a := range alternates {
		out[i] = dto.AlternateOutput{SlotID: a.SlotID, Day: a.Day, Start: a.Start, End: a.End}
	}

	if s.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			s.cache.Set(ctx, cacheKey, raw, s.cfg.ProposalTTL) //nolint:errcheck
		}
	}

	return out, nil
}

// Move runs move(entry_id, new_slot_id), per spec §6. A locked entry is
// refused unconditionally; any other rejection is returned as a value
// (Accepted=false) carrying the violations and alternates, never as an
// error, per the §7 "soft failure is a value" policy; the handler sends that
// value with status 409.
func (s *TimetableService) Move(ctx context.Context, entryID string, newSlotID int64) (*dto.MoveResponse, error) {
	entry, err := s.timetables.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "entry not found")
	}
	if entry.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "entry is locked")
	}

	inst, err := s.loadInstance(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.timetables.ListEntries(ctx, entry.VersionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule version not found")
	}

	_, violations, ok := engine.Move(inst, entries, entryID, newSlotID)
	if !ok {
		alternates := engine.Suggest(inst, entries, entryID, s.cfg.SuggestionLimit)
		s.logger.Sugar().Infow("move rejected", "entry_id", entryID, "new_slot_id", newSlotID, "violations", len(violations))
		return &dto.MoveResponse{
			Accepted:   false,
			Violations: toViolationOutputs(violations),
			Alternates: toAlternateOutputs(alternates),
		}, nil
	}

	if err := s.timetables.UpdateEntrySlot(ctx, entryID, newSlotID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist move")
	}
	s.invalidateSuggestCache(ctx, entry.VersionID, entries)
	s.logger.Sugar().Infow("move accepted", "entry_id", entryID, "new_slot_id", newSlotID)
	return &dto.MoveResponse{Accepted: true}, nil
}

// invalidateSuggestCache drops every cached Suggest result for a version's
// entries, since an accepted move changes which slots remain conflict-free
// for every other entry too.
func (s *TimetableService) invalidateSuggestCache(ctx context.Context, versionID string, entries []models.Entry) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, fmt.Sprintf("suggest:%s:%s:*", versionID, e.ID))
	}
	for _, pattern := range keys {
		matched, err := s.cache.Keys(ctx, pattern).Result()
		if err != nil || len(matched) == 0 {
			continue
		}
		s.cache.Del(ctx, matched...) //nolint:errcheck
	}
}

// Activate runs activate(version_id), per spec §6.
func (s *TimetableService) Activate(ctx context.Context, versionID string) error {
	v, err := s.timetables.FindVersionByID(ctx, versionID)
	if err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "schedule version not found")
	}
	if v.Status == models.VersionStatusFailed {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot activate a failed candidate")
	}
	if err := s.timetables.ActivateVersion(ctx, versionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate schedule version")
	}
	s.logger.Sugar().Infow("schedule version activated", "version_id", versionID)
	return nil
}

// SubstitutesNeeded finds every entry of the active schedule version whose
// assigned teacher is marked unavailable for that slot, and lists which
// other teachers are free to cover it, per the original substitute-finder
// workflow.
func (s *TimetableService) SubstitutesNeeded(ctx context.Context) ([]dto.SubstituteNeeded, error) {
	version, err := s.timetables.FindActiveVersion(ctx)
	if err != nil {
		return []dto.SubstituteNeeded{}, nil
	}
	inst, err := s.loadInstance(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.timetables.ListEntries(ctx, version.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}

	busyBySlot := make(map[int64]map[int64]bool)
	for _, e := range entries {
		if busyBySlot[e.SlotID] == nil {
			busyBySlot[e.SlotID] = make(map[int64]bool)
		}
		busyBySlot[e.SlotID][e.TeacherID] = true
	}
	for slotID := range busyBySlot {
		for _, t := range inst.Teachers {
			if !inst.Available(t.ID, slotID) {
				busyBySlot[slotID][t.ID] = true
			}
		}
	}

	needed := make([]dto.SubstituteNeeded, 0)
	for _, e := range entries {
		if inst.Available(e.TeacherID, e.SlotID) {
			continue
		}
		teacher, _ := inst.Teacher(e.TeacherID)
		class, _ := inst.Class(e.ClassID)
		subject, _ := inst.Subject(e.SubjectID)
		slot, _ := inst.Slot(e.SlotID)

		busy := busyBySlot[e.SlotID]
		available := make([]dto.SubstituteCandidate, 0)
		for _, t := range inst.Teachers {
			if t.ID == e.TeacherID || busy[t.ID] {
				continue
			}
			available = append(available, dto.SubstituteCandidate{ID: t.ID, Name: t.Name})
		}

		needed = append(needed, dto.SubstituteNeeded{
			EntryID:              e.ID,
			AbsentTeacherID:      e.TeacherID,
			AbsentTeacherName:    teacher.Name,
			ClassName:            class.Name,
			SubjectName:          subject.Name,
			Day:                  slot.DayOfWeek,
			Start:                slot.StartTime,
			End:                  slot.EndTime,
			AvailableSubstitutes: available,
		})
	}
	return needed, nil
}

// AssignSubstitute reassigns an absent-marked entry's teacher to a
// substitute, per the original substitute-assignment workflow. This is a
// direct, audited replacement, not a new generation run.
func (s *TimetableService) AssignSubstitute(ctx context.Context, entryID string, substituteTeacherID int64) error {
	entry, err := s.timetables.FindEntryByID(ctx, entryID)
	if err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "entry not found")
	}
	if entry.IsLocked {
		return appErrors.Clone(appErrors.ErrForbidden, "entry is locked")
	}

	inst, err := s.loadInstance(ctx)
	if err != nil {
		return err
	}
	if _, ok := inst.Teacher(substituteTeacherID); !ok {
		return appErrors.Clone(appErrors.ErrValidation, "substitute teacher not found")
	}
	if !inst.Available(substituteTeacherID, entry.SlotID) {
		return appErrors.Clone(appErrors.ErrConflict, "substitute teacher is not available for this slot")
	}

	entries, err := s.timetables.ListEntries(ctx, entry.VersionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}
	for _, other := range entries {
		if other.ID != entry.ID && other.SlotID == entry.SlotID && other.TeacherID == substituteTeacherID {
			return appErrors.Clone(appErrors.ErrConflict, "substitute teacher is already teaching another class at this slot")
		}
	}

	if err := s.timetables.UpdateEntryTeacher(ctx, entryID, substituteTeacherID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign substitute")
	}
	s.invalidateSuggestCache(ctx, entry.VersionID, entries)
	s.logger.Sugar().Infow("substitute assigned", "entry_id", entryID, "substitute_teacher_id", substituteTeacherID)
	return nil
}

// ConflictLogs returns the audit trail for one schedule version, newest
// first, supplementing the report payload with per-attempt detail.
func (s *TimetableService) ConflictLogs(ctx context.Context, versionID string) ([]models.ConflictLog, error) {
	logs, err := s.timetables.ListConflictLogs(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict logs")
	}
	return logs, nil
}

// Report builds the per-schedule aggregate payload described in spec §6.
func (s *TimetableService) Report(ctx context.Context, versionID string) (*models.ReportPayload, error) {
	inst, err := s.loadInstance(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.timetables.FindVersionByID(ctx, versionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule version not found")
	}
	entries, err := s.timetables.ListEntries(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}
	logs, err := s.timetables.ListConflictLogs(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict logs")
	}

	return buildReportPayload(inst, version, entries, logs), nil
}

func buildReportPayload(inst *engine.Instance, version *models.ScheduleVersion, entries []models.Entry, logs []models.ConflictLog) *models.ReportPayload {
	payload := &models.ReportPayload{
		VersionID:           version.ID,
		Score:               version.Score,
		TeacherWorkload:     make(map[string]int),
		RoomUsage:           make(map[string]int),
		SubjectDistribution: make(map[string]int),
		FreeSlotsByClassDay: make(map[string]int),
	}

	usedByClassDay := make(map[string]int)
	for _, e := range entries {
		if t, ok := inst.Teacher(e.TeacherID); ok {
			payload.TeacherWorkload[t.Name]++
		}
		if r, ok := inst.Room(e.RoomID); ok {
			payload.RoomUsage[r.Name]++
		}
		if subj, ok := inst.Subject(e.SubjectID); ok {
			payload.SubjectDistribution[subj.Name]++
		}
		if slot, ok := inst.Slot(e.SlotID); ok {
			key := fmt.Sprintf("%d:%d", e.ClassID, slot.DayOfWeek)
			usedByClassDay[key]++
		}
	}

	for _, class := range inst.Classes {
		for _, day := range workingDaysOf(inst) {
			total := 0
			for _, slot := range inst.SlotsForDay(day) {
				if !slot.IsBreak {
					total++
				}
			}
			key := fmt.Sprintf("%d:%d", class.ID, day)
			payload.FreeSlotsByClassDay[key] = total - usedByClassDay[key]
		}
	}

	for _, log := range logs {
		if log.Kind == models.ConflictLogViolation || log.Kind == models.ConflictLogGenerationFailed {
			payload.ConflictCount++
		}
	}

	return payload
}

func workingDaysOf(inst *engine.Instance) []int {
	seen := make(map[int]bool)
	for _, sl := range inst.Slots {
		if !sl.IsBreak {
			seen[sl.DayOfWeek] = true
		}
	}
	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	return days
}

func materializeEntries(drafts []engine.EntryDraft, versionID string) []models.Entry {
	entries := make([]models.Entry, len(drafts))
	for i, d := range drafts {
		entries[i] = models.Entry{
			VersionID: versionID,
			ClassID:   d.ClassID,
			SubjectID: d.SubjectID,
			TeacherID: d.TeacherID,
			RoomID:    d.RoomID,
			SlotID:    d.SlotID,
		}
	}
	return entries
}

func toViolationOutputs(violations []models.Violation) []dto.ViolationOutput {
	out := make([]dto.ViolationOutput, len(violations))
	for i, v := range violations {
		out[i] = dto.ViolationOutput{Kind: v.Kind, Message: v.Message, OffendingIDs: v.OffendingIDs}
	}
	return out
}

func toAlternateOutputs(alternates []models.AlternateSlot) []dto.AlternateOutput {
	out := make([]dto.AlternateOutput, len(alternates))
	for i, a := range alternates {
		out[i] = dto.AlternateOutput{SlotID: a.SlotID, Day: a.Day, Start: a.Start, End: a.End}
	}
	return out
}
