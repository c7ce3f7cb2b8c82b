package engine

import (
	"context"
	"math/rand"

	"github.com/classgrid/timetable-engine/internal/models"
)

// busyKey is a (resource_id, slot_id) occupancy key shared by the teacher
// and room busy-sets.
type busyKey [2]int64

type searchState struct {
	ctx         context.Context
	inst        *Instance
	grid        *Grid
	rng         *rand.Rand
	teacherBusy map[busyKey]bool
	roomBusy    map[busyKey]bool
}

// place attempts to seat items[idx:] into the grid, backtracking on
// failure. It returns false (triggering a backtrack one level up) the
// moment no block accepts the current item.
func (s *searchState) place(items []Item, idx int) bool {
	if s.ctx != nil && s.ctx.Err() != nil {
		return false
	}
	if idx == len(items) {
		return true
	}

	item := items[idx]
	teacherID, ok := s.inst.TeacherOf(item.SubjectID)
	if !ok {
		// InstanceInvalid issues are caught at load time; reaching here means
		// the instance changed underneath the run, so abort this candidate.
		return false
	}

	for _, block := range s.grid.emptyBlocksFor(item.ClassID, item.Kind, s.rng) {
		if s.grid.placedSubjectsOnDay(item.ClassID, block.Day)[item.SubjectID] {
			continue
		}

		slotIDs := block.SlotIDs(s.inst)
		if len(slotIDs) != len(block.Orders) {
			continue
		}

		teacherFree := true
		for _, sid := range slotIDs {
			if !s.inst.Available(teacherID, sid) || s.teacherBusy[busyKey{teacherID, sid}] {
				teacherFree = false
				break
			}
		}
		if !teacherFree {
			continue
		}

		roomID, found := s.pickRoom(item, slotIDs)
		if !found {
			continue
		}

		block.Filled = true
		block.SubjectID = item.SubjectID
		block.TeacherID = teacherID
		block.RoomID = roomID
		for _, sid := range slotIDs {
			s.teacherBusy[busyKey{teacherID, sid}] = true
			s.roomBusy[busyKey{roomID, sid}] = true
		}

		if s.place(items, idx+1) {
			return true
		}

		block.Filled = false
		block.SubjectID = 0
		block.TeacherID = 0
		block.RoomID = 0
		for _, sid := range slotIDs {
			delete(s.teacherBusy, busyKey{teacherID, sid})
			delete(s.roomBusy, busyKey{roomID, sid})
		}
	}

	return false
}

// pickRoom restricts the room pool to the item's required type and the
// class's capacity need, shuffles it, and returns the first room free
// across every slot the block occupies.
func (s *searchState) pickRoom(item Item, slotIDs []int64) (int64, bool) {
	class, ok := s.inst.Class(item.ClassID)
	if !ok {
		return 0, false
	}

	wantType := models.RoomClassroom
	if item.Kind == ItemLab {
		wantType = models.RoomLab
	}

	var candidates []models.Room
	for _, r := range s.inst.Rooms {
		if r.RoomType == wantType && r.Capacity >= class.StudentStrength {
			candidates = append(candidates, r)
		}
	}
	s.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	for _, r := range candidates {
		free := true
		for _, sid := range slotIDs {
			if s.roomBusy[busyKey{r.ID, sid}] {
				free = false
				break
			}
		}
		if free {
			return r.ID, true
		}
	}
	return 0, false
}

// exportEntries flattens every filled block into one-slot-wide drafts.
func (g *Grid) exportEntries(inst *Instance) []EntryDraft {
	var out []EntryDraft
	for _, b := range g.Blocks {
		if !b.Filled {
			continue
		}
		for _, sid := range b.SlotIDs(inst) {
			out = append(out, EntryDraft{
				ClassID:   b.ClassID,
				SubjectID: b.SubjectID,
				TeacherID: b.TeacherID,
				RoomID:    b.RoomID,
				SlotID:    sid,
			})
		}
	}
	return out
}

// GenerateCandidate runs the backtracking search for one candidate,
// retrying with a freshly shuffled demand/grid up to maxRetries times before
// recording the candidate as failed, per spec §4.4's retry policy.
func GenerateCandidate(ctx context.Context, inst *Instance, seed int64, maxRetries int) Candidate {
	rng := rand.New(rand.NewSource(seed))

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx != nil && ctx.Err() != nil {
			return Candidate{Seed: seed, Status: models.VersionStatusFailed, Attempts: attempt, Reason: "cancelled"}
		}

		items := ExpandDemand(inst, rng)
		grid := BuildGrid(inst, rng)
		state := &searchState{
			ctx:         ctx,
			inst:        inst,
			grid:        grid,
			rng:         rng,
			teacherBusy: make(map[busyKey]bool),
			roomBusy:    make(map[busyKey]bool),
		}

		if state.place(items, 0) {
			return Candidate{
				Seed:     seed,
				Status:   models.VersionStatusPlaced,
				Entries:  grid.exportEntries(inst),
				Attempts: attempt,
			}
		}
	}

	return Candidate{
		Seed:     seed,
		Status:   models.VersionStatusFailed,
		Attempts: maxRetries,
		Reason:   "backtracking exhausted max_retries without placing every item",
	}
}
