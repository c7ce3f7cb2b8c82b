package engine

import "math"

// Score computes the soft-preference score for a candidate, per spec §4.7:
// start at 100, subtract 0.4 per morning-priority subject placed after
// slot_order 2, subtract 10 per violation, clamp to [0, 100], round to two
// decimal places.
func Score(inst *Instance, entries []EntryDraft, violations int) float64 {
	score := 100.0

	for _, e := range entries {
		subj, ok := inst.Subject(e.SubjectID)
		if !ok || !subj.PriorityMorning {
			continue
		}
		slot, ok := inst.Slot(e.SlotID)
		if !ok {
			continue
		}
		if slot.SlotOrder > 2 {
			score -= 0.4
		}
	}

	score -= 10.0 * float64(violations)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return math.Round(score*100) / 100
}
