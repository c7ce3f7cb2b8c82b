package engine

import (
	"sort"

	"github.com/classgrid/timetable-engine/internal/models"
)

// sortedNonBreakSlots returns every non-break slot in (day, order) order.
func sortedNonBreakSlots(inst *Instance) []models.TimeSlot {
	slots := make([]models.TimeSlot, 0, len(inst.Slots))
	for _, sl := range inst.Slots {
		if !sl.IsBreak {
			slots = append(slots, sl)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return slots[i].DayOfWeek < slots[j].DayOfWeek
		}
		return slots[i].SlotOrder < slots[j].SlotOrder
	})
	return slots
}

// Suggest enumerates, in deterministic (day, order) order, the first limit
// slots a hypothetical move of entryID would pass the Validator against,
// per spec §4.6. No ranking is applied; first-fit is sufficient guidance.
func Suggest(inst *Instance, entries []models.Entry, entryID string, limit int) []models.AlternateSlot {
	idx := indexOfEntry(entries, entryID)
	if idx == -1 || limit <= 0 {
		return nil
	}
	original := entries[idx].SlotID

	var out []models.AlternateSlot
	for _, sl := range sortedNonBreakSlots(inst) {
		if sl.ID == original {
			continue
		}
		trial := cloneEntries(entries)
		trial[idx].SlotID = sl.ID
		if len(Validate(inst, trial)) == 0 {
			out = append(out, models.AlternateSlot{SlotID: sl.ID, Day: sl.DayOfWeek, Start: sl.StartTime, End: sl.EndTime})
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Move validates a hypothetical relocation of entryID to newSlotID and, if
// it passes, returns the updated entry set. On rejection the original
// entries are returned unchanged alongside the violations found, per spec
// §6's move(entry_id, new_slot_id) -> Ok | Err{violation, alternates}.
func Move(inst *Instance, entries []models.Entry, entryID string, newSlotID int64) (updated []models.Entry, violations []models.Violation, ok bool) {
	idx := indexOfEntry(entries, entryID)
	if idx == -1 {
		return entries, []models.Violation{{Kind: "not_found", Message: "entry not found", OffendingIDs: []string{entryID}}}, false
	}

	trial := cloneEntries(entries)
	trial[idx].SlotID = newSlotID

	v := Validate(inst, trial)
	if len(v) > 0 {
		return entries, v, false
	}
	return trial, nil, true
}

func indexOfEntry(entries []models.Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func cloneEntries(entries []models.Entry) []models.Entry {
	out := make([]models.Entry, len(entries))
	copy(out, entries)
	return out
}
