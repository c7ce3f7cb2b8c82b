package engine

import (
	"fmt"
	"sort"

	"github.com/classgrid/timetable-engine/internal/models"
)

// Validate is the stateless Conflict Detector: a pure pass over a set of
// entries returning every violation it finds, per spec §4.5. The same
// procedure backs both post-search scoring and admin-edit validation.
func Validate(inst *Instance, entries []models.Entry) []models.Violation {
	var violations []models.Violation

	violations = append(violations, clashViolations(entries, models.ViolationTeacherClash, func(e models.Entry) [2]int64 { return [2]int64{e.TeacherID, e.SlotID} })...)
	violations = append(violations, clashViolations(entries, models.ViolationRoomClash, func(e models.Entry) [2]int64 { return [2]int64{e.RoomID, e.SlotID} })...)
	violations = append(violations, clashViolations(entries, models.ViolationClassClash, func(e models.Entry) [2]int64 { return [2]int64{e.ClassID, e.SlotID} })...)

	violations = append(violations, subjectRepeatViolations(inst, entries)...)
	violations = append(violations, roomViolations(inst, entries)...)
	violations = append(violations, teacherOverloadViolations(inst, entries)...)
	violations = append(violations, teacherUnavailableViolations(inst, entries)...)
	violations = append(violations, breakSlotViolations(inst, entries)...)
	violations = append(violations, labContiguityViolations(inst, entries)...)

	return violations
}

func clashViolations(entries []models.Entry, kind string, key func(models.Entry) [2]int64) []models.Violation {
	groups := make(map[[2]int64][]string)
	for _, e := range entries {
		k := key(e)
		if k[0] == 0 {
			continue
		}
		groups[k] = append(groups[k], e.ID)
	}
	var out []models.Violation
	for _, ids := range groups {
		if len(ids) > 1 {
			out = append(out, models.Violation{Kind: kind, Message: fmt.Sprintf("%d entries share the same occupancy key", len(ids)), OffendingIDs: ids})
		}
	}
	return out
}

func subjectRepeatViolations(inst *Instance, entries []models.Entry) []models.Violation {
	type dayKey struct {
		classID int64
		day     int
	}
	bySubject := make(map[dayKey]map[int64][]string)
	for _, e := range entries {
		slot, ok := inst.Slot(e.SlotID)
		if !ok {
			continue
		}
		dk := dayKey{e.ClassID, slot.DayOfWeek}
		if bySubject[dk] == nil {
			bySubject[dk] = make(map[int64][]string)
		}
		bySubject[dk][e.SubjectID] = append(bySubject[dk][e.SubjectID], e.ID)
	}
	var out []models.Violation
	for dk, bySubj := range bySubject {
		for subjID, ids := range bySubj {
			subj, _ := inst.Subject(subjID)
			if subj.IsLab {
				// Two entries of the same lab on one day are the expected
				// contiguous pair, not a repeat.
				continue
			}
			if len(ids) > 1 {
				out = append(out, models.Violation{
					Kind:         models.ViolationSubjectRepeat,
					Message:      fmt.Sprintf("class %d repeats subject %d on day %d", dk.classID, subjID, dk.day),
					OffendingIDs: ids,
				})
			}
		}
	}
	return out
}

func roomViolations(inst *Instance, entries []models.Entry) []models.Violation {
	var out []models.Violation
	for _, e := range entries {
		class, okClass := inst.Class(e.ClassID)
		room, okRoom := inst.Room(e.RoomID)
		subj, okSubj := inst.Subject(e.SubjectID)
		if !okClass || !okRoom || !okSubj {
			continue
		}
		if room.Capacity < class.StudentStrength {
			out = append(out, models.Violation{
				Kind:         models.ViolationRoomCapacityMismatch,
				Message:      fmt.Sprintf("room %d capacity %d below class %d strength %d", room.ID, room.Capacity, class.ID, class.StudentStrength),
				OffendingIDs: []string{e.ID},
			})
		}
		wantType := models.RoomClassroom
		if subj.IsLab {
			wantType = models.RoomLab
		}
		if room.RoomType != wantType {
			out = append(out, models.Violation{
				Kind:         models.ViolationRoomTypeMismatch,
				Message:      fmt.Sprintf("subject %d requires a %s room, entry uses room %d (%s)", subj.ID, wantType, room.ID, room.RoomType),
				OffendingIDs: []string{e.ID},
			})
		}
	}
	return out
}

func teacherOverloadViolations(inst *Instance, entries []models.Entry) []models.Violation {
	type dayKey struct {
		teacherID int64
		day       int
	}
	counts := make(map[dayKey][]string)
	for _, e := range entries {
		slot, ok := inst.Slot(e.SlotID)
		if !ok {
			continue
		}
		dk := dayKey{e.TeacherID, slot.DayOfWeek}
		counts[dk] = append(counts[dk], e.ID)
	}
	var out []models.Violation
	for dk, ids := range counts {
		teacher, ok := inst.Teacher(dk.teacherID)
		if !ok {
			continue
		}
		if len(ids) > teacher.MaxLecturesPerDay {
			out = append(out, models.Violation{
				Kind:         models.ViolationTeacherOverload,
				Message:      fmt.Sprintf("teacher %d scheduled %d times on day %d, cap is %d", dk.teacherID, len(ids), dk.day, teacher.MaxLecturesPerDay),
				OffendingIDs: ids,
			})
		}
	}
	return out
}

func teacherUnavailableViolations(inst *Instance, entries []models.Entry) []models.Violation {
	var out []models.Violation
	for _, e := range entries {
		if !inst.Available(e.TeacherID, e.SlotID) {
			out = append(out, models.Violation{
				Kind:         models.ViolationTeacherUnavailable,
				Message:      fmt.Sprintf("teacher %d is unavailable for slot %d", e.TeacherID, e.SlotID),
				OffendingIDs: []string{e.ID},
			})
		}
	}
	return out
}

func breakSlotViolations(inst *Instance, entries []models.Entry) []models.Violation {
	var out []models.Violation
	for _, e := range entries {
		slot, ok := inst.Slot(e.SlotID)
		if ok && slot.IsBreak {
			out = append(out, models.Violation{
				Kind:         models.ViolationBreakSlot,
				Message:      fmt.Sprintf("entry %s references break slot %d", e.ID, e.SlotID),
				OffendingIDs: []string{e.ID},
			})
		}
	}
	return out
}

// labContiguityViolations flags a lab occurrence that doesn't appear as
// exactly two entries with consecutive slot orders and a shared
// teacher/room on the same day, per the §3 lab contiguity invariant and P4.
func labContiguityViolations(inst *Instance, entries []models.Entry) []models.Violation {
	type groupKey struct {
		classID   int64
		subjectID int64
		day       int
	}
	groups := make(map[groupKey][]models.Entry)
	for _, e := range entries {
		subj, ok := inst.Subject(e.SubjectID)
		if !ok || !subj.IsLab {
			continue
		}
		slot, ok := inst.Slot(e.SlotID)
		if !ok {
			continue
		}
		gk := groupKey{e.ClassID, e.SubjectID, slot.DayOfWeek}
		groups[gk] = append(groups[gk], e)
	}

	var out []models.Violation
	for gk, group := range groups {
		ids := make([]string, 0, len(group))
		for _, e := range group {
			ids = append(ids, e.ID)
		}

		if len(group) != 2 {
			out = append(out, models.Violation{
				Kind:         models.ViolationLabContiguity,
				Message:      fmt.Sprintf("lab subject %d for class %d on day %d has %d entries, expected 2", gk.subjectID, gk.classID, gk.day, len(group)),
				OffendingIDs: ids,
			})
			continue
		}

		sort.Slice(group, func(i, j int) bool {
			si, _ := inst.Slot(group[i].SlotID)
			sj, _ := inst.Slot(group[j].SlotID)
			return si.SlotOrder < sj.SlotOrder
		})
		s0, _ := inst.Slot(group[0].SlotID)
		s1, _ := inst.Slot(group[1].SlotID)
		sameResource := group[0].TeacherID == group[1].TeacherID && group[0].RoomID == group[1].RoomID
		if !isConsecutivePair(s0.SlotOrder, s1.SlotOrder) || !sameResource {
			out = append(out, models.Violation{
				Kind:         models.ViolationLabContiguity,
				Message:      fmt.Sprintf("lab subject %d for class %d on day %d is not a contiguous pair", gk.subjectID, gk.classID, gk.day),
				OffendingIDs: ids,
			})
		}
	}
	return out
}
