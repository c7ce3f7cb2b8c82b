package engine

import "github.com/classgrid/timetable-engine/internal/models"

// Package engine implements the Timetable Generator and Conflict Engine as a
// pure, storage-free core: a Problem Instance goes in, Candidate schedules
// come out. Nothing in this package touches a database, a logger, or an
// HTTP request; the surrounding service layer is responsible for that.

// WorkingDays are the five days the generator schedules across, numbered
// the same way TimeSlot.DayOfWeek does (1=Monday .. 5=Friday).
var WorkingDays = []int{1, 2, 3, 4, 5}

// Fixed day template, per spec §4.1: orders 1-3 and 5-6 and 8-9 are
// lecture slots; orders 4 and 7 are breaks. Order numbers are intentionally
// non-dense so contiguity checks must use temporal adjacency, never
// arithmetic succession.
const (
	orderLunchBreak = 4
	orderShortBreak = 7
)

// isBreakOrder reports whether a slot_order is a break position in the fixed
// day template.
func isBreakOrder(order int) bool {
	return order == orderLunchBreak || order == orderShortBreak
}

// LegalLabPairs are the consecutive non-break order pairs a 2-slot lab block
// may occupy. The grid builder currently only materialises the first two;
// all three remain legal for a Validator checking an arbitrary edit.
var LegalLabPairs = [][2]int{{1, 2}, {5, 6}, {8, 9}}

// labAnchors are the pairs the Grid Builder actually carves into blocks.
var labAnchors = [][2]int{{1, 2}, {5, 6}}

// heavyTheoryOrders and lightTheoryOrders are the single-slot theory blocks
// carved for a heavy or light day, respectively (see §4.3).
var heavyTheoryOrders = []int{3, 8, 9}
var lightTheoryOrders = []int{3, 5, 6}

// isConsecutivePair reports whether (a, b) is one of the legal lab pairs.
func isConsecutivePair(a, b int) bool {
	for _, p := range LegalLabPairs {
		if p[0] == a && p[1] == b {
			return true
		}
	}
	return false
}

// dayWindow is the fixed HH:MM start/end for one slot_order of the working
// day template, per spec §4.1.
var dayWindow = map[int][2]string{
	1: {"09:00", "10:00"},
	2: {"10:00", "11:00"},
	3: {"11:00", "12:00"},
	4: {"12:00", "12:30"},
	5: {"12:30", "13:30"},
	6: {"13:30", "14:30"},
	7: {"14:30", "14:45"},
	8: {"14:45", "15:45"},
	9: {"15:45", "16:45"},
}

// GenerateWeekSlots materialises the fixed day template (orders 1-9, breaks
// at 4 and 7) across the given working days, assigning sequential ids
// starting at nextID. It is the Day Template component made concrete: a
// seed-data helper the storage layer uses to populate the time_slots table
// the Instance Loader later reads back as a read-only view.
func GenerateWeekSlots(days []int, nextID int64) []models.TimeSlot {
	slots := make([]models.TimeSlot, 0, len(days)*9)
	for _, day := range days {
		for order := 1; order <= 9; order++ {
			window := dayWindow[order]
			slots = append(slots, models.TimeSlot{
				ID:        nextID,
				DayOfWeek: day,
				SlotOrder: order,
				IsBreak:   isBreakOrder(order),
				StartTime: window[0],
				EndTime:   window[1],
			})
			nextID++
		}
	}
	return slots
}
