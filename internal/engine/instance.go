package engine

import (
	"fmt"
	"sort"

	"github.com/classgrid/timetable-engine/internal/models"
)

// InstanceData is the raw read-only snapshot the surrounding system loads
// from storage. The Instance Loader (NewInstance) turns it into indexed,
// immutable lookup structures the rest of the engine consumes.
type InstanceData struct {
	Classes         []models.Class
	Subjects        []models.Subject
	Teachers        []models.Teacher
	Rooms           []models.Room
	TeacherSubjects []models.TeacherSubject
	Slots           []models.TimeSlot
	Availability    []models.Availability
}

// Instance is the immutable in-memory problem input for one generator run.
type Instance struct {
	Classes  []models.Class
	Subjects []models.Subject
	Teachers []models.Teacher
	Rooms    []models.Room
	Slots    []models.TimeSlot

	classByID   map[int64]models.Class
	subjectByID map[int64]models.Subject
	teacherByID map[int64]models.Teacher
	roomByID    map[int64]models.Room
	slotByID    map[int64]models.TimeSlot

	subjectsByClass map[int64][]models.Subject
	slotsByDay      map[int][]models.TimeSlot

	// teacherOf maps subject_id to the first/only TeacherSubject mapping,
	// per spec §9's documented open question on multi-teacher subjects.
	teacherOf map[int64]int64

	// unavailable holds only the explicit Availability rows where
	// available=false; a missing entry means the teacher may teach the slot.
	unavailable map[[2]int64]bool
}

// Issue describes one InstanceInvalid problem found while loading.
type Issue struct {
	SubjectID int64  `json:"subject_id,omitempty"`
	Message   string `json:"message"`
}

// NewInstance builds an immutable Instance from a raw snapshot, returning the
// fatal InstanceInvalid issue list per spec §7 instead of partially
// constructing a broken instance.
func NewInstance(data InstanceData) (*Instance, []Issue) {
	inst := &Instance{
		Classes:         data.Classes,
		Subjects:        data.Subjects,
		Teachers:        data.Teachers,
		Rooms:           data.Rooms,
		Slots:           data.Slots,
		classByID:       make(map[int64]models.Class, len(data.Classes)),
		subjectByID:     make(map[int64]models.Subject, len(data.Subjects)),
		teacherByID:     make(map[int64]models.Teacher, len(data.Teachers)),
		roomByID:        make(map[int64]models.Room, len(data.Rooms)),
		slotByID:        make(map[int64]models.TimeSlot, len(data.Slots)),
		subjectsByClass: make(map[int64][]models.Subject),
		slotsByDay:      make(map[int][]models.TimeSlot),
		teacherOf:       make(map[int64]int64, len(data.TeacherSubjects)),
		unavailable:     make(map[[2]int64]bool, len(data.Availability)),
	}

	for _, c := range data.Classes {
		inst.classByID[c.ID] = c
	}
	for _, s := range data.Subjects {
		inst.subjectByID[s.ID] = s
		inst.subjectsByClass[s.ClassID] = append(inst.subjectsByClass[s.ClassID], s)
	}
	for _, t := range data.Teachers {
		inst.teacherByID[t.ID] = t
	}
	for _, r := range data.Rooms {
		inst.roomByID[r.ID] = r
	}
	for _, sl := range data.Slots {
		inst.slotByID[sl.ID] = sl
		inst.slotsByDay[sl.DayOfWeek] = append(inst.slotsByDay[sl.DayOfWeek], sl)
	}
	for day := range inst.slotsByDay {
		sort.Slice(inst.slotsByDay[day], func(i, j int) bool {
			return inst.slotsByDay[day][i].SlotOrder < inst.slotsByDay[day][j].SlotOrder
		})
	}
	// First mapping per subject wins; later duplicates are ignored, matching
	// the generator's documented one-to-one usage of a many-to-many table.
	for _, ts := range data.TeacherSubjects {
		if _, ok := inst.teacherOf[ts.SubjectID]; !ok {
			inst.teacherOf[ts.SubjectID] = ts.TeacherID
		}
	}
	for _, a := range data.Availability {
		if !a.Available {
			inst.unavailable[[2]int64{a.TeacherID, a.SlotID}] = true
		}
	}

	var issues []Issue
	for _, c := range data.Classes {
		if len(inst.subjectsByClass[c.ID]) == 0 {
			issues = append(issues, Issue{Message: fmt.Sprintf("class %d (%s) has no subjects", c.ID, c.Name)})
		}
	}
	for _, s := range data.Subjects {
		if _, ok := inst.teacherOf[s.ID]; !ok {
			issues = append(issues, Issue{SubjectID: s.ID, Message: fmt.Sprintf("subject %d (%s) has no teacher mapping", s.ID, s.Name)})
		}
		if s.IsLab && s.LecturesPerWeek%2 != 0 {
			issues = append(issues, Issue{SubjectID: s.ID, Message: fmt.Sprintf("lab subject %d (%s) has odd lectures_per_week=%d", s.ID, s.Name, s.LecturesPerWeek)})
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}

	return inst, nil
}

// Class returns the class by id, ok=false when unknown.
func (inst *Instance) Class(id int64) (models.Class, bool) {
	c, ok := inst.classByID[id]
	return c, ok
}

// Subject returns the subject by id.
func (inst *Instance) Subject(id int64) (models.Subject, bool) {
	s, ok := inst.subjectByID[id]
	return s, ok
}

// Teacher returns the teacher by id.
func (inst *Instance) Teacher(id int64) (models.Teacher, bool) {
	t, ok := inst.teacherByID[id]
	return t, ok
}

// Room returns the room by id.
func (inst *Instance) Room(id int64) (models.Room, bool) {
	r, ok := inst.roomByID[id]
	return r, ok
}

// Slot returns the time slot by id.
func (inst *Instance) Slot(id int64) (models.TimeSlot, bool) {
	sl, ok := inst.slotByID[id]
	return sl, ok
}

// SlotsForDay returns the slots of a working day sorted by slot_order.
func (inst *Instance) SlotsForDay(day int) []models.TimeSlot {
	return inst.slotsByDay[day]
}

// SubjectsForClass returns the subjects belonging to a class.
func (inst *Instance) SubjectsForClass(classID int64) []models.Subject {
	return inst.subjectsByClass[classID]
}

// TeacherOf returns the (first/only) teacher mapped to a subject.
func (inst *Instance) TeacherOf(subjectID int64) (int64, bool) {
	id, ok := inst.teacherOf[subjectID]
	return id, ok
}

// Available reports whether a teacher may teach a given slot. Missing rows
// default to available, per the Availability invariant.
func (inst *Instance) Available(teacherID, slotID int64) bool {
	return !inst.unavailable[[2]int64{teacherID, slotID}]
}

// slotAt returns the slot for a (day, order) pair, if one exists.
func (inst *Instance) slotAt(day, order int) (models.TimeSlot, bool) {
	for _, sl := range inst.slotsByDay[day] {
		if sl.SlotOrder == order {
			return sl, true
		}
	}
	return models.TimeSlot{}, false
}
