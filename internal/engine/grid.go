package engine

import (
	"math/rand"
	"sort"
)

// Block is a pre-reserved, typed sequence of one or two consecutive
// non-break slots on a specific (class, day). The Search Core only ever
// fills blocks; it never invents new slot combinations.
type Block struct {
	ClassID int64
	Day     int
	Kind    ItemKind
	Orders  []int

	Filled    bool
	SubjectID int64
	TeacherID int64
	RoomID    int64
}

// SlotIDs resolves the block's (day, order) pairs to concrete TimeSlot ids.
func (b *Block) SlotIDs(inst *Instance) []int64 {
	ids := make([]int64, 0, len(b.Orders))
	for _, order := range b.Orders {
		if sl, ok := inst.slotAt(b.Day, order); ok {
			ids = append(ids, sl.ID)
		}
	}
	return ids
}

// Grid is the search skeleton: every block any class might place an item
// into, for the run's heavy/light day assignment.
type Grid struct {
	Blocks []*Block
}

// workingDays returns the distinct non-break day numbers present in the
// instance, sorted ascending.
func workingDays(inst *Instance) []int {
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
	sort.Ints(days)
	return days
}

// BuildGrid assigns each class's working days to a heavy/light template and
// carves the matching empty blocks, per spec §4.3.
func BuildGrid(inst *Instance, rng *rand.Rand) *Grid {
	days := workingDays(inst)
	grid := &Grid{}

	for _, class := range inst.Classes {
		order := append([]int(nil), days...)
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		heavyCount := 3
		if heavyCount > len(order) {
			heavyCount = len(order)
		}
		heavyDays := make(map[int]bool, heavyCount)
		for i := 0; i < heavyCount; i++ {
			heavyDays[order[i]] = true
		}

		for _, day := range days {
			if heavyDays[day] {
				grid.Blocks = append(grid.Blocks, blocksForDay(class.ID, day, labAnchors, heavyTheoryOrders)...)
			} else {
				grid.Blocks = append(grid.Blocks, blocksForDay(class.ID, day, labAnchors[:1], lightTheoryOrders)...)
			}
		}
	}

	return grid
}

func blocksForDay(classID int64, day int, labPairs [][2]int, theoryOrders []int) []*Block {
	blocks := make([]*Block, 0, len(labPairs)+len(theoryOrders))
	for _, pair := range labPairs {
		blocks = append(blocks, &Block{ClassID: classID, Day: day, Kind: ItemLab, Orders: []int{pair[0], pair[1]}})
	}
	for _, order := range theoryOrders {
		blocks = append(blocks, &Block{ClassID: classID, Day: day, Kind: ItemTheory, Orders: []int{order}})
	}
	return blocks
}

// emptyBlocksFor returns, in a freshly shuffled order, every block of the
// requested class and kind that has not yet been filled.
func (g *Grid) emptyBlocksFor(classID int64, kind ItemKind, rng *rand.Rand) []*Block {
	var matches []*Block
	for _, b := range g.Blocks {
		if !b.Filled && b.ClassID == classID && b.Kind == kind {
			matches = append(matches, b)
		}
	}
	rng.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
	return matches
}

// placedSubjectsOnDay returns the subject ids already filled into this
// class's blocks on the given day (used for the no-same-day-repeat check).
func (g *Grid) placedSubjectsOnDay(classID int64, day int) map[int64]bool {
	placed := make(map[int64]bool)
	for _, b := range g.Blocks {
		if b.Filled && b.ClassID == classID && b.Day == day {
			placed[b.SubjectID] = true
		}
	}
	return placed
}
