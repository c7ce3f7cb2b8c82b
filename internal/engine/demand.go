package engine

import "math/rand"

// ItemKind distinguishes a one-slot theory placement from a two-slot lab
// placement.
type ItemKind byte

const (
	ItemTheory ItemKind = 'T'
	ItemLab    ItemKind = 'L'
)

// Item is one atomic placement obligation produced by the Demand Expander.
type Item struct {
	ClassID   int64
	SubjectID int64
	Kind      ItemKind
}

// ExpandDemand turns every (class, subject) requirement into a flat item
// sequence, shuffles it with the run's RNG, then stably reorders it so every
// lab item precedes every theory item (labs are scarcer and bind first),
// per spec §4.2.
func ExpandDemand(inst *Instance, rng *rand.Rand) []Item {
	var items []Item
	for _, class := range inst.Classes {
		for _, subj := range inst.SubjectsForClass(class.ID) {
			if subj.IsLab {
				for i := 0; i < subj.LecturesPerWeek/2; i++ {
					items = append(items, Item{ClassID: class.ID, SubjectID: subj.ID, Kind: ItemLab})
				}
				continue
			}
			for i := 0; i < subj.LecturesPerWeek; i++ {
				items = append(items, Item{ClassID: class.ID, SubjectID: subj.ID, Kind: ItemTheory})
			}
		}
	}

	rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

	labsFirst := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Kind == ItemLab {
			labsFirst = append(labsFirst, it)
		}
	}
	for _, it := range items {
		if it.Kind == ItemTheory {
			labsFirst = append(labsFirst, it)
		}
	}
	return labsFirst
}
