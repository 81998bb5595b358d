package treasure

import (
	"strconv"
	"strings"

	"github.com/boardzilla/lootmod/internal/tsv"
)

const SlotCount = 10

const (
	ColumnName   = "Treasure Class"
	ColumnPicks  = "Picks"
	ColumnNoDrop = "NoDrop"
)

func ItemColumn(i int) string { return "Item" + strconv.Itoa(i) }
func ProbColumn(i int) string { return "Prob" + strconv.Itoa(i) }

type Slot struct {
	Item string
	Prob int
}

// Active reports whether the slot takes part in a drop roll.
func (s Slot) Active() bool {
	return s.Item != "" && s.Prob > 0
}

// Row is a treasure class line with its ten item/probability pairs. Slots[0]
// is Item1/Prob1.
type Row struct {
	Name   string
	Picks  int
	NoDrop int
	Slots  [SlotCount]Slot

	rec  *tsv.Record
	orig state
}

type state struct {
	picks  int
	noDrop int
	slots  [SlotCount]Slot
}

func (r *Row) state() state {
	return state{picks: r.Picks, noDrop: r.NoDrop, slots: r.Slots}
}

// parseInt treats blank and malformed numbers as zero.
func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// Load parses a record into a Row bound to it.
func Load(rec *tsv.Record) *Row {
	r := &Row{
		Name:   rec.Get(ColumnName),
		Picks:  parseInt(rec.Get(ColumnPicks)),
		NoDrop: parseInt(rec.Get(ColumnNoDrop)),
		rec:    rec,
	}
	for i := range r.Slots {
		r.Slots[i] = Slot{
			Item: rec.Get(ItemColumn(i + 1)),
			Prob: parseInt(rec.Get(ProbColumn(i + 1))),
		}
		if r.Slots[i].Prob < 0 {
			r.Slots[i].Prob = 0
		}
	}
	r.orig = r.state()
	return r
}

// Store writes changed fields back to the record the row was loaded from.
// Fields that did not change keep their original text.
func (r *Row) Store() {
	if r.rec == nil {
		return
	}
	if r.Picks != r.orig.picks {
		r.rec.Set(ColumnPicks, strconv.Itoa(r.Picks))
	}
	if r.NoDrop != r.orig.noDrop {
		r.rec.Set(ColumnNoDrop, strconv.Itoa(r.NoDrop))
	}
	for i, s := range r.Slots {
		o := r.orig.slots[i]
		if s.Item != o.Item {
			r.rec.Set(ItemColumn(i+1), s.Item)
		}
		if s.Prob != o.Prob {
			r.rec.Set(ProbColumn(i+1), strconv.Itoa(s.Prob))
		}
	}
	r.orig = r.state()
}

// Changed reports whether any field differs from what was loaded or last stored.
func (r *Row) Changed() bool {
	return r.state() != r.orig
}

// ProbabilitySum is the total weight of the active slots.
func (r *Row) ProbabilitySum() int {
	sum := 0
	for _, s := range r.Slots {
		if s.Active() {
			sum += s.Prob
		}
	}
	return sum
}
