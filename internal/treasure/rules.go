package treasure

import (
	"sort"
	"strings"

	"github.com/stoewer/go-strcase"
	"golang.org/x/exp/maps"

	"github.com/boardzilla/lootmod/internal/tsv"
)

// Rule edits one row in place.
type Rule struct {
	Name  string
	Apply func(*Row)
}

// ApplyRules runs each rule over every row, in order. Nil rows are skipped.
func ApplyRules(rows []*Row, rules ...Rule) {
	applyRules(rows, rules, nil)
}

// applyRules calls changed, if set, once for every row a rule modified.
func applyRules(rows []*Row, rules []Rule, changed func(Rule)) {
	for _, rule := range rules {
		for _, row := range rows {
			if row == nil {
				continue
			}
			if changed == nil {
				rule.Apply(row)
				continue
			}
			before := row.state()
			rule.Apply(row)
			if row.state() != before {
				changed(rule)
			}
		}
	}
}

// PotionToRejuvenation turns every lesser potion into a full rejuvenation and
// scales its probability by multiplier. A positive probability never drops
// below 1.
func PotionToRejuvenation(multiplier float64) Rule {
	return Rule{Name: "potion-to-rejuvenation", Apply: func(r *Row) {
		for i, s := range r.Slots {
			if !s.Active() || !IsPotion(s.Item) {
				continue
			}
			p := int(float64(s.Prob) * multiplier)
			if p < 1 {
				p = 1
			}
			r.Slots[i] = Slot{Item: FullRejuvenation, Prob: p}
		}
	}}
}

// ClutterRemoval blanks every slot holding one of codes, ignoring case. The
// other slots keep their positions.
func ClutterRemoval(codes ...string) Rule {
	clutter := make(map[string]bool, len(codes))
	for _, c := range codes {
		clutter[strings.ToLower(c)] = true
	}
	return Rule{Name: "clutter-removal", Apply: func(r *Row) {
		for i, s := range r.Slots {
			if s.Active() && clutter[strings.ToLower(s.Item)] {
				r.Slots[i] = Slot{}
			}
		}
	}}
}

// PotionBundleClamp limits rows that only drop potions: picks is capped at
// limit and NoDrop is raised to the total slot weight, so about half the rolls
// come up empty.
func PotionBundleClamp(limit int) Rule {
	return Rule{Name: "potion-bundle-clamp", Apply: func(r *Row) {
		if !PotionOnly(r) {
			return
		}
		if r.Picks > limit {
			r.Picks = limit
		}
		if sum := r.ProbabilitySum(); r.NoDrop < sum {
			r.NoDrop = sum
		}
	}}
}

// PotionOnly reports whether every active slot of r is a potion. A slot that
// looks like a nested treasure class ends the scan with false.
func PotionOnly(r *Row) bool {
	potions := 0
	for _, s := range r.Slots {
		if !s.Active() {
			continue
		}
		if IsTCReference(s.Item) {
			return false
		}
		if !IsPotion(s.Item) {
			return false
		}
		potions++
	}
	return potions > 0
}

// Remap replaces item codes according to table.
func Remap(table map[string]string) Rule {
	return Rule{Name: "remap", Apply: func(r *Row) {
		for i, s := range r.Slots {
			if !s.Active() {
				continue
			}
			if to, ok := table[s.Item]; ok {
				r.Slots[i].Item = to
			}
		}
	}}
}

// Options configures the rules built by Lookup.
type Options struct {
	Multiplier float64
	Clutter    []string
	Remap      map[string]string
}

var registry = map[string]func(Options) Rule{
	"potion-to-rejuvenation": func(o Options) Rule {
		m := o.Multiplier
		if m <= 0 {
			m = 1
		}
		return PotionToRejuvenation(m)
	},
	"clutter-removal": func(o Options) Rule {
		return ClutterRemoval(append(append([]string(nil), DefaultClutter...), o.Clutter...)...)
	},
	"potion-bundle-clamp": func(Options) Rule {
		return PotionBundleClamp(MaxPotionPicks)
	},
	"remap": func(o Options) Rule {
		return Remap(o.Remap)
	},
}

// Lookup builds the rule called name. Names are matched in any of kebab,
// snake or camel case.
func Lookup(name string, opts Options) (Rule, bool) {
	build, ok := registry[strcase.KebabCase(strings.TrimSpace(name))]
	if !ok {
		return Rule{}, false
	}
	return build(opts), true
}

func Names() []string {
	names := maps.Keys(registry)
	sort.Strings(names)
	return names
}

// Stats counts, per rule name, the rows a rule changed.
type Stats struct {
	Rows    int
	Changed map[string]int
}

// ApplyTable runs rules over every treasure class in t and writes the results
// back into the table's records. Spacer lines with no name are left alone.
func ApplyTable(t *tsv.Table, rules ...Rule) Stats {
	stats := Stats{Changed: map[string]int{}}
	rows := make([]*Row, 0, t.Len())
	for _, rec := range t.Records() {
		row := Load(rec)
		if strings.TrimSpace(row.Name) == "" {
			continue
		}
		rows = append(rows, row)
	}
	stats.Rows = len(rows)
	applyRules(rows, rules, func(rule Rule) {
		stats.Changed[rule.Name]++
	})
	for _, row := range rows {
		row.Store()
	}
	return stats
}
