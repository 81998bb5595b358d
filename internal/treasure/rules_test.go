package treasure

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardzilla/lootmod/internal/tsv"
)

func header() string {
	cols := []string{ColumnName, ColumnPicks, "Unique", ColumnNoDrop}
	for i := 1; i <= SlotCount; i++ {
		cols = append(cols, ItemColumn(i), ProbColumn(i))
	}
	return strings.Join(cols, "\t")
}

// line builds a treasure class line. slots alternates item, prob.
func line(name, picks, noDrop string, slots ...string) string {
	fields := []string{name, picks, "", noDrop}
	for i := 0; i < SlotCount*2; i++ {
		if i < len(slots) {
			fields = append(fields, slots[i])
		} else {
			fields = append(fields, "")
		}
	}
	return strings.Join(fields, "\t")
}

func loadTable(t *testing.T, lines ...string) *tsv.Table {
	t.Helper()
	table, err := tsv.Read(strings.NewReader(header() + "\n" + strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	return table
}

func loadRows(t *testing.T, lines ...string) []*Row {
	t.Helper()
	table := loadTable(t, lines...)
	rows := []*Row{}
	for _, rec := range table.Records() {
		rows = append(rows, Load(rec))
	}
	return rows
}

func TestLoad(t *testing.T) {
	rows := loadRows(t, line("Act 1 Good", "-2", "x", "hp1", "30", "weap3", "abc", "", "12"))
	r := rows[0]
	assert.Equal(t, "Act 1 Good", r.Name)
	assert.Equal(t, -2, r.Picks)
	assert.Equal(t, 0, r.NoDrop)
	assert.Equal(t, Slot{"hp1", 30}, r.Slots[0])
	assert.Equal(t, Slot{"weap3", 0}, r.Slots[1])
	assert.False(t, r.Slots[1].Active())
	assert.False(t, r.Slots[2].Active())
	assert.Equal(t, 30, r.ProbabilitySum())
}

func TestPotionToRejuvenation(t *testing.T) {
	rows := loadRows(t,
		line("Potions", "1", "", "hp3", "100", "mp5", "40", "rvs", "0", "", "9", "gld", "10", "Hpotion 2", "3"),
	)
	ApplyRules(rows, PotionToRejuvenation(1))
	r := rows[0]
	assert.Equal(t, Slot{"rvl", 100}, r.Slots[0])
	assert.Equal(t, Slot{"rvl", 40}, r.Slots[1])
	assert.Equal(t, Slot{"rvs", 0}, r.Slots[2], "zero probability slot is not touched")
	assert.Equal(t, Slot{"", 9}, r.Slots[3], "blank item is not touched")
	assert.Equal(t, Slot{"gld", 10}, r.Slots[4])
	assert.Equal(t, Slot{"rvl", 3}, r.Slots[5])
}

func TestPotionToRejuvenationFloor(t *testing.T) {
	rows := loadRows(t, line("Potions", "1", "", "hp1", "1", "mp1", "3"))
	ApplyRules(rows, PotionToRejuvenation(0.1))
	assert.Equal(t, 1, rows[0].Slots[0].Prob)
	assert.Equal(t, 1, rows[0].Slots[1].Prob)
}

func TestClutterRemoval(t *testing.T) {
	rows := loadRows(t, line("Act 2 Junk", "1", "", "gld", "20", "isc", "10", "key", "50", "", "", "tsc", "0"))
	rule := ClutterRemoval(DefaultClutter...)
	ApplyRules(rows, rule)
	r := rows[0]
	assert.Equal(t, Slot{"gld", 20}, r.Slots[0])
	assert.Equal(t, Slot{}, r.Slots[1])
	assert.Equal(t, Slot{}, r.Slots[2])
	assert.Equal(t, Slot{"tsc", 0}, r.Slots[4])

	once := r.Slots
	ApplyRules(rows, rule)
	assert.Equal(t, once, r.Slots)
}

func TestClutterRemovalIgnoresCase(t *testing.T) {
	rows := loadRows(t, line("Act 2 Junk", "1", "", "KEY", "50", "Isc", "10", "gld", "20"))
	ApplyRules(rows, ClutterRemoval("key", "ISC"))
	r := rows[0]
	assert.Equal(t, Slot{}, r.Slots[0])
	assert.Equal(t, Slot{}, r.Slots[1])
	assert.Equal(t, Slot{"gld", 20}, r.Slots[2])
}

func TestClutterRemovalWritesBlankSlot(t *testing.T) {
	table := loadTable(t, line("Act 2 Junk", "1", "", "gld", "20", "isc", "10", "key", "50", "elx", "5"))
	ApplyTable(table, ClutterRemoval("key"))
	rec := table.Records()[0]
	assert.Equal(t, "", rec.Get("Item3"))
	assert.Equal(t, "0", rec.Get("Prob3"))
	assert.Equal(t, "isc", rec.Get("Item2"))
	assert.Equal(t, "10", rec.Get("Prob2"))
	assert.Equal(t, "elx", rec.Get("Item4"))
}

func TestPotionBundleClamp(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantPicks  int
		wantNoDrop int
	}{
		{"potions only", line("Hpotion Bundle", "8", "0", "hp2", "30", "mp2", "20"), 5, 50},
		{"picks already low", line("Hpotion Bundle", "2", "10", "hp2", "30", "mp2", "20"), 2, 50},
		{"noDrop already high", line("Hpotion Bundle", "8", "90", "hp2", "30", "mp2", "20"), 5, 90},
		{"tc reference", line("Act 1 Good", "8", "0", "hp2", "30", "weap03", "20"), 8, 0},
		{"tc reference with zero probability", line("Act 1 Good", "8", "0", "hp2", "30", "weap03", "0"), 5, 30},
		{"other item", line("Act 1 Junk", "8", "0", "hp2", "30", "gld", "20"), 8, 0},
		{"empty row", line("Empty", "8", "0"), 8, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rows := loadRows(t, tc.line)
			ApplyRules(rows, PotionBundleClamp(MaxPotionPicks))
			assert.Equal(t, tc.wantPicks, rows[0].Picks)
			assert.Equal(t, tc.wantNoDrop, rows[0].NoDrop)
		})
	}
}

func TestPotionBundleClampTable(t *testing.T) {
	table := loadTable(t, line("Hpotion Bundle", "8", "", "hp2", "30", "mp2", "20"))
	ApplyTable(table, PotionBundleClamp(MaxPotionPicks))
	rec := table.Records()[0]
	assert.Equal(t, "5", rec.Get(ColumnPicks))
	assert.Equal(t, "50", rec.Get(ColumnNoDrop))
}

func TestRemap(t *testing.T) {
	rows := loadRows(t, line("Act 1 Magic", "1", "", "isc", "5", "tsc", "0", "amu", "2"))
	ApplyRules(rows, Remap(map[string]string{"isc": "tsc", "tsc": "isc"}))
	assert.Equal(t, Slot{"tsc", 5}, rows[0].Slots[0])
	assert.Equal(t, Slot{"tsc", 0}, rows[0].Slots[1])
	assert.Equal(t, Slot{"amu", 2}, rows[0].Slots[2])
}

func TestApplyRulesSkipsNil(t *testing.T) {
	rows := loadRows(t, line("Hpotion", "1", "", "hp1", "4"))
	rows = append(rows, nil)
	assert.NotPanics(t, func() {
		ApplyRules(rows, PotionToRejuvenation(1), PotionBundleClamp(MaxPotionPicks))
	})
	assert.Equal(t, "rvl", rows[0].Slots[0].Item)
}

func TestRulesAreSequential(t *testing.T) {
	rows := loadRows(t, line("Bundle", "9", "0", "hp1", "10", "key", "10"))
	// clutter first leaves a potion-only row for the clamp to see
	ApplyRules(rows, ClutterRemoval("key"), PotionBundleClamp(MaxPotionPicks))
	assert.Equal(t, 5, rows[0].Picks)
	assert.Equal(t, 10, rows[0].NoDrop)
}

func TestApplyTableUnmatchedRowsUnchanged(t *testing.T) {
	lines := []string{
		line("Gold", "1", "", "gld", "\"100\""),
		line("Act 1 Equip A", "-3", "", "weap3", "14", "armo3", "14", "key", "0"),
		"",
		line("Hpotion 1", "1", "", "hp1", "abc"),
	}
	input := header() + "\r\n" + strings.Join(lines, "\r\n") + "\r\n"
	table, err := tsv.Read(strings.NewReader(input))
	require.NoError(t, err)

	stats := ApplyTable(table,
		PotionToRejuvenation(1),
		ClutterRemoval(DefaultClutter...),
		PotionBundleClamp(MaxPotionPicks),
	)
	assert.Equal(t, 3, stats.Rows)
	assert.Empty(t, stats.Changed)

	var out bytes.Buffer
	require.NoError(t, table.Write(&out))
	assert.Equal(t, input, out.String())
}

func TestApplyTableStats(t *testing.T) {
	table := loadTable(t,
		line("Hpotion 1", "1", "", "hp1", "5"),
		line("Act 1 Junk", "1", "", "key", "5", "gld", "10"),
	)
	stats := ApplyTable(table,
		PotionToRejuvenation(1),
		ClutterRemoval(DefaultClutter...),
		PotionBundleClamp(MaxPotionPicks),
	)
	assert.Equal(t, 1, stats.Changed["potion-to-rejuvenation"])
	assert.Equal(t, 1, stats.Changed["clutter-removal"])
	assert.Equal(t, 1, stats.Changed["potion-bundle-clamp"])
	assert.Equal(t, "rvl", table.Records()[0].Get("Item1"))
	assert.Equal(t, "5", table.Records()[0].Get(ColumnNoDrop))
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"potion-to-rejuvenation", "PotionToRejuvenation", "potion_to_rejuvenation", " potionToRejuvenation "} {
		rule, ok := Lookup(name, Options{})
		require.True(t, ok, name)
		assert.Equal(t, "potion-to-rejuvenation", rule.Name)
	}
	_, ok := Lookup("double-gold", Options{})
	assert.False(t, ok)

	assert.Equal(t, []string{"clutter-removal", "potion-bundle-clamp", "potion-to-rejuvenation", "remap"}, Names())
}

func TestLookupOptions(t *testing.T) {
	rows := loadRows(t, line("Act 1 Junk", "1", "", "hp1", "10", "elx", "3", "key", "4"))
	rejuv, _ := Lookup("potion-to-rejuvenation", Options{Multiplier: 2})
	clutter, _ := Lookup("clutter-removal", Options{Clutter: []string{"elx"}})
	ApplyRules(rows, rejuv, clutter)
	assert.Equal(t, Slot{"rvl", 20}, rows[0].Slots[0])
	assert.Equal(t, Slot{}, rows[0].Slots[1])
	assert.Equal(t, Slot{}, rows[0].Slots[2])
}

func TestCodes(t *testing.T) {
	assert.True(t, IsPotion("hp5"))
	assert.True(t, IsPotion("Mpotion 3"))
	assert.True(t, IsPotion("rvs"))
	assert.False(t, IsPotion("rvx"))
	assert.False(t, IsPotion("gld"))
	assert.True(t, IsTCReference("weap03"))
	assert.True(t, IsTCReference("Act 5 Good"))
	assert.True(t, IsTCReference("gem"))
	assert.False(t, IsTCReference("hp1"))
}
