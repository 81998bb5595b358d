package script

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardzilla/lootmod/internal/tsv"
)

const table = "Treasure Class\tPicks\tItem1\tProb1\n" +
	"Gold\t1\tgld\t100\n" +
	"Act 1 Junk\t1\tisc\t3\n"

func readTable(t *testing.T) *tsv.Table {
	t.Helper()
	tbl, err := tsv.Read(strings.NewReader(table))
	require.NoError(t, err)
	return tbl
}

func TestApplyTableMutates(t *testing.T) {
	tbl := readTable(t)
	r := New("double-gold.js", `
function rule(row) {
	if (row.Item1 === "gld") {
		row.Prob1 = Number(row.Prob1) * 2;
	}
}`)
	n, err := r.ApplyTable(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "200", tbl.Records()[0].Get("Prob1"))
	assert.False(t, tbl.Records()[1].Dirty())
}

func TestApplyTableReturnsRow(t *testing.T) {
	tbl := readTable(t)
	r := New("rename.js", `
function rule(row) {
	return Object.assign({}, row, { "Treasure Class": row["Treasure Class"].toUpperCase(), Unknown: "x" });
}`)
	n, err := r.ApplyTable(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "GOLD", tbl.Records()[0].Get("Treasure Class"))
	assert.Equal(t, "ACT 1 JUNK", tbl.Records()[1].Get("Treasure Class"))
	assert.Equal(t, []string{"Treasure Class", "Picks", "Item1", "Prob1"}, tbl.Columns())
}

func TestConsoleLog(t *testing.T) {
	var out bytes.Buffer
	r := New("log.js", `function rule(row) { console.log("saw", row.Item1); }`)
	r.Out = &out
	n, err := r.ApplyTable(context.Background(), readTable(t))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "[log.js] saw gld\n[log.js] saw isc\n", out.String())
}

func TestMissingRule(t *testing.T) {
	r := New("empty.js", `var x = 1;`)
	_, err := r.ApplyTable(context.Background(), readTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule(row)")
}

func TestSyntaxError(t *testing.T) {
	r := New("broken.js", `function rule(row) {`)
	_, err := r.ApplyTable(context.Background(), readTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading broken.js")
}

func TestTimeout(t *testing.T) {
	r := New("spin.js", `function rule(row) { for (;;) {} }`)
	r.Timeout = 100 * time.Millisecond
	_, err := r.ApplyTable(context.Background(), readTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "took longer than")
}

func TestLoad(t *testing.T) {
	name := filepath.Join(t.TempDir(), "noop.js")
	require.NoError(t, os.WriteFile(name, []byte(`function rule(row) {}`), 0600))
	r, err := Load(name)
	require.NoError(t, err)
	assert.Equal(t, "noop.js", r.Name)
	assert.Equal(t, DefaultTimeout, r.Timeout)

	_, err = Load(filepath.Join(t.TempDir(), "missing.js"))
	assert.True(t, os.IsNotExist(err))
}
