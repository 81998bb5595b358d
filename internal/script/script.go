package script

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"rogchap.com/v8go"

	"github.com/boardzilla/lootmod/internal/tsv"
)

const DefaultTimeout = 30 * time.Second

// wraps the user's rule(row) so the whole table is handled in one call
const prelude = `
function __applyAll(rows) {
	if (typeof rule !== "function") {
		throw new Error("script does not define rule(row)");
	}
	return rows.map(function (row) {
		var out = rule(row);
		return out === undefined ? row : out;
	});
}
`

// Runner applies a JavaScript row rule to tables. The script must define
//
//	function rule(row) { ... }
//
// row is an object of column name to text. The function may mutate row or
// return a replacement.
type Runner struct {
	Name    string
	Source  string
	Timeout time.Duration
	Out     io.Writer
}

func New(name, source string) *Runner {
	return &Runner{
		Name:    name,
		Source:  source,
		Timeout: DefaultTimeout,
		Out:     os.Stdout,
	}
}

func Load(name string) (*Runner, error) {
	src, err := os.ReadFile(filepath.Clean(name))
	if err != nil {
		return nil, err
	}
	return New(filepath.Base(name), string(src)), nil
}

// ApplyTable runs the rule over every record of t and returns the number of
// records it changed.
func (r *Runner) ApplyTable(ctx context.Context, t *tsv.Table) (int, error) {
	records := t.Records()
	rows := make([]map[string]string, len(records))
	for i, rec := range records {
		rows[i] = rec.Map()
	}
	out, err := r.run(ctx, rows)
	if err != nil {
		return 0, err
	}
	if len(out) != len(rows) {
		return 0, fmt.Errorf("%s: rule returned %d rows for %d", r.Name, len(out), len(rows))
	}

	changed := 0
	for i, rec := range records {
		before := rec.String()
		for _, column := range t.Columns() {
			if v, ok := out[i][column]; ok {
				rec.Set(column, text(v))
			}
		}
		if rec.String() != before {
			changed++
		}
	}
	return changed, nil
}

func text(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

type result struct {
	rows []map[string]any
	err  error
}

func (r *Runner) run(ctx context.Context, rows []map[string]string) ([]map[string]any, error) {
	input, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	out := r.Out
	if out == nil {
		out = io.Discard
	}

	iso := v8go.NewIsolate()
	defer iso.Dispose()

	results := make(chan result, 1)
	go func() {
		log := v8go.NewFunctionTemplate(iso, func(info *v8go.FunctionCallbackInfo) *v8go.Value {
			fmt.Fprintf(out, "[%s] ", r.Name)
			args := info.Args()
			for i, arg := range args {
				fmt.Fprintf(out, "%v", arg)
				if i != len(args)-1 {
					fmt.Fprintf(out, " ")
				}
			}
			fmt.Fprintln(out)
			return nil
		})
		global := v8go.NewObjectTemplate(iso)
		if err := global.Set("log", log); err != nil {
			results <- result{err: err}
			return
		}
		v8ctx := v8go.NewContext(iso, global)
		defer v8ctx.Close()
		if _, err := v8ctx.RunScript("console.log = log; console.error = log;", "load.js"); err != nil {
			results <- result{err: fmt.Errorf("error loading %s: %w", r.Name, err)}
			return
		}
		if _, err := v8ctx.RunScript(prelude, "prelude.js"); err != nil {
			results <- result{err: fmt.Errorf("error loading %s: %w", r.Name, err)}
			return
		}
		if _, err := v8ctx.RunScript(r.Source, r.Name); err != nil {
			results <- result{err: fmt.Errorf("error loading %s: %w", r.Name, err)}
			return
		}
		val, err := v8ctx.RunScript(fmt.Sprintf("JSON.stringify(__applyAll(%s))", input), "apply.js")
		if err != nil {
			results <- result{err: fmt.Errorf("error running %s: %w", r.Name, err)}
			return
		}
		var rows []map[string]any
		if err := json.Unmarshal([]byte(val.String()), &rows); err != nil {
			results <- result{err: fmt.Errorf("%s returned bad rows: %w", r.Name, err)}
			return
		}
		results <- result{rows: rows}
	}()

	select {
	case res := <-results:
		return res.rows, res.err
	case <-ctx.Done():
		iso.TerminateExecution()
		<-results
		return nil, ctx.Err()
	case <-time.After(timeout):
		iso.TerminateExecution()
		<-results
		return nil, fmt.Errorf("%s took longer than %s", r.Name, timeout)
	}
}
