package tsv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoHeader = errors.New("tsv: missing header line")

// Table is a tab separated excel file. Fields are never quoted, so a line is
// split on tabs and nothing else.
type Table struct {
	columns   []string
	index     map[string]int
	header    string
	headerEOL string
	records   []*Record
}

// Record is one line of a Table. It keeps the raw line and its own line ending
// so that records which are never written to come back out unchanged.
type Record struct {
	table  *Table
	raw    string
	eol    string
	fields []string
	dirty  bool
}

// splitLines splits data after each newline. Each line keeps the ending it was
// read with: "\r\n", "\n", or "" for a last line with none.
func splitLines(data string) (lines, eols []string) {
	for data != "" {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, data)
			eols = append(eols, "")
			break
		}
		line, eol := data[:i], "\n"
		if strings.HasSuffix(line, "\r") {
			line, eol = line[:len(line)-1], "\r\n"
		}
		lines = append(lines, line)
		eols = append(eols, eol)
		data = data[i+1:]
	}
	return lines, eols
}

func Read(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lines, eols := splitLines(string(data))
	if len(lines) == 0 {
		return nil, ErrNoHeader
	}

	t := &Table{
		index:     map[string]int{},
		header:    lines[0],
		headerEOL: eols[0],
		columns:   strings.Split(lines[0], "\t"),
	}
	for i, c := range t.columns {
		if _, ok := t.index[c]; !ok {
			t.index[c] = i
		}
	}
	for i, line := range lines[1:] {
		t.records = append(t.records, &Record{
			table:  t,
			raw:    line,
			eol:    eols[i+1],
			fields: strings.Split(line, "\t"),
		})
	}
	return t, nil
}

func ReadFile(name string) (*Table, error) {
	f, err := os.Open(filepath.Clean(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return t, nil
}

func (t *Table) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(t.header + t.headerEOL); err != nil {
		return err
	}
	for _, rec := range t.records {
		if _, err := bw.WriteString(rec.String() + rec.eol); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the table to name, creating parent directories as needed.
func (t *Table) WriteFile(name string) error {
	if err := os.MkdirAll(filepath.Dir(name), 0750); err != nil {
		return err
	}
	f, err := os.Create(filepath.Clean(name))
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

func (t *Table) Records() []*Record {
	return t.records
}

func (t *Table) Len() int {
	return len(t.records)
}

func (r *Record) Get(column string) string {
	i, ok := r.table.index[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

// Set writes value into column. Unknown columns are ignored. Writing the value
// a field already holds leaves the record untouched.
func (r *Record) Set(column, value string) {
	i, ok := r.table.index[column]
	if !ok {
		return
	}
	if r.Get(column) == value {
		return
	}
	for len(r.fields) <= i {
		r.fields = append(r.fields, "")
	}
	r.fields[i] = value
	r.dirty = true
}

// Map returns the record as column name to value.
func (r *Record) Map() map[string]string {
	m := make(map[string]string, len(r.table.columns))
	for _, c := range r.table.columns {
		m[c] = r.Get(c)
	}
	return m
}

func (r *Record) Dirty() bool {
	return r.dirty
}

func (r *Record) String() string {
	if !r.dirty {
		return r.raw
	}
	return strings.Join(r.fields, "\t")
}
