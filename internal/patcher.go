package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gookit/color"
	"golang.org/x/exp/maps"

	"github.com/boardzilla/lootmod/internal/script"
	"github.com/boardzilla/lootmod/internal/strtable"
	"github.com/boardzilla/lootmod/internal/treasure"
	"github.com/boardzilla/lootmod/internal/tsv"
)

// DataRootEnv overrides the manifest's dataRoot.
const DataRootEnv = "LOOTMOD_DATA"

type TableReport struct {
	Path          string         `json:"path"`
	Rows          int            `json:"rows"`
	Changed       map[string]int `json:"changed"`
	ScriptChanged map[string]int `json:"scriptChanged,omitempty"`
}

type StringsReport struct {
	Path      string   `json:"path"`
	Renamed   int      `json:"renamed"`
	Recolored int      `json:"recolored"`
	Missing   []string `json:"missing,omitempty"`
}

type Report struct {
	Tables   []*TableReport   `json:"tables"`
	Strings  []*StringsReport `json:"strings"`
	Duration time.Duration    `json:"duration"`
}

type Patcher struct {
	root string
}

func NewPatcher(root string) (*Patcher, error) {
	return &Patcher{
		root: root,
	}, nil
}

func (p *Patcher) Root() string {
	return p.root
}

func (p *Patcher) Manifest() (*ManifestV1, error) {
	f, err := os.Open(path.Join(p.root, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			f, err = os.Open(path.Join(p.root, ManifestFileLegacy))
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	defer f.Close()
	manifest := &ManifestV1{}
	if err := json.NewDecoder(f).Decode(manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

func (p *Patcher) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return path.Join(p.root, dir)
}

// DataRoot is the directory the unmodified game files are read from.
func (p *Patcher) DataRoot(m *ManifestV1) string {
	if env := os.Getenv(DataRootEnv); env != "" {
		return env
	}
	return p.resolve(m.DataRoot)
}

func (p *Patcher) OutDir(m *ManifestV1) string {
	return p.resolve(m.OutputDirectory)
}

// within reports whether target is dir or lies beneath it.
func within(dir, target string) bool {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkOutDir fails when emptying the output directory would remove the mod
// itself or the game data it reads from.
func (p *Patcher) checkOutDir(m *ManifestV1) error {
	outDir := p.OutDir(m)
	if within(outDir, p.root) {
		return fmt.Errorf("outDir %q must not contain the mod root %s", m.OutputDirectory, p.root)
	}
	if dataRoot := p.DataRoot(m); within(outDir, dataRoot) {
		return fmt.Errorf("outDir %q must not contain the game data in %s", m.OutputDirectory, dataRoot)
	}
	return nil
}

// Validate checks the manifest along with the paths it resolves to under this
// mod root.
func (p *Patcher) Validate(m *ManifestV1) error {
	err := m.Validate()
	if strings.TrimSpace(m.OutputDirectory) == "" {
		return err
	}
	return errors.Join(err, p.checkOutDir(m))
}

// IsOutput reports whether name lies in the output directory of the current
// manifest.
func (p *Patcher) IsOutput(name string) bool {
	manifest, err := p.Manifest()
	if err != nil {
		return false
	}
	return within(p.OutDir(manifest), name)
}

// match expands the manifest globs against dir. Results are relative to dir,
// sorted and unique.
func match(dir string, patterns []string) ([]string, error) {
	found := map[string]bool{}
	fsys := os.DirFS(dir)
	for _, pattern := range patterns {
		names, err := doublestar.Glob(fsys, filepath.ToSlash(pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		if len(names) == 0 {
			color.Printf("<yellow>No files match %s in %s</>\n", pattern, dir)
		}
		for _, n := range names {
			found[n] = true
		}
	}
	names := maps.Keys(found)
	sort.Strings(names)
	return names, nil
}

// Patch reads every file the manifest names from the data root, applies the
// configured edits and writes the results to the output directory.
func (p *Patcher) Patch(ctx context.Context) (*Report, error) {
	startTime := time.Now()
	manifest, err := p.Manifest()
	if err != nil {
		return nil, err
	}
	if err := p.Validate(manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	rules, err := manifest.Rules()
	if err != nil {
		return nil, err
	}
	scripts := make([]*script.Runner, 0, len(manifest.TreasureClasses.Scripts))
	for _, s := range manifest.TreasureClasses.Scripts {
		runner, err := script.Load(p.resolve(s))
		if err != nil {
			return nil, fmt.Errorf("load script: %w", err)
		}
		scripts = append(scripts, runner)
	}

	dataRoot := p.DataRoot(manifest)
	outDir := p.OutDir(manifest)
	color.Printf("Patching <cyan>%s</> from <grey>%s</>\n", manifest.Name, dataRoot)

	report := &Report{Tables: []*TableReport{}, Strings: []*StringsReport{}}

	tables, err := match(dataRoot, manifest.TreasureClasses.Files)
	if err != nil {
		return nil, err
	}
	for _, name := range tables {
		tr, err := p.patchTable(ctx, name, dataRoot, outDir, rules, scripts)
		if err != nil {
			return nil, err
		}
		report.Tables = append(report.Tables, tr)
	}

	stringFiles, err := match(dataRoot, manifest.Strings.Files)
	if err != nil {
		return nil, err
	}
	for _, name := range stringFiles {
		sr, err := p.patchStrings(name, dataRoot, outDir, manifest)
		if err != nil {
			return nil, err
		}
		report.Strings = append(report.Strings, sr)
	}

	report.Duration = time.Since(startTime)
	color.Printf("Patched %d table(s) and %d string file(s) in %s\n", len(report.Tables), len(report.Strings), report.Duration)
	return report, nil
}

func (p *Patcher) patchTable(ctx context.Context, name, dataRoot, outDir string, rules []treasure.Rule, scripts []*script.Runner) (*TableReport, error) {
	table, err := tsv.ReadFile(path.Join(dataRoot, name))
	if err != nil {
		return nil, err
	}
	stats := treasure.ApplyTable(table, rules...)
	tr := &TableReport{
		Path:    name,
		Rows:    stats.Rows,
		Changed: stats.Changed,
	}
	for _, rule := range rules {
		color.Printf("  %s <grey>%s</> changed %d row(s)\n", name, rule.Name, stats.Changed[rule.Name])
	}
	for _, s := range scripts {
		n, err := s.ApplyTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if tr.ScriptChanged == nil {
			tr.ScriptChanged = map[string]int{}
		}
		tr.ScriptChanged[s.Name] = n
		color.Printf("  %s <grey>%s</> changed %d row(s)\n", name, s.Name, n)
	}
	if err := table.WriteFile(path.Join(outDir, name)); err != nil {
		return nil, err
	}
	return tr, nil
}

func (p *Patcher) patchStrings(name, dataRoot, outDir string, m *ManifestV1) (*StringsReport, error) {
	doc, err := strtable.ReadFile(path.Join(dataRoot, name))
	if err != nil {
		return nil, err
	}
	sr := &StringsReport{Path: name}
	missing := map[string]bool{}

	keys := maps.Keys(m.Strings.Rename)
	sort.Strings(keys)
	for _, key := range keys {
		n, err := doc.Rename(key, m.Strings.Rename[key], m.Strings.Languages...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if n == 0 {
			missing[key] = true
		}
		sr.Renamed += n
	}

	keys = maps.Keys(m.Strings.Colors)
	sort.Strings(keys)
	for _, key := range keys {
		c, err := strtable.ParseColor(m.Strings.Colors[key])
		if err != nil {
			return nil, err
		}
		n, err := doc.Recolor(key, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if n == 0 {
			missing[key] = true
		}
		sr.Recolored += n
	}

	sr.Missing = maps.Keys(missing)
	sort.Strings(sr.Missing)
	color.Printf("  %s renamed %d, recolored %d\n", name, sr.Renamed, sr.Recolored)
	if err := doc.WriteFile(path.Join(outDir, name)); err != nil {
		return nil, err
	}
	return sr, nil
}

// Clean empties the output directory. It refuses to when the output directory
// holds the mod root or the game data.
func (p *Patcher) Clean() error {
	manifest, err := p.Manifest()
	if err != nil {
		return err
	}
	if strings.TrimSpace(manifest.OutputDirectory) == "" {
		return errors.New("outDir is required")
	}
	if err := p.checkOutDir(manifest); err != nil {
		return err
	}
	outDir := p.OutDir(manifest)
	_, err = os.Stat(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	files, err := os.ReadDir(outDir)
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := os.RemoveAll(path.Join(outDir, f.Name())); err != nil {
			return fmt.Errorf("remove output path: %w", err)
		}
	}
	return nil
}

// WatchedFiles lists the paths whose changes should trigger a new patch.
func (p *Patcher) WatchedFiles() ([]string, error) {
	manifest, err := p.Manifest()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(manifest.WatchPaths)+len(manifest.TreasureClasses.Scripts)+2)
	for _, name := range []string{ManifestFile, ManifestFileLegacy} {
		if _, err := os.Stat(path.Join(p.root, name)); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			paths = append(paths, path.Join(p.root, name))
		}
	}
	if _, err := os.Stat(p.DataRoot(manifest)); err == nil {
		paths = append(paths, p.DataRoot(manifest))
	}
	for _, s := range manifest.TreasureClasses.Scripts {
		paths = append(paths, p.resolve(s))
	}
	for _, w := range manifest.WatchPaths {
		paths = append(paths, p.resolve(w))
	}
	return paths, nil
}
