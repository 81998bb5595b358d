package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/boardzilla/lootmod/internal/strtable"
	"github.com/boardzilla/lootmod/internal/treasure"
)

const (
	ManifestFile       = "mod.json"
	ManifestFileLegacy = "mod.v1.json"
)

type TreasureClassConfig struct {
	Files      []string          `json:"files"`
	Rules      []string          `json:"rules"`
	Multiplier float64           `json:"multiplier,omitempty"`
	Clutter    []string          `json:"clutter,omitempty"`
	Remap      map[string]string `json:"remap,omitempty"`
	Scripts    []string          `json:"scripts,omitempty"`
}

type StringsConfig struct {
	Files     []string          `json:"files"`
	Rename    map[string]string `json:"rename,omitempty"`
	Languages []string          `json:"languages,omitempty"`
	Colors    map[string]string `json:"colors,omitempty"`
}

type ManifestV1 struct {
	Name            string              `json:"name"`
	Version         string              `json:"version"`
	DataRoot        string              `json:"dataRoot"`
	OutputDirectory string              `json:"outDir"`
	WatchPaths      []string            `json:"watchPaths,omitempty"`
	TreasureClasses TreasureClassConfig `json:"treasureClasses"`
	Strings         StringsConfig       `json:"strings"`
}

func (m *ManifestV1) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !semver.IsValid(CanonicalVersion(m.Version)) {
		errs = append(errs, fmt.Errorf("version %q is not a semantic version", m.Version))
	}
	if strings.TrimSpace(m.OutputDirectory) == "" {
		errs = append(errs, errors.New("outDir is required"))
	}
	for _, name := range m.TreasureClasses.Rules {
		if _, ok := treasure.Lookup(name, treasure.Options{}); !ok {
			errs = append(errs, fmt.Errorf("unknown rule %q (known rules: %s)", name, strings.Join(treasure.Names(), ", ")))
		}
	}
	if m.TreasureClasses.Multiplier < 0 {
		errs = append(errs, errors.New("multiplier must not be negative"))
	}
	for key, c := range m.Strings.Colors {
		if _, err := strtable.ParseColor(c); err != nil {
			errs = append(errs, fmt.Errorf("color for %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// CanonicalVersion accepts versions with or without the leading v.
func CanonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Rules builds the configured treasure class rules in manifest order.
func (m *ManifestV1) Rules() ([]treasure.Rule, error) {
	opts := treasure.Options{
		Multiplier: m.TreasureClasses.Multiplier,
		Clutter:    m.TreasureClasses.Clutter,
		Remap:      m.TreasureClasses.Remap,
	}
	rules := make([]treasure.Rule, 0, len(m.TreasureClasses.Rules))
	for _, name := range m.TreasureClasses.Rules {
		rule, ok := treasure.Lookup(name, opts)
		if !ok {
			return nil, fmt.Errorf("unknown rule %q", name)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// NewManifest returns the manifest lootmod init writes for a new mod.
func NewManifest(name, dataRoot string, rules []string) *ManifestV1 {
	return &ManifestV1{
		Name:            name,
		Version:         "v0.1.0",
		DataRoot:        dataRoot,
		OutputDirectory: "out",
		TreasureClasses: TreasureClassConfig{
			Files: []string{"global/excel/treasureclassex.txt"},
			Rules: rules,
		},
		Strings: StringsConfig{
			Files: []string{"local/lng/strings/item-*.json"},
		},
	}
}

func WriteManifest(root string, m *ManifestV1) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path.Join(root, ManifestFile), append(data, '\n'), 0600)
}
