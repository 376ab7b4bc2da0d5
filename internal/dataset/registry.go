// Package dataset holds the DataSetDefinition registry and the
// filename-grammar matcher from spec.md §4.3/§6, plus typed views over
// the loosely-typed Record maps the ingestion pipeline produces.
//
// All field-name constants used across parser, store, and rules live
// here (DataFields), per spec.md §9's design note on pairing dynamically
// typed row maps with small typed "view" helpers.
package dataset

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keeperdata/keeperdata/internal/types"
)

// LoadDefinitions reads a YAML file of DataSetDefinitions (the
// "datasets" path referenced by Config.Datasets) and returns them in
// file order. spec.md §3: DataSetDefinition is "static (loaded once
// per process)".
func LoadDefinitions(path string) ([]types.DataSetDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: cannot read definitions file %q: %w", path, err)
	}
	var wrapper struct {
		Datasets []types.DataSetDefinition `yaml:"datasets"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("dataset: invalid YAML in %q: %w", path, err)
	}
	return wrapper.Datasets, nil
}

// Registry holds the statically loaded DataSetDefinitions for a process.
type Registry struct {
	defs map[string]types.DataSetDefinition
}

// NewRegistry builds a Registry from a list of definitions. Returns an
// error if any definition has an empty name or duplicate name —
// spec.md §7 ConfigError, fatal at construction.
func NewRegistry(defs []types.DataSetDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]types.DataSetDefinition, len(defs))}
	for _, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("dataset registry: definition with empty name")
		}
		if _, exists := r.defs[d.Name]; exists {
			return nil, fmt.Errorf("dataset registry: duplicate dataset name %q", d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// Get returns the definition for name, if registered.
func (r *Registry) Get(name string) (types.DataSetDefinition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// All returns every registered definition, sorted by name for
// deterministic iteration.
func (r *Registry) All() []types.DataSetDefinition {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]types.DataSetDefinition, 0, len(names))
	for _, n := range names {
		out = append(out, r.defs[n])
	}
	return out
}

// dateTokenPattern matches a date token in either hyphenated
// (YYYY-MM-DD) or compact (YYYYMMDD) form, optionally followed by
// "-HHMMSS" — see crypto.dateTokenPattern for why both forms are
// accepted.
var dateTokenPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{8})(-\d{6})?$`)

// Match parses a key's basename into (datasetName, logicalDate). It
// returns ok=false when no registered definition's FilePrefixFormat is a
// prefix of the basename, or when no date token is present.
func (r *Registry) Match(key string) (datasetName string, logicalDate time.Time, ok bool) {
	base := Basename(key)
	base = strings.TrimSuffix(base, ".csv.enc")

	if _, _, hasDate := ExtractDateToken(base); !hasDate {
		return "", time.Time{}, false
	}

	for _, d := range r.All() {
		if strings.HasPrefix(base, d.FilePrefixFormat) {
			_, ts, hasDate := ExtractDateToken(base)
			if !hasDate {
				continue
			}
			return d.Name, ts, true
		}
	}
	return "", time.Time{}, false
}

// Basename returns the final path segment of an object key.
func Basename(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}

// ExtractDateToken finds the first underscore-separated token in base
// matching the date grammar (hyphenated or compact, optionally
// "-HHMMSS") and parses it to a time.Time (UTC).
func ExtractDateToken(base string) (token string, ts time.Time, ok bool) {
	tokens := strings.Split(base, "_")
	for _, t := range tokens {
		// A trailing token may carry an extension, e.g. "2025-01-01.csv".
		candidate := t
		if i := strings.Index(candidate, "."); i >= 0 {
			candidate = candidate[:i]
		}

		datePart := candidate
		timePart := ""
		if len(candidate) > 8 && candidate[8] == '-' && len(candidate) == 15 {
			datePart, timePart = candidate[:8], candidate[9:]
		} else if len(candidate) > 10 && candidate[10] == '-' && len(candidate) == 17 {
			datePart, timePart = candidate[:10], candidate[11:]
		}

		if !dateTokenPattern.MatchString(candidate) {
			continue
		}

		layout := "2006-01-02"
		if len(datePart) == 8 {
			layout = "20060102"
		}
		if timePart != "" {
			layout += "-150405"
			datePart += "-" + timePart
		}

		parsed, err := time.Parse(layout, datePart)
		if err != nil {
			continue
		}
		return t, parsed, true
	}
	return "", time.Time{}, false
}
