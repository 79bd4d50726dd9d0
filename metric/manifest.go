package metric

import (
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/selection"
	"github.com/teranos/evalanche/session"
)

// Manifest describes one evaluation: the data to score, the metrics with
// their parameter columns, and an optional results table.
//
//	[selection.single]
//	table = "EVAL.main.answers"
//
//	[[metrics]]
//	name = "exact_match"
//	params = { output = "response", expected = "answer" }
//
//	[output]
//	table = "EVAL.main.scores"
//	create = true
type Manifest struct {
	Selection selection.Selection `toml:"selection"`
	Metrics   []MetricEntry       `toml:"metrics"`
	Output    OutputEntry         `toml:"output"`
}

// MetricEntry selects one metric and assigns a column to each parameter
type MetricEntry struct {
	Name   string            `toml:"name"`
	Params map[string]string `toml:"params"`
}

// OutputEntry names the results table
type OutputEntry struct {
	Table  string `toml:"table"`
	Create bool   `toml:"create"` // create the table when it does not exist
}

// LoadManifest decodes the manifest at path. Unknown keys are rejected.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "failed to read manifest %s", path)
	}
	if err := checkUndecoded(md, path); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseManifest decodes a manifest from TOML text
func ParseManifest(data string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(data, &m)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "failed to parse manifest")
	}
	if err := checkUndecoded(md, "manifest"); err != nil {
		return nil, err
	}
	return &m, nil
}

func checkUndecoded(md toml.MetaData, source string) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	sort.Strings(keys)
	return errors.NewConfigurationError("%s has unknown keys: %s", source, strings.Join(keys, ", "))
}

// Validate checks the data selection and that at least one metric is named,
// each at most once
func (m *Manifest) Validate() error {
	if err := m.Selection.Validate(); err != nil {
		return err
	}
	if len(m.Metrics) == 0 {
		return errors.WithHint(
			errors.NewInvalidRequestError("no metrics selected"),
			"add a [[metrics]] entry",
		)
	}
	seen := make(map[string]int, len(m.Metrics))
	for i, e := range m.Metrics {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" {
			return errors.NewInvalidRequestError("metric %d has no name", i+1)
		}
		if first, ok := seen[name]; ok {
			return errors.WithHint(
				errors.NewConfigurationError("metric %s is listed twice (entries %d and %d)", e.Name, first, i+1),
				"merge the parameters into one [[metrics]] entry",
			)
		}
		seen[name] = i + 1
	}
	if m.Output.Create && m.Output.Table == "" {
		return errors.NewInvalidRequestError("create is set but no output table is named")
	}
	return nil
}

// Resolve looks up the manifest's metrics in reg and returns them with their
// assignments
func (m *Manifest) Resolve(reg *Registry) ([]Metric, Assignments, error) {
	names := make([]string, len(m.Metrics))
	for i, e := range m.Metrics {
		names[i] = e.Name
	}
	metrics, err := reg.Lookup(names...)
	if err != nil {
		return nil, nil, err
	}

	assignments := make(Assignments, len(m.Metrics))
	for _, e := range m.Metrics {
		for param, col := range e.Params {
			assignments.Assign(e.Name, param, col)
		}
	}
	return metrics, assignments, nil
}

// OutputRef parses the results table reference. The zero ref means no
// results table.
func (m *Manifest) OutputRef() (session.TableRef, error) {
	if strings.TrimSpace(m.Output.Table) == "" {
		return session.TableRef{}, nil
	}
	return session.ParseTableRef(m.Output.Table)
}
