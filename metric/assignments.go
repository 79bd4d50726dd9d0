package metric

import (
	"strings"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/session"
)

// Assignments maps metric name to parameter name to the column that feeds it
type Assignments map[string]map[string]string

// Assign sets the column for one parameter of metric
func (a Assignments) Assign(metric, param, column string) {
	metric = strings.ToLower(metric)
	if a[metric] == nil {
		a[metric] = make(map[string]string)
	}
	a[metric][param] = column
}

// Column returns the column assigned to param of metric
func (a Assignments) Column(metric, param string) (string, bool) {
	col, ok := a[strings.ToLower(metric)][param]
	return col, ok && col != ""
}

// Validate checks that every required parameter of metrics has a column and
// that each assigned column is one of columns (case-insensitive)
func (a Assignments) Validate(metrics []Metric, columns []string) error {
	if len(metrics) == 0 {
		return errors.NewInvalidRequestError("no metrics selected")
	}

	var missing []string
	for _, m := range metrics {
		for _, p := range m.Required() {
			if _, ok := a.Column(m.Name(), p.Name); !ok {
				missing = append(missing, m.Name()+"."+p.Name)
			}
		}
	}
	if len(missing) > 0 {
		return errors.WithHintf(
			errors.NewInvalidRequestError("select columns for all required parameters"),
			"unassigned: %s", strings.Join(missing, ", "),
		)
	}

	for _, m := range metrics {
		for _, p := range m.Required() {
			col, _ := a.Column(m.Name(), p.Name)
			if !containsFold(columns, col) {
				return errors.WithHintf(
					errors.NewNotFoundError("column %q assigned to %s.%s not found", col, m.Name(), p.Name),
					"available columns: %s", strings.Join(columns, ", "),
				)
			}
		}
	}
	return nil
}

// Params collects the parameter values of m from rec
func (a Assignments) Params(m Metric, rec session.Record) map[string]any {
	params := make(map[string]any, len(m.Required()))
	for _, p := range m.Required() {
		col, _ := a.Column(m.Name(), p.Name)
		v, _ := rec.Get(col)
		params[p.Name] = v
	}
	return params
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
