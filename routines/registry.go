// Package routines holds the named procedures a pipeline run can invoke.
//
// A routine takes exactly one structured argument, the JSON object text of a
// record, and returns exactly one scalar. Routines are registered as SQL
// functions on every database connection, so they are invoked through the
// session like any stored procedure.
package routines

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/teranos/evalanche/errors"
)

// Func is the implementation of a routine. arg is the JSON object text of one
// record. The result must be nil, a string, []byte, bool, an integer or a float.
type Func func(arg string) (any, error)

// Routine is a named, registered Func
type Routine struct {
	Name        string
	Description string
	Fn          Func
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Registry manages the available routines.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	routines map[string]Routine
}

// NewRegistry creates an empty routine registry
func NewRegistry() *Registry {
	return &Registry{
		routines: make(map[string]Routine),
	}
}

// Register adds a routine. Names are case-insensitive, as SQL function names are.
func (r *Registry) Register(name, description string, fn Func) error {
	if !namePattern.MatchString(name) {
		return errors.NewConfigurationError("invalid routine name %q", name)
	}
	if fn == nil {
		return errors.NewConfigurationError("routine %q has no implementation", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := r.routines[key]; exists {
		return errors.NewConfigurationError("routine %q already registered", name)
	}
	r.routines[key] = Routine{Name: key, Description: description, Fn: fn}
	return nil
}

// Get returns the routine registered under name
func (r *Registry) Get(name string) (Routine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routine, ok := r.routines[strings.ToLower(name)]
	return routine, ok
}

// List returns all routines sorted by name
func (r *Registry) List() []Routine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Routine, 0, len(r.routines))
	for _, routine := range r.routines {
		list = append(list, routine)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Names returns the sorted routine names
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, routine := range list {
		names[i] = routine.Name
	}
	return names
}

// SQLFunctions returns the implementations keyed by name, for registration
// on a database connection.
func (r *Registry) SQLFunctions() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fns := make(map[string]any, len(r.routines))
	for name, routine := range r.routines {
		fns[name] = routine.Fn
	}
	return fns
}

// NormalizeName reduces a routine reference to the bare routine name.
// References may be fully qualified ("EVAL.main.square_len") and may carry an
// argument signature ("square_len(VARIANT)"); both are stripped.
func NormalizeName(ref string) (string, error) {
	name := strings.TrimSpace(ref)
	if i := strings.Index(name, "("); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Trim(name, `"`)
	if !namePattern.MatchString(name) {
		return "", errors.NewConfigurationError("invalid routine reference %q", ref)
	}
	return strings.ToLower(name), nil
}
