// Package metric scores evaluation rows. A metric names the parameters it
// needs; the caller assigns a column of the selected data to each parameter
// and the runner scores every row.
package metric

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/teranos/evalanche/ai/openrouter"
	"github.com/teranos/evalanche/ai/provider"
	"github.com/teranos/evalanche/errors"
)

// Param is one input of a metric
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Metric computes one score per row from its parameter values
type Metric interface {
	Name() string
	Description() string
	// Required returns the parameters Score expects, in display order
	Required() []Param
	// Score computes the metric for one row. params holds one value per
	// required parameter.
	Score(ctx context.Context, params map[string]any) (any, error)
}

// Registry manages the available metrics.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry creates an empty metric registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric under its lower-cased name
func (r *Registry) Register(m Metric) error {
	name := strings.ToLower(m.Name())
	if name == "" {
		return errors.NewConfigurationError("metric has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.metrics[name]; exists {
		return errors.NewConfigurationError("metric %q already registered", name)
	}
	r.metrics[name] = m
	return nil
}

// Get returns the metric registered under name
func (r *Registry) Get(name string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.metrics[strings.ToLower(name)]
	return m, ok
}

// Lookup returns the named metrics in order, failing on the first unknown name
func (r *Registry) Lookup(names ...string) ([]Metric, error) {
	metrics := make([]Metric, 0, len(names))
	for _, name := range names {
		m, ok := r.Get(name)
		if !ok {
			return nil, errors.WithHintf(
				errors.NewNotFoundError("metric %q not found", name),
				"available metrics: %s", strings.Join(r.Names(), ", "),
			)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// List returns all metrics sorted by name
func (r *Registry) List() []Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Names returns the sorted metric names
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, m := range list {
		names[i] = m.Name()
	}
	return names
}

// RegisterBuiltins adds the metrics that need no LLM. judge may be nil, in
// which case llm_correctness is not registered.
func RegisterBuiltins(r *Registry, judge provider.AIClient) error {
	builtins := []Metric{ExactMatch{}, Contains{}}
	if judge != nil {
		builtins = append(builtins, NewLLMCorrectness(judge))
	}
	for _, m := range builtins {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

var outputExpected = []Param{
	{Name: "output", Description: "Response to score"},
	{Name: "expected", Description: "Expected response"},
}

// ExactMatch scores 1 when output equals expected after trimming
// whitespace, otherwise 0
type ExactMatch struct{}

func (ExactMatch) Name() string        { return "exact_match" }
func (ExactMatch) Description() string { return "Output equals the expected response" }
func (ExactMatch) Required() []Param   { return outputExpected }

func (ExactMatch) Score(_ context.Context, params map[string]any) (any, error) {
	return boolScore(text(params["output"]) == text(params["expected"])), nil
}

// Contains scores 1 when output contains expected, ignoring case
type Contains struct{}

func (Contains) Name() string        { return "contains" }
func (Contains) Description() string { return "Output contains the expected response" }
func (Contains) Required() []Param   { return outputExpected }

func (Contains) Score(_ context.Context, params map[string]any) (any, error) {
	output := strings.ToLower(text(params["output"]))
	expected := strings.ToLower(text(params["expected"]))
	return boolScore(strings.Contains(output, expected)), nil
}

const correctnessSystemPrompt = `You grade answers to questions against a reference answer.
Reply with a single integer from 1 to 5, where 1 means the answer is wrong and 5 means it is fully correct and complete.`

const correctnessPrompt = `Question:
%s

Reference answer:
%s

Answer to grade:
%s

Score (1-5):`

var scorePattern = regexp.MustCompile(`\b[1-5]\b`)

// LLMCorrectness asks an LLM judge to grade output against expected on a
// 1 to 5 scale
type LLMCorrectness struct {
	client provider.AIClient
}

// NewLLMCorrectness creates the llm_correctness metric judged by client
func NewLLMCorrectness(client provider.AIClient) *LLMCorrectness {
	return &LLMCorrectness{client: client}
}

func (*LLMCorrectness) Name() string { return "llm_correctness" }
func (*LLMCorrectness) Description() string {
	return "LLM-judged correctness of the output, from 1 to 5"
}

func (*LLMCorrectness) Required() []Param {
	return []Param{
		{Name: "question", Description: "Question the output answers"},
		{Name: "output", Description: "Answer to grade"},
		{Name: "expected", Description: "Reference answer"},
	}
}

func (m *LLMCorrectness) Score(ctx context.Context, params map[string]any) (any, error) {
	resp, err := m.client.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: correctnessSystemPrompt,
		UserPrompt: fmt.Sprintf(correctnessPrompt,
			text(params["question"]), text(params["expected"]), text(params["output"])),
	})
	if err != nil {
		return nil, errors.WrapInvocation(err, "llm_correctness judge call")
	}
	return ParseScore(resp.Content)
}

// ParseScore extracts the first standalone 1 to 5 digit of a judge reply
func ParseScore(reply string) (float64, error) {
	match := scorePattern.FindString(reply)
	if match == "" {
		return 0, errors.WithDetailf(
			errors.Mark(errors.New("judge reply has no 1-5 score"), errors.ErrInvocation),
			"reply: %q", reply,
		)
	}
	score, _ := strconv.Atoi(match)
	return float64(score), nil
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// text renders a parameter value as trimmed text. nil is empty.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// numeric returns v as a float64 when it is a number or a bool
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		return boolScore(n), true
	default:
		return 0, false
	}
}
