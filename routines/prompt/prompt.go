// Package prompt builds routines that answer each record with an LLM.
//
// A prompt routine renders a text/template with the record's columns, sends
// it to the configured provider and returns the trimmed reply:
//
//	[[routines]]
//	name = "answer"
//	system_prompt = "Answer in one word."
//	prompt = "{{.question}}"
package prompt

import (
	"context"
	"encoding/json"
	"strings"
	"text/template"

	"golang.org/x/time/rate"

	"github.com/teranos/evalanche/ai/openrouter"
	"github.com/teranos/evalanche/ai/provider"
	"github.com/teranos/evalanche/am"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/routines"
)

// Routine is an LLM-backed routine
type Routine struct {
	name    string
	tmpl    *template.Template
	system  string
	client  provider.AIClient
	limiter *rate.Limiter
}

// New parses promptText and returns a routine sending it through client.
// limiter may be nil.
func New(name, promptText, systemPrompt string, client provider.AIClient, limiter *rate.Limiter) (*Routine, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"json": toJSON}).
		Parse(promptText)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "routine %s: invalid prompt template", name)
	}
	return &Routine{
		name:    name,
		tmpl:    tmpl,
		system:  systemPrompt,
		client:  client,
		limiter: limiter,
	}, nil
}

// Render returns the prompt for one record
func (r *Routine) Render(arg string) (string, error) {
	fields, err := routines.DecodeArgument(arg)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := r.tmpl.Execute(&b, fields); err != nil {
		return "", errors.Wrapf(err, "routine %s: failed to render prompt", r.name)
	}
	return b.String(), nil
}

// Call implements routines.Func
func (r *Routine) Call(arg string) (any, error) {
	userPrompt, err := r.Render(arg)
	if err != nil {
		return nil, err
	}

	// SQL functions carry no context; the HTTP client timeout bounds the call
	ctx := context.Background()
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	resp, err := r.client.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: r.system,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// NewLimiter returns a limiter allowing callsPerMinute LLM calls per minute
// across every routine sharing it. 0 means unlimited.
func NewLimiter(callsPerMinute int) *rate.Limiter {
	if callsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), 1)
}

// Register adds a routine to reg for every [[routines]] entry of cfg. All of
// them share one rate limiter. clientCfg supplies tracking and logging; its
// Provider and Model are overridden per routine.
func Register(reg *routines.Registry, cfg *am.Config, clientCfg provider.ClientConfig) error {
	limiter := NewLimiter(cfg.RateLimit.LLMCallsPerMinute)

	for _, rc := range cfg.Routines {
		rcCfg := clientCfg
		rcCfg.Provider = rc.Provider
		rcCfg.Model = rc.Model
		rcCfg.OperationType = "routine"
		rcCfg.EntityType = "routine"
		rcCfg.EntityID = rc.Name

		client, err := provider.NewAIClient(cfg, rcCfg)
		if err != nil {
			return errors.Wrapf(err, "routine %s", rc.Name)
		}
		routine, err := New(rc.Name, rc.Prompt, rc.SystemPrompt, client, limiter)
		if err != nil {
			return err
		}
		if err := reg.Register(rc.Name, "LLM prompt routine", routine.Call); err != nil {
			return err
		}
	}
	return nil
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
