// Package policy evaluates the configurable session rules with OPA.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/radhhh/flae-bot/internal/domain"
)

// Engine is the OPA policy engine.
type Engine struct {
	reopen  rego.PreparedEvalQuery
	counted rego.PreparedEvalQuery
}

// ReopenInput is the input document of the reopen rule.
type ReopenInput struct {
	Window      string
	StartedAt   time.Time
	ConfirmedAt time.Time
	Now         time.Time
	WeekStart   time.Time
	WeekEnd     time.Time
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	reopen, err := prepare(ctx, "data.flae.allow_reopen", policyContent)
	if err != nil {
		return nil, err
	}
	counted, err := prepare(ctx, "data.flae.counted_statuses", policyContent)
	if err != nil {
		return nil, err
	}
	return &Engine{reopen: reopen, counted: counted}, nil
}

// Load creates an engine from a rego file, or from DefaultPolicy when path is empty.
func Load(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return NewEngine(ctx, string(content))
}

func prepare(ctx context.Context, query, content string) (rego.PreparedEvalQuery, error) {
	r := rego.New(
		rego.Query(query),
		rego.Module("flae.rego", content),
	)
	q, err := r.PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return q, nil
}

// AllowReopen reports whether a confirmed session may be reopened.
func (e *Engine) AllowReopen(ctx context.Context, in ReopenInput) (bool, error) {
	results, err := e.reopen.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"reopen_window":   in.Window,
		"started_at_ms":   in.StartedAt.UnixMilli(),
		"confirmed_at_ms": in.ConfirmedAt.UnixMilli(),
		"now_ms":          in.Now.UnixMilli(),
		"week_start_ms":   in.WeekStart.UnixMilli(),
		"week_end_ms":     in.WeekEnd.UnixMilli(),
	}))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("allow_reopen: unexpected result %T", results[0].Expressions[0].Value)
	}
	return allowed, nil
}

// CountedStatuses returns the session statuses that count toward allocation progress.
func (e *Engine) CountedStatuses(ctx context.Context, countUnconfirmed bool) ([]domain.SessionStatus, error) {
	results, err := e.counted.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"count_unconfirmed": countUnconfirmed,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}
	values, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("counted_statuses: unexpected result %T", results[0].Expressions[0].Value)
	}
	out := make([]domain.SessionStatus, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("counted_statuses: unexpected member %T", v)
		}
		out = append(out, domain.SessionStatus(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package flae

import rego.v1

default allow_reopen := false

allow_reopen if input.reopen_window == "unbounded"

# same_week: only sessions started in the current week may be reopened.
allow_reopen if {
	input.reopen_window == "same_week"
	input.started_at_ms >= input.week_start_ms
	input.started_at_ms < input.week_end_ms
}

counted_statuses contains "CONFIRMED"

counted_statuses contains "STOPPED_UNCONFIRMED" if input.count_unconfirmed
`
