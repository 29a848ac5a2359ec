// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package react implements the bounded Thought→Action→Observation
// reasoning loop. Each iteration routes the current goal to a
// capability, invokes it, and decides from the observation whether to
// terminate, chain another capability, or retry with an alternative.
package react

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/core"
	"github.com/demeterhq/demeter/pkg/errors"
	"github.com/demeterhq/demeter/pkg/history"
	"github.com/demeterhq/demeter/pkg/resilience"
	"github.com/demeterhq/demeter/pkg/router"
	"github.com/demeterhq/demeter/pkg/telemetry"
)

// DefaultMaxIterations bounds the loop when no override is given.
const DefaultMaxIterations = 5

// historySummaryTurns and historySummaryMaxLen bound the conversation
// context injected into capability arguments.
const (
	historySummaryTurns  = 3
	historySummaryMaxLen = 500
)

// Loop drives the reasoning state machine. One Loop may serve many
// concurrent queries; each Run builds its own Trace.
type Loop struct {
	registry      *capability.Registry
	router        *router.Router
	history       *history.Buffer
	maxIterations int
	callTimeout   time.Duration
	log           *slog.Logger
	tracer        trace.Tracer
	metrics       *telemetry.Metrics
	emitter       core.EventEmitter
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxIterations overrides the iteration bound.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithCallTimeout bounds each capability invocation. Zero disables the
// per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(l *Loop) {
		l.callTimeout = d
	}
}

// WithHistory supplies conversation history used as context for
// capability calls.
func WithHistory(h *history.Buffer) Option {
	return func(l *Loop) {
		l.history = h
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		l.log = log
	}
}

// WithEmitter attaches a semantic event sink for per-step and
// per-invocation events.
func WithEmitter(e core.EventEmitter) Option {
	return func(l *Loop) {
		if e != nil {
			l.emitter = e
		}
	}
}

// New creates a reasoning loop over the given registry and router.
func New(registry *capability.Registry, rtr *router.Router, opts ...Option) *Loop {
	l := &Loop{
		registry:      registry,
		router:        rtr,
		maxIterations: DefaultMaxIterations,
		log:           slog.Default(),
		tracer:        otel.Tracer("demeter/react"),
		emitter:       core.NoopEventEmitter{},
	}
	l.metrics, _ = telemetry.GetMetrics()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// pending is a forced next action: either a chained follow-up or a
// single retry with the next-ranked alternative. A pending action
// carries no alternatives, so a failed retry terminates the loop.
type pending struct {
	name    string
	thought string
	args    map[string]any
}

// Run executes the full loop for one query. The returned Trace is
// always non-nil; a non-nil error accompanies cancellation or a
// registry with no usable capabilities.
func (l *Loop) Run(ctx context.Context, query string) (*Trace, error) {
	ctx, span := l.tracer.Start(ctx, "react.run")
	defer span.End()

	tr := &Trace{}
	goal := query
	attempted := make([]string, 0, l.maxIterations)
	var next *pending

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		// Cancellation is honored between iterations only; a capability
		// call in flight is opaque and runs to its own timeout.
		if err := ctx.Err(); err != nil {
			tr.Success = false
			tr.State = StateFailed
			tr.FinalAnswer = fmt.Sprintf("query cancelled after %d step(s)", len(tr.Steps))
			return tr, errors.New(errors.CodeTimeout, "reasoning loop cancelled", err).
				WithContext("iterations_used", tr.IterationsUsed)
		}

		var name, thought string
		var args map[string]any
		var alternatives []router.Candidate

		if next != nil {
			name, thought, args = next.name, next.thought, next.args
			next = nil
		} else {
			decision, err := l.router.Analyze(goal)
			if err != nil {
				tr.Success = false
				tr.State = StateFailed
				tr.FinalAnswer = "no capability available to answer the query"
				return tr, err
			}
			name = decision.Selected
			alternatives = decision.Alternatives
			thought = fmt.Sprintf("Routing to %s (confidence %.2f) for: %s", name, decision.Confidence, goal)
			args = l.baseArgs(goal)
			span.AddEvent("react.route", trace.WithAttributes(
				telemetry.RouterAttributes(decision.Selected, decision.Confidence, decision.Fallback, len(decision.Alternatives))...))
		}

		obs := l.act(ctx, name, args)
		tr.append(Step{
			Iteration:   iteration,
			Thought:     thought,
			Action:      Action{Capability: name, Args: args},
			Observation: obs,
			Timestamp:   time.Now(),
		}, name)
		attempted = append(attempted, name)
		l.emitStep(ctx, query, iteration, name, thought, obs)

		l.log.Debug("react.iteration",
			slog.Int("iteration", iteration),
			slog.String("capability", name),
			slog.Bool("success", obs.Success),
		)
		if l.metrics != nil {
			l.metrics.RecordIteration(ctx)
		}

		if !obs.Success {
			if len(alternatives) > 0 {
				alt := alternatives[0]
				next = &pending{
					name:    alt.Name,
					thought: fmt.Sprintf("%s failed (%s); retrying with %s", name, obs.Error, alt.Name),
					args:    args,
				}
				continue
			}
			tr.Success = false
			tr.State = StateFailed
			tr.FinalAnswer = fmt.Sprintf("unable to answer: capabilities [%s] failed; last error: %s",
				strings.Join(attempted, ", "), obs.Error)
			span.SetAttributes(attribute.Bool(telemetry.AttrReactSuccess, false))
			return tr, nil
		}

		if !satisfied(obs) {
			// Successful but empty observation: route again on the same
			// goal until the iteration bound intervenes.
			continue
		}

		if l.category(name) == capability.CategoryRetrieval {
			if gen, ok := l.generationCapability(); ok {
				next = &pending{
					name:    gen.Name,
					thought: "Synthesizing an answer from the retrieved context",
					args: map[string]any{
						"query":   query,
						"context": formatPayload(obs.Payload),
					},
				}
				continue
			}
		}

		tr.Success = true
		tr.State = StateDone
		tr.FinalAnswer = formatPayload(obs.Payload)
		span.SetAttributes(telemetry.ReactAttributes(iteration, l.maxIterations, string(StateDone))...)
		return tr, nil
	}

	// Iteration limit reached: a normal termination with a best-effort
	// answer from the latest observation.
	tr.Success = false
	tr.State = StateDone
	tr.FinalAnswer = bestEffortAnswer(tr.Steps)
	span.SetAttributes(telemetry.ReactAttributes(l.maxIterations, l.maxIterations, string(StateDone))...)
	return tr, nil
}

// RunSingle performs one ACT/OBSERVE pair against a named capability,
// producing a length-1 trace. The orchestrator uses it for the fast
// path and for direct mode.
func (l *Loop) RunSingle(ctx context.Context, query, name, thought string) (*Trace, error) {
	ctx, span := l.tracer.Start(ctx, "react.run_single",
		trace.WithAttributes(attribute.String(telemetry.AttrCapabilityName, name)))
	defer span.End()

	tr := &Trace{}
	args := l.baseArgs(query)
	obs := l.act(ctx, name, args)
	tr.append(Step{
		Iteration:   0,
		Thought:     thought,
		Action:      Action{Capability: name, Args: args},
		Observation: obs,
		Timestamp:   time.Now(),
	}, name)
	l.emitStep(ctx, query, 0, name, thought, obs)

	if obs.Success {
		tr.Success = true
		tr.State = StateDone
		tr.FinalAnswer = formatPayload(obs.Payload)
	} else {
		tr.Success = false
		tr.State = StateFailed
		tr.FinalAnswer = fmt.Sprintf("capability %s failed: %s", name, obs.Error)
	}
	return tr, nil
}

// act resolves and invokes one capability under the per-call timeout.
// Every failure mode, including timeout and a missing capability, is
// mapped to a failed Observation.
func (l *Loop) act(ctx context.Context, name string, args map[string]any) Observation {
	desc, err := l.registry.Get(name)
	if err != nil {
		return Observation{Success: false, Error: err.Error()}
	}

	start := time.Now()
	value, err := resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: l.callTimeout}, func() (value interface{}, _ error) {
		// A panicking capability must surface as a failed observation,
		// never escape the invocation boundary.
		defer func() {
			if r := recover(); r != nil {
				value = capability.Fail(fmt.Sprintf("capability panicked: %v", r))
			}
		}()
		return desc.Invoke.Invoke(ctx, args), nil
	})
	elapsed := time.Since(start)

	var obs Observation
	if err != nil {
		obs = Observation{Success: false, Error: err.Error()}
	} else {
		res := value.(capability.Result)
		obs = Observation{Success: res.Success, Payload: res.Payload, Error: res.Error}
	}

	if l.metrics != nil {
		l.metrics.RecordCapability(ctx, name, obs.Success, float64(elapsed.Milliseconds()))
	}
	query, _ := args["query"].(string)
	l.emitter.Emit(ctx, core.NewEvent(core.EventCapabilityInvoked, runIDOf(ctx), query, map[string]any{
		"capability":  name,
		"success":     obs.Success,
		"duration_ms": elapsed.Milliseconds(),
	}))
	l.log.Debug("react.act",
		slog.String("capability", name),
		slog.Bool("success", obs.Success),
		slog.Duration("duration", elapsed),
	)
	return obs
}

func (l *Loop) emitStep(ctx context.Context, query string, iteration int, name, thought string, obs Observation) {
	l.emitter.Emit(ctx, core.NewEvent(core.EventReasoningStep, runIDOf(ctx), query, map[string]any{
		"iteration":  iteration,
		"capability": name,
		"thought":    thought,
		"success":    obs.Success,
	}))
}

func runIDOf(ctx context.Context) string {
	id, _ := core.RunID(ctx)
	return id
}

func (l *Loop) baseArgs(goal string) map[string]any {
	args := map[string]any{"query": goal}
	if l.history != nil && l.history.Len() > 0 {
		args["history"] = l.history.Summarize(historySummaryTurns, historySummaryMaxLen)
	}
	return args
}

func (l *Loop) category(name string) capability.Category {
	desc, err := l.registry.Get(name)
	if err != nil {
		return ""
	}
	return desc.Category
}

func (l *Loop) generationCapability() (capability.Descriptor, bool) {
	gens := l.registry.ListByCategory(capability.CategoryGeneration)
	if len(gens) == 0 {
		return capability.Descriptor{}, false
	}
	return gens[0], true
}

// satisfied applies the goal-satisfaction heuristic: the capability
// reported success and produced a non-empty payload.
func satisfied(obs Observation) bool {
	if !obs.Success {
		return false
	}
	switch v := obs.Payload.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	}
	return true
}

func bestEffortAnswer(steps []Step) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Observation.Success {
			if answer := formatPayload(steps[i].Observation.Payload); answer != "" {
				return answer
			}
		}
	}
	if len(steps) > 0 {
		last := steps[len(steps)-1]
		if last.Observation.Error != "" {
			return fmt.Sprintf("no complete answer within the iteration limit; last error: %s", last.Observation.Error)
		}
	}
	return "no complete answer within the iteration limit"
}
