// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator is the public façade of the decision core. It
// selects a processing mode per query, wires the router, reasoning
// loop, pipelines and history together, and records the resulting
// trace.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/core"
	"github.com/demeterhq/demeter/pkg/errors"
	"github.com/demeterhq/demeter/pkg/history"
	"github.com/demeterhq/demeter/pkg/pipeline"
	"github.com/demeterhq/demeter/pkg/react"
	"github.com/demeterhq/demeter/pkg/router"
	"github.com/demeterhq/demeter/pkg/telemetry"
	qtrace "github.com/demeterhq/demeter/pkg/trace"
)

// Mode selects how a query is processed.
type Mode string

const (
	// ModeAuto lets the router decide between the fast path and the
	// full reasoning loop.
	ModeAuto Mode = "auto"
	// ModeDirect forces a single named-capability call, bypassing
	// scoring.
	ModeDirect Mode = "direct"
	// ModeReact always runs the full reasoning loop.
	ModeReact Mode = "react"
	// ModePipeline executes a named canned pipeline.
	ModePipeline Mode = "pipeline"
)

// DefaultFastPathThreshold is the routing confidence above which auto
// mode skips the reasoning loop.
const DefaultFastPathThreshold = 0.7

// Orchestrator processes queries against a capability registry.
type Orchestrator struct {
	registry *capability.Registry
	router   *router.Router
	history  *history.Buffer
	builder  *pipeline.Builder
	traces   qtrace.Store

	fastPathThreshold float64
	maxIterations     int
	callTimeout       time.Duration

	log     *slog.Logger
	tracer  oteltrace.Tracer
	metrics *telemetry.Metrics
	emitter core.EventEmitter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRouter substitutes the router built from the registry.
func WithRouter(r *router.Router) Option {
	return func(o *Orchestrator) {
		o.router = r
	}
}

// WithHistory attaches a conversation history buffer. The orchestrator
// appends a turn after every completed query.
func WithHistory(h *history.Buffer) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithFastPathThreshold overrides the routing confidence above which
// auto mode performs a single direct call.
func WithFastPathThreshold(t float64) Option {
	return func(o *Orchestrator) {
		if t > 0 && t <= 1 {
			o.fastPathThreshold = t
		}
	}
}

// WithMaxIterations bounds the reasoning loop.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithCallTimeout bounds each capability invocation.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.callTimeout = d
	}
}

// WithTraceStore persists completed traces for diagnostics. Store
// failures are logged, never surfaced to the caller.
func WithTraceStore(s qtrace.Store) Option {
	return func(o *Orchestrator) {
		o.traces = s
	}
}

// WithEventEmitter attaches a semantic event sink.
func WithEventEmitter(e core.EventEmitter) Option {
	return func(o *Orchestrator) {
		o.emitter = e
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// New creates an Orchestrator over the given registry.
func New(registry *capability.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:          registry,
		builder:           pipeline.NewBuilder(registry),
		fastPathThreshold: DefaultFastPathThreshold,
		maxIterations:     react.DefaultMaxIterations,
		log:               slog.Default(),
		tracer:            otel.Tracer("demeter/orchestrator"),
		emitter:           core.NoopEventEmitter{},
	}
	o.metrics, _ = telemetry.GetMetrics()
	for _, opt := range opts {
		opt(o)
	}
	if o.router == nil {
		o.router = router.New(registry)
	}
	return o
}

// ProcessOption adjusts a single Process call.
type ProcessOption func(*processConfig)

type processConfig struct {
	capability    string
	pipeline      string
	maxIterations int
}

// WithCapability names the capability for ModeDirect.
func WithCapability(name string) ProcessOption {
	return func(c *processConfig) {
		c.capability = name
	}
}

// WithPipeline names the canned pipeline for ModePipeline.
func WithPipeline(name string) ProcessOption {
	return func(c *processConfig) {
		c.pipeline = name
	}
}

// WithIterationLimit overrides the loop bound for this call only.
func WithIterationLimit(n int) ProcessOption {
	return func(c *processConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// Process answers one query in the given mode. The returned trace is
// non-nil whenever any steps executed; a panic inside a capability or
// the core is mapped to an internal error, never re-raised.
func (o *Orchestrator) Process(ctx context.Context, query string, mode Mode, opts ...ProcessOption) (tr *react.Trace, err error) {
	cfg := processConfig{maxIterations: o.maxIterations}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "orchestrator.process",
		oteltrace.WithAttributes(telemetry.QueryAttributes(runID, string(mode), sessionIDOf(ctx))...))
	defer span.End()

	start := time.Now()
	defer func() {
		if err != nil {
			o.emitter.Emit(ctx, core.NewEvent(core.EventQueryError, runID, query, map[string]any{"error": err.Error()}))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			tr = nil
			err = errors.New(errors.CodeInternal, fmt.Sprintf("panic while processing query: %v", r), nil).
				WithContext("run_id", runID)
			o.log.Error("orchestrator.query.panic",
				slog.String("run_id", runID),
				slog.Any("panic", r),
			)
			if o.metrics != nil {
				o.metrics.RecordError(ctx, err, "orchestrator")
			}
		}
	}()

	o.log.Info("orchestrator.query.start",
		slog.String("run_id", runID),
		slog.String("mode", string(mode)),
	)
	o.emitter.Emit(ctx, core.NewEvent(core.EventQueryStarted, runID, query, map[string]any{"mode": string(mode)}))

	loop := react.New(o.registry, o.router,
		react.WithMaxIterations(cfg.maxIterations),
		react.WithCallTimeout(o.callTimeout),
		react.WithHistory(o.history),
		react.WithLogger(o.log),
		react.WithEmitter(o.emitter),
	)

	switch mode {
	case ModeAuto:
		tr, err = o.processAuto(ctx, loop, query)
	case ModeDirect:
		if cfg.capability == "" {
			return nil, errors.New(errors.CodeInvalidInput, "direct mode requires a capability name", nil)
		}
		tr, err = loop.RunSingle(ctx, query, cfg.capability, fmt.Sprintf("Direct invocation of %s requested", cfg.capability))
	case ModeReact:
		tr, err = loop.Run(ctx, query)
	case ModePipeline:
		if cfg.pipeline == "" {
			return nil, errors.New(errors.CodeInvalidInput, "pipeline mode requires a pipeline name", nil)
		}
		tr, err = o.processPipeline(ctx, query, cfg.pipeline)
	default:
		return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown processing mode %q", mode), nil)
	}

	elapsed := time.Since(start)
	if tr != nil {
		tr.ExecutionTime = elapsed.Seconds()
		o.recordTurn(query, tr)
		o.persistTrace(ctx, runID, query, mode, tr)
	}

	success := err == nil && tr != nil && tr.Success
	if o.metrics != nil {
		o.metrics.RecordQuery(ctx, string(mode), success, float64(elapsed.Milliseconds()))
	}
	o.log.Info("orchestrator.query.done",
		slog.String("run_id", runID),
		slog.Bool("success", success),
		slog.Duration("duration", elapsed),
	)
	o.emitter.Emit(ctx, core.NewEvent(core.EventQueryCompleted, runID, query, map[string]any{
		"success":  success,
		"duration": elapsed.Seconds(),
	}))
	return tr, err
}

// processAuto decides between the fast path and the full loop from the
// first routing decision.
func (o *Orchestrator) processAuto(ctx context.Context, loop *react.Loop, query string) (*react.Trace, error) {
	decision, err := o.router.Analyze(query)
	if err != nil {
		return nil, err
	}
	o.emitter.Emit(ctx, core.NewEvent(core.EventRoutingDecided, runIDOf(ctx), query, map[string]any{
		"selected":   decision.Selected,
		"confidence": decision.Confidence,
		"fallback":   decision.Fallback,
	}))

	if decision.Confidence > o.fastPathThreshold {
		thought := fmt.Sprintf("Confidence %.2f exceeds fast-path threshold; invoking %s directly",
			decision.Confidence, decision.Selected)
		return loop.RunSingle(ctx, query, decision.Selected, thought)
	}
	return loop.Run(ctx, query)
}

// processPipeline executes a canned pipeline and renders its result as
// a trace for caller uniformity.
func (o *Orchestrator) processPipeline(ctx context.Context, query, name string) (*react.Trace, error) {
	p, err := o.builder.Canned(name)
	if err != nil {
		return nil, err
	}
	result, err := p.Execute(ctx, map[string]any{"query": query})
	if err != nil {
		return nil, err
	}

	tr := &react.Trace{Success: result.OverallSuccess}
	for i, sr := range result.StepResults {
		tr.Steps = append(tr.Steps, react.Step{
			Iteration: i,
			Thought:   fmt.Sprintf("Pipeline %s step %s", name, sr.Name),
			Action:    react.Action{Capability: sr.Name, Args: sr.Input},
			Observation: react.Observation{
				Success: sr.Status == pipeline.StatusSuccess,
				Payload: sr.Output,
				Error:   sr.Error,
			},
			Timestamp: time.Now(),
		})
		tr.ToolsUsed = append(tr.ToolsUsed, sr.Name)
	}
	tr.IterationsUsed = len(tr.Steps)
	if result.OverallSuccess {
		tr.State = react.StateDone
	} else {
		tr.State = react.StateFailed
	}
	tr.FinalAnswer = pipelineAnswer(result)
	return tr, nil
}

// pipelineAnswer renders the last step output, or, when every step
// failed and no output survived, an explanatory answer naming the
// failed steps.
func pipelineAnswer(result pipeline.Result) string {
	if last, ok := result.Output["last"]; ok {
		switch v := last.(type) {
		case string:
			return v
		default:
			return fmt.Sprintf("%v", v)
		}
	}
	var failed []string
	for _, sr := range result.StepResults {
		if sr.Status == pipeline.StatusFailed {
			failed = append(failed, fmt.Sprintf("%s (%s)", sr.Name, sr.Error))
		}
	}
	if len(failed) > 0 {
		return fmt.Sprintf("unable to answer: pipeline steps [%s] failed", strings.Join(failed, ", "))
	}
	return "pipeline produced no output"
}

func (o *Orchestrator) recordTurn(query string, tr *react.Trace) {
	if o.history == nil {
		return
	}
	o.history.Append(history.Turn{
		Query:     query,
		Response:  tr.FinalAnswer,
		ToolsUsed: append([]string(nil), tr.ToolsUsed...),
	})
}

func (o *Orchestrator) persistTrace(ctx context.Context, runID string, query string, mode Mode, tr *react.Trace) {
	if o.traces == nil {
		return
	}
	rec := qtrace.Record{
		RunID:         runID,
		SessionID:     sessionIDOf(ctx),
		Query:         query,
		Mode:          string(mode),
		FinalAnswer:   tr.FinalAnswer,
		Success:       tr.Success,
		Iterations:    tr.IterationsUsed,
		ToolsUsed:     tr.ToolsUsed,
		Steps:         tr.Steps,
		ExecutionTime: tr.ExecutionTime,
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.traces.Save(ctx, rec); err != nil {
		o.log.Warn("orchestrator.trace.persist_failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}

func runIDOf(ctx context.Context) string {
	id, _ := core.RunID(ctx)
	return id
}

func sessionIDOf(ctx context.Context) string {
	id, _ := core.SessionID(ctx)
	return id
}
