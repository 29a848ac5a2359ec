// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline executes fixed, named sequences of capability steps,
// propagating outputs forward into each subsequent step's input.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/errors"
)

// StepStatus describes the per-execution state of a step.
type StepStatus string

const (
	StatusPending StepStatus = "pending"
	StatusSuccess StepStatus = "success"
	StatusFailed  StepStatus = "failed"
)

// Step is one named stage of a pipeline.
type Step struct {
	Name        string
	Invoke      capability.Invoker
	Description string
}

// StepResult captures one step's execution snapshot.
type StepResult struct {
	Name     string         `json:"name"`
	Status   StepStatus     `json:"status"`
	Input    map[string]any `json:"input,omitempty"`
	Output   any            `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Result is the outcome of one Execute call.
type Result struct {
	Pipeline       string       `json:"pipeline"`
	OverallSuccess bool         `json:"overall_success"`
	StepResults    []StepResult `json:"step_results"`
	// Output is the merged forward state after the last executed step.
	Output map[string]any `json:"output"`
}

// Pipeline is an ordered, acyclic list of steps. Data flows forward only;
// execution never revisits an earlier step.
type Pipeline struct {
	Name  string
	Steps []Step
	// AbortOnFailure stops execution at the first failed step instead of
	// continuing with the best available partial input.
	AbortOnFailure bool

	log    *slog.Logger
	tracer trace.Tracer
}

// New creates an empty pipeline with the given name.
func New(name string) *Pipeline {
	return &Pipeline{
		Name:   name,
		log:    slog.Default(),
		tracer: otel.Tracer("demeter/pipeline"),
	}
}

// AddStep appends a step and returns the pipeline for chaining.
func (p *Pipeline) AddStep(name string, invoke capability.Invoker, description string) *Pipeline {
	p.Steps = append(p.Steps, Step{Name: name, Invoke: invoke, Description: description})
	return p
}

// Validate checks the pipeline is executable.
func (p *Pipeline) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New(errors.CodePipelineError, "pipeline has no steps", nil).
			WithContext("pipeline", p.Name)
	}
	seen := make(map[string]bool, len(p.Steps))
	for _, step := range p.Steps {
		if step.Name == "" {
			return errors.New(errors.CodePipelineError, "step name is required", nil).
				WithContext("pipeline", p.Name)
		}
		if step.Invoke == nil {
			return errors.New(errors.CodePipelineError, "step invoker is required", nil).
				WithContext("pipeline", p.Name).
				WithContext("step", step.Name)
		}
		if seen[step.Name] {
			return errors.New(errors.CodePipelineError, "duplicate step name", nil).
				WithContext("pipeline", p.Name).
				WithContext("step", step.Name)
		}
		seen[step.Name] = true
	}
	return nil
}

// Execute runs every step in order. A failed step is recorded with its
// reason; unless AbortOnFailure is set, later steps still run against the
// merged output of all prior successful steps, and the Result keeps every
// successful step's output even when OverallSuccess is false.
func (p *Pipeline) Execute(ctx context.Context, initial map[string]any) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("demeter/pipeline")
	}

	state := make(map[string]any, len(initial))
	for k, v := range initial {
		state[k] = v
	}

	result := Result{
		Pipeline:       p.Name,
		OverallSuccess: true,
		StepResults:    make([]StepResult, 0, len(p.Steps)),
	}

	for _, step := range p.Steps {
		input := snapshot(state)
		stepCtx, span := p.tracer.Start(ctx, "Pipeline.Step",
			trace.WithAttributes(
				attribute.String("pipeline.name", p.Name),
				attribute.String("pipeline.step", step.Name),
			),
		)
		start := time.Now()
		res := step.Invoke.Invoke(stepCtx, input)
		duration := time.Since(start)
		span.SetAttributes(attribute.Bool("pipeline.step.success", res.Success))
		span.End()

		sr := StepResult{
			Name:     step.Name,
			Input:    input,
			Duration: duration,
		}
		if res.Success {
			sr.Status = StatusSuccess
			sr.Output = res.Payload
			mergeOutput(state, step.Name, res.Payload)
			p.log.Debug("pipeline.step.complete",
				slog.String("pipeline", p.Name),
				slog.String("step", step.Name),
			)
		} else {
			sr.Status = StatusFailed
			sr.Error = res.Error
			result.OverallSuccess = false
			state[step.Name+"_error"] = res.Error
			p.log.Warn("pipeline.step.failed",
				slog.String("pipeline", p.Name),
				slog.String("step", step.Name),
				slog.String("error", res.Error),
			)
		}
		result.StepResults = append(result.StepResults, sr)

		if !res.Success && p.AbortOnFailure {
			break
		}
	}

	result.Output = state
	return result, nil
}

// mergeOutput folds a step's payload into the forward state. Map payloads
// merge key-wise; anything else is stored under the step's name. The latest
// output is always available under "last".
func mergeOutput(state map[string]any, stepName string, payload any) {
	if m, ok := payload.(map[string]any); ok {
		for k, v := range m {
			state[k] = v
		}
	} else {
		state[stepName] = payload
	}
	state["last"] = payload
}

func snapshot(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

// String returns a short human-readable description of the pipeline.
func (p *Pipeline) String() string {
	return fmt.Sprintf("%s (%d steps)", p.Name, len(p.Steps))
}
