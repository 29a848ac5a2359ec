// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides capability doubles and registry fixtures
// shared by the reasoning-loop and orchestrator tests.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/demeterhq/demeter/pkg/capability"
)

// ScriptedInvoker returns queued results in order, capturing every
// call. When the script is exhausted it returns the default result.
type ScriptedInvoker struct {
	mu      sync.Mutex
	results []capability.Result
	index   int
	calls   []map[string]any
	// Default is returned once the script runs out.
	Default capability.Result
}

// NewScriptedInvoker creates an empty scripted invoker. Without queued
// results every call fails, which makes an unscripted call visible in
// test output.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{
		Default: capability.Fail("no scripted result"),
	}
}

// AddSuccess queues a successful result with the given payload.
func (s *ScriptedInvoker) AddSuccess(payload any) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, capability.Ok(payload))
	return s
}

// AddFailure queues a failed result with the given reason.
func (s *ScriptedInvoker) AddFailure(reason string) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, capability.Fail(reason))
	return s
}

// Invoke implements capability.Invoker.
func (s *ScriptedInvoker) Invoke(_ context.Context, args map[string]any) capability.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, args)
	if s.index < len(s.results) {
		res := s.results[s.index]
		s.index++
		return res
	}
	return s.Default
}

// Calls returns a snapshot of the captured call arguments.
func (s *ScriptedInvoker) Calls() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of invocations so far.
func (s *ScriptedInvoker) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// StaticInvoker always succeeds with the given payload.
func StaticInvoker(payload any) capability.Invoker {
	return capability.InvokerFunc(func(_ context.Context, _ map[string]any) capability.Result {
		return capability.Ok(payload)
	})
}

// FailingInvoker always fails with the given reason.
func FailingInvoker(reason string) capability.Invoker {
	return capability.InvokerFunc(func(_ context.Context, _ map[string]any) capability.Result {
		return capability.Fail(reason)
	})
}

// SlowInvoker sleeps before succeeding, for exercising per-call
// timeouts. The sleep ignores the context: capability calls are
// treated as opaque.
func SlowInvoker(delay time.Duration, payload any) capability.Invoker {
	return capability.InvokerFunc(func(_ context.Context, _ map[string]any) capability.Result {
		time.Sleep(delay)
		return capability.Ok(payload)
	})
}

// FarmInvokers supplies the invoker for each canonical capability of
// the farm assistant fixture. Nil entries default to StaticInvoker
// with a category-specific payload.
type FarmInvokers struct {
	Classification capability.Invoker
	Prediction     capability.Invoker
	Translation    capability.Invoker
	Retrieval      capability.Invoker
	Generation     capability.Invoker
}

// NewFarmRegistry builds the five-capability registry used across the
// loop and orchestrator tests: disease_classification,
// yield_prediction, translation, rag_retrieval, llm_generation.
func NewFarmRegistry(inv FarmInvokers) (*capability.Registry, error) {
	if inv.Classification == nil {
		inv.Classification = StaticInvoker("leaf blight")
	}
	if inv.Prediction == nil {
		inv.Prediction = StaticInvoker(map[string]any{"answer": "3.2 t/ha expected"})
	}
	if inv.Translation == nil {
		inv.Translation = StaticInvoker("translated text")
	}
	if inv.Retrieval == nil {
		inv.Retrieval = StaticInvoker([]any{"doc snippet"})
	}
	if inv.Generation == nil {
		inv.Generation = StaticInvoker("generated answer")
	}

	reg := capability.NewRegistry()
	descs := []capability.Descriptor{
		{
			Name:     "disease_classification",
			Invoke:   inv.Classification,
			Category: capability.CategoryClassification,
			Keywords: []string{"disease", "leaf", "image", "identify", "pest"},
		},
		{
			Name:     "yield_prediction",
			Invoke:   inv.Prediction,
			Category: capability.CategoryStructuredPrediction,
			Keywords: []string{"yield", "predict", "rainfall", "harvest", "production"},
		},
		{
			Name:     "translation",
			Invoke:   inv.Translation,
			Category: capability.CategoryTranslation,
			Keywords: []string{"translate", "hindi", "language"},
		},
		{
			Name:     "rag_retrieval",
			Invoke:   inv.Retrieval,
			Category: capability.CategoryRetrieval,
			Keywords: []string{"find", "search", "docs", "document", "information", "lookup"},
		},
		{
			Name:     "llm_generation",
			Invoke:   inv.Generation,
			Category: capability.CategoryGeneration,
			Keywords: []string{"explain", "describe", "how", "why", "benefits"},
		},
	}
	for _, desc := range descs {
		if err := reg.Register(desc); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
