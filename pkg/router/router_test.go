// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"reflect"
	"testing"

	"github.com/demeterhq/demeter/pkg/capability"
)

func noopInvoker() capability.Invoker {
	return capability.InvokerFunc(func(_ context.Context, _ map[string]any) capability.Result {
		return capability.Ok("ok")
	})
}

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	descs := []capability.Descriptor{
		{
			Name:     "disease_classification",
			Category: capability.CategoryClassification,
			Keywords: []string{"disease", "leaf", "image", "identify", "pest"},
		},
		{
			Name:     "yield_prediction",
			Category: capability.CategoryStructuredPrediction,
			Keywords: []string{"yield", "predict", "rainfall", "harvest", "production"},
		},
		{
			Name:     "translation",
			Category: capability.CategoryTranslation,
			Keywords: []string{"translate", "hindi", "language"},
		},
		{
			Name:     "rag_retrieval",
			Category: capability.CategoryRetrieval,
			Keywords: []string{"find", "search", "docs", "document", "information", "lookup"},
		},
		{
			Name:     "llm_generation",
			Category: capability.CategoryGeneration,
			Keywords: []string{"explain", "describe", "how", "why", "benefits"},
		},
	}
	for i := range descs {
		descs[i].Invoke = noopInvoker()
		if err := reg.Register(descs[i]); err != nil {
			t.Fatalf("register %s: %v", descs[i].Name, err)
		}
	}
	return reg
}

func TestConfidenceBounds(t *testing.T) {
	r := New(testRegistry(t))
	queries := []string{
		"",
		"Predict yield for wheat in Punjab with 800mm rainfall",
		"translate translate translate translate hindi language translate",
		"completely unrelated text about nothing in particular",
	}
	for _, q := range queries {
		decision, err := r.Analyze(q)
		if err != nil {
			t.Fatalf("analyze %q: %v", q, err)
		}
		if decision.Confidence < 0 || decision.Confidence > 1 {
			t.Fatalf("confidence out of range for %q: %f", q, decision.Confidence)
		}
		for _, alt := range decision.Alternatives {
			if alt.Score < 0 || alt.Score > 1 {
				t.Fatalf("alternative score out of range for %q: %f", q, alt.Score)
			}
		}
	}
}

func TestYieldQueryTakesFastPathConfidence(t *testing.T) {
	r := New(testRegistry(t))
	decision, err := r.Analyze("Predict yield for wheat in Punjab with 800mm rainfall")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if decision.Selected != "yield_prediction" {
		t.Fatalf("expected yield_prediction, got %s", decision.Selected)
	}
	if decision.Confidence <= 0.7 {
		t.Fatalf("expected confidence above fast-path threshold, got %f", decision.Confidence)
	}
}

func TestUnambiguousCategoryScoresAboveHalf(t *testing.T) {
	r := New(testRegistry(t))
	decision, err := r.Analyze("translate this advice to hindi")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if decision.Selected != "translation" {
		t.Fatalf("expected translation, got %s", decision.Selected)
	}
	if decision.Confidence <= 0.5 {
		t.Fatalf("expected confidence > 0.5, got %f", decision.Confidence)
	}
}

func TestRetrievalBelowFastPath(t *testing.T) {
	r := New(testRegistry(t))
	decision, err := r.Analyze("Find organic farming docs and explain benefits")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if decision.Selected != "rag_retrieval" {
		t.Fatalf("expected rag_retrieval, got %s", decision.Selected)
	}
	if decision.Confidence > 0.7 {
		t.Fatalf("expected confidence below fast-path threshold, got %f", decision.Confidence)
	}
	if len(decision.Alternatives) != 4 {
		t.Fatalf("expected 4 ranked alternatives, got %d", len(decision.Alternatives))
	}
}

func TestGenerationFallbackOnNoMatch(t *testing.T) {
	r := New(testRegistry(t))
	decision, err := r.Analyze("zxqv plmw ortk")
	if err != nil {
		t.Fatalf("fallback must not surface an error: %v", err)
	}
	if decision.Selected != "llm_generation" {
		t.Fatalf("expected generation fallback, got %s", decision.Selected)
	}
	if !decision.Fallback {
		t.Fatal("decision should be marked as fallback")
	}
	if decision.Confidence < 0 || decision.Confidence > 1 {
		t.Fatalf("fallback confidence out of range: %f", decision.Confidence)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	r := New(testRegistry(t))
	query := "Find organic farming docs and explain benefits"
	first, err := r.Analyze(query)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	second, err := r.Analyze(query)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decisions differ:\n%+v\n%+v", first, second)
	}
}

func TestTieBreakByCategoryPriority(t *testing.T) {
	reg := capability.NewRegistry()
	// Two capabilities with identical keyword sets and no structural match:
	// classification must win the tie over generation.
	for _, desc := range []capability.Descriptor{
		{Name: "gen", Category: capability.CategoryGeneration, Keywords: []string{"soil"}},
		{Name: "cls", Category: capability.CategoryClassification, Keywords: []string{"soil"}},
	} {
		desc.Invoke = noopInvoker()
		if err := reg.Register(desc); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	decision, err := New(reg).Analyze("tell me about soil")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if decision.Selected != "cls" {
		t.Fatalf("expected classification to win tie, got %s", decision.Selected)
	}
}

func TestEmptyRegistry(t *testing.T) {
	r := New(capability.NewRegistry())
	if _, err := r.Analyze("anything"); err == nil {
		t.Fatal("expected error for empty registry")
	}
}
