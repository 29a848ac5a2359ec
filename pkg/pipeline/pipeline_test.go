// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/demeterhq/demeter/pkg/capability"
)

func okStep(key, value string) capability.Invoker {
	return capability.InvokerFunc(func(_ context.Context, _ map[string]any) capability.Result {
		return capability.Ok(map[string]any{key: value})
	})
}

func failStep(reason string) capability.Invoker {
	return capability.InvokerFunc(func(_ context.Context, _ map[string]any) capability.Result {
		return capability.Fail(reason)
	})
}

func TestExecuteForwardsOutputs(t *testing.T) {
	var secondInput map[string]any
	p := New("chain").
		AddStep("retrieve", okStep("documents", "doc-a"), "").
		AddStep("generate", capability.InvokerFunc(func(_ context.Context, args map[string]any) capability.Result {
			secondInput = args
			return capability.Ok("answer from " + fmt.Sprint(args["documents"]))
		}), "")

	res, err := p.Execute(context.Background(), map[string]any{"query": "organic farming"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.OverallSuccess {
		t.Fatal("expected overall success")
	}
	if secondInput["query"] != "organic farming" {
		t.Fatalf("initial input not forwarded: %v", secondInput)
	}
	if secondInput["documents"] != "doc-a" {
		t.Fatalf("prior output not forwarded: %v", secondInput)
	}
	if res.Output["last"] != "answer from doc-a" {
		t.Fatalf("last output wrong: %v", res.Output["last"])
	}
}

func TestPartialFailureKeepsPriorResults(t *testing.T) {
	p := New("partial").
		AddStep("s1", okStep("a", "1"), "").
		AddStep("s2", failStep("model offline"), "").
		AddStep("s3", okStep("c", "3"), "")

	res, err := p.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.OverallSuccess {
		t.Fatal("overall success must be false when a step fails")
	}
	if len(res.StepResults) != 3 {
		t.Fatalf("all steps should have run, got %d results", len(res.StepResults))
	}
	if res.StepResults[0].Status != StatusSuccess {
		t.Fatalf("step 1 should remain successful: %+v", res.StepResults[0])
	}
	if res.StepResults[1].Status != StatusFailed || res.StepResults[1].Error != "model offline" {
		t.Fatalf("failure reason not recorded: %+v", res.StepResults[1])
	}
	if res.StepResults[2].Status != StatusSuccess {
		t.Fatal("later steps should still run with partial input")
	}
	if res.Output["a"] != "1" || res.Output["c"] != "3" {
		t.Fatalf("successful outputs missing: %v", res.Output)
	}
	if res.Output["s2_error"] != "model offline" {
		t.Fatalf("failure reason missing from output: %v", res.Output)
	}
}

func TestAbortOnFailure(t *testing.T) {
	p := New("abort").
		AddStep("s1", failStep("boom"), "").
		AddStep("s2", okStep("b", "2"), "")
	p.AbortOnFailure = true

	res, err := p.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.StepResults) != 1 {
		t.Fatalf("expected execution to stop after first failure, got %d results", len(res.StepResults))
	}
	if res.OverallSuccess {
		t.Fatal("overall success must be false")
	}
}

func TestValidate(t *testing.T) {
	if err := New("empty").Validate(); err == nil {
		t.Fatal("empty pipeline must not validate")
	}
	p := New("dup").
		AddStep("s", okStep("a", "1"), "").
		AddStep("s", okStep("b", "2"), "")
	if err := p.Validate(); err == nil {
		t.Fatal("duplicate step names must not validate")
	}
	if err := New("noinvoke").AddStep("s", nil, "").Validate(); err == nil {
		t.Fatal("nil invoker must not validate")
	}
}

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	descs := []capability.Descriptor{
		{Name: "rag_retrieval", Category: capability.CategoryRetrieval, Invoke: okStep("documents", "doc")},
		{Name: "llm_generation", Category: capability.CategoryGeneration, Invoke: okStep("answer", "text")},
		{Name: "translation", Category: capability.CategoryTranslation, Invoke: okStep("translated", "text")},
	}
	for _, desc := range descs {
		if err := reg.Register(desc); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return reg
}

func TestBuilderRetrieveThenGenerate(t *testing.T) {
	b := NewBuilder(testRegistry(t))
	p, err := b.RetrieveThenGenerate()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(p.Steps) != 2 || p.Steps[0].Name != "rag_retrieval" || p.Steps[1].Name != "llm_generation" {
		t.Fatalf("unexpected steps: %+v", p.Steps)
	}
}

func TestBuilderTranslateRoundTrip(t *testing.T) {
	b := NewBuilder(testRegistry(t))
	p, err := b.TranslateRoundTrip("llm_generation")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(p.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(p.Steps))
	}
	if p.Steps[0].Name != "translation" || p.Steps[2].Name != "translation_back" {
		t.Fatalf("unexpected step names: %s, %s", p.Steps[0].Name, p.Steps[2].Name)
	}
}

func TestBuilderUnknownCapability(t *testing.T) {
	b := NewBuilder(testRegistry(t))
	if _, err := b.Build("bad", "nope"); err == nil {
		t.Fatal("expected error for unknown capability")
	}
	if _, err := b.Canned("nope"); err == nil {
		t.Fatal("expected error for unknown canned pipeline")
	}
}

func TestParseYAMLAndResolve(t *testing.T) {
	data := []byte(`
name: advice
abort_on_failure: true
steps:
  - name: fetch
    capability: rag_retrieval
  - capability: llm_generation
`)
	def, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "advice" || !def.AbortOnFailure || len(def.Steps) != 2 {
		t.Fatalf("unexpected definition: %+v", def)
	}

	p, err := def.Resolve(testRegistry(t))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Steps[0].Name != "fetch" {
		t.Fatalf("explicit step name not honored: %s", p.Steps[0].Name)
	}
	if p.Steps[1].Name != "llm_generation" {
		t.Fatalf("default step name not applied: %s", p.Steps[1].Name)
	}
	if !p.AbortOnFailure {
		t.Fatal("abort flag not carried over")
	}
}

func TestParseJSONInvalid(t *testing.T) {
	if _, err := ParseJSON(nil); err == nil {
		t.Fatal("empty payload must fail")
	}
	if _, err := ParseJSON([]byte(`{"name":"x","steps":[]}`)); err == nil {
		t.Fatal("stepless pipeline must fail")
	}
	if _, err := ParseYAML([]byte("name: x\nsteps:\n  - name: s\n")); err == nil {
		t.Fatal("step without capability must fail")
	}
}
