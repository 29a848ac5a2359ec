// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package react

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/router"
	dtesting "github.com/demeterhq/demeter/pkg/testing"
)

func newLoop(t *testing.T, inv dtesting.FarmInvokers, opts ...Option) (*Loop, *capability.Registry) {
	t.Helper()
	reg, err := dtesting.NewFarmRegistry(inv)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return New(reg, router.New(reg), opts...), reg
}

func TestRetrievalChainsGeneration(t *testing.T) {
	l, _ := newLoop(t, dtesting.FarmInvokers{
		Retrieval:  dtesting.StaticInvoker([]any{"Organic farming builds soil health."}),
		Generation: dtesting.StaticInvoker("Organic farming improves soil and avoids synthetic inputs."),
	})

	tr, err := l.Run(context.Background(), "Find organic farming docs and explain benefits")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !tr.Success {
		t.Fatalf("expected success, got trace %+v", tr)
	}
	want := []string{"rag_retrieval", "llm_generation"}
	if len(tr.ToolsUsed) != len(want) {
		t.Fatalf("expected tools %v, got %v", want, tr.ToolsUsed)
	}
	for i := range want {
		if tr.ToolsUsed[i] != want[i] {
			t.Fatalf("expected tools %v, got %v", want, tr.ToolsUsed)
		}
	}
	if tr.IterationsUsed != 2 {
		t.Errorf("expected 2 iterations, got %d", tr.IterationsUsed)
	}
	if tr.FinalAnswer != "Organic farming improves soil and avoids synthetic inputs." {
		t.Errorf("unexpected final answer %q", tr.FinalAnswer)
	}
	if ctxArg, ok := tr.Steps[1].Action.Args["context"]; !ok || ctxArg == "" {
		t.Error("chained generation step should receive retrieved context")
	}
}

func TestFailureRetriesNextAlternative(t *testing.T) {
	l, _ := newLoop(t, dtesting.FarmInvokers{
		Prediction: dtesting.FailingInvoker("model unavailable"),
	})

	tr, err := l.Run(context.Background(), "Predict yield for wheat in Punjab with 800mm rainfall")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if tr.ToolsUsed[0] != "yield_prediction" {
		t.Fatalf("expected yield_prediction first, got %v", tr.ToolsUsed)
	}
	obs := tr.Steps[0].Observation
	if obs.Success || obs.Error != "model unavailable" {
		t.Fatalf("expected recorded failure, got %+v", obs)
	}
	if len(tr.Steps) != 2 {
		t.Fatalf("expected single retry, got %d steps", len(tr.Steps))
	}
	// The retry uses the next-ranked alternative from the original
	// decision; with zero runner-up scores the tie-break category order
	// puts classification first.
	if tr.ToolsUsed[1] != "disease_classification" {
		t.Errorf("expected disease_classification retry, got %v", tr.ToolsUsed)
	}
	if !tr.Success {
		t.Errorf("expected the retry to recover, got %+v", tr)
	}
}

func TestExhaustedAlternativesFails(t *testing.T) {
	fail := dtesting.FailingInvoker("down")
	l, _ := newLoop(t, dtesting.FarmInvokers{
		Classification: fail,
		Prediction:     fail,
		Translation:    fail,
		Retrieval:      fail,
		Generation:     fail,
	})

	tr, err := l.Run(context.Background(), "Predict yield for wheat in Punjab with 800mm rainfall")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if tr.Success || tr.State != StateFailed {
		t.Fatalf("expected FAILED trace, got %+v", tr)
	}
	if len(tr.Steps) != 2 {
		t.Fatalf("expected selection plus one retry, got %d steps", len(tr.Steps))
	}
	if !strings.Contains(tr.FinalAnswer, "yield_prediction") || !strings.Contains(tr.FinalAnswer, "disease_classification") {
		t.Errorf("final answer should name attempted capabilities, got %q", tr.FinalAnswer)
	}
}

func TestIterationLimitIsNormalTermination(t *testing.T) {
	// A successful but empty observation never satisfies the goal, so
	// the loop keeps routing until the bound intervenes.
	l, _ := newLoop(t, dtesting.FarmInvokers{
		Generation: dtesting.StaticInvoker(""),
	}, WithMaxIterations(3))

	tr, err := l.Run(context.Background(), "completely unrelated text about nothing")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if tr.Success {
		t.Error("expected success=false at the iteration limit")
	}
	if tr.State != StateDone {
		t.Errorf("iteration limit is a normal DONE, got %s", tr.State)
	}
	if tr.IterationsUsed != 3 {
		t.Errorf("expected 3 iterations, got %d", tr.IterationsUsed)
	}
}

func TestIterationsNeverExceedMax(t *testing.T) {
	for _, max := range []int{1, 2, 5} {
		l, _ := newLoop(t, dtesting.FarmInvokers{
			Generation: dtesting.StaticInvoker(""),
		}, WithMaxIterations(max))
		tr, err := l.Run(context.Background(), "nothing matches here")
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if tr.IterationsUsed > max {
			t.Errorf("max=%d: iterations_used %d exceeds bound", max, tr.IterationsUsed)
		}
	}
}

func TestCancellationPreservesPartialTrace(t *testing.T) {
	l, _ := newLoop(t, dtesting.FarmInvokers{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr, err := l.Run(ctx, "Predict yield for wheat in Punjab with 800mm rainfall")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if tr == nil {
		t.Fatal("partial trace must be preserved on cancellation")
	}
	if tr.State != StateFailed {
		t.Errorf("expected FAILED state, got %s", tr.State)
	}
}

func TestCallTimeoutBecomesFailedObservation(t *testing.T) {
	l, _ := newLoop(t, dtesting.FarmInvokers{
		Prediction: dtesting.SlowInvoker(200*time.Millisecond, "late"),
	}, WithCallTimeout(20*time.Millisecond))

	tr, err := l.Run(context.Background(), "Predict yield for wheat in Punjab with 800mm rainfall")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	obs := tr.Steps[0].Observation
	if obs.Success {
		t.Fatal("expected timed-out observation to fail")
	}
	if !strings.Contains(obs.Error, "timeout") {
		t.Errorf("expected timeout error, got %q", obs.Error)
	}
	// The loop recovers via the retry path rather than hanging.
	if len(tr.Steps) != 2 {
		t.Errorf("expected retry after timeout, got %d steps", len(tr.Steps))
	}
}

func TestRunSingleProducesLengthOneTrace(t *testing.T) {
	l, _ := newLoop(t, dtesting.FarmInvokers{
		Prediction: dtesting.StaticInvoker(map[string]any{"answer": "3.2 t/ha expected"}),
	})

	tr, err := l.RunSingle(context.Background(), "Predict yield for wheat in Punjab with 800mm rainfall",
		"yield_prediction", "High-confidence match, invoking directly")
	if err != nil {
		t.Fatalf("RunSingle() error: %v", err)
	}
	if len(tr.Steps) != 1 {
		t.Fatalf("expected length-1 trace, got %d steps", len(tr.Steps))
	}
	if !tr.Success || tr.FinalAnswer != "3.2 t/ha expected" {
		t.Errorf("unexpected trace %+v", tr)
	}
	if len(tr.ToolsUsed) != 1 || tr.ToolsUsed[0] != "yield_prediction" {
		t.Errorf("unexpected tools %v", tr.ToolsUsed)
	}
}

func TestRunSingleUnknownCapabilityFails(t *testing.T) {
	l, _ := newLoop(t, dtesting.FarmInvokers{})
	tr, err := l.RunSingle(context.Background(), "anything", "no_such_capability", "direct call")
	if err != nil {
		t.Fatalf("RunSingle() error: %v", err)
	}
	if tr.Success || tr.State != StateFailed {
		t.Fatalf("expected failed trace, got %+v", tr)
	}
}
