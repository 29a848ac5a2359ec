// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/demeterhq/demeter/pkg/react"
)

func sampleRecord(runID, sessionID, mode string) Record {
	return Record{
		RunID:       runID,
		SessionID:   sessionID,
		Query:       "Predict yield for wheat in Punjab with 800mm rainfall",
		Mode:        mode,
		FinalAnswer: "3.2 t/ha expected",
		Success:     true,
		Iterations:  1,
		ToolsUsed:   []string{"yield_prediction"},
		Steps: []react.Step{
			{
				Iteration:   0,
				Thought:     "High-confidence match, invoking directly",
				Action:      react.Action{Capability: "yield_prediction", Args: map[string]any{"query": "q"}},
				Observation: react.Observation{Success: true, Payload: "3.2 t/ha expected"},
				Timestamp:   time.Now().UTC(),
			},
		},
		ExecutionTime: 0.12,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestMemoryStoreFilter(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Save(context.Background(), sampleRecord("run-1", "sess-a", "auto")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(context.Background(), sampleRecord("run-2", "sess-b", "react")); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, err := store.List(context.Background(), Filter{SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].RunID != "run-1" {
		t.Fatalf("unexpected records %+v", records)
	}

	records, err = store.List(context.Background(), Filter{Mode: "react", Limit: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Mode != "react" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Save(context.Background(), sampleRecord("run-1", "sess-a", "auto")); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, err := store.List(context.Background(), Filter{SessionID: "sess-a", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.RunID != "run-1" || !rec.Success || rec.Iterations != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(rec.ToolsUsed) != 1 || rec.ToolsUsed[0] != "yield_prediction" {
		t.Errorf("unexpected tools %v", rec.ToolsUsed)
	}
	if len(rec.Steps) != 1 || rec.Steps[0].Action.Capability != "yield_prediction" {
		t.Errorf("unexpected steps %+v", rec.Steps)
	}
}

func TestSQLiteStoreNilDB(t *testing.T) {
	if _, err := NewSQLiteStore(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}
