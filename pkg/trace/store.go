// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace persists completed reasoning traces for diagnostics.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/demeterhq/demeter/pkg/react"
)

// Record is one persisted query trace.
type Record struct {
	RunID         string       `json:"run_id"`
	SessionID     string       `json:"session_id,omitempty"`
	Query         string       `json:"query"`
	Mode          string       `json:"mode"`
	FinalAnswer   string       `json:"final_answer"`
	Success       bool         `json:"success"`
	Iterations    int          `json:"iterations_used"`
	ToolsUsed     []string     `json:"tools_used"`
	Steps         []react.Step `json:"trace"`
	ExecutionTime float64      `json:"execution_time"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Filter limits trace queries.
type Filter struct {
	SessionID string
	Mode      string
	Limit     int
}

// Store persists query traces.
type Store interface {
	Save(ctx context.Context, rec Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
}

// MemoryStore keeps traces in memory.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryStore returns an in-memory trace store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save appends a trace record.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// List returns filtered trace records in insertion order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.SessionID != "" && rec.SessionID != filter.SessionID {
			continue
		}
		if filter.Mode != "" && rec.Mode != filter.Mode {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
