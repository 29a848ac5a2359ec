// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package react

import (
	"encoding/json"
	"fmt"
	"time"
)

// State names the reasoning loop states. ROUTE, ACT and OBSERVE are
// transient; DONE and FAILED are terminal.
type State string

const (
	StateRoute   State = "ROUTE"
	StateAct     State = "ACT"
	StateObserve State = "OBSERVE"
	StateDone    State = "DONE"
	StateFailed  State = "FAILED"
)

// Action is one capability call decided by the loop.
type Action struct {
	Capability string         `json:"capability"`
	Args       map[string]any `json:"args,omitempty"`
}

// Observation is the recorded outcome of one Action.
type Observation struct {
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Step is a single Thought→Action→Observation record. Steps are
// append-only; the loop never mutates an earlier step.
type Step struct {
	Iteration   int         `json:"iteration"`
	Thought     string      `json:"thought"`
	Action      Action      `json:"action"`
	Observation Observation `json:"observation"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Trace is the complete record of answering one query. It is immutable
// once the loop terminates.
type Trace struct {
	Steps          []Step   `json:"trace"`
	FinalAnswer    string   `json:"final_answer"`
	ToolsUsed      []string `json:"tools_used"`
	Success        bool     `json:"success"`
	IterationsUsed int      `json:"iterations_used"`
	State          State    `json:"state"`
	// ExecutionTime is wall-clock seconds, stamped by the orchestrator.
	ExecutionTime  float64  `json:"execution_time"`
}

func (t *Trace) append(step Step, tool string) {
	t.Steps = append(t.Steps, step)
	t.ToolsUsed = append(t.ToolsUsed, tool)
	t.IterationsUsed = len(t.Steps)
}

// formatPayload renders a capability payload as answer text. String
// payloads pass through; maps prefer a conventional answer field;
// everything else is JSON.
func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"answer", "text", "translation", "summary"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
