// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package history provides a bounded, ordered store of conversation turns.
package history

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity bounds a buffer when no capacity is given.
const DefaultCapacity = 20

// Turn is one completed query/response exchange.
type Turn struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	ToolsUsed []string  `json:"tools_used,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer is a fixed-capacity FIFO of conversation turns. Appends are
// serialized with a mutex so concurrent requests for the same session keep
// turn ordering; reads copy out a snapshot and never block writers for long.
type Buffer struct {
	mu       sync.RWMutex
	turns    []Turn
	capacity int
}

// NewBuffer creates a buffer holding at most capacity turns. Non-positive
// capacities fall back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append adds a turn, evicting the oldest one when the buffer is full.
func (b *Buffer) Append(turn Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	b.turns = append(b.turns, turn)
	if len(b.turns) > b.capacity {
		b.turns = b.turns[len(b.turns)-b.capacity:]
	}
}

// Recent returns up to n most recent turns, oldest first.
func (b *Buffer) Recent(n int) []Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || len(b.turns) == 0 {
		return nil
	}
	if n > len(b.turns) {
		n = len(b.turns)
	}
	out := make([]Turn, n)
	copy(out, b.turns[len(b.turns)-n:])
	return out
}

// Len returns the number of stored turns.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}

// Capacity returns the configured capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Clear removes all turns.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = nil
}

// Summarize concatenates the n most recent turns into a context string of
// at most maxLen runes. Older turns are dropped before newer ones are
// truncated, so the result never grows unbounded.
func (b *Buffer) Summarize(n, maxLen int) string {
	turns := b.Recent(n)
	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, turn := range turns {
		sb.WriteString(fmt.Sprintf("Q: %s\nA: %s\n", turn.Query, turn.Response))
	}
	summary := strings.TrimSpace(sb.String())
	if maxLen <= 0 {
		return summary
	}

	runes := []rune(summary)
	if len(runes) <= maxLen {
		return summary
	}
	// Keep the tail: the most recent exchanges carry the useful context.
	return string(runes[len(runes)-maxLen:])
}
