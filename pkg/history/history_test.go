// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestAppendAndRecent(t *testing.T) {
	buf := NewBuffer(5)
	buf.Append(Turn{Query: "q1", Response: "a1"})
	buf.Append(Turn{Query: "q2", Response: "a2"})

	recent := buf.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(recent))
	}
	if recent[0].Query != "q1" || recent[1].Query != "q2" {
		t.Fatalf("order wrong: %s, %s", recent[0].Query, recent[1].Query)
	}
	if recent[0].ID == "" || recent[0].Timestamp.IsZero() {
		t.Fatal("append should fill id and timestamp")
	}
}

func TestEvictionFIFO(t *testing.T) {
	buf := NewBuffer(3)
	for i := 1; i <= 4; i++ {
		buf.Append(Turn{Query: fmt.Sprintf("q%d", i)})
	}

	recent := buf.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("capacity 3 buffer returned %d turns after 4 appends", len(recent))
	}
	if recent[0].Query != "q2" {
		t.Fatalf("oldest turn should be evicted, got %s first", recent[0].Query)
	}
	if recent[2].Query != "q4" {
		t.Fatalf("newest turn missing, got %s last", recent[2].Query)
	}
}

func TestRecentBounds(t *testing.T) {
	buf := NewBuffer(5)
	if got := buf.Recent(3); got != nil {
		t.Fatalf("empty buffer should return nil, got %v", got)
	}
	buf.Append(Turn{Query: "q1"})
	if got := buf.Recent(0); got != nil {
		t.Fatalf("n=0 should return nil, got %v", got)
	}
	if got := buf.Recent(1); len(got) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(got))
	}
}

func TestSummarizeTruncates(t *testing.T) {
	buf := NewBuffer(10)
	for i := 0; i < 5; i++ {
		buf.Append(Turn{
			Query:    strings.Repeat("wheat rust treatment ", 10),
			Response: strings.Repeat("apply fungicide early ", 10),
		})
	}

	summary := buf.Summarize(5, 200)
	if utf8.RuneCountInString(summary) > 200 {
		t.Fatalf("summary exceeds bound: %d runes", utf8.RuneCountInString(summary))
	}
	if summary == "" {
		t.Fatal("summary should not be empty")
	}
}

func TestSummarizeContent(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append(Turn{Query: "best wheat variety", Response: "HD-2967"})

	summary := buf.Summarize(5, 0)
	if !strings.Contains(summary, "best wheat variety") || !strings.Contains(summary, "HD-2967") {
		t.Fatalf("summary missing turn content: %s", summary)
	}
}

func TestConcurrentAppend(t *testing.T) {
	buf := NewBuffer(50)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				buf.Append(Turn{Query: fmt.Sprintf("w%d-%d", n, j)})
				buf.Recent(5)
			}
		}(i)
	}
	wg.Wait()

	if buf.Len() != 50 {
		t.Fatalf("expected buffer at capacity 50, got %d", buf.Len())
	}
}

func TestDefaultCapacity(t *testing.T) {
	buf := NewBuffer(0)
	if buf.Capacity() != DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultCapacity, buf.Capacity())
	}
}
