// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"strings"
	"testing"
)

// Assertions provides assertion helpers for testing.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates a new assertions helper.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed returns true if any assertion has failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

// AssertEqual asserts that two values are equal.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	if expected != actual {
		a.t.Errorf("%s: expected %v, got %v", msg, expected, actual)
		a.failed = true
	}
}

// AssertTrue asserts that the value is true.
func (a *Assertions) AssertTrue(value bool, msg string) {
	a.t.Helper()
	if !value {
		a.t.Errorf("%s: expected true", msg)
		a.failed = true
	}
}

// AssertContains asserts that the string contains the substring.
func (a *Assertions) AssertContains(s, substr, msg string) {
	a.t.Helper()
	if !strings.Contains(s, substr) {
		a.t.Errorf("%s: %q does not contain %q", msg, s, substr)
		a.failed = true
	}
}

// AssertToolsUsed asserts that the tool sequence matches exactly,
// order and duplicates included.
func (a *Assertions) AssertToolsUsed(actual, expected []string, msg string) {
	a.t.Helper()
	if len(actual) != len(expected) {
		a.t.Errorf("%s: expected tools %v, got %v", msg, expected, actual)
		a.failed = true
		return
	}
	for i := range expected {
		if actual[i] != expected[i] {
			a.t.Errorf("%s: expected tools %v, got %v", msg, expected, actual)
			a.failed = true
			return
		}
	}
}
