// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New(CodeCapabilityFailure, "invoke rag_retrieval", cause)

	msg := err.Error()
	if !strings.Contains(msg, string(CodeCapabilityFailure)) {
		t.Fatalf("missing code in message: %s", msg)
	}
	if !strings.Contains(msg, "connection refused") {
		t.Fatalf("missing cause in message: %s", msg)
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := New(CodeRoutingAmbiguous, "no capability above floor", nil)
	if strings.Contains(err.Error(), "<nil>") {
		t.Fatalf("nil cause leaked into message: %s", err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := New(CodeInternal, "wrapped", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("errors.Is should find the cause")
	}

	var de *DemeterError
	if !stderrors.As(err, &de) {
		t.Fatal("errors.As should find DemeterError")
	}
	if de.Code != CodeInternal {
		t.Fatalf("unexpected code: %s", de.Code)
	}
}

func TestChaining(t *testing.T) {
	err := New(CodeTimeout, "capability call timed out", nil).
		WithContext("capability", "llm_generation").
		WithAttribute("demeter.capability.name", "llm_generation").
		WithRecoverable(true)

	if err.Context["capability"] != "llm_generation" {
		t.Fatalf("context not set: %v", err.Context)
	}
	if err.Attributes["demeter.capability.name"] != "llm_generation" {
		t.Fatalf("attribute not set: %v", err.Attributes)
	}
	if !err.Recoverable {
		t.Fatal("recoverable not set")
	}
	if err.RecoverableString() != "true" {
		t.Fatalf("unexpected recoverable string: %s", err.RecoverableString())
	}
}

func TestAsDemeterError(t *testing.T) {
	if AsDemeterError(nil) != nil {
		t.Fatal("nil should stay nil")
	}

	plain := stderrors.New("plain")
	wrapped := AsDemeterError(plain)
	if wrapped.Code != CodeInternal {
		t.Fatalf("plain errors should wrap as internal, got %s", wrapped.Code)
	}

	typed := New(CodeCapabilityNotFound, "missing", nil)
	if AsDemeterError(typed) != typed {
		t.Fatal("typed errors should pass through unchanged")
	}
}

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{CodeCapabilityNotFound, 404},
		{CodeInvalidInput, 400},
		{CodeDuplicateCapability, 409},
		{CodeTimeout, 408},
		{CodeCapabilityFailure, 500},
		{CodeLLMError, 500},
	}
	for _, tc := range cases {
		if got := New(tc.code, "x", nil).StatusCode; got != tc.want {
			t.Fatalf("%s: expected status %d, got %d", tc.code, tc.want, got)
		}
	}
}
