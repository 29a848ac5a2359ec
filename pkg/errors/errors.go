// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Demeter.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Demeter errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeCapabilityNotFound indicates the requested capability is not registered.
	CodeCapabilityNotFound ErrorCode = "CAPABILITY_NOT_FOUND"

	// CodeDuplicateCapability indicates a capability name is already registered.
	CodeDuplicateCapability ErrorCode = "DUPLICATE_CAPABILITY"

	// CodeCapabilityFailure indicates a capability invocation failed.
	CodeCapabilityFailure ErrorCode = "CAPABILITY_FAILURE"

	// CodeRoutingAmbiguous indicates no capability scored above the routing floor.
	// It is resolved internally by the generation fallback and never reaches callers.
	CodeRoutingAmbiguous ErrorCode = "ROUTING_AMBIGUOUS"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeMemoryError indicates a history or retrieval backend error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates a language-model provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodePipelineError indicates a pipeline definition or execution error.
	CodePipelineError ErrorCode = "PIPELINE_ERROR"
)

// DemeterError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type DemeterError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *DemeterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *DemeterError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *DemeterError) MarshalJSON() ([]byte, error) {
	type Alias DemeterError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new DemeterError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *DemeterError {
	return &DemeterError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *DemeterError) WithContext(key string, value interface{}) *DemeterError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *DemeterError) WithAttribute(key, value string) *DemeterError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *DemeterError) WithRecoverable(recoverable bool) *DemeterError {
	e.Recoverable = recoverable
	return e
}

// AsDemeterError attempts to convert an error to a DemeterError.
// Returns the error as DemeterError if it is one, or wraps it otherwise.
func AsDemeterError(err error) *DemeterError {
	if err == nil {
		return nil
	}
	if de, ok := err.(*DemeterError); ok {
		return de
	}
	return New(CodeInternal, "wrapped error", err)
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *DemeterError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes for hosting layers.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeCapabilityNotFound:
		return 404
	case CodeInvalidInput:
		return 400
	case CodeDuplicateCapability:
		return 409
	case CodeTimeout:
		return 408
	default:
		return 500
	}
}
