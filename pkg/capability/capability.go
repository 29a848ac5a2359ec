// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability defines the uniform capability contract and the
// registry that catalogs every skill the assistant can route to.
package capability

import "context"

// Category tags a capability with its discrete skill class. The set is
// closed; the router's tie-break order follows the declaration order below.
type Category string

const (
	CategoryClassification       Category = "classification"
	CategoryStructuredPrediction Category = "structured-prediction"
	CategoryTranslation          Category = "translation"
	CategoryRetrieval            Category = "retrieval"
	CategoryGeneration           Category = "generation"
)

// Categories lists all categories in tie-break priority order.
var Categories = []Category{
	CategoryClassification,
	CategoryStructuredPrediction,
	CategoryTranslation,
	CategoryRetrieval,
	CategoryGeneration,
}

// Priority returns the tie-break rank of a category; lower ranks win.
// Unknown categories sort last.
func (c Category) Priority() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return len(Categories)
}

// Valid reports whether the category belongs to the closed set.
func (c Category) Valid() bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// Result is the uniform invocation outcome every capability must return.
// Providers catch their own internal failures and map them here; no error
// or panic may escape the invocation boundary.
type Result struct {
	Success bool   `json:"success"`
	Payload any    `json:"result"`
	Error   string `json:"error,omitempty"`
}

// Ok builds a successful result.
func Ok(payload any) Result {
	return Result{Success: true, Payload: payload}
}

// Fail builds a failed result with the given reason.
func Fail(reason string) Result {
	return Result{Success: false, Error: reason}
}

// Invoker executes one capability call with keyword arguments.
type Invoker interface {
	Invoke(ctx context.Context, args map[string]any) Result
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, args map[string]any) Result

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, args map[string]any) Result {
	return f(ctx, args)
}

// Descriptor is the registry entry for one capability.
type Descriptor struct {
	Name        string
	Invoke      Invoker
	Description string
	Category    Category
	Keywords    []string
	// Weight biases tie-breaking among capabilities of the same category.
	Weight float64
}
