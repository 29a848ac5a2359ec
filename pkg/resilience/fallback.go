// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"

	"github.com/demeterhq/demeter/pkg/errors"
)

// FallbackStrategy defines a fallback behavior when the primary operation fails.
type FallbackStrategy interface {
	// Execute runs the fallback operation.
	Execute(ctx context.Context, primaryErr error) (interface{}, error)
}

// FallbackFunc wraps a function as a FallbackStrategy.
type FallbackFunc func(ctx context.Context, primaryErr error) (interface{}, error)

// Execute implements FallbackStrategy.
func (f FallbackFunc) Execute(ctx context.Context, err error) (interface{}, error) {
	return f(ctx, err)
}

// StaticFallback returns a static value on failure.
type StaticFallback struct {
	Value interface{}
}

// Execute implements FallbackStrategy.
func (s *StaticFallback) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	return s.Value, nil
}

// ErrorFallback returns an error with additional context.
type ErrorFallback struct {
	Message string
}

// Execute implements FallbackStrategy.
func (e *ErrorFallback) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	return nil, errors.New(errors.CodeInternal, e.Message, primaryErr).
		WithContext("fallback", "error").
		WithRecoverable(false)
}

// ChainedFallback tries multiple fallbacks in sequence.
type ChainedFallback struct {
	Fallbacks []FallbackStrategy
}

// Execute implements FallbackStrategy.
func (c *ChainedFallback) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	var lastErr error = primaryErr

	for _, fallback := range c.Fallbacks {
		value, err := fallback.Execute(ctx, lastErr)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// WithFallback executes fn, and on error, uses the fallback strategy.
func WithFallback(ctx context.Context, fn func() (interface{}, error), fallback FallbackStrategy) (interface{}, error) {
	value, err := fn()
	if err == nil {
		return value, nil
	}

	return fallback.Execute(ctx, err)
}
