// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration with rich attributes
// for query-orchestration observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Demeter telemetry.
const (
	// Query attributes
	AttrQueryRunID   = "demeter.query.run_id"
	AttrQueryMode    = "demeter.query.mode"
	AttrQuerySession = "demeter.query.session_id"

	// Router attributes
	AttrRouterSelected   = "demeter.router.selected"
	AttrRouterConfidence = "demeter.router.confidence"
	AttrRouterFallback   = "demeter.router.fallback"
	AttrRouterCandidates = "demeter.router.candidates"

	// Reasoning attributes
	AttrReactIteration     = "demeter.react.iteration"
	AttrReactMaxIterations = "demeter.react.max_iterations"
	AttrReactState         = "demeter.react.state"
	AttrReactSuccess       = "demeter.react.success"

	// Capability attributes
	AttrCapabilityName       = "demeter.capability.name"
	AttrCapabilityCategory   = "demeter.capability.category"
	AttrCapabilitySuccess    = "demeter.capability.success"
	AttrCapabilityDurationMs = "demeter.capability.duration_ms"

	// Pipeline attributes
	AttrPipelineName = "demeter.pipeline.name"
	AttrPipelineStep = "demeter.pipeline.step"

	// Error attributes
	AttrErrorCode        = "demeter.error.code"
	AttrErrorRecoverable = "demeter.error.recoverable"
)

// QueryAttributes builds standard query span attributes.
func QueryAttributes(runID, mode, sessionID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrQueryRunID, runID),
		attribute.String(AttrQueryMode, mode),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrQuerySession, sessionID))
	}
	return attrs
}

// RouterAttributes builds routing decision span attributes.
func RouterAttributes(selected string, confidence float64, fallback bool, candidates int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRouterSelected, selected),
		attribute.Float64(AttrRouterConfidence, confidence),
		attribute.Bool(AttrRouterFallback, fallback),
		attribute.Int(AttrRouterCandidates, candidates),
	}
}

// ReactAttributes builds reasoning loop span attributes.
func ReactAttributes(iteration, maxIterations int, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrReactIteration, iteration),
		attribute.Int(AttrReactMaxIterations, maxIterations),
		attribute.String(AttrReactState, state),
	}
}

// CapabilityAttributes builds capability invocation span attributes.
func CapabilityAttributes(name, category string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCapabilityName, name),
		attribute.String(AttrCapabilityCategory, category),
		attribute.Float64(AttrCapabilityDurationMs, durationMs),
		attribute.Bool(AttrCapabilitySuccess, success),
	}
}

// TruncateAttr bounds an attribute value to maxLen runes for span hygiene.
func TruncateAttr(value string, maxLen int) string {
	if maxLen <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= maxLen {
		return value
	}
	return string(runes[:maxLen]) + "..."
}
