// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package router scores incoming queries against registered capabilities
// and produces ranked, deterministic routing decisions.
package router

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/errors"
)

const (
	// Weighting between keyword overlap and structural pattern match.
	// Fixed coefficients keep Analyze fully deterministic.
	keywordWeight    = 0.7
	structuralWeight = 0.3

	// DefaultFloor is the minimal score below which the router falls back
	// to the generation capability instead of surfacing ambiguity.
	DefaultFloor = 0.05
)

// Candidate is one scored capability.
type Candidate struct {
	Name     string              `json:"name"`
	Category capability.Category `json:"category"`
	Score    float64             `json:"score"`
}

// Decision is the outcome of scoring one query. It is immutable once
// returned; Alternatives are ranked runner-ups.
type Decision struct {
	Selected     string      `json:"selected"`
	Confidence   float64     `json:"confidence"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
	// Fallback marks a decision resolved by the generation fallback
	// because nothing scored above the floor.
	Fallback bool `json:"fallback,omitempty"`
}

// Router ranks capabilities for a query. Analyze is pure: identical input
// against unchanged registry state yields an identical Decision.
type Router struct {
	registry *capability.Registry
	patterns patternTable
	floor    float64
	log      *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithFloor overrides the minimal-score floor.
func WithFloor(floor float64) Option {
	return func(r *Router) {
		if floor > 0 {
			r.floor = floor
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// WithStructuralPatterns replaces the default structural trigger tables.
func WithStructuralPatterns(patterns map[capability.Category][]string) Option {
	return func(r *Router) {
		if len(patterns) > 0 {
			r.patterns = compilePatterns(patterns)
		}
	}
}

// New creates a Router over the given registry.
func New(registry *capability.Registry, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		patterns: compilePatterns(defaultStructuralPatterns),
		floor:    DefaultFloor,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Analyze scores the query against every registered capability and returns
// a ranked Decision. Ambiguity never propagates: when nothing clears the
// floor the first registered generation capability is selected instead.
// The only error condition is a registry with no usable capability at all.
func (r *Router) Analyze(query string) (Decision, error) {
	descs := r.registry.List()
	if len(descs) == 0 {
		return Decision{}, errors.New(errors.CodeRoutingAmbiguous, "no capabilities registered", nil).
			WithRecoverable(false)
	}

	lowered := strings.ToLower(query)
	candidates := make([]Candidate, 0, len(descs))
	for _, desc := range descs {
		candidates = append(candidates, Candidate{
			Name:     desc.Name,
			Category: desc.Category,
			Score:    r.score(lowered, query, desc),
		})
	}

	// Rank: score desc, then category priority, then descriptor weight,
	// then registration order. sort.SliceStable keeps the last tie-break
	// implicit in the registration-ordered input.
	weights := make(map[string]float64, len(descs))
	for _, desc := range descs {
		weights[desc.Name] = desc.Weight
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		pi, pj := candidates[i].Category.Priority(), candidates[j].Category.Priority()
		if pi != pj {
			return pi < pj
		}
		return weights[candidates[i].Name] > weights[candidates[j].Name]
	})

	best := candidates[0]
	if best.Score < r.floor {
		return r.fallback(query, candidates)
	}

	decision := Decision{
		Selected:     best.Name,
		Confidence:   best.Score,
		Alternatives: candidates[1:],
	}
	r.log.Debug("router.decision",
		slog.String("selected", decision.Selected),
		slog.Float64("confidence", decision.Confidence),
	)
	return decision, nil
}

// score combines normalized keyword overlap with the structural bonus and
// clamps the result into [0,1].
func (r *Router) score(lowered, original string, desc capability.Descriptor) float64 {
	kw := keywordScore(lowered, desc.Keywords)
	structural := 0.0
	if r.patterns.matches(desc.Category, original) {
		structural = 1.0
	}
	s := keywordWeight*kw + structuralWeight*structural
	if s > 1 {
		s = 1
	}
	if s < 0 {
		s = 0
	}
	return s
}

func keywordScore(lowered string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		hits += strings.Count(lowered, kw)
	}
	score := float64(hits) / float64(len(keywords))
	if score > 1 {
		score = 1
	}
	return score
}

// fallback resolves sub-floor decisions with the first registered
// generation capability, per the universal-fallback policy.
func (r *Router) fallback(query string, ranked []Candidate) (Decision, error) {
	gens := r.registry.ListByCategory(capability.CategoryGeneration)
	if len(gens) == 0 {
		return Decision{}, errors.New(errors.CodeRoutingAmbiguous, "no generation capability available for fallback", nil).
			WithContext("query", query).
			WithRecoverable(false)
	}

	selected := gens[0].Name
	alternatives := make([]Candidate, 0, len(ranked))
	for _, c := range ranked {
		if c.Name != selected {
			alternatives = append(alternatives, c)
		}
	}
	r.log.Debug("router.fallback",
		slog.String("selected", selected),
	)
	return Decision{
		Selected:     selected,
		Confidence:   r.floor,
		Alternatives: alternatives,
		Fallback:     true,
	}, nil
}
