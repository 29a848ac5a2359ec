// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/errors"
)

// Canned pipeline names.
const (
	NameRetrieveThenGenerate  = "retrieve-then-generate"
	NameTranslateRoundTrip    = "translate-process-translate-back"
)

// Builder constructs pipelines whose steps resolve to registered
// capabilities.
type Builder struct {
	registry *capability.Registry
}

// NewBuilder creates a builder over the given registry.
func NewBuilder(registry *capability.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build assembles a pipeline from ordered capability names.
func (b *Builder) Build(name string, capabilities ...string) (*Pipeline, error) {
	p := New(name)
	for _, capName := range capabilities {
		desc, err := b.registry.Get(capName)
		if err != nil {
			return nil, errors.New(errors.CodePipelineError, "pipeline step resolves to unknown capability", err).
				WithContext("pipeline", name).
				WithContext("step", capName)
		}
		p.AddStep(desc.Name, desc.Invoke, desc.Description)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// RetrieveThenGenerate builds the canned retrieval-grounded answer
// pipeline: the first retrieval capability feeds the first generation one.
func (b *Builder) RetrieveThenGenerate() (*Pipeline, error) {
	retrieval, err := b.firstOfCategory(capability.CategoryRetrieval)
	if err != nil {
		return nil, err
	}
	generation, err := b.firstOfCategory(capability.CategoryGeneration)
	if err != nil {
		return nil, err
	}
	return b.Build(NameRetrieveThenGenerate, retrieval, generation)
}

// TranslateRoundTrip builds the canned translate, process, translate-back
// pipeline around the named processing capability.
func (b *Builder) TranslateRoundTrip(process string) (*Pipeline, error) {
	translation, err := b.firstOfCategory(capability.CategoryTranslation)
	if err != nil {
		return nil, err
	}
	p, err := b.Build(NameTranslateRoundTrip, translation, process)
	if err != nil {
		return nil, err
	}

	// The closing translation reuses the same capability under a distinct
	// step name so the step list stays unique.
	desc, err := b.registry.Get(translation)
	if err != nil {
		return nil, err
	}
	p.AddStep(desc.Name+"_back", desc.Invoke, desc.Description)
	return p, nil
}

// Canned returns the named canned pipeline.
func (b *Builder) Canned(name string) (*Pipeline, error) {
	switch name {
	case NameRetrieveThenGenerate:
		return b.RetrieveThenGenerate()
	case NameTranslateRoundTrip:
		generation, err := b.firstOfCategory(capability.CategoryGeneration)
		if err != nil {
			return nil, err
		}
		return b.TranslateRoundTrip(generation)
	default:
		return nil, errors.New(errors.CodePipelineError, "unknown canned pipeline", nil).
			WithContext("pipeline", name)
	}
}

func (b *Builder) firstOfCategory(cat capability.Category) (string, error) {
	descs := b.registry.ListByCategory(cat)
	if len(descs) == 0 {
		return "", errors.New(errors.CodeCapabilityNotFound, "no capability registered for category", nil).
			WithContext("category", string(cat)).
			WithRecoverable(true)
	}
	return descs[0].Name, nil
}
