// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package providers implements the concrete capabilities registered
// with the orchestration core: retrieval, generation, prediction,
// classification and translation. Every provider maps its internal
// failures onto the capability.Result contract; no error or panic
// crosses the invocation boundary.
package providers

import (
	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/llm"
	"github.com/demeterhq/demeter/pkg/retrieval"
)

// Deps carries the external collaborators for provider construction.
// Nil entries skip the corresponding provider.
type Deps struct {
	Retriever          *retrieval.Retriever
	RetrievalTopK      int
	Generator          llm.Provider
	GenerationModel    string
	ClassifierEndpoint string
}

// RegisterAll wires every available provider into the registry. The
// local yield-prediction model needs no external dependency and is
// always registered.
func RegisterAll(reg *capability.Registry, deps Deps) error {
	descs := []capability.Descriptor{NewPrediction().Descriptor()}

	if deps.Retriever != nil {
		descs = append(descs, NewRetrieval(deps.Retriever, deps.RetrievalTopK).Descriptor())
	}
	if deps.Generator != nil {
		descs = append(descs,
			NewGeneration(deps.Generator, deps.GenerationModel).Descriptor(),
			NewTranslation(deps.Generator, deps.GenerationModel).Descriptor(),
		)
	}
	if deps.ClassifierEndpoint != "" {
		descs = append(descs, NewClassification(deps.ClassifierEndpoint).Descriptor())
	}

	for _, desc := range descs {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}
