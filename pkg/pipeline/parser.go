// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/demeterhq/demeter/pkg/capability"
)

// Definition is the serializable form of a pipeline.
type Definition struct {
	Name           string           `json:"name" yaml:"name"`
	AbortOnFailure bool             `json:"abort_on_failure,omitempty" yaml:"abort_on_failure,omitempty"`
	Steps          []StepDefinition `json:"steps" yaml:"steps"`
}

// StepDefinition names one step and the capability backing it.
type StepDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Capability  string `json:"capability" yaml:"capability"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ParseYAML loads a pipeline definition from YAML.
func ParseYAML(data []byte) (*Definition, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse yaml pipeline: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseJSON loads a pipeline definition from JSON.
func ParseJSON(data []byte) (*Definition, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse json pipeline: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("pipeline %q has no steps", d.Name)
	}
	for _, step := range d.Steps {
		if step.Capability == "" {
			return fmt.Errorf("pipeline %q: step %q missing capability", d.Name, step.Name)
		}
	}
	return nil
}

// Resolve binds the definition's steps to capabilities in the registry.
func (d *Definition) Resolve(registry *capability.Registry) (*Pipeline, error) {
	p := New(d.Name)
	p.AbortOnFailure = d.AbortOnFailure
	for _, step := range d.Steps {
		desc, err := registry.Get(step.Capability)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", d.Name, err)
		}
		name := step.Name
		if name == "" {
			name = desc.Name
		}
		description := step.Description
		if description == "" {
			description = desc.Description
		}
		p.AddStep(name, desc.Invoke, description)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
