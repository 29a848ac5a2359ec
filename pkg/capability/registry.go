// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"strings"
	"sync"

	"github.com/demeterhq/demeter/pkg/errors"
)

// Registry catalogs the available capabilities. It is populated at process
// start and read-mostly thereafter; reads are safe for concurrent use.
// Re-registration must be explicit via RegisterOverwrite, never implicit.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]Descriptor
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds a capability. It fails with CodeDuplicateCapability if the
// name is already taken, and with CodeInvalidInput on malformed descriptors.
func (r *Registry) Register(desc Descriptor) error {
	return r.register(desc, false)
}

// RegisterOverwrite adds a capability, replacing any existing registration
// under the same name. Registration order is preserved on overwrite.
func (r *Registry) RegisterOverwrite(desc Descriptor) error {
	return r.register(desc, true)
}

func (r *Registry) register(desc Descriptor, overwrite bool) error {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "capability name is required", nil)
	}
	if desc.Invoke == nil {
		return errors.New(errors.CodeInvalidInput, "capability invoker is required", nil).
			WithContext("capability", name)
	}
	if !desc.Category.Valid() {
		return errors.New(errors.CodeInvalidInput, "unknown capability category", nil).
			WithContext("capability", name).
			WithContext("category", string(desc.Category))
	}
	desc.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.byName[name]
	if exists && !overwrite {
		return errors.New(errors.CodeDuplicateCapability, "capability already registered", nil).
			WithContext("capability", name)
	}
	if !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = desc
	return nil
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.byName[name]
	if !ok {
		return Descriptor{}, errors.New(errors.CodeCapabilityNotFound, "capability not registered", nil).
			WithContext("capability", name).
			WithRecoverable(true)
	}
	return desc, nil
}

// Has reports whether a capability is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// List returns all capabilities in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// ListByCategory returns capabilities of the given category in
// registration order.
func (r *Registry) ListByCategory(cat Category) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	for _, name := range r.order {
		if desc := r.byName[name]; desc.Category == cat {
			out = append(out, desc)
		}
	}
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
