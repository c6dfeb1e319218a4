package extract

import (
	"context"
	"fmt"
)

// Engine defines the interface for OCR text recognition.
// Implementations can be swapped in (cloud API, local binary) without
// changing the extraction engine or pipeline layer.
type Engine interface {
	// Name returns the engine name used for selection and logging
	Name() string

	// Recognize extracts text from a rendered page image. device is the
	// granted GPU device ID, or -1 for the CPU path; engines without
	// device selection ignore it.
	Recognize(ctx context.Context, image []byte, lang string, device int) (string, error)
}

// Registry holds all registered OCR engines and resolves them by name
type Registry struct {
	engines      map[string]Engine
	defaultName  string
	fallbackName string
}

// NewRegistry creates an engine registry. The first registered engine name
// becomes the default unless overridden with SetDefault.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		if r.defaultName == "" {
			r.defaultName = e.Name()
		}
		r.engines[e.Name()] = e
	}
	return r
}

// Has reports whether an engine with the given name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.engines[name]
	return ok
}

// SetDefault sets the engine used when a batch names none
func (r *Registry) SetDefault(name string) {
	r.defaultName = name
}

// SetFallback sets the engine tried once when the primary engine fails
func (r *Registry) SetFallback(name string) {
	r.fallbackName = name
}

// Resolve returns the engine for the given name, or the default engine when
// the name is empty or unknown.
func (r *Registry) Resolve(name string) (Engine, error) {
	if name == "" {
		name = r.defaultName
	}
	if e, ok := r.engines[name]; ok {
		return e, nil
	}
	if e, ok := r.engines[r.defaultName]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("no OCR engine registered for %q", name)
}

// Fallback returns the configured fallback engine, skipping it when it is
// the same engine that already failed.
func (r *Registry) Fallback(failed string) Engine {
	if r.fallbackName == "" || r.fallbackName == failed {
		return nil
	}
	return r.engines[r.fallbackName]
}
