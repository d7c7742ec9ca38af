package convert

import (
	"context"
	"sort"

	"fileforge/internal/faults"
	"fileforge/internal/format"
)

// Request carries the input bytes and the conversion pair. Options are
// free-form strings validated by each converter ("bitrate", "resolution",
// "quality", ...); unknown keys are ignored.
type Request struct {
	Data         []byte
	SourceFormat string
	TargetFormat string
	Options      map[string]string
}

// ProgressFunc receives conversion progress in the 0-100 range. Converters
// that cannot report incremental progress may never call it.
type ProgressFunc func(percent float64)

// Converter transforms file content between two formats of one category.
type Converter interface {
	Convert(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error)
}

// Registry routes conversion requests to the converter registered for the
// source format's category.
type Registry struct {
	converters map[format.Category]Converter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{converters: make(map[format.Category]Converter)}
}

// Register binds a converter to a category, replacing any previous binding.
func (r *Registry) Register(cat format.Category, conv Converter) {
	r.converters[cat] = conv
}

// Lookup returns the converter for a category.
func (r *Registry) Lookup(cat format.Category) (Converter, error) {
	conv, ok := r.converters[cat]
	if !ok {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "lookup", "no converter for category "+string(cat), nil)
	}
	return conv, nil
}

// Categories returns the registered categories in sorted order.
func (r *Registry) Categories() []format.Category {
	out := make([]format.Category, 0, len(r.converters))
	for cat := range r.converters {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ensureProgress(progress ProgressFunc) ProgressFunc {
	if progress == nil {
		return func(float64) {}
	}
	return progress
}
