package engine

import (
	"context"
)

// Converter translates criteria of one shape into executable emitters. The
// builder keeps converters in three ordered slots (characteristic, action,
// time-from-event); within a slot the first converter whose Matches returns
// true wins, so prepending overrides and appending adds fallbacks.
type Converter interface {
	// Name identifies the converter in logs and errors.
	Name() string

	// Matches reports whether this converter can handle the criterion.
	Matches(criterion Criterion) bool

	// Convert builds the emitter for a matched criterion.
	Convert(criterion Criterion) (Emitter, error)
}

// Emitter produces the result intervals of one criterion over a window.
// Implementations read the clinical data schema through q and must not
// write anything.
type Emitter interface {
	Emit(ctx context.Context, q Querier, window Window) ([]Interval, error)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, q Querier, window Window) ([]Interval, error)

func (f EmitterFunc) Emit(ctx context.Context, q Querier, window Window) ([]Interval, error) {
	return f(ctx, q, window)
}
