package engine

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/errors"
)

// Builder assembles an Engine from three ordered converter slots. Slot
// order is the resolution order: prepended converters are consulted before
// everything already registered, appended ones after. Build may be called
// once; the built engine owns copies of the slots, so later mutation of the
// builder cannot reach it.
type Builder struct {
	characteristic []Converter
	action         []Converter
	timeFromEvent  []Converter
	built          bool
}

// NewBuilder returns an empty builder. Most callers want DefaultBuilder.
func NewBuilder() *Builder {
	return &Builder{}
}

// DefaultBuilder returns a builder pre-loaded with the converters every
// recommendation set relies on. dataSchema names the OMOP CDM schema the
// converters read.
func DefaultBuilder(dataSchema string) *Builder {
	b := NewBuilder()
	b.AppendCharacteristicConverter(NewConditionConverter(dataSchema))
	b.AppendCharacteristicConverter(NewMeasurementConverter(dataSchema))
	b.AppendActionConverter(NewProcedureConverter(dataSchema))
	b.AppendActionConverter(NewDrugExposureConverter(dataSchema))
	b.AppendTimeFromEventConverter(NewVisitWindowConverter(dataSchema))
	return b
}

// PrependCharacteristicConverter registers c ahead of all characteristic
// converters seen so far.
func (b *Builder) PrependCharacteristicConverter(c Converter) *Builder {
	b.characteristic = append([]Converter{c}, b.characteristic...)
	return b
}

// AppendCharacteristicConverter registers c behind all characteristic
// converters seen so far.
func (b *Builder) AppendCharacteristicConverter(c Converter) *Builder {
	b.characteristic = append(b.characteristic, c)
	return b
}

// PrependActionConverter registers c ahead of all action converters seen so
// far.
func (b *Builder) PrependActionConverter(c Converter) *Builder {
	b.action = append([]Converter{c}, b.action...)
	return b
}

// AppendActionConverter registers c behind all action converters seen so
// far.
func (b *Builder) AppendActionConverter(c Converter) *Builder {
	b.action = append(b.action, c)
	return b
}

// PrependTimeFromEventConverter registers c ahead of all time-from-event
// converters seen so far.
func (b *Builder) PrependTimeFromEventConverter(c Converter) *Builder {
	b.timeFromEvent = append([]Converter{c}, b.timeFromEvent...)
	return b
}

// AppendTimeFromEventConverter registers c behind all time-from-event
// converters seen so far.
func (b *Builder) AppendTimeFromEventConverter(c Converter) *Builder {
	b.timeFromEvent = append(b.timeFromEvent, c)
	return b
}

// Deps carries everything a built engine needs at runtime.
type Deps struct {
	// DB is the pipeline database; the engine writes staging rows and reads
	// clinical data through it.
	DB *sql.DB

	// StagingSchema names the schema the engine writes execution runs and
	// result intervals into.
	StagingSchema string

	// Client performs remote recommendation fetches. Nil means
	// http.DefaultClient.
	Client Doer

	// Logger receives execution progress. Nil means a no-op logger.
	Logger *zap.SugaredLogger
}

// Build finalizes the slots and returns the engine. It fails when called a
// second time or when no converters were registered at all, both of which
// point at broken wiring rather than bad data.
func (b *Builder) Build(deps Deps) (*Engine, error) {
	if b.built {
		return nil, errors.Mark(errors.New("engine builder already built"), errors.ErrConfiguration)
	}
	if len(b.characteristic) == 0 && len(b.action) == 0 {
		return nil, errors.Mark(errors.New("engine builder has no converters registered"), errors.ErrConfiguration)
	}
	b.built = true

	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	return newEngine(
		deps,
		append([]Converter(nil), b.characteristic...),
		append([]Converter(nil), b.action...),
		append([]Converter(nil), b.timeFromEvent...),
	), nil
}
