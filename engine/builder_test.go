package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-health/guidepost/errors"
)

// testConverter matches by kind and, when domain is set, by domain. Its
// emitter returns the configured intervals without touching the database.
type testConverter struct {
	name       string
	kind       CriterionKind
	domain     string
	intervals  []Interval
	convertErr error
}

func (c *testConverter) Name() string { return c.name }

func (c *testConverter) Matches(criterion Criterion) bool {
	if criterion.Kind != c.kind {
		return false
	}
	return c.domain == "" || criterion.Domain == c.domain
}

func (c *testConverter) Convert(Criterion) (Emitter, error) {
	if c.convertErr != nil {
		return nil, c.convertErr
	}
	intervals := c.intervals
	return EmitterFunc(func(context.Context, Querier, Window) ([]Interval, error) {
		return intervals, nil
	}), nil
}

func TestBuilderPrependOverrides(t *testing.T) {
	base := &testConverter{name: "base", kind: KindCharacteristic}
	override := &testConverter{name: "override", kind: KindCharacteristic, domain: "condition"}

	b := NewBuilder()
	b.AppendCharacteristicConverter(base)
	b.PrependCharacteristicConverter(override)

	eng, err := b.Build(Deps{StagingSchema: "temp"})
	require.NoError(t, err)

	got, err := eng.converterFor(Criterion{Name: "x", Kind: KindCharacteristic, Domain: "condition"})
	require.NoError(t, err)
	assert.Equal(t, "override", got.Name(), "prepended converter must win for criteria it matches")

	got, err = eng.converterFor(Criterion{Name: "y", Kind: KindCharacteristic, Domain: "measurement"})
	require.NoError(t, err)
	assert.Equal(t, "base", got.Name(), "base converter must still catch everything else")
}

func TestBuilderAppendIsFallback(t *testing.T) {
	first := &testConverter{name: "first", kind: KindAction, domain: "procedure"}
	fallback := &testConverter{name: "fallback", kind: KindAction}

	b := NewBuilder()
	b.AppendActionConverter(first)
	b.AppendActionConverter(fallback)

	eng, err := b.Build(Deps{StagingSchema: "temp"})
	require.NoError(t, err)

	got, err := eng.converterFor(Criterion{Name: "x", Kind: KindAction, Domain: "procedure"})
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name())

	got, err = eng.converterFor(Criterion{Name: "y", Kind: KindAction, Domain: "drug"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.Name())
}

func TestBuilderBuildTwice(t *testing.T) {
	b := NewBuilder()
	b.AppendCharacteristicConverter(&testConverter{name: "c", kind: KindCharacteristic})

	_, err := b.Build(Deps{StagingSchema: "temp"})
	require.NoError(t, err)

	_, err = b.Build(Deps{StagingSchema: "temp"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestBuilderNoConverters(t *testing.T) {
	_, err := NewBuilder().Build(Deps{StagingSchema: "temp"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "no converters")
}

func TestBuilderPostBuildMutationIsolated(t *testing.T) {
	base := &testConverter{name: "base", kind: KindCharacteristic}

	b := NewBuilder()
	b.AppendCharacteristicConverter(base)

	eng, err := b.Build(Deps{StagingSchema: "temp"})
	require.NoError(t, err)

	// Mutating the builder after Build must not reach the engine.
	b.characteristic = append([]Converter{&testConverter{name: "late", kind: KindCharacteristic}}, b.characteristic...)

	got, err := eng.converterFor(Criterion{Name: "x", Kind: KindCharacteristic, Domain: "condition"})
	require.NoError(t, err)
	assert.Equal(t, "base", got.Name())
}

func TestDefaultBuilderResolvesAllKinds(t *testing.T) {
	eng, err := DefaultBuilder("cds_cdm").Build(Deps{StagingSchema: "temp"})
	require.NoError(t, err)

	cases := []struct {
		kind   CriterionKind
		domain string
		want   string
	}{
		{KindCharacteristic, "condition", "condition"},
		{KindCharacteristic, "measurement", "measurement"},
		{KindAction, "procedure", "procedure"},
		{KindAction, "drug", "drug_exposure"},
		{KindTimeFromEvent, "visit", "visit_window"},
	}
	for _, tc := range cases {
		got, err := eng.converterFor(Criterion{Name: "x", Kind: tc.kind, Domain: tc.domain})
		require.NoError(t, err, "kind %s domain %s", tc.kind, tc.domain)
		assert.Equal(t, tc.want, got.Name())
	}

	_, err = eng.converterFor(Criterion{Name: "x", Kind: KindCharacteristic, Domain: "device"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no converter accepts")

	_, err = eng.converterFor(Criterion{Name: "x", Kind: "population", Domain: "condition"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestRegisterRecommendation(t *testing.T) {
	eng, err := DefaultBuilder("cds_cdm").Build(Deps{StagingSchema: "temp"})
	require.NoError(t, err)

	_, ok := eng.Registered("r1")
	assert.False(t, ok)

	eng.RegisterRecommendation(&Recommendation{ID: "r1", Name: "first", Version: "1.0"})
	eng.RegisterRecommendation(&Recommendation{ID: "r1", Name: "replaced", Version: "1.1"})

	rec, ok := eng.Registered("r1")
	require.True(t, ok)
	assert.Equal(t, "replaced", rec.Name)
	assert.Equal(t, "1.1", rec.Version)
}
