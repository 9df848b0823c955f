package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/errors"
)

// ExtendBuilder registers the set-specific converters on top of the default
// ones. Characteristic and action converters are prepended so they override
// the defaults for the criteria they match; time-from-event converters are
// appended as fallbacks behind the stock visit anchor.
func ExtendBuilder(b *engine.Builder, set, dataSchema string) error {
	switch set {
	case config.RecommendationSetCELIDA:
		// celida runs on the stock converters
		return nil
	case config.RecommendationSetDigiPOD:
		b.PrependCharacteristicConverter(newScreeningObservationConverter(dataSchema))
		b.PrependActionConverter(newDrugDoseConverter(dataSchema))
		b.AppendTimeFromEventConverter(newPostoperativeAnchorConverter(dataSchema))
		return nil
	default:
		return errors.Mark(errors.Newf("unknown recommendation set %q", set), errors.ErrConfiguration)
	}
}

// A screening observation asserts a state for one nursing shift; a surgical
// procedure opens a five-day delirium risk window.
const (
	screeningValidity = 8 * time.Hour
	postoperativeSpan = 5 * 24 * time.Hour
)

// screeningConceptOutcomes maps DigiPOD answer concepts to interval types.
// Unknown answer concepts count as positive: the screening happened.
var screeningConceptOutcomes = map[int64]string{
	2000000731: engine.IntervalPositive, // screening positive
	2000000732: engine.IntervalNegative, // screening negative
}

// screeningObservationConverter evaluates characteristic criteria over the
// OMOP observation table, classifying each row by its answer concept. It
// overrides nothing in the default set, which has no observation handling.
type screeningObservationConverter struct {
	schema string
}

func newScreeningObservationConverter(dataSchema string) engine.Converter {
	return &screeningObservationConverter{schema: dataSchema}
}

func (c *screeningObservationConverter) Name() string { return "digipod_screening_observation" }

func (c *screeningObservationConverter) Matches(criterion engine.Criterion) bool {
	return criterion.Kind == engine.KindCharacteristic && criterion.Domain == "observation"
}

func (c *screeningObservationConverter) Convert(criterion engine.Criterion) (engine.Emitter, error) {
	query := fmt.Sprintf(`SELECT person_id, observation_datetime, value_as_concept_id
FROM %s.observation
WHERE observation_concept_id = $1
  AND observation_datetime >= $2
  AND observation_datetime < $3`, pq.QuoteIdentifier(c.schema))

	return engine.EmitterFunc(func(ctx context.Context, q engine.Querier, window engine.Window) ([]engine.Interval, error) {
		rows, err := q.QueryContext(ctx, query, criterion.ConceptID, window.Start, window.End)
		if err != nil {
			return nil, errors.Wrapf(err, "querying observations for %q", criterion.Name)
		}
		defer rows.Close()

		var intervals []engine.Interval
		for rows.Next() {
			var (
				personID int64
				at       time.Time
				answer   sql.NullInt64
			)
			if err := rows.Scan(&personID, &at, &answer); err != nil {
				return nil, errors.Wrap(err, "scanning observation row")
			}
			kind := engine.IntervalNoData
			if answer.Valid {
				kind = engine.IntervalPositive
				if mapped, ok := screeningConceptOutcomes[answer.Int64]; ok {
					kind = mapped
				}
			}
			if s, e, ok := window.Clip(at, at.Add(screeningValidity)); ok {
				intervals = append(intervals, engine.Interval{PersonID: personID, Start: s, End: e, Type: kind})
			}
		}
		return intervals, rows.Err()
	}), nil
}

// drugDoseConverter handles action criteria that carry a dose threshold. It
// is prepended, so it takes dose-bearing drug criteria away from the stock
// exposure converter while plain drug criteria still fall through.
type drugDoseConverter struct {
	schema string
}

func newDrugDoseConverter(dataSchema string) engine.Converter {
	return &drugDoseConverter{schema: dataSchema}
}

func (c *drugDoseConverter) Name() string { return "digipod_drug_dose" }

func (c *drugDoseConverter) Matches(criterion engine.Criterion) bool {
	return criterion.Kind == engine.KindAction && criterion.Domain == "drug" && criterion.Threshold != nil
}

func (c *drugDoseConverter) Convert(criterion engine.Criterion) (engine.Emitter, error) {
	if criterion.Threshold == nil {
		return nil, errors.Newf("criterion %q has no dose threshold", criterion.Name)
	}
	threshold := *criterion.Threshold

	query := fmt.Sprintf(`SELECT person_id, drug_exposure_start_datetime, drug_exposure_end_datetime, quantity
FROM %s.drug_exposure
WHERE drug_concept_id = $1
  AND drug_exposure_start_datetime < $3
  AND COALESCE(drug_exposure_end_datetime, $3) > $2`, pq.QuoteIdentifier(c.schema))

	return engine.EmitterFunc(func(ctx context.Context, q engine.Querier, window engine.Window) ([]engine.Interval, error) {
		rows, err := q.QueryContext(ctx, query, criterion.ConceptID, window.Start, window.End)
		if err != nil {
			return nil, errors.Wrapf(err, "querying drug doses for %q", criterion.Name)
		}
		defer rows.Close()

		var intervals []engine.Interval
		for rows.Next() {
			var (
				personID int64
				start    time.Time
				end      sql.NullTime
				quantity sql.NullFloat64
			)
			if err := rows.Scan(&personID, &start, &end, &quantity); err != nil {
				return nil, errors.Wrap(err, "scanning drug dose row")
			}
			kind := engine.IntervalNoData
			switch {
			case !quantity.Valid:
			case quantity.Float64 >= threshold:
				kind = engine.IntervalPositive
			default:
				kind = engine.IntervalNegative
			}
			effectiveEnd := window.End
			if end.Valid {
				effectiveEnd = end.Time
			}
			if s, e, ok := window.Clip(start, effectiveEnd); ok {
				intervals = append(intervals, engine.Interval{PersonID: personID, Start: s, End: e, Type: kind})
			}
		}
		return intervals, rows.Err()
	}), nil
}

// postoperativeAnchorConverter turns surgical procedures into delirium risk
// windows: each qualifying procedure opens an interval from the procedure
// until postoperative day five. Appended, so visit-anchored criteria keep
// resolving to the stock converter.
type postoperativeAnchorConverter struct {
	schema string
}

func newPostoperativeAnchorConverter(dataSchema string) engine.Converter {
	return &postoperativeAnchorConverter{schema: dataSchema}
}

func (c *postoperativeAnchorConverter) Name() string { return "digipod_postoperative_anchor" }

func (c *postoperativeAnchorConverter) Matches(criterion engine.Criterion) bool {
	return criterion.Kind == engine.KindTimeFromEvent && criterion.Domain == "procedure"
}

func (c *postoperativeAnchorConverter) Convert(criterion engine.Criterion) (engine.Emitter, error) {
	query := fmt.Sprintf(`SELECT person_id, procedure_datetime
FROM %s.procedure_occurrence
WHERE procedure_concept_id = $1
  AND procedure_datetime >= $2
  AND procedure_datetime < $3`, pq.QuoteIdentifier(c.schema))

	return engine.EmitterFunc(func(ctx context.Context, q engine.Querier, window engine.Window) ([]engine.Interval, error) {
		// Procedures before the window can still open a risk window that
		// reaches into it.
		earliest := window.Start.Add(-postoperativeSpan)
		rows, err := q.QueryContext(ctx, query, criterion.ConceptID, earliest, window.End)
		if err != nil {
			return nil, errors.Wrapf(err, "querying anchor procedures for %q", criterion.Name)
		}
		defer rows.Close()

		var intervals []engine.Interval
		for rows.Next() {
			var (
				personID int64
				at       time.Time
			)
			if err := rows.Scan(&personID, &at); err != nil {
				return nil, errors.Wrap(err, "scanning anchor procedure row")
			}
			if s, e, ok := window.Clip(at, at.Add(postoperativeSpan)); ok {
				intervals = append(intervals, engine.Interval{PersonID: personID, Start: s, End: e, Type: engine.IntervalPositive})
			}
		}
		return intervals, rows.Err()
	}), nil
}
