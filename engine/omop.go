package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tidemark-health/guidepost/errors"
)

// Validity assumptions for point-in-time clinical events. A measurement
// asserts a state for half a day; a procedure occupies about an hour unless
// the source records an end.
const (
	measurementValidity = 12 * time.Hour
	procedureDuration   = time.Hour
)

// conditionConverter handles characteristic criteria over the OMOP
// condition_occurrence table. It is part of the default converter set.
type conditionConverter struct {
	schema string
}

// NewConditionConverter returns the default characteristic converter for
// condition criteria. dataSchema names the OMOP CDM schema to read.
func NewConditionConverter(dataSchema string) Converter {
	return &conditionConverter{schema: dataSchema}
}

func (c *conditionConverter) Name() string { return "condition" }

func (c *conditionConverter) Matches(criterion Criterion) bool {
	return criterion.Kind == KindCharacteristic && criterion.Domain == "condition"
}

func (c *conditionConverter) Convert(criterion Criterion) (Emitter, error) {
	query := fmt.Sprintf(`SELECT person_id, condition_start_datetime, condition_end_datetime
FROM %s.condition_occurrence
WHERE condition_concept_id = $1
  AND condition_start_datetime < $3
  AND COALESCE(condition_end_datetime, $3) > $2`, pq.QuoteIdentifier(c.schema))

	return EmitterFunc(func(ctx context.Context, q Querier, window Window) ([]Interval, error) {
		rows, err := q.QueryContext(ctx, query, criterion.ConceptID, window.Start, window.End)
		if err != nil {
			return nil, errors.Wrapf(err, "querying conditions for %q", criterion.Name)
		}
		defer rows.Close()

		var intervals []Interval
		for rows.Next() {
			var (
				personID int64
				start    time.Time
				end      sql.NullTime
			)
			if err := rows.Scan(&personID, &start, &end); err != nil {
				return nil, errors.Wrap(err, "scanning condition row")
			}
			effectiveEnd := window.End
			if end.Valid {
				effectiveEnd = end.Time
			}
			if s, e, ok := window.Clip(start, effectiveEnd); ok {
				intervals = append(intervals, Interval{PersonID: personID, Start: s, End: e, Type: IntervalPositive})
			}
		}
		return intervals, rows.Err()
	}), nil
}

// measurementConverter handles characteristic criteria over the OMOP
// measurement table. Value-bearing criteria compare against the threshold;
// below-threshold measurements still produce a NEGATIVE interval so readers
// can distinguish "measured and normal" from "never measured".
type measurementConverter struct {
	schema string
}

// NewMeasurementConverter returns the default characteristic converter for
// measurement criteria.
func NewMeasurementConverter(dataSchema string) Converter {
	return &measurementConverter{schema: dataSchema}
}

func (c *measurementConverter) Name() string { return "measurement" }

func (c *measurementConverter) Matches(criterion Criterion) bool {
	return criterion.Kind == KindCharacteristic && criterion.Domain == "measurement"
}

func (c *measurementConverter) Convert(criterion Criterion) (Emitter, error) {
	query := fmt.Sprintf(`SELECT person_id, measurement_datetime, value_as_number
FROM %s.measurement
WHERE measurement_concept_id = $1
  AND measurement_datetime >= $2
  AND measurement_datetime < $3`, pq.QuoteIdentifier(c.schema))

	return EmitterFunc(func(ctx context.Context, q Querier, window Window) ([]Interval, error) {
		rows, err := q.QueryContext(ctx, query, criterion.ConceptID, window.Start, window.End)
		if err != nil {
			return nil, errors.Wrapf(err, "querying measurements for %q", criterion.Name)
		}
		defer rows.Close()

		var intervals []Interval
		for rows.Next() {
			var (
				personID int64
				at       time.Time
				value    sql.NullFloat64
			)
			if err := rows.Scan(&personID, &at, &value); err != nil {
				return nil, errors.Wrap(err, "scanning measurement row")
			}
			kind := IntervalPositive
			switch {
			case criterion.Threshold == nil:
				// presence alone satisfies
			case !value.Valid:
				kind = IntervalNoData
			case value.Float64 < *criterion.Threshold:
				kind = IntervalNegative
			}
			if s, e, ok := window.Clip(at, at.Add(measurementValidity)); ok {
				intervals = append(intervals, Interval{PersonID: personID, Start: s, End: e, Type: kind})
			}
		}
		return intervals, rows.Err()
	}), nil
}

// procedureConverter handles action criteria over the OMOP
// procedure_occurrence table. Procedures are recorded as instants, so each
// occurrence is widened to a nominal duration before clipping.
type procedureConverter struct {
	schema string
}

// NewProcedureConverter returns the default action converter for procedure
// criteria.
func NewProcedureConverter(dataSchema string) Converter {
	return &procedureConverter{schema: dataSchema}
}

func (c *procedureConverter) Name() string { return "procedure" }

func (c *procedureConverter) Matches(criterion Criterion) bool {
	return criterion.Kind == KindAction && criterion.Domain == "procedure"
}

func (c *procedureConverter) Convert(criterion Criterion) (Emitter, error) {
	query := fmt.Sprintf(`SELECT person_id, procedure_datetime
FROM %s.procedure_occurrence
WHERE procedure_concept_id = $1
  AND procedure_datetime >= $2
  AND procedure_datetime < $3`, pq.QuoteIdentifier(c.schema))

	return EmitterFunc(func(ctx context.Context, q Querier, window Window) ([]Interval, error) {
		rows, err := q.QueryContext(ctx, query, criterion.ConceptID, window.Start, window.End)
		if err != nil {
			return nil, errors.Wrapf(err, "querying procedures for %q", criterion.Name)
		}
		defer rows.Close()

		var intervals []Interval
		for rows.Next() {
			var (
				personID int64
				at       time.Time
			)
			if err := rows.Scan(&personID, &at); err != nil {
				return nil, errors.Wrap(err, "scanning procedure row")
			}
			if s, e, ok := window.Clip(at, at.Add(procedureDuration)); ok {
				intervals = append(intervals, Interval{PersonID: personID, Start: s, End: e, Type: IntervalPositive})
			}
		}
		return intervals, rows.Err()
	}), nil
}

// drugExposureConverter handles action criteria over the OMOP drug_exposure
// table. Exposures carry their own start and end.
type drugExposureConverter struct {
	schema string
}

// NewDrugExposureConverter returns the default action converter for drug
// criteria.
func NewDrugExposureConverter(dataSchema string) Converter {
	return &drugExposureConverter{schema: dataSchema}
}

func (c *drugExposureConverter) Name() string { return "drug_exposure" }

func (c *drugExposureConverter) Matches(criterion Criterion) bool {
	return criterion.Kind == KindAction && criterion.Domain == "drug"
}

func (c *drugExposureConverter) Convert(criterion Criterion) (Emitter, error) {
	query := fmt.Sprintf(`SELECT person_id, drug_exposure_start_datetime, drug_exposure_end_datetime
FROM %s.drug_exposure
WHERE drug_concept_id = $1
  AND drug_exposure_start_datetime < $3
  AND COALESCE(drug_exposure_end_datetime, $3) > $2`, pq.QuoteIdentifier(c.schema))

	return EmitterFunc(func(ctx context.Context, q Querier, window Window) ([]Interval, error) {
		rows, err := q.QueryContext(ctx, query, criterion.ConceptID, window.Start, window.End)
		if err != nil {
			return nil, errors.Wrapf(err, "querying drug exposures for %q", criterion.Name)
		}
		defer rows.Close()

		var intervals []Interval
		for rows.Next() {
			var (
				personID int64
				start    time.Time
				end      sql.NullTime
			)
			if err := rows.Scan(&personID, &start, &end); err != nil {
				return nil, errors.Wrap(err, "scanning drug exposure row")
			}
			effectiveEnd := window.End
			if end.Valid {
				effectiveEnd = end.Time
			}
			if s, e, ok := window.Clip(start, effectiveEnd); ok {
				intervals = append(intervals, Interval{PersonID: personID, Start: s, End: e, Type: IntervalPositive})
			}
		}
		return intervals, rows.Err()
	}), nil
}

// visitWindowConverter handles time-from-event criteria by anchoring them to
// OMOP visit_occurrence rows: the emitted intervals are the visits clipped
// to the evaluation window.
type visitWindowConverter struct {
	schema string
}

// NewVisitWindowConverter returns the default time-from-event converter.
func NewVisitWindowConverter(dataSchema string) Converter {
	return &visitWindowConverter{schema: dataSchema}
}

func (c *visitWindowConverter) Name() string { return "visit_window" }

func (c *visitWindowConverter) Matches(criterion Criterion) bool {
	return criterion.Kind == KindTimeFromEvent && criterion.Domain == "visit"
}

func (c *visitWindowConverter) Convert(criterion Criterion) (Emitter, error) {
	query := fmt.Sprintf(`SELECT person_id, visit_start_datetime, visit_end_datetime
FROM %s.visit_occurrence
WHERE visit_concept_id = $1
  AND visit_start_datetime < $3
  AND COALESCE(visit_end_datetime, $3) > $2`, pq.QuoteIdentifier(c.schema))

	return EmitterFunc(func(ctx context.Context, q Querier, window Window) ([]Interval, error) {
		rows, err := q.QueryContext(ctx, query, criterion.ConceptID, window.Start, window.End)
		if err != nil {
			return nil, errors.Wrapf(err, "querying visits for %q", criterion.Name)
		}
		defer rows.Close()

		var intervals []Interval
		for rows.Next() {
			var (
				personID int64
				start    time.Time
				end      sql.NullTime
			)
			if err := rows.Scan(&personID, &start, &end); err != nil {
				return nil, errors.Wrap(err, "scanning visit row")
			}
			effectiveEnd := window.End
			if end.Valid {
				effectiveEnd = end.Time
			}
			if s, e, ok := window.Clip(start, effectiveEnd); ok {
				intervals = append(intervals, Interval{PersonID: personID, Start: s, End: e, Type: IntervalPositive})
			}
		}
		return intervals, rows.Err()
	}), nil
}
