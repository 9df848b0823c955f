package engine

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowClip(t *testing.T) {
	w := Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		name       string
		start, end time.Time
		wantStart  time.Time
		wantEnd    time.Time
		wantOK     bool
	}{
		{
			name:      "inside",
			start:     w.Start.Add(time.Hour),
			end:       w.Start.Add(2 * time.Hour),
			wantStart: w.Start.Add(time.Hour),
			wantEnd:   w.Start.Add(2 * time.Hour),
			wantOK:    true,
		},
		{
			name:      "overlaps both edges",
			start:     w.Start.Add(-time.Hour),
			end:       w.End.Add(time.Hour),
			wantStart: w.Start,
			wantEnd:   w.End,
			wantOK:    true,
		},
		{
			name:   "entirely before",
			start:  w.Start.Add(-2 * time.Hour),
			end:    w.Start.Add(-time.Hour),
			wantOK: false,
		},
		{
			name:   "entirely after",
			start:  w.End.Add(time.Hour),
			end:    w.End.Add(2 * time.Hour),
			wantOK: false,
		},
		{
			name:   "zero width after clip",
			start:  w.Start.Add(-time.Hour),
			end:    w.Start,
			wantOK: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, ok := w.Clip(tc.start, tc.end)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantStart, start)
				assert.Equal(t, tc.wantEnd, end)
			}
		})
	}
}

func TestConditionConverterEmit(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	window := Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	criterion := Criterion{Name: "has-delirium", Kind: KindCharacteristic, Domain: "condition", ConceptID: 373995}

	conv := NewConditionConverter("cds_cdm")
	require.True(t, conv.Matches(criterion))

	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT person_id, condition_start_datetime, condition_end_datetime
FROM "cds_cdm".condition_occurrence`)).
		WithArgs(int64(373995), window.Start, window.End).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "condition_start_datetime", "condition_end_datetime"}).
			// ongoing condition, no recorded end: runs to the window end
			AddRow(int64(1), window.Start.Add(-48*time.Hour), nil).
			// resolved inside the window
			AddRow(int64(2), window.Start.Add(24*time.Hour), window.Start.Add(72*time.Hour)))

	intervals, err := emitter.Emit(context.Background(), mockDB, window)
	require.NoError(t, err)
	require.Len(t, intervals, 2)

	assert.Equal(t, int64(1), intervals[0].PersonID)
	assert.Equal(t, window.Start, intervals[0].Start, "start clipped to window")
	assert.Equal(t, window.End, intervals[0].End, "open end runs to window end")
	assert.Equal(t, IntervalPositive, intervals[0].Type)

	assert.Equal(t, int64(2), intervals[1].PersonID)
	assert.Equal(t, window.Start.Add(24*time.Hour), intervals[1].Start)
	assert.Equal(t, window.Start.Add(72*time.Hour), intervals[1].End)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMeasurementConverterThreshold(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	window := Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	threshold := 90.0
	criterion := Criterion{
		Name:      "map-above-90",
		Kind:      KindCharacteristic,
		Domain:    "measurement",
		ConceptID: 3027598,
		Threshold: &threshold,
	}

	conv := NewMeasurementConverter("cds_cdm")
	require.True(t, conv.Matches(criterion))

	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	at := window.Start.Add(6 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT person_id, measurement_datetime, value_as_number
FROM "cds_cdm".measurement`)).
		WithArgs(int64(3027598), window.Start, window.End).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "measurement_datetime", "value_as_number"}).
			AddRow(int64(1), at, 95.0).
			AddRow(int64(2), at, 82.5).
			AddRow(int64(3), at, nil))

	intervals, err := emitter.Emit(context.Background(), mockDB, window)
	require.NoError(t, err)
	require.Len(t, intervals, 3)

	assert.Equal(t, IntervalPositive, intervals[0].Type)
	assert.Equal(t, IntervalNegative, intervals[1].Type)
	assert.Equal(t, IntervalNoData, intervals[2].Type)
	for _, iv := range intervals {
		assert.Equal(t, at, iv.Start)
		assert.Equal(t, at.Add(measurementValidity), iv.End)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcedureConverterWidensInstants(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	window := Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	criterion := Criterion{Name: "cam-icu-assessment", Kind: KindAction, Domain: "procedure", ConceptID: 4087510}

	conv := NewProcedureConverter("cds_cdm")
	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	at := window.End.Add(-30 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT person_id, procedure_datetime
FROM "cds_cdm".procedure_occurrence`)).
		WithArgs(int64(4087510), window.Start, window.End).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "procedure_datetime"}).
			AddRow(int64(5), at))

	intervals, err := emitter.Emit(context.Background(), mockDB, window)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, at, intervals[0].Start)
	assert.Equal(t, window.End, intervals[0].End, "widened instant clipped to window end")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrugExposureConverterEmit(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	window := Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	criterion := Criterion{Name: "dexmedetomidine-given", Kind: KindAction, Domain: "drug", ConceptID: 19059528}

	conv := NewDrugExposureConverter("cds_cdm")
	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	start := window.Start.Add(12 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT person_id, drug_exposure_start_datetime, drug_exposure_end_datetime
FROM "cds_cdm".drug_exposure`)).
		WithArgs(int64(19059528), window.Start, window.End).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "drug_exposure_start_datetime", "drug_exposure_end_datetime"}).
			AddRow(int64(9), start, start.Add(8*time.Hour)))

	intervals, err := emitter.Emit(context.Background(), mockDB, window)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, Interval{PersonID: 9, Start: start, End: start.Add(8 * time.Hour), Type: IntervalPositive}, intervals[0])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitWindowConverterEmit(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	window := Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	criterion := Criterion{Name: "icu-stay", Kind: KindTimeFromEvent, Domain: "visit", ConceptID: 32037}

	conv := NewVisitWindowConverter("cds_cdm")
	require.True(t, conv.Matches(criterion))

	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT person_id, visit_start_datetime, visit_end_datetime
FROM "cds_cdm".visit_occurrence`)).
		WithArgs(int64(32037), window.Start, window.End).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "visit_start_datetime", "visit_end_datetime"}).
			AddRow(int64(4), window.Start.Add(-24*time.Hour), nil))

	intervals, err := emitter.Emit(context.Background(), mockDB, window)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, window.Start, intervals[0].Start)
	assert.Equal(t, window.End, intervals[0].End)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmitQueryErrorPropagates(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	window := Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	criterion := Criterion{Name: "has-delirium", Kind: KindCharacteristic, Domain: "condition", ConceptID: 373995}

	conv := NewConditionConverter("cds_cdm")
	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT person_id, condition_start_datetime").
		WillReturnError(assert.AnError)

	_, err = emitter.Emit(context.Background(), mockDB, window)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `querying conditions for "has-delirium"`)

	assert.NoError(t, mock.ExpectationsWereMet())
}
