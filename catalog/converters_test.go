package catalog

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/errors"
	"github.com/tidemark-health/guidepost/internal/util"
)

var testWindow = engine.Window{
	Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
}

func TestExtendBuilderUnknownSet(t *testing.T) {
	err := ExtendBuilder(engine.NewBuilder(), "sepsis", "cds_cdm")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestScreeningObservationOutcomes(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	criterion := engine.Criterion{
		Name:      "delirium-screening-score",
		Kind:      engine.KindCharacteristic,
		Domain:    "observation",
		ConceptID: conceptDeliriumScreeningScore,
	}

	conv := newScreeningObservationConverter("cds_cdm")
	require.True(t, conv.Matches(criterion))
	assert.False(t, conv.Matches(engine.Criterion{Kind: engine.KindCharacteristic, Domain: "condition"}))

	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	at := testWindow.Start.Add(2 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT person_id, observation_datetime, value_as_concept_id
FROM "cds_cdm".observation`)).
		WithArgs(conceptDeliriumScreeningScore, testWindow.Start, testWindow.End).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "observation_datetime", "value_as_concept_id"}).
			AddRow(int64(1), at, int64(2000000731)).
			AddRow(int64(2), at, int64(2000000732)).
			AddRow(int64(3), at, int64(2000000999)).
			AddRow(int64(4), at, nil))

	intervals, err := emitter.Emit(context.Background(), mockDB, testWindow)
	require.NoError(t, err)
	require.Len(t, intervals, 4)

	assert.Equal(t, engine.IntervalPositive, intervals[0].Type)
	assert.Equal(t, engine.IntervalNegative, intervals[1].Type)
	assert.Equal(t, engine.IntervalPositive, intervals[2].Type, "unknown answer still counts as screened")
	assert.Equal(t, engine.IntervalNoData, intervals[3].Type)
	for _, iv := range intervals {
		assert.Equal(t, at, iv.Start)
		assert.Equal(t, at.Add(screeningValidity), iv.End)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrugDoseThreshold(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	criterion := engine.Criterion{
		Name:      "dexmedetomidine-prophylaxis",
		Kind:      engine.KindAction,
		Domain:    "drug",
		ConceptID: conceptDexmedetomidine,
		Threshold: util.Ptr(0.1),
	}

	conv := newDrugDoseConverter("cds_cdm")
	require.True(t, conv.Matches(criterion))
	assert.False(t, conv.Matches(engine.Criterion{Kind: engine.KindAction, Domain: "drug"}),
		"threshold-less drug criteria stay with the stock converter")

	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	start := testWindow.Start.Add(6 * time.Hour)
	end := start.Add(4 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT person_id, drug_exposure_start_datetime, drug_exposure_end_datetime, quantity
FROM "cds_cdm".drug_exposure`)).
		WithArgs(conceptDexmedetomidine, testWindow.Start, testWindow.End).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "drug_exposure_start_datetime", "drug_exposure_end_datetime", "quantity"}).
			AddRow(int64(1), start, end, 0.5).
			AddRow(int64(2), start, end, 0.05).
			AddRow(int64(3), start, end, nil))

	intervals, err := emitter.Emit(context.Background(), mockDB, testWindow)
	require.NoError(t, err)
	require.Len(t, intervals, 3)
	assert.Equal(t, engine.IntervalPositive, intervals[0].Type)
	assert.Equal(t, engine.IntervalNegative, intervals[1].Type)
	assert.Equal(t, engine.IntervalNoData, intervals[2].Type)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostoperativeAnchorSpan(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	criterion := engine.Criterion{
		Name:      "postoperative-period",
		Kind:      engine.KindTimeFromEvent,
		Domain:    "procedure",
		ConceptID: conceptGeneralAnesthesia,
	}

	conv := newPostoperativeAnchorConverter("cds_cdm")
	require.True(t, conv.Matches(criterion))

	emitter, err := conv.Convert(criterion)
	require.NoError(t, err)

	// surgery two days before the window still opens a risk window into it
	surgery := testWindow.Start.Add(-48 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT person_id, procedure_datetime
FROM "cds_cdm".procedure_occurrence`)).
		WithArgs(conceptGeneralAnesthesia, testWindow.Start.Add(-postoperativeSpan), testWindow.End).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "procedure_datetime"}).
			AddRow(int64(7), surgery))

	intervals, err := emitter.Emit(context.Background(), mockDB, testWindow)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, testWindow.Start, intervals[0].Start, "risk window clipped to evaluation window")
	assert.Equal(t, surgery.Add(postoperativeSpan), intervals[0].End)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// The extension's point is behavioral: an observation criterion resolves on
// a digipod-extended engine and fails on a stock one.
func TestExtendBuilderEnablesObservationCriteria(t *testing.T) {
	rec := &engine.Recommendation{
		ID:      digipodBaseURL + "PlanDefinition/RecCollDeliriumScreeningPostoperativelySingle",
		Name:    "screening",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "delirium-screening-score", Kind: engine.KindCharacteristic, Domain: "observation", ConceptID: conceptDeliriumScreeningScore},
		}},
	}

	t.Run("digipod engine evaluates it", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		b := engine.DefaultBuilder("cds_cdm")
		require.NoError(t, ExtendBuilder(b, config.RecommendationSetDigiPOD, "cds_cdm"))
		eng, err := b.Build(engine.Deps{DB: mockDB, StagingSchema: "temp"})
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "temp".execution_run`)).
			WithArgs(rec.ID, testWindow.Start, testWindow.End, engine.RunStatusRunning).
			WillReturnRows(sqlmock.NewRows([]string{"run_id"}).AddRow(int64(1)))

		at := testWindow.Start.Add(time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM "cds_cdm".observation`)).
			WithArgs(conceptDeliriumScreeningScore, testWindow.Start, testWindow.End).
			WillReturnRows(sqlmock.NewRows([]string{"person_id", "observation_datetime", "value_as_concept_id"}).
				AddRow(int64(1), at, int64(2000000731)))

		mock.ExpectBegin()
		prepared := mock.ExpectPrepare(regexp.QuoteMeta(pq.CopyInSchema("temp", "result_interval",
			"run_id", "interval_start", "interval_end", "person_id", "criterion_name", "interval_type")))
		prepared.ExpectExec().
			WithArgs(int64(1), at, at.Add(screeningValidity), int64(1), "delirium-screening-score", engine.IntervalPositive).
			WillReturnResult(sqlmock.NewResult(0, 1))
		prepared.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "temp".execution_run SET status = $2 WHERE run_id = $1`)).
			WithArgs(int64(1), engine.RunStatusCompleted).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, eng.Execute(context.Background(), rec, testWindow.Start, testWindow.End))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stock engine rejects it", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		b := engine.DefaultBuilder("cds_cdm")
		require.NoError(t, ExtendBuilder(b, config.RecommendationSetCELIDA, "cds_cdm"))
		eng, err := b.Build(engine.Deps{DB: mockDB, StagingSchema: "temp"})
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "temp".execution_run`)).
			WillReturnRows(sqlmock.NewRows([]string{"run_id"}).AddRow(int64(1)))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "temp".execution_run`)).
			WithArgs(int64(1), engine.RunStatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = eng.Execute(context.Background(), rec, testWindow.Start, testWindow.End)
		require.Error(t, err)
		assert.True(t, errors.IsExecution(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
