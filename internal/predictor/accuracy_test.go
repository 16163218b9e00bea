package predictor

import (
	"context"
	"testing"
	"time"

	"thai-lotto-bot/internal/analysis"
	"thai-lotto-bot/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvaluation(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	date := mustDate(t, "2024-02-16")

	draw, err := database.NewDrawRecord(date, "123456", "012", "789", "05")
	require.NoError(t, err)
	require.NoError(t, db.UpsertDraw(ctx, draw))

	preds := func(dt database.DigitType, values ...string) []database.Prediction {
		out := make([]database.Prediction, len(values))
		for i, v := range values {
			out[i] = database.Prediction{RunID: "run-1", DigitType: dt, TargetDate: date,
				PredictedValue: v, Confidence: 10, Rank: i + 1, Method: NameStatistical}
		}
		return out
	}
	require.NoError(t, db.ReplacePredictions(ctx, date, database.DigitLast2, NameStatistical,
		preds(database.DigitLast2, "05", "11")))
	require.NoError(t, db.ReplacePredictions(ctx, date, database.DigitThreeBack, NameStatistical,
		preds(database.DigitThreeBack, "789", "000", "111")))
}

func TestEvaluateAccuracy(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	seedEvaluation(t, db)
	e := NewEvaluator(db)

	result, err := e.EvaluateAccuracy(ctx, "2024-02-16")
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 2, result.Correct)
	assert.Equal(t, 40.0, result.Percentage)
	assert.Equal(t, TypeAccuracy{Total: 2, Correct: 1, Percentage: 50}, result.ByType[database.DigitLast2])
	assert.Equal(t, TypeAccuracy{Total: 3, Correct: 1, Percentage: 33.33}, result.ByType[database.DigitThreeBack])
	assert.Equal(t, evaluationMethod, result.Record.Method)
	assert.NotZero(t, result.Record.ID)

	stored, err := db.GetPredictionsByDate(ctx, mustDate(t, "2024-02-16"), database.DigitLast2)
	require.NoError(t, err)
	for _, p := range stored {
		require.NotNil(t, p.WasCorrect)
		assert.Equal(t, p.PredictedValue == "05", *p.WasCorrect)
	}

	again, err := e.EvaluateAccuracy(ctx, "2024-02-16")
	require.NoError(t, err)
	assert.Equal(t, result.Total, again.Total)
	assert.Equal(t, result.Correct, again.Correct)

	count, err := db.CountAccuracyRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEvaluateAccuracyNotFound(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	e := NewEvaluator(db)

	_, err := e.EvaluateAccuracy(ctx, "2024-02-16")
	assert.True(t, analysis.IsKind(err, analysis.KindNotFound))

	draw, err := database.NewDrawRecord(mustDate(t, "2024-02-16"), "123456", "", "", "56")
	require.NoError(t, err)
	require.NoError(t, db.UpsertDraw(ctx, draw))

	_, err = e.EvaluateAccuracy(ctx, "2024-02-16")
	assert.True(t, analysis.IsKind(err, analysis.KindNotFound))
	assert.Contains(t, err.Error(), "no predictions")

	_, err = e.EvaluateAccuracy(ctx, "yesterday")
	assert.True(t, analysis.IsKind(err, analysis.KindValidation))
}

func TestGetAccuracyHistory(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	for _, r := range []struct {
		end     string
		correct int
	}{
		{"2023-01-01", 1},
		{"2024-02-01", 2},
		{"2024-02-16", 3},
		{"2024-03-01", 6},
	} {
		d := mustDate(t, r.end)
		require.NoError(t, db.InsertAccuracyRecord(ctx, &database.AccuracyRecord{
			PeriodStart: d, PeriodEnd: d, Method: evaluationMethod,
			TotalPredictions: 10, CorrectPredictions: r.correct,
			AccuracyPercentage: analysis.Percent(r.correct, 10),
		}))
	}

	e := NewEvaluator(db)
	e.now = func() time.Time { return time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC) }

	tests := []struct {
		period  string
		records int
		correct int
		trend   string
	}{
		{PeriodWeekly, 1, 6, TrendInsufficientData},
		{PeriodMonthly, 2, 9, TrendInsufficientData},
		{PeriodYearly, 3, 11, TrendInsufficientData},
		{PeriodAll, 4, 12, TrendImproving},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			h, err := e.GetAccuracyHistory(ctx, tt.period)
			require.NoError(t, err)
			assert.Len(t, h.Records, tt.records)
			assert.Equal(t, tt.correct, h.CorrectPredictions)
			assert.Equal(t, tt.records*10, h.TotalPredictions)
			assert.Equal(t, analysis.Percent(tt.correct, tt.records*10), h.Percentage)
			assert.Equal(t, tt.trend, h.TrendDirection)
		})
	}

	all, err := e.GetAccuracyHistory(ctx, PeriodAll)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 36.67}, all.MovingAverage)

	_, err = e.GetAccuracyHistory(ctx, "daily")
	assert.True(t, analysis.IsKind(err, analysis.KindValidation))
}

func TestEmptyAccuracyHistory(t *testing.T) {
	e := NewEvaluator(newTestStore(t))

	h, err := e.GetAccuracyHistory(context.Background(), PeriodAll)
	require.NoError(t, err)
	assert.Zero(t, h.TotalPredictions)
	assert.Equal(t, 0.0, h.Percentage)
	assert.Empty(t, h.MovingAverage)
	assert.Equal(t, TrendInsufficientData, h.TrendDirection)
}

func TestAnalyzeTrendDirection(t *testing.T) {
	tests := []struct {
		avg  []float64
		want string
	}{
		{nil, TrendInsufficientData},
		{[]float64{10}, TrendInsufficientData},
		{[]float64{10, 12}, TrendImproving},
		{[]float64{10, 8.5}, TrendDeclining},
		{[]float64{10, 10.5}, TrendStable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, analyzeTrendDirection(tt.avg), "%v", tt.avg)
	}

	assert.Equal(t, []float64{2, 3}, calculateMovingAverage([]float64{1, 2, 3, 4}, 3))
	assert.Empty(t, calculateMovingAverage([]float64{1, 2}, 3))
}
