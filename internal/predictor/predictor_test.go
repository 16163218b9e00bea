package predictor

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"thai-lotto-bot/internal/analysis"
	"thai-lotto-bot/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "lotto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := database.ParseDate(s)
	require.NoError(t, err)
	return d
}

// seedDraws 写入 from..to 之间的每一期开奖（1日、16日），号码由期序推导
func seedDraws(t *testing.T, db *database.DB, from, to string) int {
	t.Helper()
	ctx := context.Background()
	end := mustDate(t, to)
	n := 0
	for d := mustDate(t, from); !d.After(end); d = database.NextDrawDate(d) {
		r, err := database.NewDrawRecord(d,
			fmt.Sprintf("%06d", (n*7919)%1000000),
			fmt.Sprintf("%03d", (n*131)%1000),
			fmt.Sprintf("%03d", (n*271)%1000),
			fmt.Sprintf("%02d", (n*37)%100))
		require.NoError(t, err)
		require.NoError(t, db.UpsertDraw(ctx, r))
		n++
	}
	return n
}

func TestGeneratePredictionsSkipsThinWeekday(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	// 2022-01-01..2024-02-01: 51 draws, 7 on a Friday, 25 on the 16th, 5 in February
	require.Equal(t, 51, seedDraws(t, db, "2022-01-01", "2024-02-01"))

	// a draw on the target date itself must not be visible
	onTarget, err := database.NewDrawRecord(mustDate(t, "2024-02-16"), "000099", "", "", "99")
	require.NoError(t, err)
	require.NoError(t, db.UpsertDraw(ctx, onTarget))

	agg := NewAggregator(db, db)
	result, err := agg.GeneratePredictions(ctx, "last2", "2024-02-16")
	require.NoError(t, err)

	assert.Equal(t, NameStatistical, result.Method)
	assert.False(t, result.LearningApplied)
	assert.False(t, result.Used(MethodDayOfWeek))
	assert.Equal(t, 7, result.Usage[MethodDayOfWeek].Samples)
	assert.True(t, result.Used(MethodDate))
	assert.Equal(t, 25, result.Usage[MethodDate].Samples)
	assert.True(t, result.Used(MethodMonth))
	assert.Equal(t, 5, result.Usage[MethodMonth].Samples)
	assert.False(t, result.Used(MethodCombined))
	assert.False(t, result.Used(MethodPosition))
	assert.True(t, result.Used(MethodPairs))
	assert.True(t, result.Used(MethodTrend))

	require.Len(t, result.Predictions, maxPredictions)
	for i, p := range result.Predictions {
		assert.Equal(t, i+1, p.Rank)
		assert.Len(t, p.PredictedValue, 2)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 100.0)
		assert.Equal(t, result.RunID, p.RunID)
		if i > 0 {
			assert.GreaterOrEqual(t, result.Predictions[i-1].Confidence, p.Confidence)
		}
	}

	stored, err := db.GetPredictionsByDate(ctx, mustDate(t, "2024-02-16"), database.DigitLast2)
	require.NoError(t, err)
	require.Len(t, stored, maxPredictions)
	assert.Equal(t, NameStatistical, stored[0].Method)

	history, err := db.GetAnalysisHistoryByRunIDs(ctx, []string{result.RunID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, historyCalculation, history[0].CalculationType)
	assert.Contains(t, history[0].ResultSummary, `"day_of_week":{"used":false,"samples":7}`)
}

func TestGeneratePredictionsIsDeterministic(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	seedDraws(t, db, "2018-01-01", "2024-02-01")

	agg := NewAggregator(db, db)
	first, err := agg.GeneratePredictions(ctx, "three_back", "2024-02-16")
	require.NoError(t, err)
	second, err := agg.GeneratePredictions(ctx, "three_back", "2024-02-16")
	require.NoError(t, err)

	values := func(r *PredictionResult) []string {
		var out []string
		for _, p := range r.Predictions {
			out = append(out, p.PredictedValue)
		}
		return out
	}
	assert.Equal(t, values(first), values(second))
	assert.True(t, first.Used(MethodPosition))

	// 重复生成会替换而不是追加
	stored, err := db.GetPredictionsByDate(ctx, mustDate(t, "2024-02-16"), database.DigitThreeBack)
	require.NoError(t, err)
	assert.Len(t, stored, len(second.Predictions))
}

func TestGeneratePredictionsValidation(t *testing.T) {
	db := newTestStore(t)
	agg := NewAggregator(db, db)

	_, err := agg.GeneratePredictions(context.Background(), "first_prize", "2024-02-16")
	assert.True(t, analysis.IsKind(err, analysis.KindValidation))

	_, err = agg.GeneratePredictions(context.Background(), "last2", "16/02/2024")
	assert.True(t, analysis.IsKind(err, analysis.KindValidation))
}

func TestGeneratePredictionsWithNoHistory(t *testing.T) {
	db := newTestStore(t)
	agg := NewAggregator(db, db)

	result, err := agg.GeneratePredictions(context.Background(), "last2", "2024-02-16")
	require.NoError(t, err)
	assert.Empty(t, result.Predictions)
	for _, m := range methodOrder {
		assert.False(t, result.Used(m), m)
	}
}

func TestLearningFallsBackWithoutAccuracyHistory(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	seedDraws(t, db, "2022-01-01", "2024-02-01")

	result, err := NewAggregator(db, db).GenerateLearningPredictions(ctx, "last2", "2024-02-16")
	require.NoError(t, err)

	assert.False(t, result.LearningApplied)
	assert.Equal(t, NameStatistical, result.Method)
	assert.Equal(t, DefaultWeights(), result.Weights)
}

func TestLearningAdjustsWeights(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	seedDraws(t, db, "2022-01-01", "2024-02-01")
	agg := NewAggregator(db, db)

	earlier, err := agg.GeneratePredictions(ctx, "last2", "2024-02-01")
	require.NoError(t, err)
	require.NotEmpty(t, earlier.Predictions)
	hit := earlier.Predictions[len(earlier.Predictions)-1]
	require.NoError(t, db.MarkPredictionResult(ctx, hit.ID, true))

	for _, end := range []string{"2024-01-01", "2024-01-16", "2024-02-01"} {
		d := mustDate(t, end)
		require.NoError(t, db.InsertAccuracyRecord(ctx, &database.AccuracyRecord{
			PeriodStart: d, PeriodEnd: d, Method: evaluationMethod, TotalPredictions: 20,
		}))
	}

	result, err := agg.GenerateLearningPredictions(ctx, "last2", "2024-02-16")
	require.NoError(t, err)

	assert.True(t, result.LearningApplied)
	assert.Equal(t, NameLearning, result.Method)

	sum := 0.0
	for _, m := range methodOrder {
		sum += result.Weights[m]
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	defaults := DefaultWeights()
	for _, used := range methodOrder {
		if !earlier.Used(used) {
			continue
		}
		for _, unused := range methodOrder {
			if earlier.Used(unused) {
				continue
			}
			assert.Greater(t, result.Weights[used]/defaults[used], result.Weights[unused]/defaults[unused])
		}
	}

	stored, err := db.GetUpcomingPredictions(ctx, database.DigitLast2, NameLearning)
	require.NoError(t, err)
	assert.Len(t, stored, len(result.Predictions))
}

func TestPairContributionsCountDistinctPairsOnce(t *testing.T) {
	pf := &analysis.PairFrequency{
		Field: database.DigitThreeBack,
		Pairs: []analysis.FrequencyEntry{
			{Value: "11", Count: 2, Percentage: 50},
			{Value: "12", Count: 1, Percentage: 25},
		},
		TotalRecords: 4,
	}

	contrib := pairContributions(pf, 3)

	assert.InDelta(t, 0.5, contrib["111"], 1e-9)
	assert.InDelta(t, 0.75, contrib["112"], 1e-9)
	assert.InDelta(t, 0.25, contrib["912"], 1e-9)
	assert.NotContains(t, contrib, "999")
}

func TestPositionContributionsAveragePositions(t *testing.T) {
	pf := &analysis.PositionFrequency{
		Field:       database.DigitLast2,
		Width:       2,
		TotalCount:  2,
		Percentages: [][10]float64{{0: 100}, {3: 50, 7: 50}},
	}

	contrib := positionContributions(pf)

	assert.InDelta(t, 0.75, contrib["03"], 1e-9)
	assert.InDelta(t, 0.25, contrib["13"], 1e-9)
	assert.NotContains(t, contrib, "11")
}

func TestPatternAndTrendContributions(t *testing.T) {
	patterns := []analysis.RecurringPattern{
		{Values: []string{"01", "02"}, Occurrences: 3},
		{Values: []string{"05", "06"}, Occurrences: 1},
	}
	contrib := patternContributions(patterns)
	assert.InDelta(t, 0.75, contrib["02"], 1e-9)
	assert.InDelta(t, 0.25, contrib["06"], 1e-9)

	trend := &analysis.TrendResult{Monotonic: []analysis.TrendRun{
		{Kind: analysis.RunIncreasing, Values: []int{1, 2, 3, 7}},
		{Kind: analysis.RunDecreasing, Values: []int{90, 80, 70, 60, 50, 40}},
	}}
	contrib = trendContributions(trend, 3)
	assert.InDelta(t, 0.8, contrib["007"], 1e-9)
	assert.InDelta(t, 1.0, contrib["040"], 1e-9)
}

func TestBuildResultOrderingAndBoost(t *testing.T) {
	contributions := map[Method]map[string]float64{
		MethodDate:  {"12": 0.5, "34": 0.5, "56": 0.2},
		MethodPairs: {"56": 0.1},
	}
	weights := Weights{MethodDate: 1, MethodPairs: 1}

	r := buildResult(database.DigitLast2, mustDate(t, "2024-02-16"), NameStatistical, contributions, nil, weights, nil)
	require.Len(t, r.Predictions, 3)
	assert.Equal(t, []string{"12", "34", "56"}, []string{
		r.Predictions[0].PredictedValue, r.Predictions[1].PredictedValue, r.Predictions[2].PredictedValue,
	})
	assert.Equal(t, 50.0, r.Predictions[0].Confidence)
	assert.Equal(t, 30.0, r.Predictions[2].Confidence)

	boosted := buildResult(database.DigitLast2, mustDate(t, "2024-02-16"), NameLearning, contributions, nil, weights,
		map[string]bool{"34": true, "99": true})
	assert.Equal(t, "34", boosted.Predictions[0].PredictedValue)
	assert.Equal(t, 60.0, boosted.Predictions[0].Confidence)
	assert.Len(t, boosted.Predictions, 3)
}

func TestWeightsNormalize(t *testing.T) {
	w := Weights{MethodDate: 2, MethodTrend: 6}.Normalize()
	assert.InDelta(t, 0.25, w[MethodDate], 1e-9)
	assert.InDelta(t, 0.75, w[MethodTrend], 1e-9)
	assert.Equal(t, 0.0, w[MethodPairs])

	zero := Weights{}.Normalize()
	assert.Equal(t, 0.0, zero[MethodDate])
}

func TestManager(t *testing.T) {
	db := newTestStore(t)
	m := NewManager(NewAggregator(db, db))

	assert.Equal(t, []string{NameLearning, NameStatistical}, m.Names())
	assert.Equal(t, NameStatistical, m.Current().GetName())
	assert.Error(t, m.SetCurrent("oracle"))
	require.NoError(t, m.SetCurrent(NameLearning))

	p, err := m.Get(NameLearning)
	require.NoError(t, err)
	assert.Equal(t, NameLearning, p.GetName())

	results, err := m.PredictAll(context.Background(), "last2", "2024-02-16")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	unlockB()
	unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
