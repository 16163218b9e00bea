package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"thai-lotto-bot/internal/cache"
	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/predictor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	latest  *database.DrawRecord
	history []database.DrawRecord
	err     error
}

func (f *fakeFetcher) FetchLatestDraw(context.Context) (*database.DrawRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.latest
	return &r, nil
}

func (f *fakeFetcher) GetHistoricalData(_ context.Context, limit int) ([]database.DrawRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

type fakeNotifier struct {
	calls   int
	results int
}

func (n *fakeNotifier) BroadcastPredictions(_ context.Context, _ *database.DrawRecord, results []*predictor.PredictionResult) error {
	n.calls++
	n.results = len(results)
	return nil
}

func makeDraw(t *testing.T, date time.Time, n int) database.DrawRecord {
	t.Helper()
	r, err := database.NewDrawRecord(date,
		fmt.Sprintf("%06d", (n*7919)%1000000),
		fmt.Sprintf("%03d", (n*131)%1000),
		fmt.Sprintf("%03d", (n*271)%1000),
		fmt.Sprintf("%02d", (n*37)%100))
	require.NoError(t, err)
	return *r
}

type fixture struct {
	db       *database.DB
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	cache    *cache.CacheManager
	sched    *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLiteDB(ctx, filepath.Join(t.TempDir(), "lotto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// 2023-01-01 .. 2024-01-16, newest first like the feed
	var history []database.DrawRecord
	n := 0
	for d := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC); !d.After(time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)); d = database.NextDrawDate(d) {
		history = append([]database.DrawRecord{makeDraw(t, d, n)}, history...)
		n++
	}
	latest := makeDraw(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), n)

	drawCache := cache.NewCacheManager(db, time.Minute)
	agg := predictor.NewAggregator(drawCache, db)
	f := &fixture{
		db:       db,
		fetcher:  &fakeFetcher{latest: &latest, history: history},
		notifier: &fakeNotifier{},
		cache:    drawCache,
	}
	f.sched = NewScheduler(Deps{
		Fetcher:    f.fetcher,
		Store:      db,
		Evaluator:  predictor.NewEvaluator(db),
		Predictors: predictor.NewManager(agg),
		Listener:   drawCache,
		Notifier:   f.notifier,
	}, time.UTC)
	return f
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	saved, err := f.sched.Import(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, len(f.fetcher.history), saved)

	count, err := f.db.CountDraws(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, count)

	latest, err := f.cache.LatestDraw(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-16", database.FormatDate(latest.DrawDate))
}

func TestSyncEvaluatesAndPredicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.sched.Import(ctx, 500)
	require.NoError(t, err)

	upcoming, err := f.sched.PredictNext(ctx, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, upcoming, len(database.AllDigitTypes)*2)
	assert.Equal(t, "2024-02-01", database.FormatDate(upcoming[0].TargetDate))

	result, err := f.sched.Sync(ctx)
	require.NoError(t, err)

	assert.True(t, result.New)
	require.NotNil(t, result.Evaluation)
	assert.Positive(t, result.Evaluation.Total)
	require.Len(t, result.Predictions, len(database.AllDigitTypes)*2)
	assert.Equal(t, "2024-02-16", database.FormatDate(result.Predictions[0].TargetDate))
	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, len(result.Predictions), f.notifier.results)

	// the new draw is visible through the cache
	latest, err := f.cache.LatestDraw(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", database.FormatDate(latest.DrawDate))

	again, err := f.sched.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, again.New)
	assert.Equal(t, 1, f.notifier.calls)
}

func TestSyncWithoutPriorPredictions(t *testing.T) {
	f := newFixture(t)

	result, err := f.sched.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.New)
	assert.Nil(t, result.Evaluation)
}

func TestSyncFetchError(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("feed down")

	_, err := f.sched.Sync(context.Background())
	assert.Error(t, err)
	_, err = f.sched.Import(context.Background(), 10)
	assert.Error(t, err)
}

func TestSchedulerLifecycle(t *testing.T) {
	s := newFixture(t).sched

	assert.Error(t, s.Start())
	assert.Error(t, s.ScheduleSync("not a cron"))
	require.NoError(t, s.ScheduleSync("30 16 1,16 * *"))

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())
	assert.Error(t, s.ScheduleSync("@every 1h"))

	s.Stop()
	assert.False(t, s.IsRunning())
}
