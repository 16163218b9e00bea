// Package scheduler 开奖日任务：拉取结果、评估准确率、生成下一期预测
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"thai-lotto-bot/internal/analysis"
	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/logger"
	"thai-lotto-bot/internal/metrics"
	"thai-lotto-bot/internal/predictor"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Fetcher 开奖结果来源
type Fetcher interface {
	FetchLatestDraw(ctx context.Context) (*database.DrawRecord, error)
	GetHistoricalData(ctx context.Context, limit int) ([]database.DrawRecord, error)
}

// Store 任务使用的存储操作
type Store interface {
	UpsertDraw(ctx context.Context, record *database.DrawRecord) error
	GetDraw(ctx context.Context, drawDate string) (*database.DrawRecord, error)
	CleanupExpiredPredictions(ctx context.Context, before time.Time) (int, error)
}

// DrawListener 新开奖写入后的回调，例如刷新缓存
type DrawListener interface {
	OnNewDraw(record *database.DrawRecord)
}

// Notifier 预测广播
type Notifier interface {
	BroadcastPredictions(ctx context.Context, draw *database.DrawRecord, results []*predictor.PredictionResult) error
}

// Deps 调度器依赖，Listener 与 Notifier 可为空
type Deps struct {
	Fetcher    Fetcher
	Store      Store
	Evaluator  *predictor.Evaluator
	Predictors *predictor.Manager
	Listener   DrawListener
	Notifier   Notifier
}

// SyncResult 一次同步的结果
type SyncResult struct {
	Draw        *database.DrawRecord
	New         bool
	Evaluation  *predictor.AccuracyResult
	Cleaned     int
	Predictions []*predictor.PredictionResult
}

// Scheduler 开奖日定时任务
type Scheduler struct {
	deps       Deps
	cron       *cron.Cron
	jobTimeout time.Duration
	mu         sync.Mutex
	isRunning  bool
	jobIDs     []cron.EntryID
	log        *logrus.Entry
}

// NewScheduler 创建调度器，cron 表达式按 loc 时区解释
func NewScheduler(deps Deps, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		deps:       deps,
		cron:       cron.New(cron.WithLocation(loc)),
		jobTimeout: 10 * time.Minute,
		log:        logger.WithComponent("scheduler"),
	}
}

// ScheduleSync 按 cron 表达式执行同步任务
func (s *Scheduler) ScheduleSync(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		if _, err := s.Sync(ctx); err != nil {
			s.log.WithError(err).Error("Scheduled sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, id)
	s.log.WithField("schedule", spec).Info("Scheduled draw sync job")
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.log.Infof("Scheduler started with %d jobs", len(s.jobIDs))
	return nil
}

// Stop 停止调度器并等待运行中的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.log.Info("Scheduler stopped")
}

// IsRunning 调度器是否在运行
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Sync 拉取最新开奖；有新结果时写入、评估、清理过期预测并生成下一期预测
func (s *Scheduler) Sync(ctx context.Context) (*SyncResult, error) {
	latest, err := s.deps.Fetcher.FetchLatestDraw(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest draw: %w", err)
	}
	result := &SyncResult{Draw: latest}

	existing, err := s.deps.Store.GetDraw(ctx, database.FormatDate(latest.DrawDate))
	if err != nil {
		return nil, err
	}
	if existing != nil && sameNumbers(existing, latest) {
		s.log.WithField("draw_date", database.FormatDate(latest.DrawDate)).Debug("No new draw")
		return result, nil
	}
	result.New = true

	if err := s.deps.Store.UpsertDraw(ctx, latest); err != nil {
		return nil, err
	}
	metrics.RecordDrawsImported(1)
	if s.deps.Listener != nil {
		s.deps.Listener.OnNewDraw(latest)
	}
	s.log.WithFields(logrus.Fields{
		"draw_date":   database.FormatDate(latest.DrawDate),
		"first_prize": latest.FirstPrize,
		"last2":       latest.Last2,
	}).Info("New draw stored")

	evaluation, err := s.deps.Evaluator.EvaluateAccuracy(ctx, database.FormatDate(latest.DrawDate))
	switch {
	case analysis.IsKind(err, analysis.KindNotFound):
		s.log.Infof("Nothing to evaluate: %v", err)
	case err != nil:
		s.log.WithError(err).Warn("Failed to evaluate accuracy")
	default:
		result.Evaluation = evaluation
	}

	cleaned, err := s.deps.Store.CleanupExpiredPredictions(ctx, latest.DrawDate)
	if err != nil {
		s.log.WithError(err).Warn("Failed to cleanup expired predictions")
	}
	result.Cleaned = cleaned

	predictions, err := s.PredictNext(ctx, latest.DrawDate)
	if err != nil {
		return result, err
	}
	result.Predictions = predictions

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.BroadcastPredictions(ctx, latest, predictions); err != nil {
			s.log.WithError(err).Warn("Failed to broadcast predictions")
		}
	}
	return result, nil
}

// PredictNext 为 after 之后的下一个开奖日生成全部类型、全部方法的预测
func (s *Scheduler) PredictNext(ctx context.Context, after time.Time) ([]*predictor.PredictionResult, error) {
	target := database.FormatDate(database.NextDrawDate(after))

	var results []*predictor.PredictionResult
	for _, dt := range database.AllDigitTypes {
		r, err := s.deps.Predictors.PredictAll(ctx, string(dt), target)
		if err != nil {
			return results, fmt.Errorf("failed to predict %s for %s: %w", dt, target, err)
		}
		results = append(results, r...)
	}

	s.log.WithFields(logrus.Fields{
		"target_date": target,
		"runs":        len(results),
	}).Info("Predictions generated for next draw")
	return results, nil
}

// Import 导入最近 limit 期历史开奖，返回写入条数
func (s *Scheduler) Import(ctx context.Context, limit int) (int, error) {
	records, err := s.deps.Fetcher.GetHistoricalData(ctx, limit)
	if err != nil {
		return 0, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].DrawDate.Before(records[j].DrawDate)
	})

	saved := 0
	for i := range records {
		if err := s.deps.Store.UpsertDraw(ctx, &records[i]); err != nil {
			s.log.WithError(err).WithField("draw_date", database.FormatDate(records[i].DrawDate)).
				Warn("Failed to save historical draw")
			continue
		}
		saved++
	}
	metrics.RecordDrawsImported(saved)

	if saved > 0 && s.deps.Listener != nil {
		s.deps.Listener.OnNewDraw(&records[len(records)-1])
	}
	s.log.Infof("Imported %d of %d historical draws", saved, len(records))
	return saved, nil
}

func sameNumbers(a, b *database.DrawRecord) bool {
	return a.FirstPrize == b.FirstPrize &&
		a.ThreeFront == b.ThreeFront &&
		a.ThreeBack == b.ThreeBack &&
		a.Last2 == b.Last2
}
