package predictor

import (
	"context"
	"fmt"
	"time"

	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	minLearningPeriods = 3
	learningSampleSize = 50
	learningBoost      = 1.2
)

// GenerateLearningPredictions 根据历史命中记录调整权重后重新打分
// 准确率记录不足时直接返回统计预测结果
func (a *Aggregator) GenerateLearningPredictions(ctx context.Context, digitType, targetDate string) (*PredictionResult, error) {
	base, err := a.GeneratePredictions(ctx, digitType, targetDate)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	periods, err := a.store.CountAccuracyRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count accuracy records: %w", err)
	}
	if periods < minLearningPeriods {
		a.log.WithFields(logrus.Fields{
			"digit_type": base.DigitType,
			"periods":    periods,
		}).Info("Not enough accuracy history, using statistical predictions")
		return base, nil
	}

	correct, err := a.store.GetCorrectPredictions(ctx, base.DigitType, learningSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get correct predictions: %w", err)
	}

	weights, err := a.learnWeights(ctx, correct)
	if err != nil {
		return nil, err
	}

	boost := make(map[string]bool, len(correct))
	for _, p := range correct {
		boost[p.PredictedValue] = true
	}

	result := buildResult(base.DigitType, base.TargetDate, NameLearning, base.contributions, base.Usage, weights, boost)
	result.LearningApplied = true
	if err := a.persist(ctx, result); err != nil {
		return nil, err
	}

	metrics.RecordPrediction(string(result.DigitType), NameLearning, time.Since(start).Seconds())
	a.log.WithFields(logrus.Fields{
		"digit_type":  result.DigitType,
		"target_date": database.FormatDate(result.TargetDate),
		"samples":     len(correct),
	}).Info("Learning predictions generated")

	return result, nil
}

// learnWeights 统计命中预测所在批次使用过的方法，按 1+命中次数/总次数 放大权重并归一化
func (a *Aggregator) learnWeights(ctx context.Context, correct []database.Prediction) (Weights, error) {
	weights := DefaultWeights()
	if len(correct) == 0 {
		return weights, nil
	}

	var runIDs []string
	seen := make(map[string]bool)
	for _, p := range correct {
		if p.RunID == "" || seen[p.RunID] {
			continue
		}
		seen[p.RunID] = true
		runIDs = append(runIDs, p.RunID)
	}

	entries, err := a.store.GetAnalysisHistoryByRunIDs(ctx, runIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis history: %w", err)
	}

	usageByRun := make(map[string]map[Method]MethodUsage, len(entries))
	for _, e := range entries {
		if e.CalculationType != historyCalculation {
			continue
		}
		var summary historySummary
		if err := json.UnmarshalFromString(e.ResultSummary, &summary); err != nil {
			a.log.WithError(err).WithField("run_id", e.RunID).Warn("Skipping unreadable prediction summary")
			continue
		}
		usageByRun[e.RunID] = summary.Usage
	}

	success := make(map[Method]int)
	total := 0
	for _, p := range correct {
		usage, ok := usageByRun[p.RunID]
		if !ok {
			continue
		}
		for _, m := range methodOrder {
			if usage[m].Used {
				success[m]++
				total++
			}
		}
	}
	if total == 0 {
		return weights, nil
	}

	for _, m := range methodOrder {
		weights[m] *= 1 + float64(success[m])/float64(total)
	}
	return weights.Normalize(), nil
}
