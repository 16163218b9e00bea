package predictor

import (
	"context"
	"fmt"
	"time"

	"thai-lotto-bot/internal/analysis"
	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/logger"
	"thai-lotto-bot/internal/metrics"

	"github.com/sirupsen/logrus"
)

// 准确率统计周期
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
	PeriodAll     = "all"
)

// 准确率趋势方向
const (
	TrendImproving        = "improving"
	TrendDeclining        = "declining"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

const (
	evaluationMethod    = "all"
	movingAverageWindow = 3
)

// AccuracyStore 准确率评估所需的存储操作
type AccuracyStore interface {
	GetDraw(ctx context.Context, drawDate string) (*database.DrawRecord, error)
	GetPredictionsByDate(ctx context.Context, targetDate time.Time, digitType database.DigitType) ([]database.Prediction, error)
	MarkPredictionResult(ctx context.Context, id int64, correct bool) error
	InsertAccuracyRecord(ctx context.Context, record *database.AccuracyRecord) error
	GetAccuracyRecords(ctx context.Context, since time.Time) ([]database.AccuracyRecord, error)
}

// TypeAccuracy 单个号码类型的命中统计
type TypeAccuracy struct {
	Total      int     `json:"total"`
	Correct    int     `json:"correct"`
	Percentage float64 `json:"percentage"`
}

// AccuracyResult 一次评估的结果
type AccuracyResult struct {
	DrawDate   time.Time                           `json:"draw_date"`
	ByType     map[database.DigitType]TypeAccuracy `json:"by_type"`
	Total      int                                 `json:"total"`
	Correct    int                                 `json:"correct"`
	Percentage float64                             `json:"percentage"`
	Record     database.AccuracyRecord             `json:"record"`
}

// AccuracyHistory 一段时间内的准确率汇总
type AccuracyHistory struct {
	Period             string                    `json:"period"`
	Since              time.Time                 `json:"since"`
	Records            []database.AccuracyRecord `json:"records"`
	TotalPredictions   int                       `json:"total_predictions"`
	CorrectPredictions int                       `json:"correct_predictions"`
	Percentage         float64                   `json:"percentage"`
	MovingAverage      []float64                 `json:"moving_average"`
	TrendDirection     string                    `json:"trend_direction"`
}

// Evaluator 预测准确率评估器
type Evaluator struct {
	store AccuracyStore
	now   func() time.Time
	log   *logrus.Entry
}

// NewEvaluator 创建评估器
func NewEvaluator(store AccuracyStore) *Evaluator {
	return &Evaluator{
		store: store,
		now:   time.Now,
		log:   logger.WithComponent("evaluator"),
	}
}

// EvaluateAccuracy 用实际开奖结果核对该日期的全部预测
// 重复调用结果一致，但每次都会追加一条准确率记录
func (e *Evaluator) EvaluateAccuracy(ctx context.Context, drawDate string) (*AccuracyResult, error) {
	date, err := analysis.ParseTargetDate(drawDate)
	if err != nil {
		return nil, err
	}

	draw, err := e.store.GetDraw(ctx, database.FormatDate(date))
	if err != nil {
		metrics.RecordEvaluation("error")
		return nil, fmt.Errorf("failed to get draw: %w", err)
	}
	if draw == nil {
		metrics.RecordEvaluation("not_found")
		return nil, analysis.NotFound("no results for date %s", database.FormatDate(date))
	}

	predictions, err := e.store.GetPredictionsByDate(ctx, date, "")
	if err != nil {
		metrics.RecordEvaluation("error")
		return nil, fmt.Errorf("failed to get predictions: %w", err)
	}
	if len(predictions) == 0 {
		metrics.RecordEvaluation("not_found")
		return nil, analysis.NotFound("no predictions for date %s", database.FormatDate(date))
	}

	result := &AccuracyResult{
		DrawDate: date,
		ByType:   make(map[database.DigitType]TypeAccuracy),
	}
	for _, p := range predictions {
		correct := p.PredictedValue == draw.Value(p.DigitType)
		if err := e.store.MarkPredictionResult(ctx, p.ID, correct); err != nil {
			metrics.RecordEvaluation("error")
			return nil, err
		}

		tally := result.ByType[p.DigitType]
		tally.Total++
		result.Total++
		if correct {
			tally.Correct++
			result.Correct++
		}
		result.ByType[p.DigitType] = tally
	}

	for dt, tally := range result.ByType {
		tally.Percentage = analysis.Percent(tally.Correct, tally.Total)
		result.ByType[dt] = tally
		metrics.UpdateAccuracy(string(dt), tally.Percentage)
	}
	result.Percentage = analysis.Percent(result.Correct, result.Total)

	result.Record = database.AccuracyRecord{
		PeriodStart:        date,
		PeriodEnd:          date,
		Method:             evaluationMethod,
		TotalPredictions:   result.Total,
		CorrectPredictions: result.Correct,
		AccuracyPercentage: result.Percentage,
	}
	if err := e.store.InsertAccuracyRecord(ctx, &result.Record); err != nil {
		metrics.RecordEvaluation("error")
		return nil, err
	}

	metrics.RecordEvaluation("success")
	e.log.WithFields(logrus.Fields{
		"draw_date": database.FormatDate(date),
		"total":     result.Total,
		"correct":   result.Correct,
		"accuracy":  result.Percentage,
	}).Info("Accuracy evaluated")

	return result, nil
}

// GetAccuracyHistory 按周期汇总准确率记录
func (e *Evaluator) GetAccuracyHistory(ctx context.Context, period string) (*AccuracyHistory, error) {
	since, err := periodStart(period, e.now())
	if err != nil {
		return nil, err
	}

	records, err := e.store.GetAccuracyRecords(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get accuracy records: %w", err)
	}

	history := &AccuracyHistory{
		Period:  period,
		Since:   since,
		Records: records,
	}
	percentages := make([]float64, 0, len(records))
	for _, r := range records {
		history.TotalPredictions += r.TotalPredictions
		history.CorrectPredictions += r.CorrectPredictions
		percentages = append(percentages, r.AccuracyPercentage)
	}
	history.Percentage = analysis.Percent(history.CorrectPredictions, history.TotalPredictions)
	history.MovingAverage = calculateMovingAverage(percentages, movingAverageWindow)
	history.TrendDirection = analyzeTrendDirection(history.MovingAverage)

	return history, nil
}

// periodStart 周期起始日期；all 返回零值
func periodStart(period string, now time.Time) (time.Time, error) {
	today := database.TruncateDate(now)
	switch period {
	case PeriodWeekly:
		return today.AddDate(0, 0, -7), nil
	case PeriodMonthly:
		return today.AddDate(0, -1, 0), nil
	case PeriodYearly:
		return today.AddDate(-1, 0, 0), nil
	case PeriodAll:
		return time.Time{}, nil
	}
	return time.Time{}, analysis.ValidationError("invalid period %q: expected weekly, monthly, yearly or all", period)
}

// calculateMovingAverage 计算移动平均
func calculateMovingAverage(values []float64, window int) []float64 {
	if window <= 0 || len(values) < window {
		return []float64{}
	}

	movingAvg := make([]float64, 0, len(values)-window+1)
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += values[j]
		}
		movingAvg = append(movingAvg, analysis.Round2(sum/float64(window)))
	}
	return movingAvg
}

// analyzeTrendDirection 分析趋势方向
func analyzeTrendDirection(movingAverage []float64) string {
	if len(movingAverage) < 2 {
		return TrendInsufficientData
	}

	recent := movingAverage[len(movingAverage)-1]
	previous := movingAverage[len(movingAverage)-2]

	if recent > previous+1 {
		return TrendImproving
	} else if recent < previous-1 {
		return TrendDeclining
	}
	return TrendStable
}
