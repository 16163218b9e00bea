package predictor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"thai-lotto-bot/internal/analysis"
	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/logger"
	"thai-lotto-bot/internal/metrics"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 预测方法名，同时是 Manager 中预测器的名称
const (
	NameStatistical = "statistical"
	NameLearning    = "learning"
)

const historyCalculation = "prediction"

// Store 预测结果与审计日志的持久化
type Store interface {
	ReplacePredictions(ctx context.Context, targetDate time.Time, digitType database.DigitType, method string, predictions []database.Prediction) error
	InsertAnalysisHistory(ctx context.Context, entry *database.AnalysisHistory) error
	GetCorrectPredictions(ctx context.Context, digitType database.DigitType, limit int) ([]database.Prediction, error)
	GetAnalysisHistoryByRunIDs(ctx context.Context, runIDs []string) ([]database.AnalysisHistory, error)
	CountAccuracyRecords(ctx context.Context) (int, error)
}

// PredictionResult 一次预测的输出
type PredictionResult struct {
	RunID           string                 `json:"run_id"`
	DigitType       database.DigitType     `json:"digit_type"`
	TargetDate      time.Time              `json:"target_date"`
	Method          string                 `json:"method"`
	Predictions     []database.Prediction  `json:"predictions"`
	Usage           map[Method]MethodUsage `json:"usage"`
	Weights         Weights                `json:"weights"`
	LearningApplied bool                   `json:"learning_applied"`

	// 各方法未乘权重的候选得分，学习调整时按新权重重新合并
	contributions map[Method]map[string]float64
}

// Used 子分析是否参与了打分
func (r *PredictionResult) Used(m Method) bool {
	return r.Usage[m].Used
}

// historySummary 审计日志中的结果摘要
type historySummary struct {
	Usage      map[Method]MethodUsage `json:"usage"`
	Weights    Weights                `json:"weights"`
	Candidates int                    `json:"candidates"`
	Top        []string               `json:"top"`
}

// Aggregator 加权合并各子分析结果，生成排名前20的候选号码
type Aggregator struct {
	analyzer *analysis.Analyzer
	store    Store
	locks    *keyedMutex
	log      *logrus.Entry
}

// NewAggregator 创建预测聚合器；source 可以是带缓存的数据源
func NewAggregator(source analysis.DrawSource, store Store) *Aggregator {
	return &Aggregator{
		analyzer: analysis.NewAnalyzer(source, nil),
		store:    store,
		locks:    newKeyedMutex(),
		log:      logger.WithComponent("predictor"),
	}
}

// GeneratePredictions 统计预测；只使用目标日期之前的开奖数据
func (a *Aggregator) GeneratePredictions(ctx context.Context, digitType, targetDate string) (*PredictionResult, error) {
	start := time.Now()

	dt, date, err := parseRequest(digitType, targetDate)
	if err != nil {
		return nil, err
	}

	contributions, usage, err := a.analyze(ctx, dt, date)
	if err != nil {
		return nil, err
	}

	result := buildResult(dt, date, NameStatistical, contributions, usage, DefaultWeights(), nil)
	if err := a.persist(ctx, result); err != nil {
		return nil, err
	}

	metrics.RecordPrediction(string(dt), NameStatistical, time.Since(start).Seconds())
	a.log.WithFields(logrus.Fields{
		"digit_type":  dt,
		"target_date": database.FormatDate(date),
		"predictions": len(result.Predictions),
	}).Info("Statistical predictions generated")

	return result, nil
}

// analyze 并发执行全部子分析，结果按方法保存在各自的槽位
func (a *Aggregator) analyze(ctx context.Context, dt database.DigitType, date time.Time) (map[Method]map[string]float64, map[Method]MethodUsage, error) {
	contribs := make([]map[string]float64, len(methodOrder))
	usages := make([]MethodUsage, len(methodOrder))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range methodOrder {
		i, m := i, m
		g.Go(func() error {
			c, u, err := a.runMethod(gctx, m, dt, date)
			if err != nil {
				return fmt.Errorf("%s analysis failed: %w", m, err)
			}
			contribs[i], usages[i] = c, u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	contributions := make(map[Method]map[string]float64, len(methodOrder))
	usage := make(map[Method]MethodUsage, len(methodOrder))
	for i, m := range methodOrder {
		contributions[m] = contribs[i]
		usage[m] = usages[i]
		if !usages[i].Used {
			metrics.RecordSkippedAnalysis(string(m))
		}
	}
	return contributions, usage, nil
}

func (a *Aggregator) runMethod(ctx context.Context, m Method, dt database.DigitType, date time.Time) (map[string]float64, MethodUsage, error) {
	before := database.DrawFilter{To: date.AddDate(0, 0, -1)}

	switch m {
	case MethodDayOfWeek:
		return a.frequency(ctx, m, dt, before.OnWeekday(date.Weekday()), minWeekdaySamples)

	case MethodDate:
		f := before
		f.DayOfMonth = date.Day()
		return a.frequency(ctx, m, dt, f, minDateSamples)

	case MethodMonth:
		f := before
		f.Month = int(date.Month())
		return a.frequency(ctx, m, dt, f, minMonthSamples)

	case MethodCombined:
		f := before.OnWeekday(date.Weekday())
		f.DayOfMonth = date.Day()
		f.Month = int(date.Month())
		return a.frequency(ctx, m, dt, f, minCombinedSamples)

	case MethodPatterns:
		f := before
		f.Limit = patternLookback
		patterns, err := a.analyzer.FindRecurringPatternsIn(ctx, dt, f)
		if err != nil {
			return nil, MethodUsage{}, err
		}
		return patternContributions(patterns), MethodUsage{Used: len(patterns) > 0, Samples: len(patterns)}, nil

	case MethodPairs:
		f := before
		f.Limit = pairLookback
		pf, err := a.analyzer.ComputePairFrequency(ctx, dt, f)
		if err != nil {
			return nil, MethodUsage{}, err
		}
		return pairContributions(pf, dt.Width()), MethodUsage{Used: pf.TotalRecords > 0, Samples: pf.TotalRecords}, nil

	case MethodPosition:
		if dt == database.DigitLast2 {
			return nil, MethodUsage{}, nil
		}
		f := before
		f.Limit = positionLookback
		pf, err := a.analyzer.ComputePositionFrequency(ctx, dt, f)
		if err != nil {
			return nil, MethodUsage{}, err
		}
		return positionContributions(pf), MethodUsage{Used: pf.TotalCount > 0, Samples: pf.TotalCount}, nil

	case MethodTrend:
		f := before
		f.Limit = trendLookback
		trend, err := a.analyzer.AnalyzeTrendIn(ctx, dt, f)
		if analysis.IsKind(err, analysis.KindInsufficientData) {
			a.log.WithField("digit_type", dt).Debugf("Trend analysis skipped: %v", err)
			return nil, MethodUsage{}, nil
		}
		if err != nil {
			return nil, MethodUsage{}, err
		}
		return trendContributions(trend, dt.Width()), MethodUsage{Used: true, Samples: len(trend.Series)}, nil
	}

	return nil, MethodUsage{}, fmt.Errorf("unknown analysis method: %s", m)
}

// frequency 带样本门槛的频率分析，取前10项
func (a *Aggregator) frequency(ctx context.Context, m Method, dt database.DigitType, filter database.DrawFilter, minSamples int) (map[string]float64, MethodUsage, error) {
	dist, err := a.analyzer.ComputeFrequency(ctx, dt, filter)
	if err != nil {
		return nil, MethodUsage{}, err
	}

	usage := MethodUsage{Samples: dist.TotalCount}
	if dist.TotalCount < minSamples {
		a.log.WithFields(logrus.Fields{"digit_type": dt, "analysis": m}).
			Debug(analysis.InsufficientData(string(m)+" frequency", dist.TotalCount, minSamples).Error())
		return nil, usage, nil
	}

	contrib := make(map[string]float64, frequencyTopN)
	for _, e := range dist.Top(frequencyTopN) {
		contrib[e.Value] += e.Percentage / 100
	}
	usage.Used = true
	return contrib, usage, nil
}

// patternContributions 前5个模式的最后一个号码，按出现次数占比计分
func patternContributions(patterns []analysis.RecurringPattern) map[string]float64 {
	if len(patterns) > patternTopN {
		patterns = patterns[:patternTopN]
	}
	total := 0
	for _, p := range patterns {
		total += p.Occurrences
	}

	contrib := make(map[string]float64, len(patterns))
	if total == 0 {
		return contrib
	}
	for _, p := range patterns {
		contrib[p.Last()] += float64(p.Occurrences) / float64(total)
	}
	return contrib
}

// pairContributions 对每个候选号码累加其包含的（去重）号码对百分比
func pairContributions(pf *analysis.PairFrequency, width int) map[string]float64 {
	pct := make(map[string]float64, len(pf.Pairs))
	for _, p := range pf.Pairs {
		pct[p.Value] = p.Percentage / 100
	}

	contrib := make(map[string]float64)
	if len(pct) == 0 {
		return contrib
	}
	for _, cand := range candidates(width) {
		score := 0.0
		var seen []string
		for i := 0; i+2 <= len(cand); i++ {
			pair := cand[i : i+2]
			if containsString(seen, pair) {
				continue
			}
			seen = append(seen, pair)
			score += pct[pair]
		}
		if score > 0 {
			contrib[cand] = score
		}
	}
	return contrib
}

// positionContributions 候选号码各位百分比的平均值
func positionContributions(pf *analysis.PositionFrequency) map[string]float64 {
	contrib := make(map[string]float64)
	if pf.TotalCount == 0 {
		return contrib
	}
	for _, cand := range candidates(pf.Width) {
		sum := 0.0
		for pos := 0; pos < pf.Width; pos++ {
			sum += pf.Percentages[pos][cand[pos]-'0'] / 100
		}
		if mean := sum / float64(pf.Width); mean > 0 {
			contrib[cand] = mean
		}
	}
	return contrib
}

// trendContributions 单调趋势的最后一个号码，按 min(1, 长度/5) 计分
func trendContributions(trend *analysis.TrendResult, width int) map[string]float64 {
	contrib := make(map[string]float64)
	for _, run := range trend.Monotonic {
		strength := float64(len(run.Values)) / trendFullLength
		if strength > 1 {
			strength = 1
		}
		contrib[formatCandidate(run.Last(), width)] += strength
	}
	return contrib
}

type scoredCandidate struct {
	value string
	score float64
}

// buildResult 合并得分、排序并截取前20
func buildResult(dt database.DigitType, date time.Time, method string, contributions map[Method]map[string]float64,
	usage map[Method]MethodUsage, weights Weights, boost map[string]bool) *PredictionResult {

	scores := make(map[string]float64)
	for _, m := range methodOrder {
		w := weights[m]
		for value, c := range contributions[m] {
			scores[value] += w * c
		}
	}
	for value := range boost {
		if s, ok := scores[value]; ok {
			scores[value] = s * learningBoost
		}
	}

	ranked := make([]scoredCandidate, 0, len(scores))
	for value, score := range scores {
		ranked = append(ranked, scoredCandidate{value: value, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].value < ranked[j].value
	})
	if len(ranked) > maxPredictions {
		ranked = ranked[:maxPredictions]
	}

	runID := uuid.NewString()
	predictions := make([]database.Prediction, len(ranked))
	for i, c := range ranked {
		predictions[i] = database.Prediction{
			RunID:          runID,
			DigitType:      dt,
			TargetDate:     date,
			PredictedValue: c.value,
			Confidence:     analysis.Confidence(c.score),
			Rank:           i + 1,
			Method:         method,
		}
	}

	return &PredictionResult{
		RunID:         runID,
		DigitType:     dt,
		TargetDate:    date,
		Method:        method,
		Predictions:   predictions,
		Usage:         usage,
		Weights:       weights,
		contributions: contributions,
	}
}

// persist 替换已有预测并写入审计日志；同一 (日期, 类型, 方法) 串行执行
func (a *Aggregator) persist(ctx context.Context, result *PredictionResult) error {
	key := database.FormatDate(result.TargetDate) + "|" + string(result.DigitType) + "|" + result.Method
	unlock := a.locks.Lock(key)
	defer unlock()

	if err := a.store.ReplacePredictions(ctx, result.TargetDate, result.DigitType, result.Method, result.Predictions); err != nil {
		return fmt.Errorf("failed to store predictions: %w", err)
	}

	top := make([]string, 0, len(result.Predictions))
	for _, p := range result.Predictions {
		top = append(top, p.PredictedValue)
	}
	params, _ := json.MarshalToString(map[string]string{
		"digit_type":  string(result.DigitType),
		"target_date": database.FormatDate(result.TargetDate),
		"method":      result.Method,
	})
	summary, err := json.MarshalToString(historySummary{
		Usage:      result.Usage,
		Weights:    result.Weights,
		Candidates: len(result.Predictions),
		Top:        top,
	})
	if err != nil {
		a.log.WithError(err).Warn("Failed to encode prediction summary")
		return nil
	}

	entry := &database.AnalysisHistory{
		RunID:           result.RunID,
		CalculationType: historyCalculation,
		Parameters:      params,
		ResultSummary:   summary,
	}
	if err := a.store.InsertAnalysisHistory(ctx, entry); err != nil {
		a.log.WithError(err).WithField("run_id", result.RunID).Warn("Failed to record prediction history")
	}
	return nil
}

func parseRequest(digitType, targetDate string) (database.DigitType, time.Time, error) {
	dt, err := database.ParseDigitType(digitType)
	if err != nil {
		return "", time.Time{}, analysis.ValidationError("invalid digit type %q", digitType)
	}
	date, err := analysis.ParseTargetDate(targetDate)
	if err != nil {
		return "", time.Time{}, err
	}
	return dt, date, nil
}

var candidateSets = map[int][]string{
	2: buildCandidates(2),
	3: buildCandidates(3),
}

// candidates 指定位数的全部候选号码
func candidates(width int) []string {
	if c, ok := candidateSets[width]; ok {
		return c
	}
	return buildCandidates(width)
}

func buildCandidates(width int) []string {
	n := 1
	for i := 0; i < width; i++ {
		n *= 10
	}
	out := make([]string, n)
	for i := range out {
		out[i] = formatCandidate(i, width)
	}
	return out
}

func formatCandidate(v, width int) string {
	s := strconv.Itoa(v)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// keyedMutex 按键加锁
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
