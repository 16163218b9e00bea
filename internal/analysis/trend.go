package analysis

import (
	"context"
	"strconv"
	"time"

	"thai-lotto-bot/internal/database"
)

// RunKind 趋势类型
type RunKind string

const (
	RunIncreasing  RunKind = "increasing"
	RunDecreasing  RunKind = "decreasing"
	RunOscillating RunKind = "oscillating"
	RunStable      RunKind = "stable"
)

const (
	minMonotonicSteps = 3
	windowSize        = 4
)

// TrendPoint 时间序列中的一期
type TrendPoint struct {
	Date  time.Time `json:"date"`
	Value int       `json:"value"`
}

// TrendDiff 相邻两期的差值
type TrendDiff struct {
	FromDate time.Time `json:"from_date"`
	ToDate   time.Time `json:"to_date"`
	From     int       `json:"from"`
	To       int       `json:"to"`
	Diff     int       `json:"diff"`
}

// TrendRun 一段趋势，索引基于时间正序的序列
type TrendRun struct {
	Kind       RunKind   `json:"kind"`
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Values     []int     `json:"values"`
}

// Last 趋势最后一期的数值
func (r *TrendRun) Last() int {
	return r.Values[len(r.Values)-1]
}

// TrendResult 趋势分析结果
type TrendResult struct {
	Field       database.DigitType `json:"field"`
	Series      []TrendPoint       `json:"series"`
	Differences []TrendDiff        `json:"differences"`
	Monotonic   []TrendRun         `json:"monotonic"`
	Oscillating []TrendRun         `json:"oscillating"`
	Stable      []TrendRun         `json:"stable"`
}

// AnalyzeTrend 分析最近 lookback 期的数值趋势
func (a *Analyzer) AnalyzeTrend(ctx context.Context, field database.DigitType, lookback int) (*TrendResult, error) {
	return a.AnalyzeTrendIn(ctx, field, database.DrawFilter{Limit: lookback})
}

// AnalyzeTrendIn 同上，filter.Limit 为回看期数
func (a *Analyzer) AnalyzeTrendIn(ctx context.Context, field database.DigitType, filter database.DrawFilter) (*TrendResult, error) {
	lookback, err := clampLookback(filter.Limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = lookback

	values, records, err := a.values(ctx, field, filter)
	if err != nil {
		return nil, err
	}

	series, dates := chronological(values, records)
	points := make([]TrendPoint, 0, len(series))
	for i, v := range series {
		n, err := strconv.Atoi(v)
		if err != nil {
			a.log.WithField("value", v).Debug("Skipping non-numeric value")
			continue
		}
		points = append(points, TrendPoint{Date: dates[i], Value: n})
	}
	if len(points) == 0 {
		return nil, InsufficientData("no draws for trend analysis", 0, 1)
	}

	result := detectTrend(field, points)
	a.record(ctx, "trend", filterParams(field, filter), map[string]interface{}{
		"draws":       len(points),
		"monotonic":   len(result.Monotonic),
		"oscillating": len(result.Oscillating),
		"stable":      len(result.Stable),
	})
	return result, nil
}

// StableThreshold 稳定窗口允许的最大极差
func StableThreshold(field database.DigitType) int {
	if field.Width() == 2 {
		return 10
	}
	return 100
}

func detectTrend(field database.DigitType, points []TrendPoint) *TrendResult {
	result := &TrendResult{
		Field:       field,
		Series:      points,
		Differences: make([]TrendDiff, 0, len(points)),
		Monotonic:   []TrendRun{},
		Oscillating: []TrendRun{},
		Stable:      []TrendRun{},
	}

	for i := 1; i < len(points); i++ {
		result.Differences = append(result.Differences, TrendDiff{
			FromDate: points[i-1].Date,
			ToDate:   points[i].Date,
			From:     points[i-1].Value,
			To:       points[i].Value,
			Diff:     points[i].Value - points[i-1].Value,
		})
	}

	if len(points) < windowSize {
		return result
	}

	diffs := result.Differences

	// 单调：连续同号差值，遇到变号或零差值中断
	runStart, runSign := 0, 0
	closeRun := func(end int) {
		// diffs[runStart..end) 覆盖 points[runStart..end]
		if runSign == 0 || end-runStart < minMonotonicSteps {
			return
		}
		kind := RunIncreasing
		if runSign < 0 {
			kind = RunDecreasing
		}
		result.Monotonic = append(result.Monotonic, newRun(kind, points, runStart, end))
	}
	for i, d := range diffs {
		s := sign(d.Diff)
		if s != 0 && s == runSign {
			continue
		}
		closeRun(i)
		runStart, runSign = i, s
	}
	closeRun(len(diffs))

	// 振荡：每组严格交替的三个差值各记一次
	for i := 0; i+2 < len(diffs); i++ {
		d1, d2, d3 := diffs[i].Diff, diffs[i+1].Diff, diffs[i+2].Diff
		if d1*d2 < 0 && d2*d3 < 0 {
			result.Oscillating = append(result.Oscillating, newRun(RunOscillating, points, i, i+3))
		}
	}

	threshold := StableThreshold(field)
	for i := 0; i+windowSize <= len(points); i++ {
		lo, hi := points[i].Value, points[i].Value
		for _, p := range points[i+1 : i+windowSize] {
			if p.Value < lo {
				lo = p.Value
			}
			if p.Value > hi {
				hi = p.Value
			}
		}
		if hi-lo <= threshold {
			result.Stable = append(result.Stable, newRun(RunStable, points, i, i+windowSize-1))
		}
	}

	return result
}

func newRun(kind RunKind, points []TrendPoint, start, end int) TrendRun {
	values := make([]int, 0, end-start+1)
	for _, p := range points[start : end+1] {
		values = append(values, p.Value)
	}
	return TrendRun{
		Kind:       kind,
		StartIndex: start,
		EndIndex:   end,
		StartDate:  points[start].Date,
		EndDate:    points[end].Date,
		Values:     values,
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
