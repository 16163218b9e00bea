package analysis

import (
	"context"
	"sort"
	"strings"
	"time"

	"thai-lotto-bot/internal/database"
)

const (
	minPatternLength = 2
	maxPatternLength = 5
)

// RecurringPattern 在回看窗口内重复出现的连续号码序列（按时间正序）
type RecurringPattern struct {
	Key         string      `json:"pattern"`
	Values      []string    `json:"values"`
	Length      int         `json:"length"`
	Occurrences int         `json:"occurrences"`
	FirstIndex  int         `json:"first_index"`
	Indices     []int       `json:"indices"`
	Dates       []time.Time `json:"dates"`
}

// Last 序列最后一个号码
func (p *RecurringPattern) Last() string {
	return p.Values[len(p.Values)-1]
}

// FindRecurringPatterns 查找最近 lookback 期内重复出现的号码序列
func (a *Analyzer) FindRecurringPatterns(ctx context.Context, field database.DigitType, lookback int) ([]RecurringPattern, error) {
	return a.FindRecurringPatternsIn(ctx, field, database.DrawFilter{Limit: lookback})
}

// FindRecurringPatternsIn 同上，filter.Limit 为回看期数
func (a *Analyzer) FindRecurringPatternsIn(ctx context.Context, field database.DigitType, filter database.DrawFilter) ([]RecurringPattern, error) {
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
	patterns := detectPatterns(series, dates)

	a.record(ctx, "patterns", filterParams(field, filter), map[string]interface{}{
		"draws":    len(series),
		"patterns": len(patterns),
	})
	return patterns, nil
}

// detectPatterns 候选窗口起点 j >= i+k，与锚点窗口不重叠；出现次数为命中起点的去重集合大小
func detectPatterns(values []string, dates []time.Time) []RecurringPattern {
	n := len(values)
	maxK := n / 2
	if maxK > maxPatternLength {
		maxK = maxPatternLength
	}

	found := make(map[string]map[int]struct{})
	lengths := make(map[string]int)

	for k := minPatternLength; k <= maxK; k++ {
		keys := make([]string, n-k+1)
		for i := range keys {
			keys[i] = strings.Join(values[i:i+k], "-")
		}

		for i := 0; i < len(keys); i++ {
			for j := i + k; j < len(keys); j++ {
				if keys[j] != keys[i] {
					continue
				}
				starts, ok := found[keys[i]]
				if !ok {
					starts = make(map[int]struct{})
					found[keys[i]] = starts
					lengths[keys[i]] = k
				}
				starts[i] = struct{}{}
				starts[j] = struct{}{}
			}
		}
	}

	patterns := make([]RecurringPattern, 0, len(found))
	for key, starts := range found {
		k := lengths[key]
		indices := make([]int, 0, len(starts))
		for idx := range starts {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		occurrenceDates := make([]time.Time, len(indices))
		for i, idx := range indices {
			occurrenceDates[i] = dates[idx]
		}

		first := indices[0]
		patterns = append(patterns, RecurringPattern{
			Key:         key,
			Values:      append([]string(nil), values[first:first+k]...),
			Length:      k,
			Occurrences: len(indices),
			FirstIndex:  first,
			Indices:     indices,
			Dates:       occurrenceDates,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		pi, pj := patterns[i], patterns[j]
		if pi.Occurrences != pj.Occurrences {
			return pi.Occurrences > pj.Occurrences
		}
		if pi.Length != pj.Length {
			return pi.Length > pj.Length
		}
		if pi.FirstIndex != pj.FirstIndex {
			return pi.FirstIndex < pj.FirstIndex
		}
		return pi.Key < pj.Key
	})
	return patterns
}

func clampLookback(lookback int) (int, error) {
	if lookback < 1 {
		return 0, ValidationError("lookback must be positive, got %d", lookback)
	}
	if lookback > MaxLookback {
		return MaxLookback, nil
	}
	return lookback, nil
}

// chronological 将倒序结果转换为时间正序
func chronological(values []string, records []database.DrawRecord) ([]string, []time.Time) {
	n := len(values)
	series := make([]string, n)
	dates := make([]time.Time, n)
	for i := 0; i < n; i++ {
		series[n-1-i] = values[i]
		dates[n-1-i] = records[i].DrawDate
	}
	return series, dates
}
