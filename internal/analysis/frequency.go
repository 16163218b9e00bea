package analysis

import (
	"context"
	"sort"
	"strings"

	"thai-lotto-bot/internal/database"
)

// FrequencyEntry 单个号码的出现次数
type FrequencyEntry struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// FrequencyDistribution 号码频率分布，按次数降序，次数相同按号码升序
type FrequencyDistribution struct {
	Field      database.DigitType `json:"field"`
	Entries    []FrequencyEntry   `json:"entries"`
	TotalCount int                `json:"total_count"`
}

// Top 前 n 项
func (d *FrequencyDistribution) Top(n int) []FrequencyEntry {
	if n <= 0 || n >= len(d.Entries) {
		return d.Entries
	}
	return d.Entries[:n]
}

// PositionFrequency 按位统计 0-9 出现次数，每位独立计算百分比
type PositionFrequency struct {
	Field       database.DigitType `json:"field"`
	Width       int                `json:"width"`
	TotalCount  int                `json:"total_count"`
	Counts      [][10]int          `json:"counts"`
	Percentages [][10]float64      `json:"percentages"`
}

// ComputeFrequency 统计筛选范围内号码的出现频率
func (a *Analyzer) ComputeFrequency(ctx context.Context, field database.DigitType, filter database.DrawFilter) (*FrequencyDistribution, error) {
	values, _, err := a.values(ctx, field, filter)
	if err != nil {
		return nil, err
	}

	dist := frequencyOf(field, values)
	a.record(ctx, "frequency", filterParams(field, filter), map[string]interface{}{
		"total_count": dist.TotalCount,
		"top":         dist.Top(10),
	})
	return dist, nil
}

// ComputePositionFrequency 统计每一位上各数字的出现频率
func (a *Analyzer) ComputePositionFrequency(ctx context.Context, field database.DigitType, filter database.DrawFilter) (*PositionFrequency, error) {
	values, _, err := a.values(ctx, field, filter)
	if err != nil {
		return nil, err
	}

	pf := positionFrequencyOf(field, values)
	a.record(ctx, "position_frequency", filterParams(field, filter), map[string]interface{}{
		"total_count": pf.TotalCount,
		"counts":      pf.Counts,
	})
	return pf, nil
}

func frequencyOf(field database.DigitType, values []string) *FrequencyDistribution {
	return &FrequencyDistribution{
		Field:      field,
		Entries:    countEntries(values, len(values)),
		TotalCount: len(values),
	}
}

// countEntries 分组计数，百分比以 denominator 为分母
func countEntries(values []string, denominator int) []FrequencyEntry {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}

	entries := make([]FrequencyEntry, 0, len(counts))
	for v, c := range counts {
		entries = append(entries, FrequencyEntry{
			Value:      v,
			Count:      c,
			Percentage: Percent(c, denominator),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Value < entries[j].Value
	})
	return entries
}

func positionFrequencyOf(field database.DigitType, values []string) *PositionFrequency {
	width := field.Width()
	pf := &PositionFrequency{
		Field:       field,
		Width:       width,
		Counts:      make([][10]int, width),
		Percentages: make([][10]float64, width),
	}

	for _, raw := range values {
		v := padLeft(strings.TrimSpace(raw), width)
		if len(v) != width || !isDigits(v) {
			continue
		}
		for pos := 0; pos < width; pos++ {
			pf.Counts[pos][v[pos]-'0']++
		}
		pf.TotalCount++
	}

	for pos := 0; pos < width; pos++ {
		for digit := 0; digit < 10; digit++ {
			pf.Percentages[pos][digit] = Percent(pf.Counts[pos][digit], pf.TotalCount)
		}
	}
	return pf
}

func padLeft(v string, width int) string {
	if len(v) >= width {
		return v
	}
	return strings.Repeat("0", width-len(v)) + v
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
