package analysis

import (
	"context"
	"strings"

	"thai-lotto-bot/internal/database"
)

// PairFrequency 相邻两位号码对的出现次数；百分比以记录数为分母，总和可能超过100
type PairFrequency struct {
	Field        database.DigitType `json:"field"`
	Pairs        []FrequencyEntry   `json:"pairs"`
	TotalRecords int                `json:"total_records"`
}

// Lookup 号码对的统计项
func (p *PairFrequency) Lookup(pair string) (FrequencyEntry, bool) {
	for _, e := range p.Pairs {
		if e.Value == pair {
			return e, true
		}
	}
	return FrequencyEntry{}, false
}

// ComputePairFrequency 统计相邻两位号码对
func (a *Analyzer) ComputePairFrequency(ctx context.Context, field database.DigitType, filter database.DrawFilter) (*PairFrequency, error) {
	values, _, err := a.values(ctx, field, filter)
	if err != nil {
		return nil, err
	}

	pf := pairFrequencyOf(field, values)
	a.record(ctx, "pair_frequency", filterParams(field, filter), map[string]interface{}{
		"total_records": pf.TotalRecords,
		"distinct":      len(pf.Pairs),
	})
	return pf, nil
}

func pairFrequencyOf(field database.DigitType, values []string) *PairFrequency {
	var pairs []string
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		for i := 0; i+2 <= len(v); i++ {
			pairs = append(pairs, v[i:i+2])
		}
	}

	return &PairFrequency{
		Field:        field,
		Pairs:        countEntries(pairs, len(values)),
		TotalRecords: len(values),
	}
}
