package predictor

// Method 子分析方法，同时作为权重表和审计摘要的键
type Method string

const (
	MethodDayOfWeek Method = "day_of_week"
	MethodDate      Method = "date"
	MethodMonth     Method = "month"
	MethodCombined  Method = "combined"
	MethodPatterns  Method = "patterns"
	MethodPairs     Method = "pairs"
	MethodPosition  Method = "position"
	MethodTrend     Method = "trend"
)

// methodOrder 合并得分时的固定顺序
var methodOrder = []Method{
	MethodDayOfWeek,
	MethodDate,
	MethodMonth,
	MethodCombined,
	MethodPatterns,
	MethodPairs,
	MethodPosition,
	MethodTrend,
}

// 样本门槛与取数范围
const (
	minWeekdaySamples  = 10
	minDateSamples     = 10
	minMonthSamples    = 5
	minCombinedSamples = 3

	frequencyTopN    = 10
	patternLookback  = 50
	patternTopN      = 5
	pairLookback     = 100
	positionLookback = 100
	trendLookback    = 20
	trendFullLength  = 5

	maxPredictions = 20
)

// Weights 每个方法对候选号码得分的贡献系数；不是概率分布
type Weights map[Method]float64

// DefaultWeights 默认权重表
func DefaultWeights() Weights {
	return Weights{
		MethodDayOfWeek: 0.15,
		MethodDate:      0.10,
		MethodMonth:     0.10,
		MethodCombined:  0.25,
		MethodPatterns:  0.15,
		MethodPairs:     0.15,
		MethodPosition:  0.05,
		MethodTrend:     0.05,
	}
}

// Normalize 归一化到总和为1，总和为0时原样返回副本
func (w Weights) Normalize() Weights {
	total := 0.0
	for _, m := range methodOrder {
		total += w[m]
	}

	out := make(Weights, len(w))
	for _, m := range methodOrder {
		if total == 0 {
			out[m] = w[m]
			continue
		}
		out[m] = w[m] / total
	}
	return out
}

// MethodUsage 子分析是否参与了打分以及样本数
type MethodUsage struct {
	Used    bool `json:"used"`
	Samples int  `json:"samples"`
}
