package analysis

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Percent round(100*count/total, 2)，total 为 0 时返回 0
func Percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	f, _ := decimal.NewFromInt(int64(count)).Mul(hundred).
		DivRound(decimal.NewFromInt(int64(total)), 2).Float64()
	return f
}

// Round2 四舍五入（远离零）到两位小数
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Confidence 将累计得分换算为 0-100 的置信度
func Confidence(score float64) float64 {
	c, _ := decimal.NewFromFloat(score).Mul(hundred).Round(2).Float64()
	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}
