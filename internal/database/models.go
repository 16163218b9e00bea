package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout 开奖日期格式 (ISO)
const DateLayout = "2006-01-02"

const timestampLayout = "2006-01-02 15:04:05"

// ErrInvalidDigitType 非法的号码类型
var ErrInvalidDigitType = errors.New("invalid digit type")

// DigitType 预测目标字段
type DigitType string

const (
	DigitFirstPrizeLast3 DigitType = "first_prize_last3"
	DigitThreeFront      DigitType = "three_front"
	DigitThreeBack       DigitType = "three_back"
	DigitLast2           DigitType = "last2"
)

// AllDigitTypes 全部合法的号码类型
var AllDigitTypes = []DigitType{DigitFirstPrizeLast3, DigitThreeFront, DigitThreeBack, DigitLast2}

// ParseDigitType 解析号码类型，非法值直接报错而不是回落到默认值
func ParseDigitType(s string) (DigitType, error) {
	dt := DigitType(strings.TrimSpace(s))
	if !dt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDigitType, s)
	}
	return dt, nil
}

// Valid 是否为合法类型
func (d DigitType) Valid() bool {
	switch d {
	case DigitFirstPrizeLast3, DigitThreeFront, DigitThreeBack, DigitLast2:
		return true
	}
	return false
}

// Width 字段固定位数
func (d DigitType) Width() int {
	if d == DigitLast2 {
		return 2
	}
	return 3
}

// DrawRecord 开奖数据模型，每月1日和16日各一期
type DrawRecord struct {
	ID              int64     `json:"id"`
	DrawDate        time.Time `json:"draw_date"`
	DayOfWeek       string    `json:"day_of_week" validate:"required,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	FirstPrize      string    `json:"first_prize,omitempty" validate:"omitempty,number,len=6"`
	FirstPrizeLast3 string    `json:"first_prize_last3,omitempty" validate:"omitempty,number,len=3"`
	ThreeFront      string    `json:"three_front,omitempty" validate:"omitempty,number,len=3"`
	ThreeBack       string    `json:"three_back,omitempty" validate:"omitempty,number,len=3"`
	Last2           string    `json:"last2,omitempty" validate:"omitempty,number,len=2"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

var recordValidator = validator.New()

// NewDrawRecord 创建并校验开奖记录；空字段表示未公布，号码左侧补零到固定位数
func NewDrawRecord(drawDate time.Time, firstPrize, threeFront, threeBack, last2 string) (*DrawRecord, error) {
	if drawDate.IsZero() {
		return nil, fmt.Errorf("draw date is required")
	}
	date := TruncateDate(drawDate)

	record := &DrawRecord{
		DrawDate:   date,
		DayOfWeek:  WeekdayName(date.Weekday()),
		FirstPrize: padDigits(firstPrize, 6),
		ThreeFront: padDigits(threeFront, 3),
		ThreeBack:  padDigits(threeBack, 3),
		Last2:      padDigits(last2, 2),
	}
	if len(record.FirstPrize) == 6 {
		record.FirstPrizeLast3 = record.FirstPrize[3:]
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// Validate 校验号码格式
func (r *DrawRecord) Validate() error {
	if err := recordValidator.Struct(r); err != nil {
		return fmt.Errorf("invalid draw record %s: %w", FormatDate(r.DrawDate), err)
	}
	return nil
}

// Value 获取指定类型的号码，未公布时返回空串
func (r *DrawRecord) Value(dt DigitType) string {
	switch dt {
	case DigitFirstPrizeLast3:
		return r.FirstPrizeLast3
	case DigitThreeFront:
		return r.ThreeFront
	case DigitThreeBack:
		return r.ThreeBack
	case DigitLast2:
		return r.Last2
	}
	return ""
}

// DrawFilter 开奖记录筛选条件，零值表示该维度不限制
type DrawFilter struct {
	From       time.Time     `json:"from,omitempty"`
	To         time.Time     `json:"to,omitempty"`
	Weekday    *time.Weekday `json:"weekday,omitempty"`
	DayOfMonth int           `json:"day_of_month,omitempty"`
	Month      int           `json:"month,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

// OnWeekday 返回限定星期的筛选条件副本
func (f DrawFilter) OnWeekday(w time.Weekday) DrawFilter {
	f.Weekday = &w
	return f
}

// Matches 判断记录是否满足筛选条件（不含 Limit）
func (f DrawFilter) Matches(r *DrawRecord) bool {
	date := TruncateDate(r.DrawDate)
	if !f.From.IsZero() && date.Before(TruncateDate(f.From)) {
		return false
	}
	if !f.To.IsZero() && date.After(TruncateDate(f.To)) {
		return false
	}
	if f.Weekday != nil && date.Weekday() != *f.Weekday {
		return false
	}
	if f.DayOfMonth != 0 && date.Day() != f.DayOfMonth {
		return false
	}
	if f.Month != 0 && int(date.Month()) != f.Month {
		return false
	}
	return true
}

// Prediction 预测记录模型
type Prediction struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id"`
	DigitType      DigitType `json:"digit_type"`
	TargetDate     time.Time `json:"target_date"`
	PredictedValue string    `json:"predicted_value"`
	Confidence     float64   `json:"confidence"`
	Rank           int       `json:"rank"`
	Method         string    `json:"method"`
	WasCorrect     *bool     `json:"was_correct"`
	CreatedAt      time.Time `json:"created_at"`
}

// AccuracyRecord 准确率记录，只追加
type AccuracyRecord struct {
	ID                 int64     `json:"id"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
	Method             string    `json:"prediction_method"`
	TotalPredictions   int       `json:"total_predictions"`
	CorrectPredictions int       `json:"correct_predictions"`
	AccuracyPercentage float64   `json:"accuracy_percentage"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}

// AnalysisHistory 分析审计日志，参数与结果摘要为JSON
type AnalysisHistory struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	CalculationType string    `json:"calculation_type"`
	Parameters      string    `json:"parameters"`
	ResultSummary   string    `json:"result_summary"`
	CreatedAt       time.Time `json:"created_at"`
}

// APIResponse 开奖接口响应模型
type APIResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    []APIDrawData `json:"data"`
}

// APIDrawData 接口返回的单期开奖数据
type APIDrawData struct {
	Date       string `json:"date"`
	FirstPrize string `json:"first_prize"`
	ThreeFront string `json:"three_front"`
	ThreeBack  string `json:"three_back"`
	Last2      string `json:"last2"`
}

// ParseDate 解析ISO日期
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate 格式化为ISO日期
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// TruncateDate 去掉时分秒，保留日历日期 (UTC)
func TruncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekdayName 星期名称（小写英文）
func WeekdayName(w time.Weekday) string {
	return strings.ToLower(w.String())
}

// NextDrawDate 下一个开奖日（每月1日、16日），严格晚于 after
func NextDrawDate(after time.Time) time.Time {
	d := TruncateDate(after)
	if d.Day() < 16 {
		return time.Date(d.Year(), d.Month(), 16, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(d.Year(), d.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// padDigits 去空格并左侧补零
func padDigits(value string, width int) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) >= width {
		return value
	}
	return strings.Repeat("0", width-len(value)) + value
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
