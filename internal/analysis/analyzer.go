package analysis

import (
	"context"

	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/logger"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxLookback 模式/趋势分析的最大回看期数
const MaxLookback = 200

// DrawSource 开奖记录的只读来源，按日期倒序返回字段非空的记录
type DrawSource interface {
	QueryDraws(ctx context.Context, field database.DigitType, filter database.DrawFilter) ([]database.DrawRecord, error)
}

// HistoryRecorder 分析审计日志
type HistoryRecorder interface {
	InsertAnalysisHistory(ctx context.Context, entry *database.AnalysisHistory) error
}

// Analyzer 频率、号码对、模式与趋势分析
type Analyzer struct {
	source  DrawSource
	history HistoryRecorder
	log     *logrus.Entry
}

// NewAnalyzer 创建分析器，history 为 nil 时不写审计日志
func NewAnalyzer(source DrawSource, history HistoryRecorder) *Analyzer {
	return &Analyzer{
		source:  source,
		history: history,
		log:     logger.WithComponent("analysis"),
	}
}

// values 查询字段值（倒序）以及对应的开奖日期
func (a *Analyzer) values(ctx context.Context, field database.DigitType, filter database.DrawFilter) ([]string, []database.DrawRecord, error) {
	if err := ValidateField(field); err != nil {
		return nil, nil, err
	}

	records, err := a.source.QueryDraws(ctx, field, filter)
	if err != nil {
		return nil, nil, err
	}

	values := make([]string, 0, len(records))
	kept := make([]database.DrawRecord, 0, len(records))
	for _, r := range records {
		v := r.Value(field)
		if v == "" {
			continue
		}
		values = append(values, v)
		kept = append(kept, r)
	}
	return values, kept, nil
}

// record 写入审计日志，失败只记录警告
func (a *Analyzer) record(ctx context.Context, calculation string, params, summary interface{}) {
	if a.history == nil {
		return
	}

	paramsJSON, err := json.MarshalToString(params)
	if err != nil {
		a.log.WithError(err).Warn("Failed to encode analysis parameters")
		return
	}
	summaryJSON, err := json.MarshalToString(summary)
	if err != nil {
		a.log.WithError(err).Warn("Failed to encode analysis summary")
		return
	}

	entry := &database.AnalysisHistory{
		RunID:           uuid.NewString(),
		CalculationType: calculation,
		Parameters:      paramsJSON,
		ResultSummary:   summaryJSON,
	}
	if err := a.history.InsertAnalysisHistory(ctx, entry); err != nil {
		a.log.WithError(err).WithField("calculation", calculation).Warn("Failed to record analysis history")
	}
}

// filterParams 审计日志中的筛选参数
func filterParams(field database.DigitType, filter database.DrawFilter) map[string]interface{} {
	params := map[string]interface{}{"field": field}
	if !filter.From.IsZero() {
		params["from"] = database.FormatDate(filter.From)
	}
	if !filter.To.IsZero() {
		params["to"] = database.FormatDate(filter.To)
	}
	if filter.Weekday != nil {
		params["day_of_week"] = database.WeekdayName(*filter.Weekday)
	}
	if filter.DayOfMonth != 0 {
		params["day_of_month"] = filter.DayOfMonth
	}
	if filter.Month != 0 {
		params["month"] = filter.Month
	}
	if filter.Limit != 0 {
		params["limit"] = filter.Limit
	}
	return params
}
