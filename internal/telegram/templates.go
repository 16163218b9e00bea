package telegram

import (
	"fmt"
	"strings"
	"time"

	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/predictor"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	historyDisplayCount    = 10
	predictionDisplayCount = 10
	broadcastDisplayCount  = 5
)

// digitTypeLabel 号码类型的显示名称
func digitTypeLabel(dt database.DigitType) string {
	switch dt {
	case database.DigitFirstPrizeLast3:
		return "First Prize (last 3)"
	case database.DigitThreeFront:
		return "Three Front"
	case database.DigitThreeBack:
		return "Three Back"
	case database.DigitLast2:
		return "Last 2"
	}
	return string(dt)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

// formatLatestDrawMessage 格式化最新开奖消息
func (b *Bot) formatLatestDrawMessage(draw *database.DrawRecord) string {
	var builder strings.Builder

	builder.WriteString("📊 *Latest Draw*\n\n")
	if draw == nil {
		builder.WriteString("No draw records")
		return builder.String()
	}

	builder.WriteString(fmt.Sprintf("Date: `%s` (%s)\n", database.FormatDate(draw.DrawDate), draw.DrawDate.Weekday()))
	builder.WriteString(fmt.Sprintf("First Prize: `%s`\n", orDash(draw.FirstPrize)))
	for _, dt := range database.AllDigitTypes {
		builder.WriteString(fmt.Sprintf("%s: `%s`\n", digitTypeLabel(dt), orDash(draw.Value(dt))))
	}

	next := database.NextDrawDate(draw.DrawDate)
	builder.WriteString(fmt.Sprintf("\n⏰ Next draw: `%s`", database.FormatDate(next)))
	if !draw.UpdatedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("\n🕒 Updated %s", humanize.Time(draw.UpdatedAt)))
	}

	return builder.String()
}

// formatHistoryMessage 格式化历史开奖消息，最新的在最下面
func (b *Bot) formatHistoryMessage(draws []database.DrawRecord) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("📊 *Recent %d Draws*\n\n", historyDisplayCount))

	if len(draws) == 0 {
		builder.WriteString("No draw records")
		return builder.String()
	}

	displayCount := len(draws)
	if displayCount > historyDisplayCount {
		displayCount = historyDisplayCount
	}

	for i := displayCount - 1; i >= 0; i-- {
		d := draws[i]
		builder.WriteString(fmt.Sprintf("`%s` First `%s` | F3 `%s` | B3 `%s` | L2 `%s`\n",
			database.FormatDate(d.DrawDate), orDash(d.FirstPrize), orDash(d.ThreeFront),
			orDash(d.ThreeBack), orDash(d.Last2)))
	}

	return builder.String()
}

// formatPredictionMessage 格式化预测列表
func (b *Bot) formatPredictionMessage(dt database.DigitType, predictions []database.Prediction) string {
	var builder strings.Builder

	if len(predictions) == 0 {
		builder.WriteString(fmt.Sprintf("🔮 *%s*\n\nNo prediction data", digitTypeLabel(dt)))
		return builder.String()
	}

	first := predictions[0]
	builder.WriteString(fmt.Sprintf("🔮 *%s* for `%s`\n", digitTypeLabel(dt), database.FormatDate(first.TargetDate)))
	builder.WriteString(fmt.Sprintf("Method: `%s`\n\n", first.Method))

	for i, p := range predictions {
		if i >= predictionDisplayCount {
			break
		}
		builder.WriteString(fmt.Sprintf("%s `%s` %.2f%%", humanize.Ordinal(p.Rank), p.PredictedValue, p.Confidence))
		if p.WasCorrect != nil {
			if *p.WasCorrect {
				builder.WriteString(" ✅")
			} else {
				builder.WriteString(" ❌")
			}
		}
		builder.WriteString("\n")
	}

	builder.WriteString("\n💡 *Tips*: Predictions are for reference only, please be rational")
	return builder.String()
}

// formatAccuracyMessage 格式化准确率统计消息
func (b *Bot) formatAccuracyMessage(h *predictor.AccuracyHistory) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("📊 *Prediction Accuracy* (%s)\n\n", h.Period))

	builder.WriteString("🎯 *Overall Performance*\n")
	builder.WriteString(fmt.Sprintf("Evaluations: `%s`\n", humanize.Comma(int64(len(h.Records)))))
	builder.WriteString(fmt.Sprintf("Total Predictions: `%s`\n", humanize.Comma(int64(h.TotalPredictions))))
	builder.WriteString(fmt.Sprintf("Correct Predictions: `%s`\n", humanize.Comma(int64(h.CorrectPredictions))))
	builder.WriteString(fmt.Sprintf("Overall Accuracy: `%.2f%%`\n\n", h.Percentage))

	builder.WriteString(fmt.Sprintf("📈 *Trend*: %s\n", trendLabel(h.TrendDirection)))
	builder.WriteString(fmt.Sprintf("🏆 *Performance Rating*: %s\n\n", b.calculatePerformanceRating(h.Percentage)))

	builder.WriteString("💡 *Note*: Statistics are based on evaluated draws")
	return builder.String()
}

func trendLabel(direction string) string {
	switch direction {
	case predictor.TrendImproving:
		return "⬆️ Improving"
	case predictor.TrendDeclining:
		return "⬇️ Declining"
	case predictor.TrendStable:
		return "➡️ Stable"
	}
	return "Not enough data"
}

// formatNewPredictionBroadcast 格式化开奖与新预测广播消息
func (b *Bot) formatNewPredictionBroadcast(draw *database.DrawRecord, results []*predictor.PredictionResult) string {
	var builder strings.Builder

	builder.WriteString("🚨 *New Draw Prediction Push*\n\n")

	if draw != nil {
		builder.WriteString(fmt.Sprintf("📊 *Result of %s*\n", database.FormatDate(draw.DrawDate)))
		builder.WriteString(fmt.Sprintf("First Prize: `%s`\n", orDash(draw.FirstPrize)))
		builder.WriteString(fmt.Sprintf("Last 2: `%s`\n\n", orDash(draw.Last2)))
	}

	for _, r := range preferredResults(results) {
		builder.WriteString(fmt.Sprintf("🔮 *%s* for `%s`\n", digitTypeLabel(r.DigitType), database.FormatDate(r.TargetDate)))
		if len(r.Predictions) == 0 {
			builder.WriteString("No prediction data\n\n")
			continue
		}
		values := make([]string, 0, broadcastDisplayCount)
		for i, p := range r.Predictions {
			if i >= broadcastDisplayCount {
				break
			}
			values = append(values, "`"+p.PredictedValue+"`")
		}
		builder.WriteString(strings.Join(values, " ") + "\n\n")
	}

	builder.WriteString("💡 Send /predict for details")
	return builder.String()
}

// preferredResults 每个号码类型取一个结果：学习结果生效时优先，按类型固定顺序
func preferredResults(results []*predictor.PredictionResult) []*predictor.PredictionResult {
	byType := make(map[database.DigitType]*predictor.PredictionResult)
	for _, r := range results {
		current, ok := byType[r.DigitType]
		if !ok || (r.LearningApplied && !current.LearningApplied) {
			byType[r.DigitType] = r
		}
	}

	var out []*predictor.PredictionResult
	for _, dt := range database.AllDigitTypes {
		if r, ok := byType[dt]; ok {
			out = append(out, r)
		}
	}
	return out
}

// calculatePerformanceRating 计算性能评级
func (b *Bot) calculatePerformanceRating(accuracy float64) string {
	switch {
	case accuracy >= 20:
		return "🏆 Excellent (≥20%)"
	case accuracy >= 10:
		return "🥇 Great (≥10%)"
	case accuracy >= 5:
		return "🥈 Good (≥5%)"
	case accuracy > 0:
		return "🥉 Fair (>0%)"
	default:
		return "📚 No hits yet"
	}
}

// formatErrorMessage 格式化错误消息
func (b *Bot) formatErrorMessage(action string, now time.Time) string {
	return fmt.Sprintf("❌ Failed to %s, please try again later.\n`%s`", action, now.Format("2006-01-02 15:04:05"))
}

// CreateInlineKeyboard 创建内联键盘
func (b *Bot) CreateInlineKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔮 Predictions", "view_predict"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Latest Draw", "refresh_latest"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📜 History", "view_history"),
			tgbotapi.NewInlineKeyboardButtonData("🎯 Accuracy", "view_accuracy"),
		),
	)
}
