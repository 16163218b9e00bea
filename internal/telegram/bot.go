package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"thai-lotto-bot/internal/config"
	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/logger"
	"thai-lotto-bot/internal/predictor"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const requestTimeout = 30 * time.Second

// DrawReader 开奖数据读取，一般是缓存
type DrawReader interface {
	LatestDraw(ctx context.Context) (*database.DrawRecord, error)
	QueryDraws(ctx context.Context, field database.DigitType, filter database.DrawFilter) ([]database.DrawRecord, error)
}

// PredictionReader 预测读取
type PredictionReader interface {
	GetUpcomingPredictions(ctx context.Context, digitType database.DigitType, method string) ([]database.Prediction, error)
}

// AccuracyReader 准确率汇总
type AccuracyReader interface {
	GetAccuracyHistory(ctx context.Context, period string) (*predictor.AccuracyHistory, error)
}

// Bot Telegram机器人
type Bot struct {
	api           *tgbotapi.BotAPI
	draws         DrawReader
	predictions   PredictionReader
	accuracy      AccuracyReader
	chatIDs       []int64
	updateChannel tgbotapi.UpdatesChannel
	stopChannel   chan struct{}
	log           *logrus.Entry
}

// NewBot 创建新的Telegram机器人
func NewBot(cfg *config.Telegram, draws DrawReader, predictions PredictionReader, accuracy AccuracyReader) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	api.Debug = false
	log := logger.WithComponent("telegram")
	log.Infof("Telegram bot authorized on account: %s", api.Self.UserName)

	// 配置更新
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(cfg.Timeout.Seconds())

	return &Bot{
		api:           api,
		draws:         draws,
		predictions:   predictions,
		accuracy:      accuracy,
		chatIDs:       cfg.ChatIDs,
		updateChannel: api.GetUpdatesChan(u),
		stopChannel:   make(chan struct{}),
		log:           log,
	}, nil
}

// Start 启动机器人
func (b *Bot) Start() {
	b.log.Info("Starting Telegram bot...")
	go b.handleUpdates()
}

// Stop 停止机器人
func (b *Bot) Stop() {
	b.log.Info("Stopping Telegram bot...")
	close(b.stopChannel)
	b.api.StopReceivingUpdates()
	b.log.Info("Telegram bot stopped")
}

// handleUpdates 处理更新
func (b *Bot) handleUpdates() {
	for {
		select {
		case update := <-b.updateChannel:
			if update.Message != nil {
				// 只处理私聊消息，忽略群组消息
				if update.Message.Chat.IsPrivate() && update.Message.IsCommand() {
					go b.handleCommand(update.Message)
				}
			} else if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
				if update.CallbackQuery.Message.Chat.IsPrivate() {
					go b.handleCallbackQuery(update.CallbackQuery)
				}
			}
		case <-b.stopChannel:
			return
		}
	}
}

// handleCommand 处理命令
func (b *Bot) handleCommand(message *tgbotapi.Message) {
	command := message.Command()
	args := strings.TrimSpace(message.CommandArguments())
	chatID := message.Chat.ID

	b.log.Debugf("Received private command: %s from user: %d", command, chatID)

	switch command {
	case "start", "help":
		b.handleHelpCommand(chatID)
	case "latest":
		b.handleLatestCommand(chatID)
	case "history":
		b.handleHistoryCommand(chatID)
	case "predict":
		b.handlePredictCommand(chatID, args)
	case "accuracy":
		b.handleAccuracyCommand(chatID, args)
	default:
		b.sendMessage(chatID, "Unknown command. Type /help to view available commands.")
	}
}

// handleHelpCommand 处理帮助命令
func (b *Bot) handleHelpCommand(chatID int64) {
	helpText := `📖 *Thai Lottery Statistics Bot*

/latest - Latest draw result
/history - Recent 10 draws
/predict [type] - Predictions for the next draw
/accuracy [period] - Prediction accuracy

Types: ` + "`first_prize_last3` `three_front` `three_back` `last2`" + `
Periods: ` + "`weekly` `monthly` `yearly` `all`" + `

💡 Predictions are statistical heuristics, for reference only.`

	msg := tgbotapi.NewMessage(chatID, helpText)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = b.CreateInlineKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		b.log.Errorf("Failed to send message to user %d: %v", chatID, err)
	}
}

// handleLatestCommand 处理最新命令
func (b *Bot) handleLatestCommand(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	draw, err := b.draws.LatestDraw(ctx)
	if err != nil {
		b.log.Errorf("Failed to get latest draw: %v", err)
		b.sendMessage(chatID, b.formatErrorMessage("get the latest draw", time.Now()))
		return
	}
	b.sendMessage(chatID, b.formatLatestDrawMessage(draw))
}

// handleHistoryCommand 处理历史命令
func (b *Bot) handleHistoryCommand(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	draws, err := b.draws.QueryDraws(ctx, "", database.DrawFilter{Limit: historyDisplayCount})
	if err != nil {
		b.log.Errorf("Failed to get draw history: %v", err)
		b.sendMessage(chatID, b.formatErrorMessage("get history records", time.Now()))
		return
	}
	b.sendMessage(chatID, b.formatHistoryMessage(draws))
}

// handlePredictCommand 处理预测命令，学习预测不存在时回退到统计预测
func (b *Bot) handlePredictCommand(chatID int64, args string) {
	dt := database.DigitLast2
	if args != "" {
		parsed, err := database.ParseDigitType(args)
		if err != nil {
			b.sendMessage(chatID, "Unknown type. Use one of: first_prize_last3, three_front, three_back, last2")
			return
		}
		dt = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var predictions []database.Prediction
	for _, method := range []string{predictor.NameLearning, predictor.NameStatistical} {
		p, err := b.predictions.GetUpcomingPredictions(ctx, dt, method)
		if err != nil {
			b.log.Errorf("Failed to get predictions: %v", err)
			b.sendMessage(chatID, b.formatErrorMessage("get predictions", time.Now()))
			return
		}
		if len(p) > 0 {
			predictions = p
			break
		}
	}
	b.sendMessage(chatID, b.formatPredictionMessage(dt, predictions))
}

// handleAccuracyCommand 处理准确率命令
func (b *Bot) handleAccuracyCommand(chatID int64, args string) {
	period := predictor.PeriodMonthly
	if args != "" {
		period = strings.ToLower(args)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	history, err := b.accuracy.GetAccuracyHistory(ctx, period)
	if err != nil {
		b.log.Errorf("Failed to get accuracy history: %v", err)
		b.sendMessage(chatID, b.formatErrorMessage("get accuracy statistics", time.Now()))
		return
	}
	b.sendMessage(chatID, b.formatAccuracyMessage(history))
}

// handleCallbackQuery 处理回调查询
func (b *Bot) handleCallbackQuery(callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	b.log.Debugf("Received private callback: %s from user: %d", callback.Data, chatID)

	switch callback.Data {
	case "refresh_latest":
		b.handleLatestCommand(chatID)
	case "view_history":
		b.handleHistoryCommand(chatID)
	case "view_predict":
		b.handlePredictCommand(chatID, "")
	case "view_accuracy":
		b.handleAccuracyCommand(chatID, "")
	}

	// 应答回调查询
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Debugf("Failed to answer callback: %v", err)
	}
}

// sendMessage 发送消息
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(msg); err != nil {
		b.log.Errorf("Failed to send message to chat %d: %v", chatID, err)
	}
}

// BroadcastPredictions 向配置的订阅会话广播新开奖与预测
func (b *Bot) BroadcastPredictions(_ context.Context, draw *database.DrawRecord, results []*predictor.PredictionResult) error {
	if len(b.chatIDs) == 0 {
		return nil
	}

	message := b.formatNewPredictionBroadcast(draw, results)
	for _, chatID := range b.chatIDs {
		b.sendMessage(chatID, message)
	}

	b.log.Infof("Broadcasted new predictions to %d chats", len(b.chatIDs))
	return nil
}

// GetBotInfo 获取机器人信息
func (b *Bot) GetBotInfo() map[string]interface{} {
	return map[string]interface{}{
		"username":   b.api.Self.UserName,
		"id":         b.api.Self.ID,
		"first_name": b.api.Self.FirstName,
		"is_bot":     b.api.Self.IsBot,
		"chats":      len(b.chatIDs),
	}
}
