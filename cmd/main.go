package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"thai-lotto-bot/internal/analysis"
	"thai-lotto-bot/internal/api"
	"thai-lotto-bot/internal/cache"
	"thai-lotto-bot/internal/config"
	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/logger"
	"thai-lotto-bot/internal/metrics"
	"thai-lotto-bot/internal/predictor"
	"thai-lotto-bot/internal/scheduler"
	"thai-lotto-bot/internal/telegram"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// App 应用程序主结构
type App struct {
	config       *config.Config
	db           *database.DB
	cacheManager *cache.CacheManager
	apiClient    *api.Client
	aggregator   *predictor.Aggregator
	predictorMgr *predictor.Manager
	evaluator    *predictor.Evaluator
	scheduler    *scheduler.Scheduler
	telegramBot  *telegram.Bot
	httpServer   *http.Server
}

// NewApp 创建应用程序实例
func NewApp(ctx context.Context, configPath string) (*App, error) {
	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 初始化日志
	logger.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	metrics.InitRegistry()

	// 初始化数据库
	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cacheManager := cache.NewCacheManager(db, cfg.App.CacheTTL)
	aggregator := predictor.NewAggregator(cacheManager, db)
	predictorMgr := predictor.NewManager(aggregator)
	evaluator := predictor.NewEvaluator(db)
	apiClient := api.NewClient(&cfg.API)

	app := &App{
		config:       cfg,
		db:           db,
		cacheManager: cacheManager,
		apiClient:    apiClient,
		aggregator:   aggregator,
		predictorMgr: predictorMgr,
		evaluator:    evaluator,
	}

	app.scheduler = app.newScheduler(nil)

	return app, nil
}

// newScheduler 组装调度器，notifier 为空时不广播
func (a *App) newScheduler(notifier scheduler.Notifier) *scheduler.Scheduler {
	deps := scheduler.Deps{
		Fetcher:    a.apiClient,
		Store:      a.db,
		Evaluator:  a.evaluator,
		Predictors: a.predictorMgr,
		Listener:   a.cacheManager,
		Notifier:   notifier,
	}
	return scheduler.NewScheduler(deps, a.config.App.Location())
}

// enableTelegram 初始化Telegram机器人并注册为广播通道
func (a *App) enableTelegram() error {
	if !a.config.Telegram.Enabled {
		return nil
	}

	bot, err := telegram.NewBot(&a.config.Telegram, a.cacheManager, a.db, a.evaluator)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	a.telegramBot = bot
	a.scheduler = a.newScheduler(bot)
	return nil
}

// Start 启动应用程序
func (a *App) Start(ctx context.Context) error {
	if err := a.enableTelegram(); err != nil {
		return err
	}

	// 启动时补齐历史数据并同步一次
	if _, err := a.scheduler.Import(ctx, a.config.App.ImportLimit); err != nil {
		logger.Warnf("Failed to import historical data: %v", err)
	}
	if _, err := a.scheduler.Sync(ctx); err != nil {
		logger.Warnf("Initial sync failed: %v", err)
	}
	if err := a.ensureUpcomingPredictions(ctx); err != nil {
		logger.Warnf("Failed to ensure upcoming predictions: %v", err)
	}

	if err := a.scheduler.ScheduleSync(a.config.App.Schedule); err != nil {
		return err
	}
	if err := a.scheduler.Start(); err != nil {
		return err
	}

	if a.telegramBot != nil {
		a.telegramBot.Start()
	}

	if a.config.App.MetricsAddr != "" {
		a.startHTTPServer()
	}

	logger.WithFields(map[string]interface{}{
		"schedule": a.config.App.Schedule,
		"timezone": a.config.App.Timezone,
		"driver":   a.db.Driver(),
	}).Info("All services started")
	return nil
}

// Stop 停止应用程序
func (a *App) Stop() error {
	logger.Info("Stopping application...")

	a.scheduler.Stop()

	if a.telegramBot != nil {
		a.telegramBot.Stop()
	}

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Errorf("Failed to shutdown http server: %v", err)
		}
	}

	return a.Close()
}

// Close 关闭数据库连接
func (a *App) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ensureUpcomingPredictions 下一期预测缺失时补生成
func (a *App) ensureUpcomingPredictions(ctx context.Context) error {
	latest, err := a.cacheManager.LatestDraw(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		return errors.New("no draws available")
	}

	next := database.NextDrawDate(latest.DrawDate)
	existing, err := a.db.GetPredictionsByDate(ctx, next, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Infof("Predictions for %s are up to date", database.FormatDate(next))
		return nil
	}

	_, err = a.scheduler.PredictNext(ctx, latest.DrawDate)
	return err
}

func (a *App) startHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := a.HealthCheck(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health["status"] != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})

	a.httpServer = &http.Server{
		Addr:              a.config.App.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("Metrics server listening on %s", a.config.App.MetricsAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()
}

// HealthCheck 健康检查
func (a *App) HealthCheck(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"timestamp": time.Now(),
		"status":    "ok",
	}
	services := map[string]interface{}{}
	health["services"] = services

	if err := a.db.Ping(ctx); err != nil {
		services["database"] = map[string]interface{}{"status": "error", "error": err.Error()}
		health["status"] = "degraded"
	} else {
		services["database"] = map[string]interface{}{"status": "ok", "driver": a.db.Driver()}
	}

	services["cache"] = map[string]interface{}{"status": "ok", "stats": a.cacheManager.GetStats()}
	services["api"] = map[string]interface{}{"status": "ok", "stats": a.apiClient.GetAPIStats()}
	services["scheduler"] = map[string]interface{}{"running": a.scheduler.IsRunning()}

	if a.telegramBot != nil {
		services["telegram"] = map[string]interface{}{"status": "ok", "info": a.telegramBot.GetBotInfo()}
	}
	return health
}

var (
	configPath string
	app        *App
)

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

var rootCmd = &cobra.Command{
	Use:           "thai-lotto-bot",
	Short:         "Thai lottery statistics and prediction bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		app, err = NewApp(cmd.Context(), configPath)
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, bot and metrics server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := app.Start(ctx); err != nil {
			app.Close()
			return err
		}
		fmt.Println("✅ Thai lottery bot started, press Ctrl+C to stop")

		<-ctx.Done()
		return app.Stop()
	},
}

var importLimit int

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import historical draws from the results feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer app.Close()
		limit := importLimit
		if limit == 0 {
			limit = app.config.App.ImportLimit
		}
		saved, err := app.scheduler.Import(cmd.Context(), limit)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d draws\n", saved)
		return nil
	},
}

var predictMethod string

var predictCmd = &cobra.Command{
	Use:   "predict <digit_type> [target_date]",
	Short: "Generate predictions for a digit type (default target: next draw date)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer app.Close()

		target := ""
		if len(args) == 2 {
			target = args[1]
		} else {
			latest, err := app.cacheManager.LatestDraw(cmd.Context())
			if err != nil {
				return err
			}
			after := time.Now()
			if latest != nil {
				after = latest.DrawDate
			}
			target = database.FormatDate(database.NextDrawDate(after))
		}

		p, err := app.predictorMgr.Get(predictMethod)
		if err != nil {
			return err
		}
		result, err := p.Predict(cmd.Context(), args[0], target)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <draw_date>",
	Short: "Evaluate stored predictions against the actual draw",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer app.Close()
		result, err := app.evaluator.EvaluateAccuracy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var accuracyCmd = &cobra.Command{
	Use:       "accuracy [weekly|monthly|yearly|all]",
	Short:     "Show accuracy history",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{predictor.PeriodWeekly, predictor.PeriodMonthly, predictor.PeriodYearly, predictor.PeriodAll},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer app.Close()
		period := predictor.PeriodAll
		if len(args) == 1 {
			period = args[0]
		}
		history, err := app.evaluator.GetAccuracyHistory(cmd.Context(), period)
		if err != nil {
			return err
		}
		return printJSON(history)
	},
}

var (
	analyzeLookback int
	analyzeWeekday  string
	analyzeDay      int
	analyzeMonth    int
	analyzeBefore   string
)

var analyzeCmd = &cobra.Command{
	Use:       "analyze <frequency|position|pairs|patterns|trend> <digit_type>",
	Short:     "Run a single analysis over stored draws",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"frequency", "position", "pairs", "patterns", "trend"},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer app.Close()

		var history analysis.HistoryRecorder
		if app.config.App.HistoryLog {
			history = app.db
		}
		analyzer := analysis.NewAnalyzer(app.db, history)

		field := database.DigitType(args[1])
		filter, err := analyzeFilter()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		var result interface{}
		switch args[0] {
		case "frequency":
			result, err = analyzer.ComputeFrequency(ctx, field, filter)
		case "position":
			result, err = analyzer.ComputePositionFrequency(ctx, field, filter)
		case "pairs":
			result, err = analyzer.ComputePairFrequency(ctx, field, filter)
		case "patterns":
			result, err = analyzer.FindRecurringPatternsIn(ctx, field, filter)
		case "trend":
			result, err = analyzer.AnalyzeTrendIn(ctx, field, filter)
		default:
			return fmt.Errorf("unknown analysis: %s", args[0])
		}
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func analyzeFilter() (database.DrawFilter, error) {
	filter := database.DrawFilter{Limit: analyzeLookback, DayOfMonth: analyzeDay, Month: analyzeMonth}
	if analyzeBefore != "" {
		before, err := analysis.ParseTargetDate(analyzeBefore)
		if err != nil {
			return filter, err
		}
		filter.To = before.AddDate(0, 0, -1)
	}
	if analyzeWeekday != "" {
		for w := time.Sunday; w <= time.Saturday; w++ {
			if database.WeekdayName(w) == strings.ToLower(analyzeWeekday) {
				return filter.OnWeekday(w), nil
			}
		}
		return filter, analysis.ValidationError("invalid weekday %q", analyzeWeekday)
	}
	return filter, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to configuration file")

	importCmd.Flags().IntVar(&importLimit, "limit", 0, "Number of draws to import (default: app.import_limit)")
	predictCmd.Flags().StringVar(&predictMethod, "method", predictor.NameStatistical, "Predictor: statistical or learning")

	analyzeCmd.Flags().IntVar(&analyzeLookback, "lookback", 100, "Most recent draws to include")
	analyzeCmd.Flags().StringVar(&analyzeWeekday, "weekday", "", "Only draws on this weekday")
	analyzeCmd.Flags().IntVar(&analyzeDay, "day", 0, "Only draws on this day of month")
	analyzeCmd.Flags().IntVar(&analyzeMonth, "month", 0, "Only draws in this month")
	analyzeCmd.Flags().StringVar(&analyzeBefore, "before", "", "Only draws strictly before this date (YYYY-MM-DD)")

	rootCmd.AddCommand(serveCmd, importCmd, predictCmd, evaluateCmd, accuracyCmd, analyzeCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
