// Package metrics Prometheus 指标
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "thai_lotto"

var (
	registry *prometheus.Registry
	once     sync.Once
)

// 计数器
var (
	PredictionsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_generated_total",
		Help:      "Total number of prediction runs by digit type and method",
	}, []string{"digit_type", "method"})
	SubAnalysisSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sub_analysis_skipped_total",
		Help:      "Sub-analyses left out of a prediction because of insufficient samples",
	}, []string{"analysis"})
	EvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluations_total",
		Help:      "Total number of accuracy evaluations by status",
	}, []string{"status"})
	DrawsImportedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "draws_imported_total",
		Help:      "Total number of draw records written from the results feed",
	})
	FeedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_requests_total",
		Help:      "Total number of results feed requests by status",
	}, []string{"status"})
)

// 仪表
var (
	PredictionAccuracy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "prediction_accuracy_percent",
		Help:      "Accuracy of the most recent evaluation by digit type",
	}, []string{"digit_type"})
	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Number of cached draw queries",
	})
)

// 直方图
var (
	AnalysisDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_seconds",
		Help:      "Duration of prediction runs",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method"})
)

// InitRegistry 初始化全局注册表
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(PredictionsGeneratedTotal)
		registry.MustRegister(SubAnalysisSkippedTotal)
		registry.MustRegister(EvaluationsTotal)
		registry.MustRegister(DrawsImportedTotal)
		registry.MustRegister(FeedRequestsTotal)

		registry.MustRegister(PredictionAccuracy)
		registry.MustRegister(CacheEntries)

		registry.MustRegister(AnalysisDuration)
	})
	return registry
}

// GetRegistry 获取全局注册表
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordPrediction 记录一次预测
func RecordPrediction(digitType, method string, seconds float64) {
	PredictionsGeneratedTotal.WithLabelValues(digitType, method).Inc()
	AnalysisDuration.WithLabelValues(method).Observe(seconds)
}

// RecordSkippedAnalysis 记录被跳过的子分析
func RecordSkippedAnalysis(analysis string) {
	SubAnalysisSkippedTotal.WithLabelValues(analysis).Inc()
}

// RecordEvaluation 记录一次准确率评估
func RecordEvaluation(status string) {
	EvaluationsTotal.WithLabelValues(status).Inc()
}

// UpdateAccuracy 更新某类型最近一次评估的准确率
func UpdateAccuracy(digitType string, percent float64) {
	PredictionAccuracy.WithLabelValues(digitType).Set(percent)
}

// RecordDrawsImported 记录写入的开奖记录数
func RecordDrawsImported(n int) {
	DrawsImportedTotal.Add(float64(n))
}

// RecordFeedRequest 记录开奖接口请求
func RecordFeedRequest(status string) {
	FeedRequestsTotal.WithLabelValues(status).Inc()
}

// SetCacheEntries 更新缓存条目数
func SetCacheEntries(n int) {
	CacheEntries.Set(float64(n))
}
