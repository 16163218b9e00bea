package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valueOf(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestMetricsRegistry(t *testing.T) {
	InitRegistry()
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
	assert.Same(t, registry, InitRegistry())
}

func TestRecordPrediction(t *testing.T) {
	InitRegistry()
	before := valueOf(t, PredictionsGeneratedTotal.WithLabelValues("last2", "statistical"))

	RecordPrediction("last2", "statistical", 0.02)

	after := valueOf(t, PredictionsGeneratedTotal.WithLabelValues("last2", "statistical"))
	assert.Equal(t, before+1, after)
}

func TestGaugesAndCounters(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name   string
		record func()
		metric prometheus.Metric
		want   float64
	}{
		{"accuracy", func() { UpdateAccuracy("three_back", 12.5) }, PredictionAccuracy.WithLabelValues("three_back"), 12.5},
		{"cache entries", func() { SetCacheEntries(7) }, CacheEntries, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, tt.record)
			assert.Equal(t, tt.want, valueOf(t, tt.metric))
		})
	}

	assert.NotPanics(t, func() {
		RecordSkippedAnalysis("day_of_week")
		RecordEvaluation("success")
		RecordDrawsImported(3)
		RecordFeedRequest("error")
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	InitRegistry()
	RecordEvaluation("success")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "thai_lotto_evaluations_total"))
}
