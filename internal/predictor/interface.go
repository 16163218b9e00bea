package predictor

import (
	"context"
	"fmt"
	"sort"
)

// Predictor 预测算法接口
type Predictor interface {
	// Predict 为目标日期生成某号码类型的预测
	Predict(ctx context.Context, digitType, targetDate string) (*PredictionResult, error)

	// GetName 获取算法名称
	GetName() string
}

type statisticalPredictor struct{ agg *Aggregator }

func (p statisticalPredictor) Predict(ctx context.Context, digitType, targetDate string) (*PredictionResult, error) {
	return p.agg.GeneratePredictions(ctx, digitType, targetDate)
}

func (p statisticalPredictor) GetName() string { return NameStatistical }

type learningPredictor struct{ agg *Aggregator }

func (p learningPredictor) Predict(ctx context.Context, digitType, targetDate string) (*PredictionResult, error) {
	return p.agg.GenerateLearningPredictions(ctx, digitType, targetDate)
}

func (p learningPredictor) GetName() string { return NameLearning }

// Manager 预测器管理器
type Manager struct {
	predictors map[string]Predictor
	current    Predictor
}

// NewManager 创建预测器管理器，注册统计与学习两种预测器，默认使用统计预测
func NewManager(agg *Aggregator) *Manager {
	m := &Manager{predictors: make(map[string]Predictor)}

	m.Register(statisticalPredictor{agg: agg})
	m.Register(learningPredictor{agg: agg})
	m.current = m.predictors[NameStatistical]

	return m
}

// Register 注册预测器
func (m *Manager) Register(p Predictor) {
	m.predictors[p.GetName()] = p
}

// SetCurrent 设置当前预测器
func (m *Manager) SetCurrent(name string) error {
	p, exists := m.predictors[name]
	if !exists {
		return fmt.Errorf("predictor not found: %s", name)
	}
	m.current = p
	return nil
}

// Current 获取当前预测器
func (m *Manager) Current() Predictor {
	return m.current
}

// Get 按名称获取预测器
func (m *Manager) Get(name string) (Predictor, error) {
	p, exists := m.predictors[name]
	if !exists {
		return nil, fmt.Errorf("predictor not found: %s", name)
	}
	return p, nil
}

// Names 可用的预测器名称，按字母排序
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.predictors))
	for name := range m.predictors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Predict 使用当前预测器进行预测
func (m *Manager) Predict(ctx context.Context, digitType, targetDate string) (*PredictionResult, error) {
	if m.current == nil {
		return nil, fmt.Errorf("no current predictor set")
	}
	return m.current.Predict(ctx, digitType, targetDate)
}

// PredictAll 依次运行全部预测器
func (m *Manager) PredictAll(ctx context.Context, digitType, targetDate string) ([]*PredictionResult, error) {
	var results []*PredictionResult
	for _, name := range m.Names() {
		result, err := m.predictors[name].Predict(ctx, digitType, targetDate)
		if err != nil {
			return results, fmt.Errorf("predictor %s failed: %w", name, err)
		}
		results = append(results, result)
	}
	return results, nil
}
