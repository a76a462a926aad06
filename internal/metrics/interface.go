// Image quality metrics comparing a processed image with its input
package metrics

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"separable-convolution/internal/core"
)

// Metric defines the interface for quality metrics
type Metric interface {
	// Calculate computes the metric value
	Calculate(original, processed *core.Image) (float64, error)

	GetName() string
	GetDescription() string

	// GetRange returns the practical value range (min, max)
	GetRange() (float64, float64)

	IsHigherBetter() bool
}

// MetricInfo provides metadata about a metric
type MetricInfo struct {
	Name         string
	Description  string
	Range        [2]float64 // [min, max]
	HigherBetter bool
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
}

// NewEvaluator creates an evaluator with every default metric registered
func NewEvaluator() *Evaluator {
	e := &Evaluator{
		metrics: make(map[string]Metric),
	}
	e.RegisterDefaultMetrics()
	return e
}

func (e *Evaluator) RegisterDefaultMetrics() {
	e.Register("psnr", NewPSNR())
	e.Register("mse", NewMSE())
	e.Register("ssim", NewSSIM())
	e.Register("max_intensity", NewMaxIntensity())
	e.Register("mean_intensity", NewMeanIntensity())
}

func (e *Evaluator) Register(name string, metric Metric) {
	e.metrics[name] = metric
}

// Names returns the registered metric names in sorted order
func (e *Evaluator) Names() []string {
	names := lo.Keys(e.metrics)
	slices.Sort(names)
	return names
}

func (e *Evaluator) Calculate(name string, original, processed *core.Image) (float64, error) {
	metric, exists := e.metrics[name]
	if !exists {
		return 0, fmt.Errorf("metric not found: %s", name)
	}
	return metric.Calculate(original, processed)
}

// CalculateAll calculates every registered metric, skipping those that fail
func (e *Evaluator) CalculateAll(original, processed *core.Image) map[string]float64 {
	results := make(map[string]float64)
	for name, metric := range e.metrics {
		if value, err := metric.Calculate(original, processed); err == nil {
			results[name] = value
		}
	}
	return results
}

func (e *Evaluator) GetMetricInfo() map[string]MetricInfo {
	return lo.MapValues(e.metrics, func(m Metric, _ string) MetricInfo {
		low, high := m.GetRange()
		return MetricInfo{
			Name:         m.GetName(),
			Description:  m.GetDescription(),
			Range:        [2]float64{low, high},
			HigherBetter: m.IsHigherBetter(),
		}
	})
}

func checkPair(original, processed *core.Image) error {
	if original == nil || processed == nil {
		return fmt.Errorf("nil image")
	}
	if original.Width() != processed.Width() || original.Height() != processed.Height() {
		return fmt.Errorf("image dimensions mismatch: %dx%d vs %dx%d",
			original.Width(), original.Height(), processed.Width(), processed.Height())
	}
	return nil
}
