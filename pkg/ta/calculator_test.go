package ta

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 5.0, Mean([]float64{5}))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	assert.Equal(t, 100.0, Mean(flat))
}

func TestSharpeUnderflow(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe(nil))
	assert.Equal(t, 0.0, Sharpe([]float64{}))
	assert.Equal(t, 0.0, Sharpe([]float64{0.05}))
	assert.Equal(t, 0.0, Sharpe([]float64{0.05, 0.05, 0.05}))
}

func TestSharpeMatchesSample(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.01, 0.03}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(len(returns)))

	assert.InDelta(t, mean/std, Sharpe(returns), 1e-9)
	// 重新计算结果一致
	assert.Equal(t, Sharpe(returns), Sharpe(returns))
}

func TestSharpeConstantSeriesIsZero(t *testing.T) {
	assert.Equal(t, 0.0, StdDev([]float64{1000.1, 1000.1, 1000.1}))
	assert.Equal(t, 0.0, Sharpe([]float64{1000.1, 1000.1, 1000.1}))
	assert.Equal(t, 0.0, Sharpe([]float64{-0.3, -0.3, -0.3, -0.3}))
}

func TestSharpeTinyVariance(t *testing.T) {
	// 方差远小于 1e-14 时仍然是有效样本
	assert.InDelta(t, 1e-8, StdDev([]float64{1e-8, 3e-8}), 1e-20)
	assert.InDelta(t, 2.0, Sharpe([]float64{1e-8, 3e-8}), 1e-9)
}

func TestSharpeNegative(t *testing.T) {
	assert.Less(t, Sharpe([]float64{-0.02, -0.01, -0.03}), 0.0)
}

func TestDeviationBoundaries(t *testing.T) {
	mean := 100.0
	threshold := 0.02

	assert.Equal(t, -1, Deviation(97, mean, threshold))
	assert.Equal(t, 1, Deviation(103, mean, threshold))
	assert.Equal(t, 0, Deviation(100, mean, threshold))
	assert.Equal(t, 0, Deviation(mean*(1+threshold), mean, threshold))
	assert.Equal(t, 0, Deviation(mean*(1-threshold), mean, threshold))
}
