package ta

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Mean 计算整个序列的算术平均值 (即周期等于序列长度的 SMA)
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sma := talib.Sma(values, len(values))
	return sma[len(sma)-1]
}

// StdDev 计算整个序列的总体标准差 (两遍算法)，常数序列严格返回 0
func StdDev(values []float64) float64 {
	if len(values) < 2 || constant(values) {
		return 0
	}
	_, std := stat.PopMeanStdDev(values, nil)
	if math.IsNaN(std) || std < 0 {
		return 0
	}
	return std
}

// Sharpe 计算 mean(returns)/std(returns)。
// 样本少于 2 个或标准差为 0 时返回 0。每次都基于完整序列重新计算。
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	std := StdDev(returns)
	if std <= 0 {
		return 0
	}
	return stat.Mean(returns, nil) / std
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// Deviation 按均值和阈值把价格归类为 -1 (低于下轨)、1 (高于上轨) 或 0。
// 边界严格不等：恰好等于 mean*(1±threshold) 归为 0。
func Deviation(price, mean, threshold float64) int {
	switch {
	case price < mean*(1-threshold):
		return -1
	case price > mean*(1+threshold):
		return 1
	default:
		return 0
	}
}
