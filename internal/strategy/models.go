package strategy

import "quant-pipeline/internal/service"

// SymbolState 单个标的的预热状态
type SymbolState string

const (
	StateCold SymbolState = "COLD" // 窗口未满，不产生信号
	StateWarm SymbolState = "WARM" // 窗口已满，每个 tick 都产生信号
)

// Config 均值回归参数
type Config struct {
	Name       string
	Window     int
	Threshold  float64
	MaxSymbols int // 0 表示不限制
}

// ConfigFrom 从服务配置转换
func ConfigFrom(cfg service.StrategyConfig) Config {
	return Config{
		Name:       cfg.Name,
		Window:     cfg.Window,
		Threshold:  cfg.DeviationThreshold,
		MaxSymbols: cfg.MaxSymbols,
	}
}
