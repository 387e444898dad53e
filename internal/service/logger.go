package service

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("Trade executed", zap.String("Symbol", symbol))
var Logger = zap.NewNop()

// InitLogger 按配置初始化 Zap 日志
func InitLogger(cfg LogConfig) {
	config := zap.NewProductionConfig()
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
	}

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		log.Printf("Unknown log level %q, falling back to info", cfg.Level)
		level = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	Logger, err = config.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}
