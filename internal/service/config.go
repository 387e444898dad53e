// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 支持的服务名称
const (
	ServiceFeed      = "feed"
	ServiceStrategy  = "strategy"
	ServiceRelay     = "relay"
	ServiceExecutor  = "executor"
	ServiceDashboard = "dashboard"
)

type Config struct {
	Log       LogConfig       `mapstructure:"Log"`
	Bus       BusConfig       `mapstructure:"Bus"`
	Store     StoreConfig     `mapstructure:"Store"`
	Channels  ChannelConfig   `mapstructure:"Channels"`
	Keys      KeyConfig       `mapstructure:"Keys"`
	Services  []string        `mapstructure:"Services"`
	HTTP      HTTPConfig      `mapstructure:"HTTP"`
	Strategy  StrategyConfig  `mapstructure:"Strategy"`
	Executor  ExecutorConfig  `mapstructure:"Executor"`
	Dashboard DashboardConfig `mapstructure:"Dashboard"`
	Relay     RelayConfig     `mapstructure:"Relay"`
	Feed      FeedConfig      `mapstructure:"Feed"`
}

type LogConfig struct {
	Level       string
	Development bool
}

// BusConfig 消息总线: memory (单进程) 或 redis
type BusConfig struct {
	Driver     string
	BufferSize int // 每个订阅的缓冲区大小 (memory)
	Redis      RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig 持久化列表: memory, redis 或 postgres
type StoreConfig struct {
	Driver   string
	Postgres PostgresConfig
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ChannelConfig 各个 topic 的名称
type ChannelConfig struct {
	Prices     string
	Signals    string
	Aggregated string
	PnL        string
}

// KeyConfig 持久化列表的 key
type KeyConfig struct {
	TradeHistory string
	Returns      string
}

type HTTPConfig struct {
	ListenAddr string
}

// StrategyConfig 均值回归策略参数
type StrategyConfig struct {
	Name               string
	Window             int
	DeviationThreshold float64
	MaxSymbols         int
}

// ExecutorConfig 模拟执行器参数
type ExecutorConfig struct {
	InitialCash   float64
	HistoryLimit  int
	RecordReturns bool
	ReturnsLimit  int
}

// DashboardConfig 看板聚合参数
type DashboardConfig struct {
	RecentLimit  int
	SeriesLimit  int
	HistoryTail  int
	MaxSymbols   int
	PushInterval time.Duration
}

type RelayConfig struct {
	DropHold bool
}

// FeedConfig 外部行情 WebSocket 源
type FeedConfig struct {
	WSURL             string
	Symbols           []string // 非空时连接后发送订阅请求
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// LoadConfig 读取 .env (可选) 和 configPath 下的 config.yaml，环境变量 QP_* 可覆盖任意配置项
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时直接使用系统环境变量
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	setDefaults(v)

	v.SetEnvPrefix("QP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Development", false)

	v.SetDefault("Bus.Driver", "memory")
	v.SetDefault("Bus.BufferSize", 1024)
	v.SetDefault("Bus.Redis.Addr", "localhost:6379")
	v.SetDefault("Bus.Redis.Password", "")
	v.SetDefault("Bus.Redis.DB", 0)

	v.SetDefault("Store.Driver", "memory")
	v.SetDefault("Store.Postgres.Host", "localhost")
	v.SetDefault("Store.Postgres.Port", 5432)
	v.SetDefault("Store.Postgres.User", "")
	v.SetDefault("Store.Postgres.Password", "")
	v.SetDefault("Store.Postgres.Database", "quant")
	v.SetDefault("Store.Postgres.SSLMode", "disable")

	v.SetDefault("Channels.Prices", "price_updates")
	v.SetDefault("Channels.Signals", "trade_signals")
	v.SetDefault("Channels.Aggregated", "aggregated_signals")
	v.SetDefault("Channels.PnL", "executor_pnl")

	v.SetDefault("Keys.TradeHistory", "trade_history")
	v.SetDefault("Keys.Returns", "returns")

	v.SetDefault("Services", []string{ServiceStrategy, ServiceRelay, ServiceExecutor, ServiceDashboard})
	v.SetDefault("HTTP.ListenAddr", ":8000")

	v.SetDefault("Strategy.Name", "meanrev")
	v.SetDefault("Strategy.Window", 20)
	v.SetDefault("Strategy.DeviationThreshold", 0.02)
	v.SetDefault("Strategy.MaxSymbols", 64)

	v.SetDefault("Executor.InitialCash", 100000.0)
	v.SetDefault("Executor.HistoryLimit", 100)
	v.SetDefault("Executor.RecordReturns", true)
	v.SetDefault("Executor.ReturnsLimit", 1000)

	v.SetDefault("Dashboard.RecentLimit", 10)
	v.SetDefault("Dashboard.SeriesLimit", 50)
	v.SetDefault("Dashboard.HistoryTail", 10)
	v.SetDefault("Dashboard.MaxSymbols", 64)
	v.SetDefault("Dashboard.PushInterval", 5*time.Second)

	v.SetDefault("Relay.DropHold", true)

	v.SetDefault("Feed.WSURL", "")
	v.SetDefault("Feed.Symbols", []string{})
	v.SetDefault("Feed.ReconnectDelay", time.Second)
	v.SetDefault("Feed.MaxReconnectDelay", time.Minute)
}

// Validate 检查配置是否合理
func (c *Config) Validate() error {
	switch c.Bus.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported bus driver: %q", c.Bus.Driver)
	}
	switch c.Store.Driver {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
	if c.Store.Driver == "redis" && c.Bus.Driver != "redis" {
		return errors.New("redis store requires the redis bus driver")
	}
	for _, name := range c.Services {
		switch name {
		case ServiceFeed, ServiceStrategy, ServiceRelay, ServiceExecutor, ServiceDashboard:
		default:
			return fmt.Errorf("unknown service: %q", name)
		}
	}
	if c.HasService(ServiceFeed) && c.Feed.WSURL == "" {
		return errors.New("feed service requires Feed.WSURL")
	}
	if c.Strategy.Window < 1 {
		return fmt.Errorf("invalid Strategy.Window %d: must be positive", c.Strategy.Window)
	}
	if c.Strategy.DeviationThreshold <= 0 || c.Strategy.DeviationThreshold >= 1 {
		return fmt.Errorf("invalid Strategy.DeviationThreshold %v: must be in (0,1)", c.Strategy.DeviationThreshold)
	}
	if c.Executor.InitialCash < 0 {
		return fmt.Errorf("invalid Executor.InitialCash %v: must not be negative", c.Executor.InitialCash)
	}
	if c.Executor.HistoryLimit < 1 || c.Executor.ReturnsLimit < 1 {
		return errors.New("invalid executor limits: HistoryLimit and ReturnsLimit must be positive")
	}
	if c.Dashboard.RecentLimit < 1 || c.Dashboard.SeriesLimit < 1 || c.Dashboard.HistoryTail < 1 {
		return errors.New("invalid dashboard limits: must be positive")
	}
	if c.HasService(ServiceFeed) && (c.Feed.ReconnectDelay <= 0 || c.Feed.MaxReconnectDelay < c.Feed.ReconnectDelay) {
		return errors.New("invalid feed reconnect delays: need 0 < ReconnectDelay <= MaxReconnectDelay")
	}
	if c.Dashboard.PushInterval <= 0 {
		return errors.New("invalid Dashboard.PushInterval: must be positive")
	}
	return nil
}

// HasService 判断是否启用了某个服务
func (c *Config) HasService(name string) bool {
	for _, s := range c.Services {
		if s == name {
			return true
		}
	}
	return false
}
