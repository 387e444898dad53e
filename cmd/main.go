package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quant-pipeline/internal/bus"
	"quant-pipeline/internal/dashboard"
	"quant-pipeline/internal/executor"
	"quant-pipeline/internal/feed"
	"quant-pipeline/internal/relay"
	"quant-pipeline/internal/service"
	"quant-pipeline/internal/store"
	"quant-pipeline/internal/strategy"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

func main() {
	// 先用默认配置初始化日志，保证配置错误也能输出
	service.InitLogger(service.LogConfig{Level: "info"})

	configPath := "config"
	if p := os.Getenv("QP_CONFIG_PATH"); p != "" {
		configPath = p
	}
	cfg, err := service.LoadConfig(configPath)
	if err != nil {
		service.Logger.Fatal("Failed to load config", zap.String("Path", configPath), zap.Error(err))
	}
	service.InitLogger(cfg.Log)
	defer service.Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		service.Logger.Error("Pipeline stopped with error", zap.Error(err))
		service.Logger.Sync()
		os.Exit(1)
	}
	service.Logger.Info("Pipeline stopped")
}

func run(ctx context.Context, cfg *service.Config) error {
	logger := service.Logger

	metrics, err := service.NewMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	b, redisClient := openBus(cfg, logger, metrics)
	defer b.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = b.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Fatal("Message bus not available", zap.String("Driver", cfg.Bus.Driver), zap.Error(err))
	}
	logger.Info("Connected to message bus", zap.String("Driver", cfg.Bus.Driver))

	lists, err := openStore(cfg, redisClient)
	if err != nil {
		return err
	}
	defer lists.Close()

	p := pool.New().WithContext(ctx).WithCancelOnError()

	var (
		agg       *dashboard.Aggregator
		hub       *dashboard.Hub
		portfolio dashboard.PortfolioSource
	)

	if cfg.HasService(service.ServiceFeed) {
		connector := feed.NewConnector(cfg.Feed, cfg.Channels.Prices, b, serviceLogger(service.ServiceFeed), metrics)
		p.Go(connector.Run)
	}
	if cfg.HasService(service.ServiceStrategy) {
		l := serviceLogger(service.ServiceStrategy)
		eval := strategy.NewMeanReversion(strategy.ConfigFrom(cfg.Strategy), l, metrics)
		p.Go(strategy.NewService(eval, b, cfg.Channels, l, metrics).Run)
	}
	if cfg.HasService(service.ServiceRelay) {
		p.Go(relay.New(b, cfg.Channels, cfg.Relay, serviceLogger(service.ServiceRelay), metrics).Run)
	}
	if cfg.HasService(service.ServiceExecutor) {
		l := serviceLogger(service.ServiceExecutor)
		sim := executor.NewSimulatorExecutor(executor.SimulatorConfig{
			InitialCash:  cfg.Executor.InitialCash,
			HistoryLimit: cfg.Executor.HistoryLimit,
		}, l)
		portfolio = sim
		p.Go(executor.NewService(sim, b, lists, executor.ServiceConfigFrom(cfg), l, metrics).Run)
	}
	if cfg.HasService(service.ServiceDashboard) {
		l := serviceLogger(service.ServiceDashboard)
		agg = dashboard.NewAggregator(cfg.Dashboard, cfg.Channels, cfg.Keys, lists, l, metrics)
		hub = dashboard.NewHub(agg, cfg.Dashboard.PushInterval, l)
		p.Go(func(ctx context.Context) error { return agg.Run(ctx, b) })
		p.Go(hub.Run)
	}

	server := dashboard.NewServer(cfg.HTTP.ListenAddr, agg, hub, portfolio, b, logger.With(zap.String("Service", "http")))
	p.Go(server.Run)

	logger.Info("Pipeline started", zap.Strings("Services", cfg.Services))
	return p.Wait()
}

func serviceLogger(name string) *zap.Logger {
	return service.Logger.With(zap.String("Service", name))
}

// openBus 按配置创建总线。使用 redis 时同时返回客户端，供 redis 列表存储复用
func openBus(cfg *service.Config, logger *zap.Logger, metrics *service.Metrics) (bus.Bus, *redis.Client) {
	if cfg.Bus.Driver == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Bus.Redis.Addr,
			Password: cfg.Bus.Redis.Password,
			DB:       cfg.Bus.Redis.DB,
		})
		return bus.NewRedisBus(client, logger), client
	}
	return bus.NewMemoryBus(cfg.Bus.BufferSize, logger, metrics), nil
}

func openStore(cfg *service.Config, client *redis.Client) (store.ListStore, error) {
	switch cfg.Store.Driver {
	case "redis":
		return store.NewRedisStore(client), nil
	case "postgres":
		pg := cfg.Store.Postgres
		return store.OpenPostgres(store.PostgresOption{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}
