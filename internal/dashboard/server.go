package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"quant-pipeline/internal/model"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// PortfolioSource 提供执行器的账户快照
type PortfolioSource interface {
	State() model.PortfolioState
}

// Pinger 用于健康检查，一般是消息总线
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server 对外提供健康检查、看板快照、账户状态和 WebSocket 推送。
// 未启用的组件传 nil，对应路由不会注册。
type Server struct {
	addr      string
	agg       *Aggregator
	hub       *Hub
	portfolio PortfolioSource
	health    Pinger
	logger    *zap.Logger
}

func NewServer(addr string, agg *Aggregator, hub *Hub, portfolio PortfolioSource, health Pinger, logger *zap.Logger) *Server {
	return &Server{
		addr:      addr,
		agg:       agg,
		hub:       hub,
		portfolio: portfolio,
		health:    health,
		logger:    logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.agg != nil {
		mux.HandleFunc("GET /api/snapshot", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.agg.Snapshot())
		})
	}
	if s.portfolio != nil {
		mux.HandleFunc("GET /api/portfolio", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.portfolio.State())
		})
	}
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run 监听 addr 直到 ctx 结束，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("Addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
