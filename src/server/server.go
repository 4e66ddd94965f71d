package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stocksense/src/config"
	"stocksense/src/endpoint"
	"stocksense/src/endpoint/csvfile"
	"stocksense/src/metrics"
	"stocksense/src/report"
	"stocksense/src/timeframes"
	"stocksense/src/trading"

	"github.com/xpwu/go-log/log"
)

// Server 行情数据与试运行的 HTTP 接口
type Server struct {
	httpServer *http.Server
	registry   *endpoint.Registry
	base       *config.Config
	hub        *Hub
	startedAt  time.Time
}

// NewServer 创建服务，base 为 /pilot/episodes 的默认参数
func NewServer(base *config.Config, registry *endpoint.Registry, hub *Hub) *Server {
	s := &Server{
		registry:  registry,
		base:      base,
		hub:       hub,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /data/endpoints", s.handleEndpoints)
	mux.HandleFunc("GET /data/endpoints/{endpoint}/symbols", s.handleSymbols)
	mux.HandleFunc("GET /data/endpoints/{endpoint}/kline", s.handleKline)
	mux.HandleFunc("POST /pilot/episodes", s.handlePilot)
	if hub != nil {
		mux.Handle("GET /ws", hub)
	}

	s.httpServer = &http.Server{
		Addr:              base.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(base.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(base.Server.WriteTimeout) * time.Second,
	}
	return s
}

// Handler 路由
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run 监听直到 ctx 结束，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Server")

	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务启动", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("HTTP 服务关闭")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /data/endpoints
func (s *Server) handleEndpoints(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Names())
}

// GET /data/endpoints/{endpoint}/symbols
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.endpoint(w, r)
	if !ok {
		return
	}

	pairs, err := ep.ListSymbols(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	symbols := make([]string, len(pairs))
	for i, p := range pairs {
		symbols[i] = p.String()
	}
	s.writeJSON(w, http.StatusOK, symbols)
}

// GET /data/endpoints/{endpoint}/kline?symbol=BTC/USDT&since=2024-01-01&until=2024-02-01&timeframe=1h
func (s *Server) handleKline(w http.ResponseWriter, r *http.Request) {
	ctx, logger := log.WithCtx(r.Context())
	logger.PushPrefix("Server")

	ep, ok := s.endpoint(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	pair, err := endpoint.ParseTradingPair(q.Get("symbol"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	tfName := q.Get("timeframe")
	if tfName == "" {
		tfName = timeframes.Default.String()
	}
	tf, err := timeframes.ParseTimeframe(tfName)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	since, err := config.ParseDate(q.Get("since"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("since: %w", err))
		return
	}
	until := time.Now().UTC()
	if v := q.Get("until"); v != "" {
		if until, err = config.ParseDate(v); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("until: %w", err))
			return
		}
	}

	klines, err := ep.GetKlines(ctx, pair, tf, since, until)
	if err != nil {
		logger.Error("获取K线失败", "endpoint", ep.Name(), "symbol", pair.String(), "error", err)
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", csvfile.FileName(pair, tf)))
	if err := csvfile.Write(w, klines); err != nil {
		logger.Error("写出CSV失败", "error", err)
	}
}

// PilotResponse /pilot/episodes 的返回
type PilotResponse struct {
	Result  *trading.EpisodeResult `json:"result"`
	History []report.EquityPoint   `json:"history"`
}

// POST /pilot/episodes 在完整数据上运行一个回合。
// 请求体与配置文件同结构，未给出的字段沿用服务端配置。
func (s *Server) handlePilot(w http.ResponseWriter, r *http.Request) {
	ctx, logger := log.WithCtx(r.Context())
	logger.PushPrefix("Pilot")

	cfg := s.base.Clone()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	var opts []trading.Option
	if s.hub != nil {
		opts = append(opts, trading.WithObserver(func(e trading.StepEvent) { s.hub.Publish(e) }))
	}
	ts, err := trading.NewTradingSystem(cfg, s.registry, opts...)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	frame, err := ts.LoadFrame(ctx)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, endpoint.ErrUnknownEndpoint) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}

	result, err := ts.RunEpisode(ctx, "pilot", frame, "pilot", 0)
	if err != nil {
		status := http.StatusInternalServerError
		if trading.IsConfigurationError(err) {
			status = http.StatusBadRequest
		}
		logger.Error("试运行失败", "error", err)
		s.writeError(w, status, err)
		return
	}

	logger.Info("试运行完成", "policy", result.Policy, "steps", result.Summary.Steps,
		"return_pct", result.Summary.TotalReturnPct)
	s.writeJSON(w, http.StatusOK, PilotResponse{Result: result, History: result.Points})
}

// endpoint 解析路径中的数据源，不存在时写 404
func (s *Server) endpoint(w http.ResponseWriter, r *http.Request) (endpoint.Endpoint, bool) {
	name := strings.ToLower(r.PathValue("endpoint"))
	ep, err := s.registry.Get(name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, endpoint.ErrUnknownEndpoint) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return nil, false
	}
	return ep, true
}
