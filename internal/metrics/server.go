package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	logx "signalbot/pkg/logx"
)

type ServerConfig struct {
	Enabled bool
	Addr    string // default "127.0.0.1:9090"
}

// Server serves /metrics. Bind to localhost unless the host firewall is
// trusted; the endpoint carries operational detail.
type Server struct {
	cfg ServerConfig
	m   *Metrics
	log logx.Logger

	mu  sync.Mutex
	srv *http.Server
}

func NewServer(cfg ServerConfig, m *Metrics, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, m: m, log: log}
}

func (s *Server) Start() {
	if !s.cfg.Enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return
	}
	addr := s.cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.m.Handler())
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	srv := s.srv
	go func() {
		s.log.Info("metrics server listening", logx.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server failed", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
