package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/callio-ai/callio/pkg/gateway/config"
	"github.com/callio-ai/callio/pkg/gateway/handlers"
	"github.com/callio-ai/callio/pkg/gateway/live/sessions"
	"github.com/callio-ai/callio/pkg/gateway/mw"
	"github.com/callio-ai/callio/pkg/gateway/ratelimit"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	httpClient *http.Client
	limiter    *ratelimit.Limiter
	calls      *sessions.Tracker
	draining   atomic.Bool
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		httpClient: httpClient,
		limiter: ratelimit.New(ratelimit.Config{
			CallsPerSecond:     cfg.CallRPS,
			Burst:              cfg.CallBurst,
			MaxConcurrentCalls: cfg.MaxConcurrentCallsPerClient,
		}),
		calls: sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:      s.cfg,
		Draining:    s.IsDraining,
		ActiveCalls: s.calls.Count,
	})

	s.mux.Handle("/v1/call", handlers.LiveHandler{
		Config:     s.cfg,
		Logger:     s.logger,
		HTTPClient: s.httpClient,
		Draining:   s.IsDraining,
		Limiter:    s.limiter,
		Calls:      s.calls,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness ahead of shutdown so load balancers stop
// routing new calls here while in-flight sessions wind down. Active
// callers get a heads-up notice.
func (s *Server) SetDraining(v bool) {
	s.draining.Store(v)
	if v {
		s.calls.NotifyAll("server is shutting down")
	}
}

func (s *Server) IsDraining() bool {
	return s.draining.Load()
}

// Calls exposes the active call registry for shutdown sequencing.
func (s *Server) Calls() *sessions.Tracker {
	return s.calls
}
