package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/muurk/evoconnect/internal/evolution"
	"github.com/muurk/evoconnect/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultPort is the port the relay listens on
	DefaultPort = 5000

	// DefaultShutdownTimeout bounds how long in-flight requests may finish
	DefaultShutdownTimeout = 10 * time.Second

	limiterPruneInterval = time.Minute
)

// Config holds the relay configuration
type Config struct {
	Host     string
	Port     int
	LogLevel string

	// EvolutionURL and EvolutionToken may be empty. Every operation then
	// answers 500 until the relay is restarted with credentials.
	EvolutionURL   string
	EvolutionToken string

	RequestTimeout  time.Duration // per Evolution API call, 0 = evolution.DefaultTimeout
	RateLimit       float64       // requests per second per client IP, 0 = off
	RateBurst       int
	ShutdownTimeout time.Duration
}

// Server is the stateless relay in front of the Evolution API
type Server struct {
	config    *Config
	evolution *evolution.Client
	metrics   *metrics
	limiter   *clientLimiter
	mux       *http.ServeMux
	handler   http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if err := logging.Initialize(config.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	if config.Port < 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", config.Port)
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("invalid rate limit %v", config.RateLimit)
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	client := evolution.NewClient(config.EvolutionURL, config.EvolutionToken)
	if config.RequestTimeout > 0 {
		client.SetTimeout(config.RequestTimeout)
	}

	s := &Server{
		config:    config,
		evolution: client,
		metrics:   newMetrics(),
	}
	if config.RateLimit > 0 {
		s.limiter = newClientLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	s.routes()

	if !client.Configured() {
		logging.Warn("Evolution API credentials missing, every operation will answer 500",
			zap.Bool("url_set", config.EvolutionURL != ""),
			zap.Bool("token_set", config.EvolutionToken != ""),
		)
		logging.Info(evolution.GetTroubleshootingHint(evolution.NewConfigError("credentials missing")))
	}

	return s, nil
}

func (s *Server) routes() {
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /api/instance/create", s.handleCreate)
	s.mux.HandleFunc("GET /api/instance/{instanceName}/qrcode", s.handleQRCode)
	s.mux.HandleFunc("GET /api/instance/{instanceName}/status", s.handleStatus)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.handler())

	var h http.Handler = s.mux
	if s.limiter != nil {
		h = withRateLimit(s.limiter, s.metrics, h)
	}
	h = withAccessLog(s.metrics, s.route, h)
	s.handler = withRequestID(h)
}

func (s *Server) route(r *http.Request) string {
	_, pattern := s.mux.Handler(r)
	return pattern
}

// Handler returns the relay's HTTP handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until SIGINT/SIGTERM
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	logging.Info("Starting Evolution relay",
		zap.String("addr", addr),
		zap.String("evolution_url", s.config.EvolutionURL),
		zap.String("log_level", s.config.LogLevel),
		zap.Float64("rate_limit", s.config.RateLimit),
	)

	return s.Serve(ctx, listener)
}

// Serve answers requests on listener until ctx is done or Shutdown is called
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		logging.Info("Relay listening", zap.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer done()
		return s.Shutdown(shutdownCtx)
	})

	if s.limiter != nil {
		g.Go(func() error {
			return s.limiter.run(gctx, limiterPruneInterval)
		})
	}

	return g.Wait()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	logging.Info("Shutting down relay...")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		_ = srv.Close()
		return fmt.Errorf("relay shutdown: %w", err)
	}

	logging.Sync()
	return nil
}
