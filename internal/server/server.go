package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/config"
	"github.com/controldesk/controldesk/internal/dashboard"
)

// Version is set at build time via ldflags.
var Version = "dev"

const retentionInterval = time.Hour

// Server is the controldesk dashboard HTTP server.
type Server struct {
	stack   *Stack
	cfgMu   sync.Mutex
	cfg     *config.Config
	cfgPath string
	srv     *http.Server
	ln      net.Listener
	level   *slog.LevelVar
	logger  *slog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer mounts the dashboard for stack and binds the listener. level
// is adjusted when the config file changes; it may be nil.
func NewServer(stack *Stack, cfgPath string, logger *slog.Logger, level *slog.LevelVar) (*Server, error) {
	cfg := stack.Config
	if level == nil {
		level = new(slog.LevelVar)
	}
	s := &Server{
		stack:   stack,
		cfg:     cfg,
		cfgPath: cfgPath,
		level:   level,
		logger:  logger,
	}

	dashOpts := []dashboard.Option{dashboard.WithPresetStore(s.savePresets)}
	if stack.Journal != nil {
		dashOpts = append(dashOpts, dashboard.WithJournal(stack.Journal))
	}
	dash := dashboard.NewServer(stack.Board, logger, dashOpts...)
	limited := limitGeneration(NewRateLimiter(cfg.Server.RateLimit, time.Minute), dash.Handler())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if stack.Metrics != nil {
		mux.Handle("GET /metrics", stack.Metrics.Handler())
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	mux.Handle("/dashboard/", limited)
	mux.Handle("/dashboard", limited)

	var h http.Handler = mux
	h = securityHeaders(h)
	h = logging(logger, stack.Metrics)(h)
	h = recovery(logger)(h)
	h = requestID(h)
	if cfg.Telemetry.Tracing {
		h = otelhttp.NewHandler(h, "controldesk.http")
	}

	bind := cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}

	// Try configured port, auto-find next available if busy.
	ln, actualPort, err := listenAutoPort(bind, cfg.Server.Port, logger)
	if err != nil {
		return nil, fmt.Errorf("binding port: %w", err)
	}
	cfg.Server.Port = actualPort

	s.ln = ln
	s.srv = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	if stack.Journal != nil {
		// Shutdown waits for active requests; ending the event streams
		// lets open dashboard tabs drop off.
		s.srv.RegisterOnShutdown(stack.Journal.Hub.Close)
	}
	return s, nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Controls int    `json:"controls"`
	Remote   string `json:"remote"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Version:  Version,
		Controls: s.stack.Board.SummaryCounts().Total,
		Remote:   s.stack.Remote.BaseURL(),
	})
}

// listenAutoPort tries the configured port; if busy, scans up to 10 higher ports.
func listenAutoPort(bind string, port int, logger *slog.Logger) (net.Listener, int, error) {
	addr := net.JoinHostPort(bind, fmt.Sprint(port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		// When port is 0, the OS assigns a random port.
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) || port == 0 {
		return nil, 0, err
	}

	logger.Warn("port in use, searching for available port", "port", port)
	for offset := 1; offset <= 10; offset++ {
		tryPort := port + offset
		ln, err = net.Listen("tcp", net.JoinHostPort(bind, fmt.Sprint(tryPort)))
		if err == nil {
			logger.Info("using alternative port", "original", port, "actual", tryPort)
			return ln, tryPort, nil
		}
	}
	return nil, 0, fmt.Errorf("port %d and next 10 ports are all in use", port)
}

// Port returns the actual port the server is bound to.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Start begins listening. Blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("controldesk dashboard starting",
		"addr", s.ln.Addr().String(),
		"remote", s.stack.Remote.BaseURL(),
		"controls", s.stack.Board.SummaryCounts().Total,
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.stack.Journal != nil && s.cfg.Journal.RetentionDays > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.retentionLoop(ctx)
		}()
	}
	if s.cfgPath != "" {
		if err := s.watchConfig(ctx); err != nil {
			s.logger.Warn("config watch disabled", "path", s.cfgPath, "error", err)
		}
	}

	err := s.srv.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and releases the stack.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if s.cancel != nil {
		s.cancel()
	}
	err := s.srv.Shutdown(ctx)
	_ = s.ln.Close() // only still open if Start was never called
	s.wg.Wait()
	if cerr := s.stack.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// retentionLoop purges journal entries older than journal.retention_days.
func (s *Server) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		s.purgeJournal()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) purgeJournal() {
	s.cfgMu.Lock()
	days := s.cfg.Journal.RetentionDays
	s.cfgMu.Unlock()
	if days <= 0 {
		return
	}
	before := time.Now().UTC().AddDate(0, 0, -days)
	n, err := s.stack.Journal.Purge(before)
	if err != nil {
		s.logger.Error("journal purge failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("journal purged", "entries", n, "before", before.Format(time.DateOnly))
	}
}

// savePresets writes presets changed from the dashboard back to the
// config file.
func (s *Server) savePresets(presets []board.Preset) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg.Presets = s.cfg.Presets[:0]
	for _, p := range presets {
		s.cfg.Presets = append(s.cfg.Presets, config.PresetFromBoard(p))
	}
	if s.cfgPath == "" {
		return nil
	}
	return s.cfg.Save(s.cfgPath)
}
