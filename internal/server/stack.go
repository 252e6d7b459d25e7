// Package server wires the controldesk components together and serves the
// dashboard over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/controldesk/controldesk/internal/audit"
	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/cache"
	"github.com/controldesk/controldesk/internal/config"
	"github.com/controldesk/controldesk/internal/notify"
	"github.com/controldesk/controldesk/internal/remote"
	"github.com/controldesk/controldesk/internal/scan"
	"github.com/controldesk/controldesk/internal/telemetry"
)

// Stack holds the components shared by every front end: the HTTP
// dashboard, the TUI, the MCP server and the CLI.
type Stack struct {
	Config   *config.Config
	Board    *board.State
	Remote   *remote.Client
	Journal  *audit.Store // nil when journal.path is empty
	Notifier *notify.Notifier
	Metrics  *telemetry.Metrics // nil when telemetry.metrics is off
	Scanner  *scan.Scanner      // nil when scan.enabled is off

	closers []func(context.Context) error
}

// StackOption adjusts stack construction.
type StackOption func(*stackOptions)

type stackOptions struct {
	traceOut io.Writer
}

// WithTraceOutput sets where spans are written when tracing is enabled.
// The default is stderr so stdio transports stay clean.
func WithTraceOutput(w io.Writer) StackOption {
	return func(o *stackOptions) { o.traceOut = w }
}

// NewStack builds the components described by cfg. When
// remote.load_on_start is set the board is filled from the remote
// service; a failure there is logged and the board starts empty.
func NewStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...StackOption) (*Stack, error) {
	o := stackOptions{traceOut: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Stack{Config: cfg}
	fail := func(err error) (*Stack, error) {
		_ = s.Close(context.Background())
		return nil, err
	}

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.SetupTracing(cfg.Telemetry.ServiceName, o.traceOut)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, shutdown)
	}

	var remoteOpts []remote.Option
	if cfg.Remote.TimeoutSeconds > 0 {
		remoteOpts = append(remoteOpts, remote.WithTimeout(time.Duration(cfg.Remote.TimeoutSeconds)*time.Second))
	}
	if cfg.Telemetry.Metrics {
		s.Metrics = telemetry.NewMetrics()
		remoteOpts = append(remoteOpts, remote.WithCallObserver(s.Metrics.ObserveRemote))
	}
	s.Remote = remote.NewClient(cfg.Remote.URL, remoteOpts...)

	boardOpts, err := s.documentOptions(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}

	if cfg.Journal.Path != "" {
		j, err := audit.NewStore(cfg.Journal.Path, logger)
		if err != nil {
			return fail(fmt.Errorf("opening journal: %w", err))
		}
		s.Journal = j
		s.closers = append(s.closers, func(context.Context) error { return j.Close() })
		boardOpts = append(boardOpts, board.WithObserver(j))
	}

	s.Notifier = notify.NewNotifier(cfg.Webhooks, logger)
	boardOpts = append(boardOpts, board.WithObserver(s.Notifier))
	s.closers = append(s.closers, func(context.Context) error {
		s.Notifier.Wait()
		return nil
	})

	if s.Metrics != nil {
		boardOpts = append(boardOpts, board.WithObserver(s.Metrics))
	}

	s.Board = board.New(s.Remote, logger, boardOpts...)
	s.Board.SetPresets(cfg.BoardPresets())
	if s.Metrics != nil {
		s.Metrics.TrackSummary(s.Board.SummaryCounts)
	}

	if cfg.Remote.LoadOnStart {
		if res := s.Board.Reload(ctx); !res.OK {
			logger.Warn("initial load failed, starting with an empty board", "reason", res.Message)
		}
	}
	return s, nil
}

// documentOptions builds the cache and scanner used for generated documents.
func (s *Stack) documentOptions(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]board.Option, error) {
	var opts []board.Option
	ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute

	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.Prefix, ttl)
		if err != nil {
			return nil, fmt.Errorf("connecting document cache: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return rc.Close() })
		opts = append(opts, board.WithCache(rc))
		logger.Info("document cache", "backend", "redis")
	case "memory", "":
		opts = append(opts, board.WithCache(cache.NewMemory(ttl)))
	}

	if cfg.Scan.Enabled {
		sev, err := scan.ParseSeverity(cfg.Scan.BlockSeverity)
		if err != nil {
			return nil, err
		}
		s.Scanner = scan.NewScanner(cfg.Scan.CustomRulesDir, sev)
		s.closers = append(s.closers, func(context.Context) error { return s.Scanner.Close() })
		opts = append(opts, board.WithScanner(s.Scanner))
	}
	return opts, nil
}

// Close releases the stack in reverse construction order.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
