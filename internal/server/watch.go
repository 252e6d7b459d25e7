package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/controldesk/controldesk/internal/config"
)

// reloadDebounce groups the burst of events an editor or atomic rename
// produces into one reload.
const reloadDebounce = 200 * time.Millisecond

// watchConfig reloads the config file whenever it changes. The directory
// is watched rather than the file so atomic renames are seen.
func (s *Server) watchConfig(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	path, err := filepath.Abs(s.cfgPath)
	if err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = w.Close() }()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				s.reloadConfig()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watch error", "error", err)
			}
		}
	}()
	return nil
}

// reloadConfig applies the hot-reloadable settings: log level, filter
// presets, webhooks and journal retention. Everything else needs a restart.
func (s *Server) reloadConfig() {
	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		s.logger.Error("config reload failed", "path", s.cfgPath, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		s.logger.Error("config reload rejected", "path", s.cfgPath, "error", err)
		return
	}

	s.level.Set(cfg.Server.Level())
	s.stack.Board.SetPresets(cfg.BoardPresets())
	s.stack.Notifier.SetWebhooks(cfg.Webhooks)

	s.cfgMu.Lock()
	s.cfg.Server.LogLevel = cfg.Server.LogLevel
	s.cfg.Presets = cfg.Presets
	s.cfg.Webhooks = cfg.Webhooks
	s.cfg.Journal.RetentionDays = cfg.Journal.RetentionDays
	s.cfgMu.Unlock()

	s.logger.Info("config reloaded",
		"log_level", cfg.Server.LogLevel,
		"presets", len(cfg.Presets),
		"webhooks", s.stack.Notifier.Count(),
	)
}
