// Package trigger decides when `seeflaw watch` runs a test again.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/seeflaw/seeflaw/internal/config"
)

// Trigger blocks until the next run is due.
type Trigger interface {
	Wait(ctx context.Context) error
	Close() error
}

// New builds the trigger configured in cfg. files are watched by a watch
// trigger.
func New(cfg config.Trigger, files []string, logger *slog.Logger) (Trigger, error) {
	switch {
	case cfg.Interval != "":
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("trigger interval: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("trigger interval must be positive, got %s", d)
		}
		return &Interval{Every: d}, nil
	case cfg.Cron != "":
		return NewCron(cfg.Cron)
	case cfg.Watch:
		return NewWatch(files, logger)
	}
	return nil, fmt.Errorf("no trigger configured: set trigger.interval, trigger.cron or trigger.watch")
}

// Loop runs fn once and again each time t fires, until ctx is done.
func Loop(ctx context.Context, t Trigger, fn func(context.Context)) error {
	for {
		fn(ctx)
		if err := t.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Interval fires at a fixed period after each run.
type Interval struct {
	Every time.Duration
}

func (i *Interval) Wait(ctx context.Context) error {
	return sleep(ctx, i.Every)
}

func (i *Interval) Close() error { return nil }

// Cron fires on a standard five-field cron schedule.
type Cron struct {
	schedule cron.Schedule
	now      func() time.Time
}

// NewCron parses spec.
func NewCron(spec string) (*Cron, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("trigger cron %q: %w", spec, err)
	}
	return &Cron{schedule: s, now: time.Now}, nil
}

// Next returns the first activation after t.
func (c *Cron) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

func (c *Cron) Wait(ctx context.Context) error {
	now := c.now()
	return sleep(ctx, c.Next(now).Sub(now))
}

func (c *Cron) Close() error { return nil }

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settle is how long a watch trigger waits for writes to stop.
const settle = 200 * time.Millisecond

// Watch fires when one of its files is written, created, renamed or
// removed. The parent directories are watched so that editors replacing a
// file are noticed.
type Watch struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu    sync.Mutex
	files map[string]bool
}

// NewWatch watches files.
func NewWatch(files []string, logger *slog.Logger) (*Watch, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	tw := &Watch{watcher: w, logger: logger, files: make(map[string]bool)}
	if err := tw.SetFiles(files); err != nil {
		w.Close()
		return nil, err
	}
	return tw, nil
}

// SetFiles replaces the watched files.
func (w *Watch) SetFiles(files []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make(map[string]bool)
	w.files = make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", f, err)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for _, d := range w.watcher.WatchList() {
		if !dirs[d] {
			_ = w.watcher.Remove(d)
		}
	}
	for d := range dirs {
		if err := w.watcher.Add(d); err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}
	return nil
}

func (w *Watch) watched(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// Wait returns after a change to a watched file once no further events
// arrive for a short while.
func (w *Watch) Wait(ctx context.Context) error {
	var timer <-chan time.Time
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if ev.Op == fsnotify.Chmod || !w.watched(ev.Name) {
				continue
			}
			w.logger.Debug("file changed", "file", ev.Name, "op", ev.Op.String())
			timer = time.After(settle)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watch) Close() error {
	return w.watcher.Close()
}
