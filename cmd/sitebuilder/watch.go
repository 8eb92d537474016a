package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// debounceWindow coalesces filesystem event bursts (editor save storms,
// database checkpoints) into one rebuild.
const debounceWindow = 500 * time.Millisecond

func runWatch(logger *slog.Logger) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	svc, cleanup, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rebuild := func(force bool) {
		// A newly started build supersedes a running one via the service's
		// own cancellation, so overlapping triggers are safe.
		if _, err := svc.Run(ctx, build.BuildRequest{
			Config:  cfg,
			Options: build.BuildOptions{Force: force, Verbose: CLI.Verbose},
		}); err != nil && ctx.Err() == nil {
			logger.Error("rebuild failed", logfields.Error(err))
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range []string{cfg.Theme.Dir, cfg.Plugins.Dir} {
		if err := watchTree(watcher, root); err != nil {
			logger.Warn("watch unavailable", logfields.Path(root), logfields.Error(err))
		}
	}
	watcher.Add(CLI.Config)         //nolint:errcheck
	watcher.Add(cfg.Build.Database) //nolint:errcheck

	// Optional periodic full rebuild for content that changes without
	// filesystem events (e.g. a remote database).
	if CLI.Watch.Interval != "" {
		interval, err := time.ParseDuration(CLI.Watch.Interval)
		if err != nil {
			return err
		}
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}
		if _, err := scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() { rebuild(false) }),
		); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Shutdown() //nolint:errcheck
		logger.Info("periodic rebuild scheduled", slog.Duration("interval", interval))
	}

	logger.Info("watching for changes")
	rebuild(false)

	var timer *time.Timer
	trigger := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories must be added to the watch set.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					watcher.Add(ev.Name) //nolint:errcheck
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logfields.Error(err))
		case <-trigger:
			logger.Info("change detected, rebuilding")
			rebuild(false)
		}
	}
}

// watchTree registers root and every directory below it.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
