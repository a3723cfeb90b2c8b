package botsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentworkforce/botsync/internal/logging"
)

// Runner is anything that can run one sync; *Syncer satisfies it.
type Runner interface {
	Sync(ctx context.Context) error
}

type WatcherOptions struct {
	// Paths are directories whose changes trigger a sync. Missing
	// directories are picked up once they are created inside another
	// watched path.
	Paths          []string
	Debounce       time.Duration
	Interval       time.Duration
	IntervalJitter float64
	Logger         *slog.Logger
}

// Watcher runs syncs on local changes and, optionally, on a timer. Syncs
// always run on the watcher goroutine, one at a time.
type Watcher struct {
	runner         Runner
	paths          []string
	debounce       time.Duration
	interval       time.Duration
	intervalJitter float64
	logger         *slog.Logger
	rng            *rand.Rand
}

func NewWatcher(runner Runner, opts WatcherOptions) (*Watcher, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if len(opts.Paths) == 0 && opts.Interval <= 0 {
		return nil, fmt.Errorf("watch needs at least one path or a positive interval")
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	paths := make([]string, 0, len(opts.Paths))
	for _, path := range opts.Paths {
		paths = append(paths, filepath.Clean(path))
	}
	return &Watcher{
		runner:         runner,
		paths:          paths,
		debounce:       debounce,
		interval:       opts.Interval,
		intervalJitter: ClampJitterRatio(opts.IntervalJitter),
		logger:         logging.OrDiscard(opts.Logger),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run syncs once immediately, then on every debounced change until ctx is
// done. Failed syncs are logged and the watcher keeps going.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()
	for _, path := range w.paths {
		if err := w.add(fsWatcher, path); err != nil {
			return err
		}
	}

	w.runOnce(ctx, "startup")

	var debounceTimer *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	var intervalC <-chan time.Time
	var intervalTimer *time.Timer
	if w.interval > 0 {
		intervalTimer = time.NewTimer(w.nextInterval())
		defer intervalTimer.Stop()
		intervalC = intervalTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopping", logging.Error(ctx.Err()))
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) && w.isWatchedPath(event.Name) {
				if err := w.add(fsWatcher, event.Name); err != nil {
					w.logger.Warn("watch add failed", slog.String("path", event.Name), logging.Error(err))
				}
			}
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(w.debounce)
			} else {
				debounceTimer.Reset(w.debounce)
			}
			debounceC = debounceTimer.C
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", logging.Error(err))
		case <-debounceC:
			debounceC = nil
			w.runOnce(ctx, "change")
		case <-intervalC:
			w.runOnce(ctx, "interval")
			intervalTimer.Reset(w.nextInterval())
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	if err := w.runner.Sync(ctx); err != nil {
		w.logger.Error("watch sync failed", slog.String("trigger", trigger), logging.Error(err))
		return
	}
	w.logger.Info("watch sync completed", slog.String("trigger", trigger))
}

func (w *Watcher) add(fsWatcher *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	return fsWatcher.Add(path)
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	return base != "" && base[0] != '.'
}

func (w *Watcher) isWatchedPath(path string) bool {
	path = filepath.Clean(path)
	for _, candidate := range w.paths {
		if candidate == path {
			return true
		}
	}
	return false
}

func (w *Watcher) nextInterval() time.Duration {
	return JitteredInterval(w.interval, w.intervalJitter, w.rng.Float64())
}

func ClampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// JitteredInterval spreads base by ±jitterRatio, with sample in [0,1]
// picking the point in that range.
func JitteredInterval(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = ClampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
