package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
)

const defaultReloadDebounce = 300 * time.Millisecond

type reloadableStore interface {
	Source() string
	Records() []models.StudentRecord
	Reload(ctx context.Context) (*models.LoadResult, error)
}

// RecordEncoder renders records exactly as the backing file stores them.
type RecordEncoder func(records []models.StudentRecord) []byte

// ReloadWatcher reloads the store when its data file is changed by another
// program. Writes made by the store itself are recognised by comparing the
// file with the encoding of the records in memory and are ignored.
type ReloadWatcher struct {
	store    reloadableStore
	encode   RecordEncoder
	logger   *zap.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	dir     string
	pending bool
	strayed bool
	done    chan struct{}
}

// NewReloadWatcher creates a watcher; call Start to begin watching.
func NewReloadWatcher(store reloadableStore, encode RecordEncoder, logger *zap.Logger, debounce time.Duration) (*ReloadWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &ReloadWatcher{
		store:    store,
		encode:   encode,
		logger:   logger,
		debounce: debounce,
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directory holding the store's current source. Watching
// the directory rather than the file survives the rename used by saves, and
// lets the watcher follow the store when it is re-pointed to a sibling file.
func (w *ReloadWatcher) Start(ctx context.Context) error {
	path, err := filepath.Abs(w.store.Source())
	if err != nil {
		return fmt.Errorf("resolve data file: %w", err)
	}
	if err := w.watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w.mu.Lock()
	w.dir = filepath.Dir(path)
	w.mu.Unlock()

	go w.run(ctx)
	w.logger.Info("watching data file", zap.String("path", path), zap.Duration("debounce", w.debounce))
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *ReloadWatcher) Stop() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *ReloadWatcher) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case <-ticker.C:
			if w.takePending() {
				if _, err := w.CheckNow(ctx); err != nil {
					w.logger.Warn("data file reload failed", zap.Error(err))
				}
			}
		}
	}
}

func (w *ReloadWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	current, err := filepath.Abs(w.store.Source())
	if err != nil || name != current {
		return
	}
	w.mu.Lock()
	w.pending = true
	w.mu.Unlock()
}

// follows reports whether path is inside the watched directory and warns
// once each time the store leaves it.
func (w *ReloadWatcher) follows(dir, path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if filepath.Dir(path) == dir {
		w.strayed = false
		return true
	}
	if !w.strayed {
		w.strayed = true
		w.logger.Warn("data file outside watched directory, external changes are not tracked",
			zap.String("watched", dir),
			zap.String("source", path))
	}
	return false
}

func (w *ReloadWatcher) takePending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	pending := w.pending
	w.pending = false
	return pending
}

// CheckNow compares the data file with the records in memory and reloads
// when they differ. It reports whether a reload happened.
func (w *ReloadWatcher) CheckNow(ctx context.Context) (bool, error) {
	w.mu.Lock()
	dir := w.dir
	w.mu.Unlock()
	if dir == "" {
		return false, errors.New("watcher not started")
	}

	path, err := filepath.Abs(w.store.Source())
	if err != nil {
		return false, fmt.Errorf("resolve data file: %w", err)
	}
	if !w.follows(dir, path) {
		return false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read data file: %w", err)
	}
	if bytes.Equal(content, w.encode(w.store.Records())) {
		return false, nil
	}

	result, err := w.store.Reload(ctx)
	if err != nil {
		return false, err
	}
	w.logger.Info("data file changed externally, reloaded",
		zap.String("path", path),
		zap.Int("loaded", result.Loaded),
		zap.Int("corrupted", result.Corrupted))
	return true, nil
}
