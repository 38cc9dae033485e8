package predictor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher invalidates cached artifacts when manifests or model files
// in a local model directory change.
type ArtifactWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	cache       *ArtifactCache
	dir         string
	logger      *zap.Logger
	pending     map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewArtifactWatcher prepares a watcher over dir.
func NewArtifactWatcher(dir string, cache *ArtifactCache, logger *zap.Logger) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactWatcher{
		watcher:     watcher,
		cache:       cache,
		dir:         dir,
		logger:      logger,
		pending:     make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching in a goroutine. It returns an error when the
// directory cannot be watched.
func (w *ArtifactWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching model directory", zap.String("dir", w.dir))
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *ArtifactWatcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()
	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("close watcher", zap.Error(err))
	}
}

func (w *ArtifactWatcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.debounceDur / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			w.logger.Warn("model directory watch error", zap.Error(err))
		case <-ticker.C:
			w.flush(time.Now())
		}
	}
}

func (w *ArtifactWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".onnx") {
		return
	}
	w.mu.Lock()
	w.pending[name] = time.Now()
	w.mu.Unlock()
}

// flush applies pending changes older than the debounce window.
func (w *ArtifactWatcher) flush(now time.Time) {
	var ready []string
	w.mu.Lock()
	for name, seen := range w.pending {
		if now.Sub(seen) >= w.debounceDur {
			ready = append(ready, name)
			delete(w.pending, name)
		}
	}
	w.mu.Unlock()
	for _, name := range ready {
		w.invalidate(name)
	}
}

func (w *ArtifactWatcher) invalidate(name string) {
	if strings.HasSuffix(name, ".json") {
		if kind, model, ok := ParseArtifactKey(name); ok {
			w.cache.Invalidate(kind, model)
			w.logger.Debug("artifact changed", zap.String("file", name))
			return
		}
	}
	// onnx payloads are shared by name only, so drop everything
	w.cache.Purge()
	w.logger.Debug("model file changed", zap.String("file", name))
}

// ParseArtifactKey splits a manifest key such as "mhfp6_rf.json" into its
// fingerprint kind and model name.
func ParseArtifactKey(key string) (FingerprintKind, string, bool) {
	base := strings.TrimSuffix(filepath.Base(key), ".json")
	kindKey, model, ok := strings.Cut(base, "_")
	if !ok || model == "" {
		return -1, "", false
	}
	kind, err := ParseFingerprintKind(kindKey)
	if err != nil {
		return -1, "", false
	}
	return kind, model, true
}
