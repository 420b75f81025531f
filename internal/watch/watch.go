// Package watch tails a server log file and converts error bursts into
// autofix incidents. Appends are debounced so a multi-line stack trace
// arrives at the detector as one blob instead of one incident per line.
package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/blazelab/blaze/internal/autofix"
	"github.com/blazelab/blaze/internal/detect"
)

// IncidentHandler receives each detected incident.
type IncidentHandler func(ctx context.Context, inc autofix.Incident)

// LogWatcher tails one log file for one incident source.
type LogWatcher struct {
	path     string
	source   autofix.Source
	detector detect.Detector
	handler  IncidentHandler
	debounce time.Duration
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu        sync.Mutex
	running   bool
	offset    int64
	buf       []byte
	lastEvent time.Time
}

// NewLogWatcher creates a LogWatcher for the given file. debounce <= 0
// defaults to 500ms. logger may be nil.
func NewLogWatcher(path string, source autofix.Source, handler IncidentHandler, debounce time.Duration, logger *zap.Logger) (*LogWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogWatcher{
		path:     path,
		source:   source,
		detector: detect.ForSource(source),
		handler:  handler,
		debounce: debounce,
		logger:   logger,
		watcher:  w,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins tailing. Existing file content is skipped: only appends
// after Start are inspected. Non-blocking.
func (lw *LogWatcher) Start(ctx context.Context) error {
	lw.mu.Lock()
	if lw.running {
		lw.mu.Unlock()
		return nil
	}
	lw.running = true
	lw.mu.Unlock()

	if info, err := os.Stat(lw.path); err == nil {
		lw.mu.Lock()
		lw.offset = info.Size()
		lw.mu.Unlock()
	}

	// Watch the parent directory so create/rotate of the file itself is
	// seen even when the file does not exist yet.
	if err := lw.watcher.Add(filepath.Dir(lw.path)); err != nil {
		return err
	}

	lw.logger.Info("watching log file",
		zap.String("path", lw.path),
		zap.String("source", string(lw.source)))

	go lw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (lw *LogWatcher) Stop() {
	lw.mu.Lock()
	if !lw.running {
		lw.mu.Unlock()
		return
	}
	lw.running = false
	lw.mu.Unlock()

	close(lw.stopCh)
	<-lw.doneCh

	if err := lw.watcher.Close(); err != nil {
		lw.logger.Error("close watcher", zap.Error(err))
	}
}

func (lw *LogWatcher) run(ctx context.Context) {
	defer close(lw.doneCh)

	ticker := time.NewTicker(lw.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lw.stopCh:
			return
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			lw.handleEvent(event)
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Error("watch error", zap.Error(err))
		case <-ticker.C:
			lw.flushSettled(ctx)
		}
	}
}

func (lw *LogWatcher) handleEvent(event fsnotify.Event) {
	if event.Name != lw.path {
		return
	}
	switch {
	case event.Op&fsnotify.Write != 0:
		lw.readAppend()
	case event.Op&fsnotify.Create != 0:
		// Rotation: start from the top of the new file.
		lw.mu.Lock()
		lw.offset = 0
		lw.mu.Unlock()
		lw.readAppend()
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		lw.mu.Lock()
		lw.offset = 0
		lw.mu.Unlock()
	}
}

// readAppend reads everything past the current offset into the pending
// buffer. Truncation resets the offset to the new end.
func (lw *LogWatcher) readAppend() {
	f, err := os.Open(lw.path)
	if err != nil {
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if info.Size() < lw.offset {
		lw.offset = info.Size()
		return
	}
	if info.Size() == lw.offset {
		return
	}
	if _, err := f.Seek(lw.offset, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return
	}
	lw.offset += int64(len(data))
	lw.buf = append(lw.buf, data...)
	lw.lastEvent = time.Now()
}

// flushSettled hands the buffered blob to the detector once no new
// append has arrived for a full debounce window.
func (lw *LogWatcher) flushSettled(ctx context.Context) {
	lw.mu.Lock()
	if len(lw.buf) == 0 || time.Since(lw.lastEvent) < lw.debounce {
		lw.mu.Unlock()
		return
	}
	blob := string(lw.buf)
	lw.buf = nil
	lw.mu.Unlock()

	inc, ok := lw.detector.Detect(blob, time.Now())
	if !ok {
		return
	}
	lw.logger.Info("incident detected",
		zap.String("source", string(lw.source)),
		zap.String("fingerprint", inc.Fingerprint))
	if lw.handler != nil {
		lw.handler(ctx, inc)
	}
}
