package profanity

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay waits for editors that write a file in several steps.
const settleDelay = 200 * time.Millisecond

// Watcher serves the current filter and rebuilds it when the extra
// block-list file changes on disk.
type Watcher struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Filter]

	fs    *fsnotify.Watcher
	mu    sync.Mutex
	timer *time.Timer
	wg    sync.WaitGroup
}

// NewWatcher loads path (one word per line, # comments) on top of the
// built-in list. An empty path yields a static watcher over the default list.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	w := &Watcher{path: path, logger: logger}
	if path == "" {
		w.current.Store(Default)
		return w, nil
	}

	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	w.current.Store(f)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Watch the directory so atomic renames over the file are seen.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w.fs = fsw
	return w, nil
}

// Filter returns the filter in effect.
func (w *Watcher) Filter() *Filter {
	return w.current.Load()
}

// Check runs the current filter.
func (w *Watcher) Check(text string) Result {
	return w.Filter().Check(text)
}

// Start processes file events until ctx is done. No-op for a static watcher.
func (w *Watcher) Start(ctx context.Context) {
	if w.fs == nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fs.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.scheduleReload()
				}
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				w.logger.Warn("block list watcher error", "error", err)
			}
		}
	}()
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	if w.fs == nil {
		return nil
	}
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(settleDelay, w.reload)
}

func (w *Watcher) reload() {
	f, err := LoadFile(w.path)
	if err != nil {
		// Keep serving the previous list.
		w.logger.Warn("failed to reload block list", "path", w.path, "error", err)
		return
	}
	w.current.Store(f)
	w.logger.Info("block list reloaded", "path", w.path, "words", f.Len())
}

// LoadFile reads extra words from path and merges them with the built-in list.
func LoadFile(path string) (*Filter, error) {
	file, err := os.Open(path) //#nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("open block list: %w", err)
	}
	defer file.Close()

	var extra []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		extra = append(extra, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read block list: %w", err)
	}
	return New(extra...), nil
}
