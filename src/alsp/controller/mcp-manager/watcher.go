package mcpmanager

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"go.uber.org/zap"
)

// configWatcher reloads servers when a config or persona file changes on
// disk. Events are debounced so editors that write in multiple steps trigger
// one reload.
type configWatcher struct {
	logger   *zap.SugaredLogger
	clock    clock.Clock
	debounce time.Duration
	onChange func()

	watched map[string]bool
	fsw     *fsnotify.Watcher

	mu    sync.Mutex
	timer clock.Timer
	done  chan struct{}
}

func newConfigWatcher(logger *zap.SugaredLogger, clk clock.Clock, paths []string, debounceMs int, onChange func()) (*configWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &configWatcher{
		logger:   logger,
		clock:    clk,
		debounce: time.Duration(debounceMs) * time.Millisecond,
		onChange: onChange,
		watched:  make(map[string]bool, len(paths)),
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	// Watch parent directories so creation of a missing config file is seen.
	dirs := make(map[string]bool)
	for _, p := range paths {
		w.watched[filepath.Clean(p)] = true
		dirs[filepath.Dir(p)] = true
	}
	watching := 0
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			logger.Debugf("not watching %s: %s", dir, err)
			continue
		}
		watching++
	}
	if watching == 0 {
		_ = fsw.Close()
		return nil, fmt.Errorf("no config directories available to watch")
	}

	go w.run()
	return w, nil
}

func (w *configWatcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debugf("config file changed: %s", event.Name)
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("config watcher error: %s", err)
		case <-w.done:
			return
		}
	}
}

// schedule restarts the debounce timer; only the last event in a burst fires.
func (w *configWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = w.clock.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()
		w.onChange()
	})
}

func (w *configWatcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	close(w.done)
	return w.fsw.Close()
}
