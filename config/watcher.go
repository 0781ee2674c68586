package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/logger"
)

// ConfigWatcher watches the config file and triggers reload callbacks.
// The serve daemon subscribes to apply scheduler interval and send-rate
// changes without a restart.
type ConfigWatcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	logger     *zap.SugaredLogger

	mu            sync.RWMutex
	callbacks     []ReloadCallback
	debounceTimer *time.Timer

	isOwnWrite      bool
	isOwnWriteMutex sync.Mutex
}

// ReloadCallback receives the freshly loaded config after a file change
type ReloadCallback func(*Config) error

// debouncePeriod coalesces the burst of write events editors emit per save
const debouncePeriod = 500 * time.Millisecond

var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher creates a watcher over the given config file
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", configPath)
	}

	return &ConfigWatcher{
		configPath: configPath,
		watcher:    watcher,
		logger:     logger.ComponentLogger("config"),
	}, nil
}

// OnReload registers a callback invoked after each successful reload
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// MarkOwnWrite marks the next write as coming from us, preventing a
// reload loop when Save rewrites the watched file.
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()
	cw.isOwnWrite = true
}

func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()
	if cw.isOwnWrite {
		cw.isOwnWrite = false
		return true
	}
	return false
}

// Start begins watching for config file changes
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

// Stop closes the underlying watcher
func (cw *ConfigWatcher) Stop() error {
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if cw.checkOwnWrite() {
				cw.logger.Debugw("Ignoring own config write", "file", event.Name)
				continue
			}
			cw.logger.Infow("Config change detected", "file", event.Name, "op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warnw("Config watcher error", "error", err)
		}
	}
}

// scheduleReload debounces rapid file changes before reloading
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(debouncePeriod, func() {
		if err := cw.reload(); err != nil {
			cw.logger.Errorw("Config reload failed", "error", err)
		}
	})
}

func (cw *ConfigWatcher) reload() error {
	cfg, err := LoadFromFile(cw.configPath)
	if err != nil {
		return err
	}
	cw.logger.Infow("Config reloaded", "path", cw.configPath)

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(cfg); err != nil {
			// One failing subscriber must not starve the others.
			cw.logger.Warnw("Config reload callback error", "error", err)
		}
	}
	return nil
}

// SetGlobalWatcher records the daemon's watcher so Save can suppress the
// reload of its own write.
func SetGlobalWatcher(watcher *ConfigWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}

// GetGlobalWatcher returns the daemon's watcher, nil outside serve
func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
