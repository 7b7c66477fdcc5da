package config

import (
	"context"
	"os"
	"sync"
	"time"

	"evocrm/internal/models"

	"github.com/sirupsen/logrus"
)

// Watcher polls the configuration file and reloads it when it changes.
type Watcher struct {
	configPath string
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

// NewWatcher creates a configuration watcher for the given file.
func NewWatcher(configPath string, logger *logrus.Logger) *Watcher {
	return &Watcher{
		configPath: configPath,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the configuration and then watches the file for changes until
// the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	config, err := LoadConfig(w.configPath)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.config = config
	w.mu.Unlock()

	stat, err := os.Stat(w.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	w.logger.WithField("path", w.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(w.configPath)
			if err != nil {
				w.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}

			if stat.ModTime().After(lastModTime) {
				w.logger.Debug("Configuration file changed")
				lastModTime = stat.ModTime()

				// Small delay so a partially written file is not read
				time.Sleep(100 * time.Millisecond)
				w.reload()
			}
		}
	}
}

// GetConfig returns the current configuration.
func (w *Watcher) GetConfig() *models.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnConfigChange registers a callback invoked after every successful reload.
func (w *Watcher) OnConfigChange(callback func(*models.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *Watcher) reload() {
	newConfig, err := LoadConfig(w.configPath)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	w.mu.Lock()
	oldConfig := w.config
	w.config = newConfig
	callbacks := make([]func(*models.Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		go func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}

	w.logChanges(oldConfig, newConfig)
}

func (w *Watcher) logChanges(old, updated *models.Config) {
	if old == nil {
		return
	}

	if old.RetentionDays != updated.RetentionDays {
		w.logger.WithFields(logrus.Fields{
			"old": old.RetentionDays,
			"new": updated.RetentionDays,
		}).Info("Retention days changed")
	}
	if old.LogLevel != updated.LogLevel {
		w.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": updated.LogLevel,
		}).Info("Log level changed")
	}
	if len(old.LifecycleTags) != len(updated.LifecycleTags) {
		w.logger.WithFields(logrus.Fields{
			"old": len(old.LifecycleTags),
			"new": len(updated.LifecycleTags),
		}).Info("Lifecycle tag set changed")
	}
}
