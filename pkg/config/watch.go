package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marmos91/opcuad/internal/logger"
)

// Watcher reloads a config file when it changes on disk.
//
// Only settings that are safe to change at runtime are applied by the
// caller; today that is the log level.
type Watcher struct {
	v        *viper.Viper
	onChange func(*Config)
}

// Watch starts watching path. onChange receives every successfully
// reloaded and validated configuration; invalid edits are logged and
// ignored.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	v := viper.New()
	setupViper(v, path)
	bindDefaults(v)
	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	w := &Watcher{v: v, onChange: onChange}
	v.OnConfigChange(w.handle)
	v.WatchConfig()
	return w, nil
}

func (w *Watcher) handle(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}

	cfg, err := decode(w.v)
	if err != nil {
		logger.Warn("Ignoring invalid configuration change",
			"file", e.Name,
			logger.KeyError, err)
		return
	}

	logger.Info("Configuration reloaded", "file", e.Name)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// ApplyRuntime applies the hot-reloadable settings of cfg.
func ApplyRuntime(cfg *Config) {
	logger.SetLevel(cfg.Logging.Level)
}
