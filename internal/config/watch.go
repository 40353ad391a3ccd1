package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// StrategyListener receives the new strategy section after a reload.
type StrategyListener func(StrategyConfig)

// Watcher reloads the config file on change and notifies listeners when the
// strategy section differs. Other sections need a restart and are ignored.
// An invalid file is logged and the previous config is kept.
type Watcher struct {
	mu        sync.RWMutex
	current   *Config
	listeners []StrategyListener
	logger    *zap.Logger
}

// Watch loads path and starts watching it. path must name a file.
func Watch(path string, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch config: path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	w := &Watcher{current: cfg, logger: logger.Named("config")}
	v.OnConfigChange(func(evt fsnotify.Event) {
		w.reload(v, evt)
	})
	v.WatchConfig()
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnStrategyChange registers fn for strategy section changes.
func (w *Watcher) OnStrategyChange(fn StrategyListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) reload(v *viper.Viper, evt fsnotify.Event) {
	cfg, err := decode(v)
	if err != nil {
		w.logger.Error("config reload rejected, keeping previous config",
			zap.String("file", evt.Name),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	listeners := append([]StrategyListener(nil), w.listeners...)
	w.mu.Unlock()

	if reflect.DeepEqual(prev.Strategy, cfg.Strategy) {
		w.logger.Debug("config reloaded, strategy section unchanged", zap.String("file", evt.Name))
		return
	}
	w.logger.Info("strategy config reloaded",
		zap.String("file", evt.Name),
		zap.Strings("entry", cfg.Strategy.Entry),
		zap.String("error_policy", cfg.Strategy.ErrorPolicy),
	)
	for _, fn := range listeners {
		fn(cfg.Strategy)
	}
}
