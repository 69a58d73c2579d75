package config

import (
	"slices"
	"sync"
)

// AppConfig is the authoritative per-application log sampling config.
type AppConfig struct {
	Enabled          bool
	MaxSamplesStored int
}

// Provider supplies per-application settings and change notification.
// Implementations may push changes at any time; consumers cache reads
// and re-read after a change notification.
type Provider interface {
	AppConfig(appName string) AppConfig
	OnChange(fn func(appName string, cfg AppConfig))
}

// Static is a Provider backed by the process environment, with per-app
// overrides settable at runtime (config reloads, tests).
type Static struct {
	defaults AppConfig

	mu        sync.RWMutex
	overrides map[string]AppConfig
	listeners []func(string, AppConfig)
}

func NewStatic(cfg *Config) *Static {
	return &Static{
		defaults: AppConfig{
			Enabled:          cfg.LogSendingEnabled,
			MaxSamplesStored: cfg.MaxSamplesStored,
		},
		overrides: make(map[string]AppConfig),
	}
}

func (s *Static) AppConfig(appName string) AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if override, ok := s.overrides[appName]; ok {
		return override
	}
	return s.defaults
}

// SetAppConfig installs an override for appName and notifies listeners.
func (s *Static) SetAppConfig(appName string, cfg AppConfig) {
	s.mu.Lock()
	s.overrides[appName] = cfg
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(appName, cfg)
	}
}

func (s *Static) OnChange(fn func(appName string, cfg AppConfig)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
