package config

import (
	"sync/atomic"
)

// Live holds the current config and swaps it on reload.
// Readers always see a complete, validated Config.
type Live struct {
	path    string
	current atomic.Pointer[Config]
}

// NewLive wraps cfg, loaded from path (empty when running on defaults)
func NewLive(cfg *Config, path string) *Live {
	l := &Live{path: path}
	l.current.Store(cfg)
	return l
}

// Get returns the current config. Callers must not modify it.
func (l *Live) Get() *Config {
	return l.current.Load()
}

// Path returns the file the config was loaded from
func (l *Live) Path() string {
	return l.path
}

// Reload re-reads the file. On error the current config is kept.
func (l *Live) Reload() (*Config, error) {
	cfg, _, err := LoadFromPath(l.path)
	if err != nil {
		return nil, err
	}
	l.current.Store(cfg)
	return cfg, nil
}
