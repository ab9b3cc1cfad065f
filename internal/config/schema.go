package config

import (
	"time"

	"peerscan/internal/discovery"
)

// ProberKind selects the stage-one reachability backend
type ProberKind string

const (
	ProberTCP  ProberKind = "tcp"
	ProberNmap ProberKind = "nmap"
)

// Config is the root configuration structure
type Config struct {
	Service   ServiceConfig    `yaml:"service"`
	Server    ServerConfig     `yaml:"server"`
	Discovery discovery.Config `yaml:"discovery" validate:"-"`
	Prober    ProberKind       `yaml:"prober" validate:"oneof=tcp nmap"`
	Rescan    RescanConfig     `yaml:"rescan"`
	Database  DatabaseConfig   `yaml:"database"`
	Log       LogConfig        `yaml:"log"`
}

// ServiceConfig names this replica set
type ServiceConfig struct {
	Name         string `yaml:"name" validate:"required"`
	ReplicaCount int    `yaml:"replica_count" validate:"gte=0"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// RescanConfig controls the periodic rescanner
type RescanConfig struct {
	Interval Duration `yaml:"interval"` // 0 = disabled
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`                  // empty = no run history
	Keep int    `yaml:"keep" validate:"gte=0"` // newest runs retained, 0 = all
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
