// Package config provides configuration management for peerscan.
//
// Config file locations (priority order):
//  1. $PEERSCAN_CONFIG (must exist when set)
//  2. ./peerscan.yaml
//  3. $XDG_CONFIG_HOME/peerscan/config.yaml or ~/.config/peerscan/config.yaml
//  4. /etc/peerscan/config.yaml
//
// SERVICE_NAME, REPLICA_COUNT and PORT override the file. They are read from
// the process environment, then from .env in the working directory, then
// from .env beside the config file. Every load and reload re-reads them.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"peerscan/internal/discovery"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Environment variables understood on top of the file
const (
	EnvServiceName  = "SERVICE_NAME"
	EnvReplicaCount = "REPLICA_COUNT"
	EnvPort         = "PORT"
)

// LookupFunc reads an environment variable
type LookupFunc func(key string) (string, bool)

// Load finds and loads the config file, or returns defaults if none found.
// Environment and .env overrides are applied and the result is validated.
func Load() (*Config, string, error) {
	lookup, err := EnvLookup("")
	if err != nil {
		return nil, "", err
	}

	path, err := FindConfigPath(lookup)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		return LoadFromPath(path)
	}

	cfg := DefaultConfig()
	if err := cfg.finish(lookup); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

// LoadFromPath loads config from a specific path, applying the environment
// and the .env files in the working directory and beside path
func LoadFromPath(path string) (*Config, string, error) {
	lookup, err := EnvLookup(path)
	if err != nil {
		return nil, path, err
	}

	cfg, err := parseFile(path)
	if err != nil {
		return nil, path, err
	}
	if err := cfg.finish(lookup); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) finish(lookup LookupFunc) error {
	if err := c.ApplyEnv(lookup); err != nil {
		return err
	}
	return c.Validate()
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{Name: "main-service", ReplicaCount: 3},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(60 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Discovery: discovery.DefaultConfig(),
		Prober:    ProberTCP,
		Database:  DatabaseConfig{Keep: 1000},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// applyDefaults fills in values an explicit empty YAML field cleared
func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "main-service"
	}
	if c.Prober == "" {
		c.Prober = ProberTCP
	}
	if c.Discovery.Order == "" {
		c.Discovery.Order = discovery.OrderLexical
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// ApplyEnv overrides the service name, replica count and port from the environment.
// PORT sets both the listener and the discovery port; replicas serve and scan the same port.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if v, ok := lookup(EnvServiceName); ok && v != "" {
		c.Service.Name = v
	}
	if v, ok := lookup(EnvReplicaCount); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvReplicaCount, v)
		}
		c.Service.ReplicaCount = n
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvPort, v)
		}
		c.Server.Port = n
		c.Discovery.Port = n
	}
	return nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks the whole config, including the discovery section
func (c *Config) Validate() error {
	var problems []string

	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		for _, e := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fieldPath(e), e.Tag(), e.Param()))
		}
	}

	if err := c.Discovery.Validate(); err != nil {
		problems = append(problems, "discovery: "+err.Error())
	}

	if c.Rescan.Interval.Duration() < 0 {
		problems = append(problems, "rescan.interval must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	d := c.Discovery
	summary := fmt.Sprintf("Service: %s, expected replicas: %d, listen: %s:%d\n",
		c.Service.Name, c.Service.ReplicaCount, c.Server.Host, c.Server.Port)
	summary += fmt.Sprintf("Discovery: port %d, third octet [%d,%d), fourth octet [%d,%d), %d candidates, prober %s\n",
		d.Port, d.ThirdOctet.Lo, d.ThirdOctet.Hi, d.FourthOctet.Lo, d.FourthOctet.Hi, d.Candidates(), c.Prober)
	summary += fmt.Sprintf("Worst case scan: %s, budget: %s, rescan: %s",
		d.WorstCase(), d.Budget, c.Rescan.Interval.Duration())
	return summary
}
