package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/svcdeck/internal/cron"
	"github.com/loykin/svcdeck/internal/detector"
	"github.com/loykin/svcdeck/internal/logger"
	"github.com/loykin/svcdeck/internal/registry"
	svctls "github.com/loykin/svcdeck/internal/tls"
	"github.com/loykin/svcdeck/internal/unit"
)

// EnvPrefix prefixes environment overrides, e.g. SVCDECK_SERVER_LISTEN.
const EnvPrefix = "SVCDECK"

// Config is the top-level TOML structure.
type Config struct {
	Self     string          `mapstructure:"self"`
	Server   ServerConfig    `mapstructure:"server"`
	Log      logger.Config   `mapstructure:"log"`
	Probe    ProbeConfig     `mapstructure:"probe"`
	Control  ControlConfig   `mapstructure:"control"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	History  HistoryConfig   `mapstructure:"history"`
	Services []ServiceConfig `mapstructure:"services"`
}

type ServerConfig struct {
	Listen   string        `mapstructure:"listen"`
	BasePath string        `mapstructure:"base_path"`
	Auth     AuthConfig    `mapstructure:"auth"`
	TLS      svctls.Config `mapstructure:"tls"`
}

// AuthConfig gates control routes behind an HS256 bearer token carrying a role claim.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminRole string `mapstructure:"admin_role"`
}

type ProbeConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PortResolver string        `mapstructure:"port_resolver"`
	Concurrency  int           `mapstructure:"concurrency"`
}

type ControlConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Grace        time.Duration `mapstructure:"grace"`
	LogDir       string        `mapstructure:"log_dir"`
	QueryScopes  [][]string    `mapstructure:"query_scopes"`
	ActionScopes [][]string    `mapstructure:"action_scopes"`
	// Env is layered over the supervisor's environment for every raw launch.
	Env          []string      `mapstructure:"env"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Refresh string `mapstructure:"refresh"`
}

type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ServiceConfig struct {
	Name        string   `mapstructure:"name"`
	Kind        string   `mapstructure:"kind"`
	Unit        string   `mapstructure:"unit"`
	Port        int      `mapstructure:"port"`
	WorkDir     string   `mapstructure:"workdir"`
	Command     string   `mapstructure:"command"`
	Description string   `mapstructure:"description"`
	LogFile     string   `mapstructure:"log_file"`
	Env         []string `mapstructure:"env"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8795")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.auth.admin_role", "admin")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("probe.timeout", "5s")
	v.SetDefault("probe.port_resolver", detector.KindAuto)
	v.SetDefault("control.timeout", "15s")
	v.SetDefault("control.grace", "2s")
	v.SetDefault("control.log_dir", "/tmp")
	v.SetDefault("control.query_scopes", scopesToRaw(unit.DefaultQueryScopes()))
	v.SetDefault("control.action_scopes", scopesToRaw(unit.DefaultActionScopes()))
	v.SetDefault("metrics.listen", ":9795")
	v.SetDefault("metrics.refresh", "@every 30s")
}

func scopesToRaw(ss []unit.Scope) [][]string {
	out := make([][]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, []string(s))
	}
	return out
}

// Load reads a TOML file, applies defaults and SVCDECK_* overrides, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Registry(); err != nil {
		errs = append(errs, err)
	} else if c.Self != "" && !c.hasService(c.Self) {
		errs = append(errs, fmt.Errorf("self %q is not a configured service", c.Self))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Server.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Auth.Enabled && c.Server.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("server.auth.jwt_secret is required when auth is enabled"))
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, errors.New("probe.timeout must be positive"))
	}
	if c.Probe.Concurrency < 0 {
		errs = append(errs, errors.New("probe.concurrency must not be negative"))
	}
	switch strings.ToLower(c.Probe.PortResolver) {
	case "", detector.KindAuto, detector.KindSS, detector.KindSocket:
	default:
		errs = append(errs, fmt.Errorf("unknown probe.port_resolver %q", c.Probe.PortResolver))
	}
	if c.Control.Timeout <= 0 {
		errs = append(errs, errors.New("control.timeout must be positive"))
	}
	if c.Control.Grace < 0 {
		errs = append(errs, errors.New("control.grace must not be negative"))
	}
	if _, err := unit.ParseScopes(c.Control.QueryScopes); err != nil {
		errs = append(errs, fmt.Errorf("control.query_scopes: %w", err))
	}
	if _, err := unit.ParseScopes(c.Control.ActionScopes); err != nil {
		errs = append(errs, fmt.Errorf("control.action_scopes: %w", err))
	}
	if c.Metrics.Refresh != "" {
		if _, err := cron.ParseSchedule(c.Metrics.Refresh); err != nil {
			errs = append(errs, fmt.Errorf("metrics.refresh: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) hasService(name string) bool {
	for _, s := range c.Services {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Registry converts the [[services]] entries into a validated registry.
func (c *Config) Registry() (*registry.Registry, error) {
	ds := make([]registry.Descriptor, 0, len(c.Services))
	for _, s := range c.Services {
		d := registry.Descriptor{
			Name:        s.Name,
			Kind:        registry.Kind(strings.ToLower(s.Kind)),
			Port:        s.Port,
			Description: s.Description,
			LogFile:     s.LogFile,
		}
		switch d.Kind {
		case registry.KindUnit:
			d.Unit = s.Unit
			if s.Command != "" || s.WorkDir != "" || len(s.Env) > 0 {
				return nil, fmt.Errorf("service %q: unit services take no command/workdir: %w", s.Name, registry.ErrInvalid)
			}
		case registry.KindProcess:
			if s.Unit != "" {
				return nil, fmt.Errorf("service %q: process services take no unit: %w", s.Name, registry.ErrInvalid)
			}
			d.Launch = &registry.LaunchSpec{WorkDir: s.WorkDir, Command: s.Command, Env: s.Env}
		}
		ds = append(ds, d)
	}
	return registry.New(ds)
}

// QueryScopes returns the parsed query scopes; call after Validate.
func (c *Config) QueryScopes() []unit.Scope {
	s, _ := unit.ParseScopes(c.Control.QueryScopes)
	return s
}

// ActionScopes returns the parsed action scopes; call after Validate.
func (c *Config) ActionScopes() []unit.Scope {
	s, _ := unit.ParseScopes(c.Control.ActionScopes)
	return s
}
