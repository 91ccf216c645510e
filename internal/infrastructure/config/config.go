package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

// FileEnv names the optional config file applied over the environment
const FileEnv = "JSGIST_CONFIG"

// Runner environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Runner transports
const (
	ModeInProc  = "inproc"
	ModeProcess = "process"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Runner    RunnerConfig    `yaml:"runner" toml:"runner"`
	Gist      GistConfig      `yaml:"gist" toml:"gist"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rateLimit" toml:"rateLimit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080" yaml:"port" toml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host"`

	MaxWorkspaces   int      `envconfig:"MAX_WORKSPACES" default:"100" yaml:"maxWorkspaces" toml:"maxWorkspaces"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	CORSOrigins     []string `envconfig:"CORS_ORIGINS" default:"*" yaml:"corsOrigins" toml:"corsOrigins"`
}

// RunnerConfig selects where sandboxes run and which runner page they load.
type RunnerConfig struct {
	Env          string   `envconfig:"RUNNER_ENV" default:"development" yaml:"env" toml:"env"`
	Mode         string   `envconfig:"RUNNER_MODE" default:"inproc" yaml:"mode" toml:"mode"`
	Binary       string   `envconfig:"RUNNER_BINARY" default:"jsgist-runner" yaml:"binary" toml:"binary"`
	DevHost      string   `envconfig:"RUNNER_DEV_HOST" default:"localhost" yaml:"devHost" toml:"devHost"`
	BaseURL      string   `envconfig:"RUNNER_BASE_URL" yaml:"baseURL" toml:"baseURL"`
	ScriptURL    string   `envconfig:"RUNNER_SCRIPT_URL" yaml:"scriptURL" toml:"scriptURL"`
	Timeout      Duration `envconfig:"RUNNER_TIMEOUT" default:"10s" yaml:"timeout" toml:"timeout"`
	MaxCallStack int      `envconfig:"RUNNER_MAX_CALL_STACK" default:"1024" yaml:"maxCallStack" toml:"maxCallStack"`
}

// GistConfig holds gist loader configuration.
type GistConfig struct {
	APIURL    string   `envconfig:"GIST_API_URL" default:"https://api.github.com" yaml:"apiURL" toml:"apiURL"`
	Token     string   `envconfig:"GIST_TOKEN" yaml:"token" toml:"token"`
	Timeout   Duration `envconfig:"GIST_TIMEOUT" default:"10s" yaml:"timeout" toml:"timeout"`
	Retries   int      `envconfig:"GIST_HTTP_RETRIES" default:"2" yaml:"retries" toml:"retries"`
	CacheTTL  Duration `envconfig:"GIST_CACHE_TTL" default:"5m" yaml:"cacheTTL" toml:"cacheTTL"`
	CacheSize int64    `envconfig:"GIST_CACHE_SIZE" default:"1000" yaml:"cacheSize" toml:"cacheSize"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// Duration is a time.Duration that reads "10s" style strings from env and
// config files alike.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration from environment variables, then applies the
// file named by JSGIST_CONFIG if set.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ApplyFile overlays a YAML or TOML file; keys absent from the file keep
// their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects unknown enumerations
func (c *Config) Validate() error {
	switch c.Runner.Env {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("invalid RUNNER_ENV %q", c.Runner.Env)
	}
	switch c.Runner.Mode {
	case ModeInProc, ModeProcess:
	default:
		return fmt.Errorf("invalid RUNNER_MODE %q", c.Runner.Mode)
	}
	return nil
}

// Target resolves the runner page and bootstrap script for the configured
// environment. Explicit URLs win over the environment defaults.
func (r RunnerConfig) Target() protocol.Target {
	var t protocol.Target
	if r.Env == EnvProduction {
		t = protocol.Target{
			RunnerURL: "https://jsgistrunner.devcomments.org/runner-03.html",
			ScriptURL: "https://jsgist.org/jsgist-runner.js",
		}
	} else {
		host := r.DevHost
		if host == "" {
			host = "localhost"
		}
		t = protocol.Target{
			RunnerURL: fmt.Sprintf("http://%s:8081/runner-03.html", host),
			ScriptURL: fmt.Sprintf("http://%s:8080/jsgist-runner.js", host),
		}
	}
	if r.BaseURL != "" {
		t.RunnerURL = r.BaseURL
	}
	if r.ScriptURL != "" {
		t.ScriptURL = r.ScriptURL
	}
	return t
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			MaxWorkspaces:   100,
			ShutdownTimeout: Duration(10 * time.Second),
			CORSOrigins:     []string{"*"},
		},
		Runner: RunnerConfig{
			Env:          EnvDevelopment,
			Mode:         ModeInProc,
			Binary:       "jsgist-runner",
			DevHost:      "localhost",
			Timeout:      Duration(10 * time.Second),
			MaxCallStack: 1024,
		},
		Gist: GistConfig{
			APIURL:    "https://api.github.com",
			Timeout:   Duration(10 * time.Second),
			Retries:   2,
			CacheTTL:  Duration(5 * time.Minute),
			CacheSize: 1000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
