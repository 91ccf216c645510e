package runner

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

var (
	ErrTimeout     = errors.New("execution timed out")
	ErrNoRunScript = errors.New("runner: no bootstrap script")
)

// Config controls one runner instance
type Config struct {
	Timeout          time.Duration // Wall-clock limit for a run, timers included
	MaxCallStackSize int           // goja call stack limit
	Loader           ScriptLoader  // Fetches the bootstrap script; nil uses the prelude
}

// DefaultConfig returns the configuration used by the server
func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		MaxCallStackSize: 1024,
		Loader:           EmbeddedLoader{},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = d.MaxCallStackSize
	}
	if c.Loader == nil {
		c.Loader = d.Loader
	}
	return c
}

// Poster sends a message from the runner to its host
type Poster interface {
	Post(msg protocol.Message) error
}

// PostFunc adapts a function to Poster
type PostFunc func(msg protocol.Message) error

// Post calls f
func (f PostFunc) Post(msg protocol.Message) error { return f(msg) }

// ScriptLoader fetches the bootstrap script named in the sandbox url
type ScriptLoader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}
