package runner

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// EmbedScheme selects the built-in prelude instead of a network fetch
const EmbedScheme = "embed:"

//go:embed runner.js
var prelude []byte

// Prelude returns the built-in bootstrap script
func Prelude() []byte {
	out := make([]byte, len(prelude))
	copy(out, prelude)
	return out
}

// EmbeddedLoader always returns the built-in prelude
type EmbeddedLoader struct{}

// Load implements ScriptLoader
func (EmbeddedLoader) Load(context.Context, string) ([]byte, error) {
	return Prelude(), nil
}

// HTTPLoader fetches bootstrap scripts over HTTP with retries. Empty and
// embed: urls resolve to the prelude without touching the network.
type HTTPLoader struct {
	client *resty.Client
	logger *zap.Logger
}

// NewHTTPLoader creates a loader whose transport retries transient failures
func NewHTTPLoader(timeout time.Duration, retries int, logger *zap.Logger) *HTTPLoader {
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil // Disable logging

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(timeout).
		SetHeader("User-Agent", "jsgist-runner/1.0")

	return &HTTPLoader{client: client, logger: logger}
}

// Load implements ScriptLoader
func (l *HTTPLoader) Load(ctx context.Context, url string) ([]byte, error) {
	if url == "" || strings.HasPrefix(url, EmbedScheme) {
		return Prelude(), nil
	}

	resp, err := l.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runner script %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch runner script %s: status %d", url, resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("%w at %s", ErrNoRunScript, url)
	}
	l.logger.Debug("Fetched runner script", zap.String("url", url), zap.Int("bytes", len(body)))
	return body, nil
}
