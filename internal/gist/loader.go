package gist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

var ErrNotFound = errors.New("gist: not found")

// Config configures a Loader
type Config struct {
	APIURL    string
	Token     string
	Timeout   time.Duration
	Retries   int
	CacheTTL  time.Duration
	CacheSize int64
}

// Result is a loaded gist plus the GitHub metadata the editor keeps
type Result struct {
	Gist    protocol.Gist `json:"gist"`
	ID      string        `json:"id,omitempty"`
	OwnerID int64         `json:"ownerId,omitempty"`
}

// StatusError is a non-success HTTP response
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gist: %s returned status %d", e.URL, e.Status)
}

// Loader fetches gists by id from the GitHub API, or from any url serving
// gist JSON. Successful loads are cached.
type Loader struct {
	cfg     Config
	client  *resty.Client
	cache   *ristretto.Cache[string, Result]
	breaker *resilience.Breaker
	metrics *monitoring.Metrics
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

// New creates a loader
func New(cfg Config, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil // Disable logging

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("User-Agent", "jsgist/1.0")

	cache, err := ristretto.NewCache(&ristretto.Config[string, Result]{
		NumCounters: cfg.CacheSize * 10,
		MaxCost:     cfg.CacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gist cache: %w", err)
	}

	l := &Loader{
		cfg:    cfg,
		client: client,
		cache:  cache,
		logger: logger,
		token:  cfg.Token,
	}
	l.breaker = resilience.New("gist-api", resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return l, nil
}

// WithMetrics records load outcomes in m
func (l *Loader) WithMetrics(m *monitoring.Metrics) *Loader {
	l.metrics = m
	return l
}

// Load returns the gist named by src. A failed attempt drops the
// credentials and tries once more anonymously; a second failure is
// returned.
func (l *Loader) Load(ctx context.Context, src string) (Result, error) {
	key := strings.TrimSpace(src)
	if res, ok := l.cache.Get(key); ok {
		l.record("cached")
		return cloneResult(res), nil
	}

	res, err := l.fetch(ctx, key)
	if err != nil && !errors.Is(err, ErrInvalidSource) && ctx.Err() == nil {
		l.logger.Info("Gist load failed, retrying without credentials",
			zap.String("src", key), zap.Error(err))
		l.Logout()
		res, err = l.fetch(ctx, key)
	}
	if err != nil {
		l.record("error")
		return Result{}, err
	}

	l.cache.SetWithTTL(key, res, 1, l.cfg.CacheTTL)
	l.cache.Wait()
	l.record("ok")
	return cloneResult(res), nil
}

// Logout drops the API token; later requests are anonymous
func (l *Loader) Logout() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.token = ""
}

// Invalidate evicts src from the cache
func (l *Loader) Invalidate(src string) {
	l.cache.Del(strings.TrimSpace(src))
}

// Close releases the cache
func (l *Loader) Close() {
	l.cache.Close()
}

func (l *Loader) fetch(ctx context.Context, src string) (Result, error) {
	endpoint, id, err := resolve(l.cfg.APIURL, src)
	if err != nil {
		return Result{}, err
	}

	body, err := l.get(ctx, endpoint)
	if err != nil {
		return Result{}, err
	}

	res, truncated, err := decode(body)
	if err != nil {
		return Result{}, err
	}
	if res.ID == "" {
		res.ID = id
	}
	for _, t := range truncated {
		raw, err := l.get(ctx, t.rawURL)
		if err != nil {
			return Result{}, fmt.Errorf("failed to fetch truncated file %s: %w", res.Gist.Files[t.index].Name, err)
		}
		res.Gist.Files[t.index].Content = string(raw)
	}

	l.logger.Debug("Loaded gist",
		zap.String("src", src),
		zap.String("name", res.Gist.Name),
		zap.Int("files", len(res.Gist.Files)),
	)
	return res, nil
}

func (l *Loader) get(ctx context.Context, endpoint string) ([]byte, error) {
	l.mu.RLock()
	token := l.token
	l.mu.RUnlock()

	req := l.client.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}

	var resp *resty.Response
	err := l.breaker.Do(func() error {
		var err error
		resp, err = req.Get(endpoint)
		if err != nil {
			return err
		}
		// Only upstream faults count against the breaker
		if resp.StatusCode() >= http.StatusInternalServerError {
			return &StatusError{URL: endpoint, Status: resp.StatusCode()}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case status != http.StatusOK:
		return nil, &StatusError{URL: endpoint, Status: status}
	}
	return resp.Body(), nil
}

func (l *Loader) record(status string) {
	if l.metrics != nil {
		l.metrics.RecordGistLoad(status)
	}
}

func cloneResult(r Result) Result {
	r.Gist = r.Gist.Clone()
	return r
}
