package request

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"kasage/pkg/cache"
	"kasage/pkg/tracker"
	"kasage/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("KasageHomestay/%s", version.Version)

// ClientConfig controls timeouts and retry behaviour.
type ClientConfig struct {
	Retries   int
	Timeout   time.Duration
	BaseDelay time.Duration
	// Gap is the pause between two requests to the same provider.
	Gap time.Duration
}

// Client performs outbound HTTP requests through a sequential queue per provider,
// with optional response caching and outcome tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	cfg        ClientConfig

	queues map[string]chan job
	mu     sync.Mutex
}

type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// StatusError is returned for non-retryable HTTP error statuses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d", e.Code)
}

// New creates a new Client. A nil cache disables caching.
func New(c cache.Cacher, t *tracker.Tracker, cfg ClientConfig) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      c,
		tracker:    t,
		cfg:        cfg,
		queues:     make(map[string]chan job),
	}
}

// Get performs a GET request; the response is cached under cacheKey when it is non-empty.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsed.Host)

	if cacheKey != "" && c.cache != nil {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.Track(provider, tracker.CacheHit)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.Track(provider, tracker.CacheMiss)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// Invalidate drops a cached response, e.g. when the body turned out to carry an API-level error.
func (c *Client) Invalidate(ctx context.Context, cacheKey string) {
	if c.cache == nil || cacheKey == "" {
		return
	}
	if err := c.cache.DeleteCache(ctx, cacheKey); err != nil {
		slog.Warn("Failed to invalidate cache entry", "key", cacheKey, "error", err)
	}
}

// Provider returns the tracking name used for a host.
func Provider(host string) string {
	return normalizeProvider(host)
}

func normalizeProvider(host string) string {
	if strings.HasSuffix(host, "googleapis.com") {
		return "google-maps"
	}
	return host
}

// dispatch sends the job to the provider's queue, starting its worker on first use.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for one provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		if err := j.req.Context().Err(); err != nil {
			slog.Debug("Job dropped from queue (context expired)", "provider", provider, "error", err)
			j.respChan <- jobResult{err: err}
			continue
		}

		hasUA := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				hasUA = true
			}
		}
		if !hasUA {
			j.req.Header.Set("User-Agent", defaultUserAgent)
		}

		body, err := c.executeWithBackoff(j.req)
		if err == nil {
			c.tracker.Track(provider, tracker.Success)
			if j.cacheKey != "" && c.cache != nil {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "provider", provider, "error", err)
				}
			}
		} else {
			c.tracker.Track(provider, tracker.Failure)
		}

		j.respChan <- jobResult{body: body, err: err}

		if c.cfg.Gap > 0 {
			time.Sleep(c.cfg.Gap)
		}
	}
}

// executeWithBackoff retries network errors, 429 and 5xx with exponential backoff.
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	delay := c.cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		if err := req.Context().Err(); err != nil {
			return nil, err
		}

		// Log the path only; the query string carries the API key.
		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt)
		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastErr = err
			slog.Warn("Request failed, retrying", "host", req.URL.Host, "attempt", attempt, "error", err)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode}
			slog.Warn("API Backoff", "status", resp.StatusCode, "host", req.URL.Host, "attempt", attempt)
		case resp.StatusCode >= 400:
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode}
		default:
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read error: %w", err)
			}
			return body, nil
		}

		if attempt == c.cfg.Retries {
			break
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
