// Package request downloads map tiles with per-host queuing, caching, retries
// and backoff.
package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"carnav/pkg/cache"
	"carnav/pkg/config"
	"carnav/pkg/tracker"
	"carnav/pkg/version"
)

// ErrNotFound is returned for a 404 from upstream. It is not retried.
var ErrNotFound = errors.New("not found upstream")

// DefaultUserAgent identifies the app to tile servers.
var DefaultUserAgent = fmt.Sprintf("carnav/%s (+https://wiki.openstreetmap.org/wiki/Tile_usage_policy)", version.Version)

// Response is a successful download.
type Response struct {
	Body        []byte
	ContentType string
	Cached      bool
}

// Client handles HTTP requests with queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	backoff    *ServerBackoff
	userAgent  string
	attempts   int
	baseDelay  time.Duration
	gap        time.Duration

	// One queue and worker per provider (host group).
	queues map[string]chan job
	mu     sync.Mutex
}

type job struct {
	req      *http.Request
	provider string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	resp Response
	err  error
}

// New creates a new Client.
func New(c cache.Cacher, t *tracker.Tracker, cfg config.RequestConfig) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.Retries
	if attempts <= 0 {
		attempts = 1
	}
	base, maxDelay := cfg.Backoff.BaseDelay.Std(), cfg.Backoff.MaxDelay.Std()
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxDelay < base {
		maxDelay = base
	}
	if t == nil {
		t = tracker.New()
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cache:      c,
		tracker:    t,
		backoff:    NewServerBackoff(base, maxDelay),
		userAgent:  ua,
		attempts:   attempts,
		baseDelay:  base,
		gap:        20 * time.Millisecond,
		queues:     make(map[string]chan job),
	}
}

// Get downloads u. A non-empty cacheKey is consulted first and filled on
// success.
func (c *Client) Get(ctx context.Context, u, cacheKey string) (Response, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return Response{}, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsed.Host)

	if cacheKey != "" {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			return Response{Body: val, ContentType: http.DetectContentType(val), Cached: true}, nil
		}
		c.tracker.TrackCacheMiss(provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(job{req: req, provider: provider, cacheKey: cacheKey, respChan: respChan})

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case res := <-respChan:
		return res.resp, res.err
	}
}

// normalizeProvider groups mirror subdomains so they share one queue.
func normalizeProvider(host string) string {
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	if host == "tile.openstreetmap.org" || strings.HasSuffix(host, ".tile.openstreetmap.org") {
		return "osm"
	}
	for _, p := range []string{"a.", "b.", "c.", "d."} {
		if rest, ok := strings.CutPrefix(host, p); ok && strings.Count(rest, ".") >= 1 {
			return rest
		}
	}
	return host
}

// dispatch enqueues j, creating the provider worker on first use. A full
// queue blocks the caller until the job fits or the caller gives up.
func (c *Client) dispatch(j job) {
	c.mu.Lock()
	q, ok := c.queues[j.provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[j.provider] = q
		go c.worker(j.provider, q)
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
		j.req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.executeWithBackoff(provider, j.req)
		switch {
		case err == nil:
			c.tracker.TrackFetched(provider)
			if j.cacheKey != "" {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, resp.Body); err != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", err)
				}
			}
		case errors.Is(err, ErrNotFound):
			c.tracker.TrackNotFound(provider)
		default:
			c.tracker.TrackFailure(provider)
		}

		j.respChan <- jobResult{resp: resp, err: err}

		if c.gap > 0 {
			time.Sleep(c.gap)
		}
	}
}

// executeWithBackoff retries network errors, 429 and 5xx with exponential
// delays, honouring the provider backoff shared across requests.
func (c *Client) executeWithBackoff(provider string, req *http.Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if err := c.backoff.Wait(req.Context(), provider); err != nil {
			return Response{}, err
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return Response{}, req.Context().Err()
			}
			slog.Warn("Request failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)
			lastErr = err
			c.backoff.Failure(provider, 0)
			if !c.sleep(req.Context(), attempt) {
				return Response{}, req.Context().Err()
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			hold := c.backoff.Failure(provider, retryAfter(resp.Header.Get("Retry-After"), time.Now()))
			slog.Warn("Tile server backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1, "hold", hold)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return Response{}, fmt.Errorf("%s: %w", req.URL, ErrNotFound)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return Response{}, fmt.Errorf("upstream error: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return Response{}, fmt.Errorf("read error: %w", err)
		}
		c.backoff.Success(provider)

		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = http.DetectContentType(body)
		}
		return Response{Body: body, ContentType: ct}, nil
	}

	return Response{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) sleep(ctx context.Context, attempt int) bool {
	d := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Backoff exposes the per-server hold-offs.
func (c *Client) Backoff() *ServerBackoff { return c.backoff }
