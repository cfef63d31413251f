package jwkscache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/common/metrics"
)

// Cache provides JWKS retrieval with HTTP caching semantics.
type Cache interface {
	Get(ctx context.Context, url string) (jwk.Set, error)
	Invalidate(url string)
}

// Options tunes a memory cache. Zero values fall back to the defaults of New.
type Options struct {
	// DefaultTTL is used when the response carries no caching directives.
	DefaultTTL time.Duration
	// StaleGrace allows serving an expired set on transient fetch failures.
	StaleGrace time.Duration
	// FailureTTL is how long a failed fetch is remembered before the URL is tried again.
	FailureTTL time.Duration
	// FetchTimeout bounds every outbound request.
	FetchTimeout time.Duration
	Client       *http.Client
	Now          func() time.Time
}

// maxBody caps key set documents at 1MB.
const maxBody = 1 << 20

// entry stores a cached JWKS and metadata derived from HTTP caching headers.
type entry struct {
	set             jwk.Set
	expiry          time.Time
	allowStaleUntil time.Time
	etag            string
	lastModified    time.Time
}

type failure struct {
	err   error
	until time.Time
}

type memoryCache struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	failures map[string]failure
	group    singleflight.Group
	client   *http.Client
	opts     Options
}

// New creates a new in-memory JWKS cache.
func New(opts Options) Cache {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 10 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.FetchTimeout}
	}
	return &memoryCache{
		entries:  make(map[string]*entry),
		failures: make(map[string]failure),
		client:   client,
		opts:     opts,
	}
}

func (c *memoryCache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
	delete(c.failures, url)
}

func (c *memoryCache) Get(ctx context.Context, url string) (jwk.Set, error) {
	if set := c.getFresh(url); set != nil {
		return set, nil
	}
	if err := c.recentFailure(url); err != nil {
		metrics.JWKSFetchesTotal.WithLabelValues("negative_cached").Inc()
		return nil, err
	}

	// Concurrent misses for one URL share a single request. The fetch runs on a
	// context detached from any one caller so a cancelled caller does not fail the others.
	ch := c.group.DoChan(url, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		return c.fetch(fctx, url)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(jwk.Set), nil
	}
}

func (c *memoryCache) getFresh(url string) jwk.Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[url]; ok {
		if c.opts.Now().Before(e.expiry) && e.set != nil {
			return e.set
		}
	}
	return nil
}

func (c *memoryCache) recentFailure(url string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if f, ok := c.failures[url]; ok && c.opts.Now().Before(f.until) {
		return f.err
	}
	return nil
}

func (c *memoryCache) fetch(ctx context.Context, url string) (jwk.Set, error) {
	c.mu.RLock()
	e := c.entries[url]
	c.mu.RUnlock()

	set, err := c.fetchOnce(ctx, url, e)
	if err == nil {
		return set, nil
	}
	// Serve stale if available within grace window
	if e != nil && e.set != nil && c.opts.Now().Before(e.allowStaleUntil) {
		logger.Warn("jwkscache: serving stale key set for %s: %v", url, err)
		metrics.JWKSFetchesTotal.WithLabelValues("stale").Inc()
		return e.set, nil
	}
	metrics.JWKSFetchesTotal.WithLabelValues("error").Inc()
	if c.opts.FailureTTL > 0 {
		c.mu.Lock()
		c.failures[url] = failure{err: err, until: c.opts.Now().Add(c.opts.FailureTTL)}
		c.mu.Unlock()
	}
	return nil, err
}

func (c *memoryCache) fetchOnce(ctx context.Context, url string, e *entry) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	// Conditional headers
	if e != nil {
		if e.etag != "" {
			req.Header.Set("If-None-Match", e.etag)
		}
		if !e.lastModified.IsZero() {
			req.Header.Set("If-Modified-Since", e.lastModified.UTC().Format(http.TimeFormat))
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwkscache: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if e == nil || e.set == nil {
			return nil, errors.New("jwkscache: 304 but no cached entry")
		}
		expiry, allowStale := c.computeExpiry(resp.Header)
		c.mu.Lock()
		e.expiry = expiry
		e.allowStaleUntil = allowStale
		delete(c.failures, url)
		c.mu.Unlock()
		metrics.JWKSFetchesTotal.WithLabelValues("not_modified").Inc()
		return e.set, nil
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("jwkscache: read %s: %w", url, err)
		}
		if len(body) > maxBody {
			return nil, fmt.Errorf("jwkscache: key set at %s exceeds %d bytes", url, maxBody)
		}
		set, err := jwk.Parse(body)
		if err != nil {
			return nil, fmt.Errorf("jwkscache: parse %s: %w", url, err)
		}
		newE := &entry{set: set}
		newE.expiry, newE.allowStaleUntil = c.computeExpiry(resp.Header)
		newE.etag = resp.Header.Get("ETag")
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := time.Parse(http.TimeFormat, lm); err == nil {
				newE.lastModified = t
			}
		}
		c.mu.Lock()
		c.entries[url] = newE
		delete(c.failures, url)
		c.mu.Unlock()
		metrics.JWKSFetchesTotal.WithLabelValues("fetched").Inc()
		logger.Debug("jwkscache: fetched %d keys from %s", set.Len(), url)
		return set, nil
	default:
		return nil, errors.New("jwkscache: unexpected status " + strconv.Itoa(resp.StatusCode))
	}
}

func (c *memoryCache) computeExpiry(h http.Header) (expiry, allowStaleUntil time.Time) {
	now := c.opts.Now()
	cc := parseCacheControl(h.Get("Cache-Control"))
	if cc["no-store"] == "true" {
		return now, now // immediately expired, no stale allowed
	}
	if maxAge, ok := cc["max-age"]; ok {
		if secs, err := strconv.Atoi(maxAge); err == nil {
			exp := now.Add(time.Duration(secs) * time.Second)
			return exp, exp.Add(c.opts.StaleGrace)
		}
	}
	if expStr := h.Get("Expires"); expStr != "" {
		if t, err := time.Parse(http.TimeFormat, expStr); err == nil {
			return t, t.Add(c.opts.StaleGrace)
		}
	}
	exp := now.Add(c.opts.DefaultTTL)
	return exp, exp.Add(c.opts.StaleGrace)
}

func parseCacheControl(v string) map[string]string {
	m := map[string]string{}
	for _, part := range strings.Split(v, ",") {
		p := strings.TrimSpace(strings.ToLower(part))
		if p == "" {
			continue
		}
		// we only need flags and max-age
		if strings.HasPrefix(p, "max-age=") {
			m["max-age"] = strings.TrimPrefix(p, "max-age=")
			continue
		}
		m[p] = "true"
	}
	return m
}
