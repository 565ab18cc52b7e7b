// Package fetch performs single-URL HTTP fetches with the evasion and
// politeness machinery the pipeline needs: UA rotation, rate limiting,
// proxy rotation, TLS fingerprinting, robots.txt checks, block detection,
// and an optional persisted audit trail.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spyglasshq/spyglass/internal/blockcheck"
	"github.com/spyglasshq/spyglass/internal/fingerprint"
	"github.com/spyglasshq/spyglass/internal/metrics"
	"github.com/spyglasshq/spyglass/internal/storage"
	"github.com/spyglasshq/spyglass/pkg/httpclient"
	"github.com/spyglasshq/spyglass/pkg/proxy"
	"github.com/spyglasshq/spyglass/pkg/ratelimit"
	"github.com/spyglasshq/spyglass/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// Audit, when set, persists every fetch record.
	Audit storage.Backend
	// RespectRobots enables robots.txt checks before each fetch.
	RespectRobots bool
	// RobotsAgent is the agent token matched against robots.txt rules.
	RobotsAgent string
	Logger      *slog.Logger
}

// Fetcher executes GET requests and reports each one as a FetchRecord.
// Transport-level failures are captured in the record's Error field rather
// than returned, so a failed fetch still produces an auditable result.
type Fetcher struct {
	cfg    Config
	client *httpclient.Client
	robots *robotsCache
	logger *slog.Logger
}

// New initializes a Fetcher. A single client is held across requests so
// connection pooling and the cookie jar (if enabled) persist for the
// lifetime of the Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.RobotsAgent == "" {
		cfg.RobotsAgent = "*"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy selector reads from the request context so each request
	// can carry its own proxy without swapping transports.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Hostname() == "localhost" {
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	f := &Fetcher{
		cfg:    cfg,
		client: client,
		logger: cfg.Logger,
	}
	if cfg.RespectRobots {
		f.robots = newRobotsCache(f, cfg.Logger)
	}
	return f, nil
}

// Fetch executes a GET against targetURL. The returned error is non-nil
// only for pre-flight failures (robots denial, limiter cancellation);
// network failures are reported inside the record.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*storage.FetchRecord, error) {
	if f.robots != nil {
		allowed, err := f.robots.Allowed(ctx, targetURL, f.cfg.RobotsAgent)
		if err != nil {
			// Fail open: an unreadable robots.txt should not kill the run.
			f.logger.Warn("robots.txt check failed", "url", targetURL, "err", err)
		} else if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrRobotsDisallowed, targetURL)
		}
	}

	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	rec := f.do(ctx, targetURL)

	blockcheck.Analyze(rec, blockcheck.DefaultDetectors())
	metrics.RecordFetch(rec.Host, rec)

	if f.cfg.Audit != nil {
		if err := f.cfg.Audit.Save(ctx, rec); err != nil {
			f.logger.Error("failed to save audit record", "url", targetURL, "err", err)
		}
	}

	return rec, nil
}

// do executes the request without robots or limiter involvement. The
// robots cache uses it directly to avoid recursing into itself.
func (f *Fetcher) do(ctx context.Context, targetURL string) *storage.FetchRecord {
	start := time.Now()

	rec := &storage.FetchRecord{
		ID:        uuid.New().String(),
		URL:       targetURL,
		Method:    http.MethodGet,
		CreatedAt: start.UTC(),
	}
	if u, err := url.Parse(targetURL); err == nil {
		rec.Host = u.Hostname()
	}

	var activeProxy *url.URL
	if f.cfg.ProxyPool != nil {
		activeProxy = f.cfg.ProxyPool.Next()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		rec.Error = fmt.Sprintf("create request: %v", err)
		rec.Duration = time.Since(start)
		return rec
	}

	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.cfg.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pl-PL,pl;q=0.8,en-US;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.cfg.ProxyPool.MarkFailure(activeProxy)
		}
		rec.Error = fmt.Sprintf("request failed: %v", err)
		rec.Duration = time.Since(start)
		return rec
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.cfg.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		rec.Error = fmt.Sprintf("read body: %v", err)
	}

	rec.StatusCode = resp.StatusCode
	rec.Headers = resp.Header
	rec.Body = body
	rec.Duration = time.Since(start)

	return rec
}
