package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// ErrRobotsDisallowed marks a URL the host's robots.txt forbids fetching.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// robotsCache fetches and caches robots.txt per host.
type robotsCache struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.RWMutex
	data    map[string]*robotstxt.RobotsData
}

func newRobotsCache(f *Fetcher, logger *slog.Logger) *robotsCache {
	return &robotsCache{
		fetcher: f,
		logger:  logger,
		data:    make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether agent may fetch targetURL per the host's
// robots.txt. A missing robots.txt allows everything.
func (c *robotsCache) Allowed(ctx context.Context, targetURL, agent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	c.mu.RLock()
	data, ok := c.data[host]
	c.mu.RUnlock()

	if !ok {
		data, err = c.load(ctx, host)
		if err != nil {
			return false, err
		}
		c.mu.Lock()
		c.data[host] = data
		c.mu.Unlock()
	}

	return data.TestAgent(u.Path, agent), nil
}

func (c *robotsCache) load(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	rec := c.fetcher.do(ctx, host+"/robots.txt")
	if rec.Error != "" {
		return nil, fmt.Errorf("fetch robots.txt: %s", rec.Error)
	}

	c.logger.Debug("loaded robots.txt", "host", host, "status", rec.StatusCode)

	data, err := robotstxt.FromStatusAndBytes(rec.StatusCode, rec.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
