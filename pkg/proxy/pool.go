// Package proxy manages a rotating pool of egress proxies with basic
// health tracking, so a misbehaving exit does not sink every fetch.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// entry tracks the health of a single proxy endpoint.
type entry struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Config defines pool behavior.
type Config struct {
	// MaxFailures before a proxy is benched.
	MaxFailures int
	// Cooldown is how long a benched proxy stays out of rotation.
	Cooldown time.Duration
}

// Pool is a round-robin proxy rotation with failure cooldowns.
// Safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	index   int
	cfg     Config
}

// NewPool creates an empty pool.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{cfg: cfg}
}

// Add registers a proxy URL. Scheme must be http, https or socks5.
func (p *Pool) Add(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, &entry{url: u})
	return nil
}

// AddFromFile loads newline-separated proxy URLs, skipping blanks and
// lines starting with '#'.
func (p *Pool) AddFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.Add(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Next returns the next healthy proxy, or nil when none is available.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return nil
	}

	now := time.Now()
	for i := 0; i < n; i++ {
		e := p.entries[p.index%n]
		p.index++
		if e.disabledUntil.After(now) {
			continue
		}
		return e.url
	}
	return nil
}

// MarkFailure records a failed request through the proxy. Hitting the
// failure cap benches it for the configured cooldown.
func (p *Pool) MarkFailure(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(u)
	if e == nil {
		return errors.New("proxy not in pool")
	}
	e.failures++
	if e.failures >= p.cfg.MaxFailures {
		e.disabledUntil = time.Now().Add(p.cfg.Cooldown)
		e.failures = 0
	}
	return nil
}

// MarkSuccess resets the failure count for the proxy.
func (p *Pool) MarkSuccess(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(u)
	if e == nil {
		return errors.New("proxy not in pool")
	}
	e.failures = 0
	return nil
}

// Len returns the number of registered proxies.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pool) find(u *url.URL) *entry {
	for _, e := range p.entries {
		if e.url.String() == u.String() {
			return e
		}
	}
	return nil
}
