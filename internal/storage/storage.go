// Package storage defines the audit trail for HTTP fetches. Every request
// the pipeline issues can be persisted for later inspection of marketplace
// behavior (status codes, block walls, latency). Nothing stored here is
// ever read back into a run.
package storage

import (
	"context"
	"time"
)

// FetchRecord is the audit entry for a single HTTP fetch.
type FetchRecord struct {
	ID         string
	URL        string
	Host       string
	Method     string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Duration   time.Duration
	Blocked    bool
	BlockSrc   string // e.g. "Cloudflare", "DataDome", "Captcha"
	CreatedAt  time.Time
	Error      string // non-empty if the fetch failed before an HTTP response
}

// Filter selects fetch records when querying a backend.
type Filter struct {
	URL     string
	Host    string
	Blocked *bool
	Since   *time.Time
	Limit   int
}

// Backend persists and queries fetch records.
type Backend interface {
	Save(ctx context.Context, rec *FetchRecord) error
	Query(ctx context.Context, filter Filter) ([]*FetchRecord, error)
	Close() error
}
