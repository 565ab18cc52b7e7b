package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spyglasshq/spyglass/internal/storage"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()

	backend, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	return backend
}

func record(host string, blocked bool, at time.Time) *storage.FetchRecord {
	return &storage.FetchRecord{
		ID:         uuid.NewString(),
		URL:        "https://" + host + "/page",
		Host:       host,
		Method:     "GET",
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"text/html"}},
		Body:       []byte("<html></html>"),
		Duration:   42 * time.Millisecond,
		Blocked:    blocked,
		BlockSrc:   "",
		CreatedAt:  at,
	}
}

func TestSaveAndQuery(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	rec := record("ceneo.pl", false, time.Now().UTC())
	if err := backend.Save(ctx, rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := backend.Query(ctx, storage.Filter{Host: "ceneo.pl"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].ID != rec.ID || got[0].URL != rec.URL {
		t.Errorf("round trip mismatch: got %+v", got[0])
	}
	if got[0].Duration != rec.Duration {
		t.Errorf("expected duration %v, got %v", rec.Duration, got[0].Duration)
	}
	if ct := got[0].Headers["Content-Type"]; len(ct) != 1 || ct[0] != "text/html" {
		t.Errorf("expected headers preserved, got %v", got[0].Headers)
	}
}

func TestQueryFilters(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []*storage.FetchRecord{
		record("ceneo.pl", false, now.Add(-2*time.Hour)),
		record("ceneo.pl", true, now.Add(-1*time.Hour)),
		record("allegro.pl", false, now),
	}
	for _, r := range records {
		if err := backend.Save(ctx, r); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	t.Run("by host", func(t *testing.T) {
		got, err := backend.Query(ctx, storage.Filter{Host: "ceneo.pl"})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 records, got %d", len(got))
		}
	})

	t.Run("by blocked", func(t *testing.T) {
		blocked := true
		got, err := backend.Query(ctx, storage.Filter{Blocked: &blocked})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 1 || !got[0].Blocked {
			t.Errorf("expected the single blocked record, got %d", len(got))
		}
	})

	t.Run("by since", func(t *testing.T) {
		since := now.Add(-90 * time.Minute)
		got, err := backend.Query(ctx, storage.Filter{Since: &since})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 recent records, got %d", len(got))
		}
	})

	t.Run("newest first with limit", func(t *testing.T) {
		got, err := backend.Query(ctx, storage.Filter{Limit: 1})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 1 || got[0].Host != "allegro.pl" {
			t.Errorf("expected newest record only, got %+v", got)
		}
	})
}

func TestQueryEmpty(t *testing.T) {
	backend := newTestBackend(t)

	got, err := backend.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}
