package blockcheck

import (
	"net/http"
	"testing"

	"github.com/spyglasshq/spyglass/internal/storage"
)

func TestAnalyze(t *testing.T) {
	cases := []struct {
		name    string
		rec     *storage.FetchRecord
		blocked bool
		src     string
	}{
		{
			name: "clean 200",
			rec: &storage.FetchRecord{
				StatusCode: http.StatusOK,
				Body:       []byte("<html>listings</html>"),
			},
		},
		{
			name: "cloudflare server header",
			rec: &storage.FetchRecord{
				StatusCode: http.StatusForbidden,
				Headers:    map[string][]string{"Server": {"cloudflare"}},
			},
			blocked: true,
			src:     "Cloudflare",
		},
		{
			name: "cloudflare turnstile body",
			rec: &storage.FetchRecord{
				StatusCode: http.StatusServiceUnavailable,
				Body:       []byte(`<div class="cf-turnstile"></div>`),
			},
			blocked: true,
			src:     "Cloudflare",
		},
		{
			name: "datadome header",
			rec: &storage.FetchRecord{
				StatusCode: http.StatusForbidden,
				Headers:    map[string][]string{"X-DataDome": {"protected"}},
			},
			blocked: true,
			src:     "DataDome",
		},
		{
			name: "rate limited",
			rec: &storage.FetchRecord{
				StatusCode: http.StatusTooManyRequests,
			},
			blocked: true,
			src:     "RateLimit",
		},
		{
			name: "captcha wall with 200",
			rec: &storage.FetchRecord{
				StatusCode: http.StatusOK,
				Body:       []byte(`<div class="g-recaptcha"></div>`),
			},
			blocked: true,
			src:     "Captcha",
		},
		{
			name: "forbidden without signatures",
			rec: &storage.FetchRecord{
				StatusCode: http.StatusForbidden,
				Body:       []byte("access denied by origin"),
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Analyze(c.rec, DefaultDetectors())
			if got != c.blocked {
				t.Errorf("expected blocked=%v, got %v", c.blocked, got)
			}
			if c.rec.Blocked != c.blocked || c.rec.BlockSrc != c.src {
				t.Errorf("expected record updated to (%v, %q), got (%v, %q)",
					c.blocked, c.src, c.rec.Blocked, c.rec.BlockSrc)
			}
		})
	}
}

func TestAnalyze_NilRecord(t *testing.T) {
	if Analyze(nil, DefaultDetectors()) {
		t.Error("nil record must not be detected as blocked")
	}
}

func TestAnalyze_CaseInsensitiveHeader(t *testing.T) {
	rec := &storage.FetchRecord{
		StatusCode: http.StatusForbidden,
		Headers:    map[string][]string{"server": {"CloudFlare"}},
	}
	if !Analyze(rec, DefaultDetectors()) {
		t.Error("expected detection with lowercase header key")
	}
}
