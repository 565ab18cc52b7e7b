// Package blockcheck inspects fetch results for marketplace block walls.
// A challenged response carries no listing data, so the harvester must be
// able to tell a block page apart from an empty result page.
package blockcheck

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/spyglasshq/spyglass/internal/storage"
)

// Detector inspects one fetch record for a specific protection vendor.
type Detector func(rec *storage.FetchRecord) (blocked bool, source string)

// DefaultDetectors returns the detectors for protections commonly deployed
// in front of retail marketplaces.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectDataDome,
		detectRateLimit,
		detectCaptchaWall,
	}
}

// Analyze runs the record through the detectors, updating it in place.
// The first detector that triggers wins.
func Analyze(rec *storage.FetchRecord, detectors []Detector) bool {
	if rec == nil {
		return false
	}
	for _, d := range detectors {
		if blocked, source := d(rec); blocked {
			rec.Blocked = true
			rec.BlockSrc = source
			return true
		}
	}
	rec.Blocked = false
	rec.BlockSrc = ""
	return false
}

func header(headers map[string][]string, key string) string {
	if vals, ok := headers[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	lower := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lower && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func detectCloudflare(rec *storage.FetchRecord) (bool, string) {
	if rec.StatusCode != http.StatusForbidden && rec.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(rec.Headers, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bytes.Contains(rec.Body, []byte("cf-turnstile")) ||
		bytes.Contains(rec.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(rec.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectDataDome(rec *storage.FetchRecord) (bool, string) {
	if rec.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if header(rec.Headers, "X-DataDome") != "" || header(rec.Headers, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(rec.Body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectRateLimit(rec *storage.FetchRecord) (bool, string) {
	if rec.StatusCode == http.StatusTooManyRequests {
		return true, "RateLimit"
	}
	return false, ""
}

// detectCaptchaWall catches generic interstitials that serve a captcha in
// place of the result page regardless of status code.
func detectCaptchaWall(rec *storage.FetchRecord) (bool, string) {
	if rec.StatusCode != http.StatusOK && rec.StatusCode != http.StatusForbidden {
		return false, ""
	}
	lower := bytes.ToLower(rec.Body)
	if bytes.Contains(lower, []byte("g-recaptcha")) || bytes.Contains(lower, []byte("hcaptcha.com")) {
		return true, "Captcha"
	}
	return false, ""
}
