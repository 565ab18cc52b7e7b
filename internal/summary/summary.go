// Package summary turns a deviation result into a short prose paragraph.
// The real text comes from an external completion service; a deterministic
// templated sentence stands in whenever that service fails, so every run
// finishes with some summary.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/spyglasshq/spyglass/internal/market"
	"github.com/spyglasshq/spyglass/internal/metrics"
)

// ErrSummaryUnavailable means the generation collaborator failed and the
// fallback sentence was used instead.
var ErrSummaryUnavailable = errors.New("summary generation unavailable")

// Payload is the compact structured input handed to the generator.
type Payload struct {
	ProductName  string           `json:"product_name,omitempty"`
	Identifier   string           `json:"identifier,omitempty"`
	Currency     string           `json:"currency"`
	RRP          *decimal.Decimal `json:"rrp,omitempty"`
	Median       *decimal.Decimal `json:"median,omitempty"`
	SampleCount  int              `json:"sample_count"`
	DeltaPercent *decimal.Decimal `json:"delta_percent,omitempty"`
	Direction    market.Direction `json:"direction,omitempty"`
}

// PayloadFrom assembles the generator input from whatever stages produced.
// estimate and deviation may be nil.
func PayloadFrom(rec market.ProductRecord, est *market.Estimate, dev *market.Deviation) Payload {
	p := Payload{
		ProductName: rec.Name,
		Identifier:  rec.Identifier,
		Currency:    rec.Currency,
		RRP:         rec.RRP,
	}
	if est != nil {
		m := est.Median
		p.Median = &m
		p.SampleCount = est.SampleCount
	}
	if dev != nil {
		d := dev.DeltaPercent
		p.DeltaPercent = &d
		p.Direction = dev.Direction
	}
	return p
}

// Generator produces prose from a payload.
type Generator interface {
	Generate(ctx context.Context, p Payload) (string, error)
}

// Requester invokes the generator and substitutes the fallback sentence on
// failure. Summarize never returns an empty summary.
type Requester struct {
	gen    Generator
	logger *slog.Logger
}

// NewRequester wraps a generator. gen may be nil, in which case every run
// uses the fallback.
func NewRequester(gen Generator, logger *slog.Logger) *Requester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Requester{gen: gen, logger: logger}
}

// Summarize returns prose for the payload. On generator failure it returns
// the fallback text together with an error wrapping ErrSummaryUnavailable
// so the caller can record the degradation without aborting.
func (r *Requester) Summarize(ctx context.Context, p Payload) (string, error) {
	if r.gen == nil {
		return Fallback(p), nil
	}

	text, err := r.gen.Generate(ctx, p)
	if err != nil {
		r.logger.Warn("summary generation failed, using fallback", "err", err)
		metrics.SummaryFallbacks.Inc()
		return Fallback(p), fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}
	if text == "" {
		metrics.SummaryFallbacks.Inc()
		return Fallback(p), fmt.Errorf("%w: empty response", ErrSummaryUnavailable)
	}
	return text, nil
}
