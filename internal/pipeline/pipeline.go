// Package pipeline wires the stages of one price analysis run: fetch the
// source page, extract the product record, build the marketplace query,
// harvest listing prices, aggregate them, and request a summary. Stages
// that make downstream work impossible fail the run; everything else
// degrades into a partial result with the skipped work recorded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spyglasshq/spyglass/internal/aggregate"
	"github.com/spyglasshq/spyglass/internal/extract"
	"github.com/spyglasshq/spyglass/internal/fetch"
	"github.com/spyglasshq/spyglass/internal/harvest"
	"github.com/spyglasshq/spyglass/internal/market"
	"github.com/spyglasshq/spyglass/internal/metrics"
	"github.com/spyglasshq/spyglass/internal/query"
	"github.com/spyglasshq/spyglass/internal/summary"
)

// Result is the complete output of one run. Estimate and Deviation are nil
// when their stage had nothing to work with; Summary is always non-empty.
type Result struct {
	Record    market.ProductRecord `json:"record"`
	Estimate  *market.Estimate     `json:"estimate,omitempty"`
	Deviation *market.Deviation    `json:"deviation,omitempty"`
	Summary   string               `json:"summary"`
	Partial   bool                 `json:"partial"`
	Errors    []*market.StageError `json:"errors,omitempty"`
}

// Pipeline holds the stage components. All fields are required except
// Logger.
type Pipeline struct {
	Fetcher    *fetch.Fetcher
	Extractor  *extract.Extractor
	Harvester  *harvest.Harvester
	Aggregator *aggregate.Aggregator
	Summary    *summary.Requester
	Logger     *slog.Logger
}

// New builds a pipeline and validates its components.
func New(fetcher *fetch.Fetcher, extractor *extract.Extractor, harvester *harvest.Harvester,
	aggregator *aggregate.Aggregator, requester *summary.Requester, logger *slog.Logger) (*Pipeline, error) {
	if fetcher == nil || extractor == nil || harvester == nil || aggregator == nil || requester == nil {
		return nil, errors.New("pipeline requires all stage components")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Fetcher:    fetcher,
		Extractor:  extractor,
		Harvester:  harvester,
		Aggregator: aggregator,
		Summary:    requester,
		Logger:     logger,
	}, nil
}

// Analyze runs the full pipeline for one product URL. A non-nil error
// means the run terminated before producing a result; its stage is
// attached as a *market.StageError. Degradations short of that are
// collected in Result.Errors and flip Result.Partial.
func (p *Pipeline) Analyze(ctx context.Context, productURL string) (*Result, error) {
	res := &Result{}

	fail := func(stage market.Stage, err error) (*Result, error) {
		metrics.RunsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, &market.StageError{Stage: stage, Err: err}
	}
	degrade := func(stage market.Stage, err error) {
		res.Partial = true
		res.Errors = append(res.Errors, &market.StageError{Stage: stage, Err: err})
	}

	// Stage 1: fetch the source product page.
	page, err := p.Fetcher.Fetch(ctx, productURL)
	if err != nil {
		return fail(market.StageFetch, err)
	}
	if page.Error != "" {
		return fail(market.StageFetch, fmt.Errorf("source page fetch failed: %s", page.Error))
	}
	if page.Blocked {
		return fail(market.StageFetch, fmt.Errorf("source page blocked by %s", page.BlockSrc))
	}

	// Stage 2: extract the product record. Partial extraction is fine as
	// long as the record stays usable.
	rec, exErr := p.Extractor.Extract(page.Body, productURL)
	res.Record = rec
	if exErr != nil {
		if !rec.Valid() {
			return fail(market.StageExtract, exErr)
		}
		degrade(market.StageExtract, exErr)
	}

	// Stage 3: derive the marketplace query.
	q, err := query.Build(rec)
	if err != nil {
		return fail(market.StageQuery, err)
	}

	// Stage 4: harvest listing prices.
	hres, err := p.Harvester.Run(ctx, q)
	if err != nil {
		return fail(market.StageHarvest, err)
	}
	if hres.Partial {
		degrade(market.StageHarvest, fmt.Errorf("harvest stopped early after %d pages", hres.PagesFetched))
	}

	// Stage 5: aggregate into an estimate and deviation.
	est, err := p.Aggregator.Estimate(hres.Listings, rec.Currency)
	if err != nil {
		degrade(market.StageAggregate, err)
	} else {
		res.Estimate = est
		dev, err := p.Aggregator.Deviation(rec.RRP, est)
		if err != nil {
			degrade(market.StageAggregate, err)
		} else {
			res.Deviation = dev
		}
	}

	// Stage 6: summary, with fallback. Never fatal.
	text, err := p.Summary.Summarize(ctx, summary.PayloadFrom(rec, res.Estimate, res.Deviation))
	if err != nil {
		degrade(market.StageSummary, err)
	}
	res.Summary = text

	outcome := metrics.OutcomeOK
	if res.Partial {
		outcome = metrics.OutcomePartial
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()

	p.Logger.Info("run complete",
		"url", productURL,
		"identifier", rec.Identifier,
		"listings", sampleCount(res.Estimate),
		"partial", res.Partial,
		"errors", len(res.Errors))

	return res, nil
}

func sampleCount(est *market.Estimate) int {
	if est == nil {
		return 0
	}
	return est.SampleCount
}
