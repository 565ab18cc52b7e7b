// Package harvest discovers candidate listings on a marketplace search
// index and extracts their prices. Result pages are fetched concurrently
// but merged in page order, so output is reproducible regardless of fetch
// completion order.
package harvest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spyglasshq/spyglass/internal/fetch"
	"github.com/spyglasshq/spyglass/internal/market"
	"github.com/spyglasshq/spyglass/internal/metrics"
	"github.com/spyglasshq/spyglass/internal/money"
	"golang.org/x/sync/errgroup"
)

// ErrMarketplaceUnreachable means the first search page could not be
// fetched at all, leaving nothing to aggregate.
var ErrMarketplaceUnreachable = errors.New("marketplace unreachable")

// Config describes the marketplace search index.
type Config struct {
	// SearchURL is a template with {query} and optional {page}
	// placeholders, e.g. "https://www.ceneo.pl/;szukaj-{query};0020-30-0-0-{page}".
	SearchURL string `mapstructure:"search_url"`
	// MaxPages caps pagination. Without a {page} placeholder only one
	// page is ever fetched.
	MaxPages int `mapstructure:"max_pages"`
	// MaxListings caps collected listings, applied in discovery order.
	MaxListings int `mapstructure:"max_listings"`
	// Concurrency bounds simultaneous page fetches.
	Concurrency int `mapstructure:"concurrency"`
	// ListingSelector matches one search-result entry.
	ListingSelector string `mapstructure:"listing_selector"`
	// PriceSelector matches the price text within an entry.
	PriceSelector string `mapstructure:"price_selector"`
	// LinkSelector matches the entry's product link (href attribute).
	LinkSelector string `mapstructure:"link_selector"`
	// Currency assumed for listings without an explicit marker.
	Currency string `mapstructure:"currency"`
}

// Result is the listing set collected for one query.
type Result struct {
	Listings []market.Listing
	// Partial is true when a later page failed and harvesting stopped
	// early with what was already collected.
	Partial bool
	// PagesFetched counts search pages that contributed listings.
	PagesFetched int
	// Skipped counts entries dropped for unparsable or non-positive prices.
	Skipped int
}

// Harvester runs marketplace searches through the fetch layer.
type Harvester struct {
	cfg     Config
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

// New creates a Harvester with config defaults applied.
func New(cfg Config, fetcher *fetch.Fetcher, logger *slog.Logger) *Harvester {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if !strings.Contains(cfg.SearchURL, "{page}") {
		cfg.MaxPages = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.ListingSelector == "" {
		cfg.ListingSelector = ".cat-prod-row"
	}
	if cfg.PriceSelector == "" {
		cfg.PriceSelector = ".price"
	}
	if cfg.Currency == "" {
		cfg.Currency = "PLN"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{cfg: cfg, fetcher: fetcher, logger: logger}
}

type pageResult struct {
	listings []market.Listing
	skipped  int
	failed   bool
}

// Run fetches up to MaxPages search pages for the query and extracts
// listing prices. A failure on the first page is fatal; failures on later
// pages end harvesting early and flag the result as partial. A page with
// zero parseable listings is treated as end of results.
func (h *Harvester) Run(ctx context.Context, query string) (*Result, error) {
	pages := make([]pageResult, h.cfg.MaxPages)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Concurrency)

	for i := 0; i < h.cfg.MaxPages; i++ {
		page := i + 1
		g.Go(func() error {
			pageURL := h.buildURL(query, page)
			rec, err := h.fetcher.Fetch(gCtx, pageURL)
			if err != nil || rec.Error != "" || rec.Blocked || rec.StatusCode >= 400 {
				if err == nil {
					h.logger.Warn("search page fetch failed",
						"page", page, "status", rec.StatusCode, "blocked", rec.Blocked, "err", rec.Error)
				} else {
					h.logger.Warn("search page fetch failed", "page", page, "err", err)
				}
				pages[page-1] = pageResult{failed: true}
				return nil
			}

			listings, skipped := h.parsePage(pageURL, rec.Body)
			pages[page-1] = pageResult{listings: listings, skipped: skipped}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("harvest canceled: %w", err)
	}

	// Merge strictly in page order so concurrent completion order cannot
	// change the output.
	res := &Result{}
	seen := make(map[string]struct{})

	for i, pr := range pages {
		if pr.failed {
			if i == 0 {
				return nil, fmt.Errorf("search page 1 failed: %w", ErrMarketplaceUnreachable)
			}
			res.Partial = true
			break
		}
		if len(pr.listings) == 0 {
			// End of results, not an error.
			break
		}

		res.PagesFetched++
		res.Skipped += pr.skipped

		capped := false
		for _, l := range pr.listings {
			if l.URL != "" {
				if _, dup := seen[l.URL]; dup {
					continue
				}
				seen[l.URL] = struct{}{}
			}
			res.Listings = append(res.Listings, l)
			if h.cfg.MaxListings > 0 && len(res.Listings) >= h.cfg.MaxListings {
				capped = true
				break
			}
		}
		if capped {
			break
		}
	}

	metrics.ListingsHarvested.Add(float64(len(res.Listings)))
	metrics.ListingsSkipped.Add(float64(res.Skipped))

	h.logger.Info("harvest complete",
		"query", query, "listings", len(res.Listings), "pages", res.PagesFetched,
		"skipped", res.Skipped, "partial", res.Partial)

	return res, nil
}

func (h *Harvester) buildURL(query string, page int) string {
	u := strings.ReplaceAll(h.cfg.SearchURL, "{query}", url.QueryEscape(query))
	u = strings.ReplaceAll(u, "{page}", strconv.Itoa(page))
	return u
}

// parsePage extracts listing prices from one search-result page. Entries
// with malformed price text are skipped and counted, never fatal.
func (h *Harvester) parsePage(pageURL string, body []byte) ([]market.Listing, int) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		h.logger.Warn("unparsable search page", "url", pageURL, "err", err)
		return nil, 0
	}

	base, _ := url.Parse(pageURL)

	var listings []market.Listing
	skipped := 0

	doc.Find(h.cfg.ListingSelector).Each(func(i int, s *goquery.Selection) {
		priceText := strings.TrimSpace(s.Find(h.cfg.PriceSelector).First().Text())
		amount, err := money.Parse(priceText)
		if err != nil {
			skipped++
			return
		}

		listing := market.Listing{
			Amount:   amount,
			Currency: money.Currency(priceText, h.cfg.Currency),
		}

		if h.cfg.LinkSelector != "" {
			if href, ok := s.Find(h.cfg.LinkSelector).First().Attr("href"); ok {
				if ref, err := url.Parse(href); err == nil && base != nil {
					listing.URL = base.ResolveReference(ref).String()
				} else {
					listing.URL = href
				}
			}
		}

		listings = append(listings, listing)
	})

	return listings, skipped
}
