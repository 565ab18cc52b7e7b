// Package aggregate reduces a listing set to a single market price
// estimate and computes how the reference price deviates from it.
//
// Outlier policy: when at least four same-currency listings remain, prices
// outside [Q1 - k*IQR, Q3 + k*IQR] are discarded before the median is
// taken. Quartiles are Tukey hinges (median of each half, the middle
// element included in both halves on odd counts). k defaults to 1.5 and
// k <= 0 disables trimming entirely.
package aggregate

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spyglasshq/spyglass/internal/market"
)

var (
	// ErrNoListings means the filtered listing set is empty; there is no
	// estimate to report, not a zero-valued one.
	ErrNoListings = errors.New("no usable listings")
	// ErrMissingReferencePrice means the product record carried no RRP,
	// so no deviation can be computed.
	ErrMissingReferencePrice = errors.New("missing reference price")
)

// Config tunes the aggregation.
type Config struct {
	// IQRMultiplier is the k in the outlier fences. <= 0 disables trimming.
	IQRMultiplier float64 `mapstructure:"iqr_multiplier"`
	// Tolerance is the band within which RRP and median count as equal.
	Tolerance decimal.Decimal `mapstructure:"-"`
}

// Aggregator computes market estimates and deviations.
type Aggregator struct {
	cfg Config
}

// New creates an Aggregator. Zero-value tolerance defaults to 0.01
// currency units; use a negative IQRMultiplier to disable trimming.
func New(cfg Config) *Aggregator {
	if cfg.IQRMultiplier == 0 {
		cfg.IQRMultiplier = 1.5
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = decimal.New(1, -2)
	}
	return &Aggregator{cfg: cfg}
}

// Estimate filters the listings to the given currency, trims outliers per
// the configured policy, and returns the median with sample bounds.
func (a *Aggregator) Estimate(listings []market.Listing, currency string) (*market.Estimate, error) {
	amounts := make([]decimal.Decimal, 0, len(listings))
	for _, l := range listings {
		// Cross-currency listings must be rejected, never averaged in.
		if l.Currency != currency || !l.Amount.IsPositive() {
			continue
		}
		amounts = append(amounts, l.Amount)
	}
	if len(amounts) == 0 {
		return nil, ErrNoListings
	}

	sort.Slice(amounts, func(i, j int) bool { return amounts[i].LessThan(amounts[j]) })

	if a.cfg.IQRMultiplier > 0 && len(amounts) >= 4 {
		amounts = trimOutliers(amounts, a.cfg.IQRMultiplier)
	}
	if len(amounts) == 0 {
		return nil, ErrNoListings
	}

	return &market.Estimate{
		Median:      median(amounts),
		SampleCount: len(amounts),
		MinPrice:    amounts[0],
		MaxPrice:    amounts[len(amounts)-1],
	}, nil
}

// Deviation compares the reference price against the estimate's median.
func (a *Aggregator) Deviation(rrp *decimal.Decimal, est *market.Estimate) (*market.Deviation, error) {
	if rrp == nil {
		return nil, ErrMissingReferencePrice
	}
	if est == nil {
		return nil, ErrNoListings
	}

	delta := rrp.Sub(est.Median)
	percent := delta.Div(est.Median).Mul(decimal.NewFromInt(100)).Round(2)

	direction := market.DirectionEqual
	if delta.Abs().GreaterThan(a.cfg.Tolerance) {
		if delta.IsPositive() {
			direction = market.DirectionAbove
		} else {
			direction = market.DirectionBelow
		}
	}

	return &market.Deviation{
		RRP:           *rrp,
		Median:        est.Median,
		DeltaAbsolute: delta,
		DeltaPercent:  percent,
		Direction:     direction,
	}, nil
}

// median applies the ordered-sequence rule: middle value for odd counts,
// mean of the two middle values for even counts.
func median(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return decimal.Avg(sorted[mid-1], sorted[mid])
}

// trimOutliers drops amounts outside the IQR fences.
func trimOutliers(sorted []decimal.Decimal, k float64) []decimal.Decimal {
	q1, q3 := hinges(sorted)
	iqr := q3.Sub(q1)
	spread := iqr.Mul(decimal.NewFromFloat(k))
	lo := q1.Sub(spread)
	hi := q3.Add(spread)

	kept := sorted[:0:0]
	for _, v := range sorted {
		if v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi) {
			kept = append(kept, v)
		}
	}
	return kept
}

// hinges returns Tukey's hinges of a sorted slice with len >= 2.
func hinges(sorted []decimal.Decimal) (q1, q3 decimal.Decimal) {
	n := len(sorted)
	half := n / 2
	if n%2 == 1 {
		half++ // middle element belongs to both halves
	}
	q1 = median(sorted[:half])
	q3 = median(sorted[n-half:])
	return q1, q3
}
