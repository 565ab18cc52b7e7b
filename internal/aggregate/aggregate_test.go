package aggregate

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spyglasshq/spyglass/internal/market"
)

func listings(currency string, amounts ...string) []market.Listing {
	ls := make([]market.Listing, 0, len(amounts))
	for _, a := range amounts {
		ls = append(ls, market.Listing{Amount: decimal.RequireFromString(a), Currency: currency})
	}
	return ls
}

func TestEstimate_OutlierTrimmedMedian(t *testing.T) {
	// 500 sits far outside the IQR fences and must not drag the median.
	a := New(Config{})

	est, err := a.Estimate(listings("PLN", "100", "120", "130", "150", "500"), "PLN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := decimal.RequireFromString("125"); !est.Median.Equal(want) {
		t.Errorf("expected median %s after outlier removal, got %s", want, est.Median)
	}
	if est.SampleCount != 4 {
		t.Errorf("expected 4 samples after trimming, got %d", est.SampleCount)
	}
	if !est.MinPrice.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected min 100, got %s", est.MinPrice)
	}
	if !est.MaxPrice.Equal(decimal.RequireFromString("150")) {
		t.Errorf("expected max 150, got %s", est.MaxPrice)
	}
}

func TestDeviation_WorkedExample(t *testing.T) {
	a := New(Config{})

	est, err := a.Estimate(listings("PLN", "100", "120", "130", "150", "500"), "PLN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rrp := decimal.RequireFromString("140")
	dev, err := a.Deviation(&rrp, est)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := decimal.RequireFromString("15"); !dev.DeltaAbsolute.Equal(want) {
		t.Errorf("expected delta 15, got %s", dev.DeltaAbsolute)
	}
	if want := decimal.RequireFromString("12"); !dev.DeltaPercent.Equal(want) {
		t.Errorf("expected delta percent 12.0, got %s", dev.DeltaPercent)
	}
	if dev.Direction != market.DirectionAbove {
		t.Errorf("expected ABOVE, got %s", dev.Direction)
	}
}

func TestEstimate_MedianWithinBounds(t *testing.T) {
	// Disable trimming so the property holds over the raw sample.
	a := New(Config{IQRMultiplier: -1})

	sets := [][]string{
		{"10"},
		{"10", "20"},
		{"5", "80", "81", "82", "900"},
		{"1.50", "2.25", "3.10", "4.99"},
	}
	for _, amounts := range sets {
		est, err := a.Estimate(listings("PLN", amounts...), "PLN")
		if err != nil {
			t.Fatalf("unexpected error for %v: %v", amounts, err)
		}
		if est.Median.LessThan(est.MinPrice) || est.Median.GreaterThan(est.MaxPrice) {
			t.Errorf("median %s outside [%s, %s] for %v", est.Median, est.MinPrice, est.MaxPrice, amounts)
		}
	}
}

func TestEstimate_ReorderInvariant(t *testing.T) {
	a := New(Config{})
	amounts := []string{"100", "120", "130", "150", "500", "110", "145"}

	base, err := a.Estimate(listings("PLN", amounts...), "PLN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		shuffled := append([]string(nil), amounts...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		est, err := a.Estimate(listings("PLN", shuffled...), "PLN")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !est.Median.Equal(base.Median) || est.SampleCount != base.SampleCount {
			t.Fatalf("estimate changed under reordering: %v vs %v", est, base)
		}
	}
}

func TestEstimate_EvenCountAveragesMiddlePair(t *testing.T) {
	a := New(Config{IQRMultiplier: -1})

	est, err := a.Estimate(listings("PLN", "10", "20", "30", "40"), "PLN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := decimal.RequireFromString("25"); !est.Median.Equal(want) {
		t.Errorf("expected median 25, got %s", est.Median)
	}
}

func TestEstimate_CurrencyMismatchExcluded(t *testing.T) {
	a := New(Config{IQRMultiplier: -1})

	ls := listings("PLN", "100", "120")
	ls = append(ls, listings("EUR", "5", "7", "9")...)

	est, err := a.Estimate(ls, "PLN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.SampleCount != 2 {
		t.Errorf("expected foreign-currency listings excluded, got %d samples", est.SampleCount)
	}
	if want := decimal.RequireFromString("110"); !est.Median.Equal(want) {
		t.Errorf("expected median 110, got %s", est.Median)
	}
}

func TestEstimate_EmptySet(t *testing.T) {
	a := New(Config{})

	if _, err := a.Estimate(nil, "PLN"); !errors.Is(err, ErrNoListings) {
		t.Errorf("expected ErrNoListings for empty input, got %v", err)
	}

	// Non-empty input that filters down to nothing behaves the same.
	if _, err := a.Estimate(listings("EUR", "10", "20"), "PLN"); !errors.Is(err, ErrNoListings) {
		t.Errorf("expected ErrNoListings after currency filter, got %v", err)
	}
}

func TestDeviation_MissingRRP(t *testing.T) {
	a := New(Config{})
	est := &market.Estimate{Median: decimal.RequireFromString("100"), SampleCount: 1}

	if _, err := a.Deviation(nil, est); !errors.Is(err, ErrMissingReferencePrice) {
		t.Errorf("expected ErrMissingReferencePrice, got %v", err)
	}
}

func TestDeviation_EqualWithinTolerance(t *testing.T) {
	a := New(Config{})
	est := &market.Estimate{Median: decimal.RequireFromString("100.00"), SampleCount: 3}

	rrp := decimal.RequireFromString("100.01")
	dev, err := a.Deviation(&rrp, est)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.Direction != market.DirectionEqual {
		t.Errorf("expected EQUAL within tolerance, got %s", dev.Direction)
	}

	rrp2 := decimal.RequireFromString("99.90")
	dev2, err := a.Deviation(&rrp2, est)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev2.Direction != market.DirectionBelow {
		t.Errorf("expected BELOW outside tolerance, got %s", dev2.Direction)
	}
}
