// Package query derives marketplace search queries from product records.
package query

import (
	"errors"
	"strings"

	"github.com/spyglasshq/spyglass/internal/market"
)

var ErrInsufficientQueryData = errors.New("insufficient data to build a search query")

// Build returns the search query for a product record. The identifier is
// preferred since it gives the most specific marketplace match; the
// descriptive name is the fallback. With neither present no listings can
// be found and the run cannot proceed.
func Build(rec market.ProductRecord) (string, error) {
	if id := strings.TrimSpace(rec.Identifier); id != "" {
		return id, nil
	}
	if name := strings.TrimSpace(rec.Name); name != "" {
		return name, nil
	}
	return "", ErrInsufficientQueryData
}
