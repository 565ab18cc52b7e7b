package market

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductRecord holds the fields extracted from one source product page.
// It is built once per run and never mutated afterwards.
type ProductRecord struct {
	Identifier string           `json:"identifier,omitempty"`
	Name       string           `json:"name,omitempty"`
	RRP        *decimal.Decimal `json:"rrp,omitempty"`
	Currency   string           `json:"currency"`
	SourceURL  string           `json:"source_url"`
}

// Valid reports whether the record carries enough data for a run to proceed.
// A record missing both the identifier and the reference price is unusable.
func (r ProductRecord) Valid() bool {
	return r.Identifier != "" || r.RRP != nil
}

// Listing is one candidate marketplace entry with its offered price.
type Listing struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	URL      string          `json:"url,omitempty"`
}

// Estimate is the aggregated market price derived from one listing set.
type Estimate struct {
	Median      decimal.Decimal `json:"median"`
	SampleCount int             `json:"sample_count"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
}

// Direction classifies how the reference price sits against the market median.
type Direction string

const (
	DirectionAbove Direction = "ABOVE"
	DirectionBelow Direction = "BELOW"
	DirectionEqual Direction = "EQUAL"
)

// Deviation captures the signed difference between the reference price and
// the market median.
type Deviation struct {
	RRP           decimal.Decimal `json:"rrp"`
	Median        decimal.Decimal `json:"median"`
	DeltaAbsolute decimal.Decimal `json:"delta_absolute"`
	DeltaPercent  decimal.Decimal `json:"delta_percent"`
	Direction     Direction       `json:"direction"`
}

// Stage identifies the pipeline stage an error originated from.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageQuery     Stage = "query"
	StageHarvest   Stage = "harvest"
	StageAggregate Stage = "aggregate"
	StageSummary   Stage = "summary"
)

// StageError attaches the originating stage to an error so callers can tell
// which part of the run degraded without inspecting error strings.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// MarshalJSON flattens the wrapped error into a plain message so stage errors
// survive serialization into run reports.
func (e *StageError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Stage Stage  `json:"stage"`
		Error string `json:"error"`
	}{Stage: e.Stage, Error: e.Err.Error()})
}
