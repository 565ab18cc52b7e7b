// Package extract parses source product pages into structured records.
// Extraction is rule driven: each field has an ordered list of selector
// rules and the first rule that yields usable text wins. Markup is assumed
// unreliable, so a missing field never aborts extraction of the others.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spyglasshq/spyglass/internal/market"
	"github.com/spyglasshq/spyglass/internal/money"
)

var (
	ErrMalformedDocument  = errors.New("malformed document")
	ErrPriceNotFound      = errors.New("price not found")
	ErrIdentifierNotFound = errors.New("identifier not found")
)

// Rule locates one field in the document. When Attr is set the value is
// read from that attribute of the first matching node, otherwise from its
// text content.
type Rule struct {
	Name     string `mapstructure:"name" json:"name"`
	Selector string `mapstructure:"selector" json:"selector"`
	Attr     string `mapstructure:"attr" json:"attr,omitempty"`
}

// Config describes which structural markers to search for on the source page.
type Config struct {
	PriceRules      []Rule `mapstructure:"price_rules"`
	IdentifierRules []Rule `mapstructure:"identifier_rules"`
	NameRules       []Rule `mapstructure:"name_rules"`
	// Currency is assumed when the price text carries no recognizable marker.
	Currency string `mapstructure:"currency"`
}

// DefaultConfig returns rules matching the markup conventions of common
// shop templates: price classes, data attributes, and schema.org microdata.
func DefaultConfig() Config {
	return Config{
		PriceRules: []Rule{
			{Name: "price-class", Selector: ".price, .product-price"},
			{Name: "data-price", Selector: "[data-price]", Attr: "data-price"},
			{Name: "microdata-price", Selector: `meta[itemprop="price"]`, Attr: "content"},
			{Name: "og-price", Selector: `meta[property="product:price:amount"]`, Attr: "content"},
		},
		IdentifierRules: []Rule{
			{Name: "data-sku", Selector: "[data-sku]", Attr: "data-sku"},
			{Name: "microdata-sku", Selector: `meta[itemprop="sku"]`, Attr: "content"},
			{Name: "microdata-gtin", Selector: `[itemprop="gtin13"]`},
			{Name: "product-code", Selector: ".product-code, .sku"},
		},
		NameRules: []Rule{
			{Name: "heading", Selector: "h1"},
			{Name: "og-title", Selector: `meta[property="og:title"]`, Attr: "content"},
		},
		Currency: "PLN",
	}
}

// Extractor turns raw product-page HTML into a market.ProductRecord.
type Extractor struct {
	cfg Config
}

// New creates an Extractor. Missing rule sets fall back to DefaultConfig.
func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if len(cfg.PriceRules) == 0 {
		cfg.PriceRules = def.PriceRules
	}
	if len(cfg.IdentifierRules) == 0 {
		cfg.IdentifierRules = def.IdentifierRules
	}
	if len(cfg.NameRules) == 0 {
		cfg.NameRules = def.NameRules
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	return &Extractor{cfg: cfg}
}

// Extract builds a ProductRecord from the page body. The returned error is
// nil only when every field was located; otherwise it wraps the per-field
// sentinel errors while the record still carries whatever was found.
// Callers decide whether a partially extracted record is usable via
// ProductRecord.Valid.
func (e *Extractor) Extract(body []byte, sourceURL string) (market.ProductRecord, error) {
	rec := market.ProductRecord{
		Currency:  e.cfg.Currency,
		SourceURL: sourceURL,
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return rec, fmt.Errorf("empty body: %w", ErrMalformedDocument)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return rec, fmt.Errorf("parse failed: %w", ErrMalformedDocument)
	}
	if doc.Find("*").Length() == 0 {
		return rec, fmt.Errorf("no elements: %w", ErrMalformedDocument)
	}

	var errs []error

	if raw, rule := firstMatch(doc, e.cfg.PriceRules); raw != "" {
		amount, perr := money.Parse(raw)
		if perr != nil {
			// A located but unparsable price is reported, never coerced to zero.
			errs = append(errs, fmt.Errorf("rule %q matched %q: %v: %w", rule, raw, perr, ErrPriceNotFound))
		} else {
			rec.RRP = &amount
			rec.Currency = money.Currency(raw, e.cfg.Currency)
		}
	} else {
		errs = append(errs, ErrPriceNotFound)
	}

	if id, _ := firstMatch(doc, e.cfg.IdentifierRules); id != "" {
		rec.Identifier = id
	} else {
		errs = append(errs, ErrIdentifierNotFound)
	}

	if name, _ := firstMatch(doc, e.cfg.NameRules); name != "" {
		rec.Name = name
	}

	return rec, errors.Join(errs...)
}

// firstMatch evaluates rules in priority order and returns the first
// non-empty value along with the winning rule name.
func firstMatch(doc *goquery.Document, rules []Rule) (string, string) {
	for _, r := range rules {
		sel := doc.Find(r.Selector).First()
		if sel.Length() == 0 {
			continue
		}
		var val string
		if r.Attr != "" {
			val, _ = sel.Attr(r.Attr)
		} else {
			val = sel.Text()
		}
		val = collapseSpace(val)
		if val != "" {
			return val, r.Name
		}
	}
	return "", ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
