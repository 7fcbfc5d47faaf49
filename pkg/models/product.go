package models

import "time"

const (
	Unavailable    = "Unavailable"
	SoldOut        = "Sold Out"
	UnknownProduct = "Unknown Product"

	ErrTextTimeout = "Timeout"
)

type Origin string

const (
	OriginLive Origin = "live"
	OriginFeed Origin = "feed"
)

// ProductResult is the uniform shape every extraction produces. Title and
// Price carry the Unavailable sentinel and Image/URL the empty string when
// unresolved, so every field is always present for consumers.
type ProductResult struct {
	Source       string   `json:"source"`
	Title        string   `json:"title"`
	Price        string   `json:"price"`
	PriceValue   *float64 `json:"price_value"`
	Image        string   `json:"image"`
	URL          string   `json:"url"`
	Rating       string   `json:"rating"`
	Availability string   `json:"availability"`
	Seller       string   `json:"seller"`
	Error        string   `json:"error"`
	Origin       Origin   `json:"origin"`
}

// NewResult returns a result for source with every field set to its sentinel.
func NewResult(source string) ProductResult {
	return ProductResult{
		Source: source,
		Title:  Unavailable,
		Price:  Unavailable,
		Origin: OriginLive,
	}
}

// FailedResult is the envelope used when a source could not produce data.
func FailedResult(source, errText string) ProductResult {
	r := NewResult(source)
	r.Error = errText
	return r
}

func (r ProductResult) OK() bool {
	return r.Error == ""
}

// HasData reports whether at least one of title, price or image resolved.
func (r ProductResult) HasData() bool {
	return (r.Title != "" && r.Title != Unavailable) ||
		(r.Price != "" && r.Price != Unavailable) ||
		r.Image != ""
}

type PriceObservation struct {
	URL        string    `json:"product_url"`
	Title      string    `json:"title"`
	Price      string    `json:"price"`
	ObservedAt time.Time `json:"date"`
}

type PricePoint struct {
	Price float64   `json:"price"`
	Date  time.Time `json:"date"`
}
