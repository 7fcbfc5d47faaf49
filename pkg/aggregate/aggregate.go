package aggregate

import (
	"strings"

	"pricepilot/pkg/models"
	"pricepilot/pkg/normalize"
)

// Combine returns feed results followed by live results, dropping any result
// whose lowercased URL was already seen. Results without a URL are always
// kept. Order is otherwise preserved.
func Combine(feed, live []models.ProductResult) []models.ProductResult {
	out := make([]models.ProductResult, 0, len(feed)+len(live))
	seen := make(map[string]struct{}, len(feed)+len(live))

	for _, group := range [][]models.ProductResult{feed, live} {
		for _, r := range group {
			key := strings.ToLower(strings.TrimSpace(r.URL))
			if key != "" {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			out = append(out, r)
		}
	}
	return out
}

// FromCatalog converts catalog rows into results tagged with the feed origin.
func FromCatalog(entries []models.CatalogEntry) []models.ProductResult {
	out := make([]models.ProductResult, 0, len(entries))
	for _, e := range entries {
		r := models.NewResult(e.Source)
		r.Origin = models.OriginFeed
		r.Title = normalize.Title(e.Title)
		if e.Price != "" {
			r.Price = e.Price
		}
		r.PriceValue = normalize.PricePtr(e.Price)
		r.Image = e.Image
		r.URL = e.URL
		r.Availability = "In Stock"
		if e.Brand != "" {
			r.Seller = e.Brand
		}
		out = append(out, r)
	}
	return out
}
