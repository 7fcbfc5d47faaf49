package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricepilot/pkg/models"
	"pricepilot/pkg/normalize"
)

// domTier applies the profile's selector candidates to the document.
type domTier struct{}

func (domTier) Name() string { return "dom" }

func (domTier) Extract(_ context.Context, p *Page) (models.ProductResult, bool) {
	if p.Doc == nil {
		return models.ProductResult{}, false
	}
	return extractDOM(p)
}

func extractDOM(p *Page) (models.ProductResult, bool) {
	root := p.Doc.Selection
	scope := root
	if len(p.Profile.Item) > 0 {
		item := firstSelection(root, p.Profile.Item)
		if item == nil {
			return models.ProductResult{}, false
		}
		scope = item
	}

	match := func(candidates []string) (string, candidate) {
		v, c := firstValue(scope, candidates)
		if v == "" && p.Profile.DocumentFallback && scope != root {
			v, c = firstValue(root, candidates)
		}
		return v, c
	}
	lookup := func(candidates []string) string {
		v, _ := match(candidates)
		return v
	}

	res := models.NewResult(p.Source.Name)
	res.Title = lookup(p.Profile.Title)
	if brand := lookup(p.Profile.Brand); brand != "" && !strings.HasPrefix(res.Title, brand) {
		res.Title = strings.TrimSpace(brand + " " + res.Title)
	}
	res.Price = normalize.PriceText(lookup(p.Profile.Price), p.Source.KeepDecimal)
	res.Image = p.resolve(lookup(p.Profile.Image))
	res.URL = p.resolve(lookup(p.Profile.Link))
	res.Rating = ratingOf(match(p.Profile.Rating))
	res.Availability = lookup(p.Profile.Availability)
	res.Seller = lookup(p.Profile.Seller)

	if res.Price == "" && p.Profile.SoldOutText != "" &&
		strings.Contains(strings.ToLower(root.Text()), strings.ToLower(p.Profile.SoldOutText)) {
		res.Price = models.SoldOut
		res.Availability = "Out of Stock"
	}

	if res.Title == "" && res.Price == "" && res.Image == "" {
		return models.ProductResult{}, false
	}
	if res.Availability == "" {
		res.Availability = "In Stock"
	}
	return res, true
}

// candidate is a CSS selector optionally suffixed with @attr. "." selects
// the scope itself.
type candidate struct {
	css  string
	attr string
}

func parseCandidate(raw string) candidate {
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		return candidate{css: strings.TrimSpace(raw[:i]), attr: strings.TrimSpace(raw[i+1:])}
	}
	return candidate{css: strings.TrimSpace(raw)}
}

func (c candidate) selectIn(scope *goquery.Selection) *goquery.Selection {
	if c.css == "." || c.css == "" {
		return scope
	}
	return scope.Find(c.css).First()
}

func firstSelection(scope *goquery.Selection, candidates []string) *goquery.Selection {
	for _, raw := range candidates {
		if sel := parseCandidate(raw).selectIn(scope); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

func firstValue(scope *goquery.Selection, candidates []string) (string, candidate) {
	for _, raw := range candidates {
		c := parseCandidate(raw)
		sel := c.selectIn(scope)
		if sel.Length() == 0 {
			continue
		}
		var v string
		if c.attr != "" {
			v, _ = sel.Attr(c.attr)
		} else {
			v = sel.Text()
		}
		if v = strings.Join(strings.Fields(v), " "); v != "" {
			return v, c
		}
	}
	return "", candidate{}
}

// ratingOf keeps the leading token of text ratings ("4.3 out of 5 stars")
// and attribute values untouched.
func ratingOf(v string, c candidate) string {
	if v == "" || c.attr != "" {
		return v
	}
	return strings.Fields(v)[0]
}
