package extract

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricepilot/pkg/models"
	"pricepilot/pkg/normalize"
)

// structuredTier reads embedded structured descriptions: JSON-LD Product
// nodes first, then a configured inline state assignment.
type structuredTier struct{}

func (structuredTier) Name() string { return "structured" }

func (structuredTier) Extract(_ context.Context, p *Page) (models.ProductResult, bool) {
	if p.Doc == nil {
		return models.ProductResult{}, false
	}
	if res, ok := fromJSONLD(p); ok {
		return res, true
	}
	if p.Profile.State != nil {
		return fromState(p)
	}
	return models.ProductResult{}, false
}

type ldProduct struct {
	name         string
	price        string
	image        string
	url          string
	availability string
}

func (l ldProduct) usable() bool {
	return l.name != "" || l.price != "" || l.image != ""
}

func fromJSONLD(p *Page) (models.ProductResult, bool) {
	var hit ldProduct
	var found bool

	p.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return true
		}
		if picked, ok := pickProduct(data); ok {
			hit, found = picked, true
			return false
		}
		return true
	})
	if !found {
		return models.ProductResult{}, false
	}

	res := models.NewResult(p.Source.Name)
	res.Title = hit.name
	res.Price = normalize.PriceText(hit.price, p.Source.KeepDecimal)
	res.Image = p.resolve(hit.image)
	res.URL = p.resolve(hit.url)
	res.Availability = hit.availability
	if res.Availability == "" {
		res.Availability = "In Stock"
	}
	return res, true
}

// pickProduct descends arrays, @graph and ItemList nodes looking for the
// first Product (or product-like node carrying a name and a price).
func pickProduct(node any) (ldProduct, bool) {
	switch n := node.(type) {
	case []any:
		for _, child := range n {
			if hit, ok := pickProduct(child); ok {
				return hit, true
			}
		}
	case map[string]any:
		if graph, ok := n["@graph"]; ok {
			if hit, ok := pickProduct(graph); ok {
				return hit, true
			}
		}
		switch {
		case hasType(n, "ItemList"):
			items, _ := n["itemListElement"].([]any)
			for _, it := range items {
				m, ok := it.(map[string]any)
				if !ok {
					continue
				}
				var child any = m
				if inner, ok := m["item"].(map[string]any); ok {
					child = inner
				}
				if hit, ok := pickProduct(child); ok {
					return hit, true
				}
			}
		case hasType(n, "Product"):
			hit := readProduct(n)
			return hit, hit.usable()
		default:
			_, hasOffers := n["offers"]
			_, hasPrice := n["price"]
			if stringOf(n["name"]) != "" && (hasOffers || hasPrice) {
				hit := readProduct(n)
				return hit, hit.usable()
			}
		}
	}
	return ldProduct{}, false
}

func hasType(n map[string]any, want string) bool {
	switch t := n["@type"].(type) {
	case string:
		return t == want
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func readProduct(n map[string]any) ldProduct {
	hit := ldProduct{
		name:  strings.TrimSpace(stringOf(n["name"])),
		image: imageOf(n["image"]),
		url:   stringOf(n["url"]),
	}

	hit.price = stringOf(n["price"])
	offers := n["offers"]
	if list, ok := offers.([]any); ok && len(list) > 0 {
		offers = list[0]
	}
	if o, ok := offers.(map[string]any); ok {
		for _, key := range []string{"price", "lowPrice"} {
			if v := stringOf(o[key]); v != "" {
				hit.price = v
				break
			}
		}
		if hit.price == "" {
			if spec, ok := o["priceSpecification"].(map[string]any); ok {
				hit.price = stringOf(spec["price"])
			}
		}
		hit.availability = availabilityOf(stringOf(o["availability"]))
		if hit.url == "" {
			hit.url = stringOf(o["url"])
		}
	}
	return hit
}

func imageOf(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case []any:
		if len(img) > 0 {
			return imageOf(img[0])
		}
	case map[string]any:
		return stringOf(img["url"])
	}
	return ""
}

func availabilityOf(schema string) string {
	s := strings.ToLower(schema)
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "instock"), strings.Contains(s, "in stock"):
		return "In Stock"
	case strings.Contains(s, "outofstock"), strings.Contains(s, "soldout"):
		return "Out of Stock"
	case strings.Contains(s, "preorder"):
		return "Pre-order"
	}
	return schema
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

func fromState(p *Page) (models.ProductResult, bool) {
	cfg := p.Profile.State
	var state any
	var found bool

	p.Doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, cfg.Marker)
		if idx == -1 {
			return true
		}
		dec := json.NewDecoder(strings.NewReader(text[idx+len(cfg.Marker):]))
		if err := dec.Decode(&state); err == nil {
			found = true
			return false
		}
		return true
	})
	if !found {
		return models.ProductResult{}, false
	}

	res := models.NewResult(p.Source.Name)
	res.Title = strings.TrimSpace(stringOf(lookupPath(state, cfg.Title)))
	res.Price = normalize.PriceText(stringOf(lookupPath(state, cfg.Price)), p.Source.KeepDecimal)
	res.Image = p.resolve(stringOf(lookupPath(state, cfg.Image)))
	res.URL = p.resolve(stringOf(lookupPath(state, cfg.URL)))
	if res.URL == "" {
		res.URL = p.Target
	}

	hit := ldProduct{name: res.Title, price: res.Price, image: res.Image}
	if !hit.usable() {
		return models.ProductResult{}, false
	}
	if res.Availability == "" {
		res.Availability = "In Stock"
	}
	return res, true
}

// lookupPath walks dotted keys; numeric segments index into arrays.
func lookupPath(v any, path string) any {
	if path == "" {
		return nil
	}
	cur := v
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[key]
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}
