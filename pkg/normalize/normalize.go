package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"pricepilot/pkg/models"
)

var numberToken = regexp.MustCompile(`\d+(\.\d+)?`)

// Price converts raw price input to a number. Sentinels, empty text and
// text without a numeric token do not resolve.
func Price(v any) (float64, bool) {
	switch p := v.(type) {
	case nil:
		return 0, false
	case float64:
		return p, true
	case float32:
		return float64(p), true
	case int:
		return float64(p), true
	case int64:
		return float64(p), true
	case *float64:
		if p == nil {
			return 0, false
		}
		return *p, true
	case string:
		return priceFromText(p)
	default:
		return 0, false
	}
}

func priceFromText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == models.Unavailable || s == models.SoldOut {
		return 0, false
	}
	tok := numberToken.FindString(strings.ReplaceAll(s, ",", ""))
	if tok == "" {
		return 0, false
	}
	val, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// PricePtr is Price returning nil when the input does not resolve.
func PricePtr(v any) *float64 {
	val, ok := Price(v)
	if !ok {
		return nil
	}
	return &val
}

// PriceText reduces scraped price text like "₹1,299.00" to its numeric run.
// The fractional part is dropped unless keepDecimal is set. Returns "" when
// no digits are present.
func PriceText(raw string, keepDecimal bool) string {
	tok := numberToken.FindString(strings.ReplaceAll(raw, ",", ""))
	if tok == "" {
		return ""
	}
	if !keepDecimal {
		if i := strings.IndexByte(tok, '.'); i >= 0 {
			tok = tok[:i]
		}
	}
	return tok
}

// Title collapses whitespace runs and trims. Empty input maps to the
// Unknown Product sentinel.
func Title(s string) string {
	t := strings.Join(strings.Fields(s), " ")
	if t == "" {
		return models.UnknownProduct
	}
	return t
}
