package models

// Merge combines a caller-supplied result with a scraped one field by field:
// a non-empty caller field wins, then a resolved scraped field, then the
// sentinel already present in scraped.
//
// When the caller overrides the price text, PriceValue follows the caller
// as well (nil if the caller did not supply one).
func Merge(caller, scraped ProductResult) ProductResult {
	out := scraped
	for _, f := range []struct {
		dst  *string
		from string
	}{
		{&out.Source, caller.Source},
		{&out.Title, caller.Title},
		{&out.Image, caller.Image},
		{&out.URL, caller.URL},
		{&out.Rating, caller.Rating},
		{&out.Availability, caller.Availability},
		{&out.Seller, caller.Seller},
	} {
		if supplied(f.from) {
			*f.dst = f.from
		}
	}

	if supplied(caller.Price) {
		out.Price = caller.Price
		out.PriceValue = nil
		if caller.PriceValue != nil {
			v := *caller.PriceValue
			out.PriceValue = &v
		}
	}
	return out
}

func supplied(s string) bool {
	return s != "" && s != Unavailable
}
