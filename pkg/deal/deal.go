package deal

import "pricepilot/pkg/models"

// Score classifies current against the historical average. A missing or
// zero average is treated as no history.
func Score(current, average float64) models.DealAnalysis {
	if average == 0 {
		return models.DealAnalysis{Score: 5, Label: models.FairPrice}
	}

	savings := (average - current) / average * 100
	a := models.DealAnalysis{Savings: savings, AveragePrice: average}
	switch {
	case savings >= 20:
		a.Score, a.Label = 10, models.GreatDeal
	case savings >= 10:
		a.Score, a.Label = 8, models.GoodDeal
	case savings >= -5:
		a.Score, a.Label = 6, models.FairPrice
	default:
		a.Score, a.Label = 3, models.Overpriced
	}
	return a
}

// Average is the arithmetic mean of the points, or 0 when there are none.
func Average(points []models.PricePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Price
	}
	return sum / float64(len(points))
}

// ScoreAgainst scores current against history. With no history the current
// price stands in as the only sample.
func ScoreAgainst(current float64, history []models.PricePoint) models.DealAnalysis {
	if len(history) == 0 {
		return Score(current, current)
	}
	return Score(current, Average(history))
}
