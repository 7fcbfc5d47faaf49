package models

type DealLabel string

const (
	GreatDeal  DealLabel = "Great Deal"
	GoodDeal   DealLabel = "Good Deal"
	FairPrice  DealLabel = "Fair Price"
	Overpriced DealLabel = "Overpriced"
)

type DealAnalysis struct {
	Score        int       `json:"score"`
	Label        DealLabel `json:"label"`
	Savings      float64   `json:"savings"`
	AveragePrice float64   `json:"average_price"`
}
