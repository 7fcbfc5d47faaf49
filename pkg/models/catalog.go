package models

import "time"

// FeedRecord is the shape bulk feed ingestion hands to the catalog.
type FeedRecord struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Price      string `json:"price"`
	Currency   string `json:"currency"`
	URL        string `json:"url"`
	Image      string `json:"image"`
	Category   string `json:"category"`
	Brand      string `json:"brand"`
}

// CatalogEntry is keyed by (Source, ExternalID).
type CatalogEntry struct {
	Source     string    `json:"source"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	Price      string    `json:"price"`
	Currency   string    `json:"currency"`
	URL        string    `json:"url"`
	Image      string    `json:"image"`
	Category   string    `json:"category"`
	Brand      string    `json:"brand"`
	UpdatedAt  time.Time `json:"updated_at"`
}
