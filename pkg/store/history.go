package store

import (
	"context"
	"fmt"
	"log"

	"pricepilot/pkg/models"
	"pricepilot/pkg/normalize"
)

// AppendObservation inserts one observation. Rows are never updated.
func (s *Store) AppendObservation(ctx context.Context, obs models.PriceObservation) error {
	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_history (product_url, title, price, observed_at) VALUES (?, ?, ?, ?)`,
		obs.URL, obs.Title, obs.Price, formatTime(observedAt),
	)
	if err != nil {
		return fmt.Errorf("store: append observation for %s: %w", obs.URL, err)
	}
	return nil
}

// PriceHistory returns the numeric points recorded for url, oldest first.
// Observations whose price text does not resolve to a number are skipped.
func (s *Store) PriceHistory(ctx context.Context, url string) ([]models.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT price, observed_at FROM price_history WHERE product_url = ? ORDER BY observed_at ASC, id ASC`,
		url,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query history for %s: %w", url, err)
	}
	defer rows.Close()

	points := []models.PricePoint{}
	for rows.Next() {
		var price, observedAt string
		if err := rows.Scan(&price, &observedAt); err != nil {
			return nil, err
		}
		value, ok := normalize.Price(price)
		if !ok {
			continue
		}
		date, err := parseTime(observedAt)
		if err != nil {
			log.Printf("Store: skipping history row for %s with bad timestamp %q", url, observedAt)
			continue
		}
		points = append(points, models.PricePoint{Price: value, Date: date})
	}
	return points, rows.Err()
}
