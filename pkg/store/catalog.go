package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"pricepilot/pkg/models"
)

const (
	DefaultSearchLimit = 10
	searchCandidates   = 200

	titleWeight    = 3
	brandWeight    = 4
	categoryWeight = 2
)

// UpsertCatalog inserts or updates records keyed by (source, external_id).
// Identity columns are fixed at creation; every other column takes the
// latest value. Records without an external id are skipped.
func (s *Store) UpsertCatalog(ctx context.Context, source string, records []models.FeedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO product_catalog (source, external_id, title, price, currency, url, image, category, brand, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			currency = excluded.currency,
			url = excluded.url,
			image = excluded.image,
			category = excluded.category,
			brand = excluded.brand,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	updatedAt := formatTime(s.now())
	count := 0
	for _, r := range records {
		if strings.TrimSpace(r.ExternalID) == "" {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			source, r.ExternalID, r.Title, r.Price, r.Currency, r.URL, r.Image, r.Category, r.Brand, updatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("store: upsert %s/%s: %w", source, r.ExternalID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// SearchCatalog ranks catalog rows matching any term of text. Each term
// found in the title, brand or category adds that field's weight; equal
// scores keep the most recently updated row first.
func (s *Store) SearchCatalog(ctx context.Context, text string, limit int) ([]models.CatalogEntry, error) {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return []models.CatalogEntry{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var where []string
	var args []any
	for _, t := range terms {
		where = append(where, `(title LIKE ? ESCAPE '\' OR brand LIKE ? ESCAPE '\' OR category LIKE ? ESCAPE '\')`)
		pattern := "%" + likeEscaper.Replace(t) + "%"
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, searchCandidates)

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, external_id, title, price, currency, url, image, category, brand, updated_at
		FROM product_catalog
		WHERE `+strings.Join(where, " OR ")+`
		ORDER BY updated_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search catalog: %w", err)
	}
	defer rows.Close()

	type scored struct {
		entry models.CatalogEntry
		score int
	}
	var candidates []scored
	for rows.Next() {
		var e models.CatalogEntry
		var updatedAt string
		if err := rows.Scan(&e.Source, &e.ExternalID, &e.Title, &e.Price, &e.Currency, &e.URL, &e.Image, &e.Category, &e.Brand, &updatedAt); err != nil {
			return nil, err
		}
		if t, err := parseTime(updatedAt); err == nil {
			e.UpdatedAt = t
		}
		candidates = append(candidates, scored{entry: e, score: relevance(e, terms)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]models.CatalogEntry, 0, min(limit, len(candidates)))
	for _, c := range candidates {
		if len(out) == limit {
			break
		}
		out = append(out, c.entry)
	}
	return out, nil
}

// likeEscaper makes LIKE treat wildcard characters in a term literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func relevance(e models.CatalogEntry, terms []string) int {
	title := strings.ToLower(e.Title)
	brand := strings.ToLower(e.Brand)
	category := strings.ToLower(e.Category)

	score := 0
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += titleWeight
		}
		if strings.Contains(brand, t) {
			score += brandWeight
		}
		if strings.Contains(category, t) {
			score += categoryWeight
		}
	}
	return score
}
