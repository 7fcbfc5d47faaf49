package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pricepilot/pkg/aggregate"
	"pricepilot/pkg/cache"
	"pricepilot/pkg/deal"
	"pricepilot/pkg/extract"
	"pricepilot/pkg/models"
)

const (
	UnsupportedSource = "Not supported"
	UnsupportedTitle  = "Unsupported website"

	catalogLimit     = 10
	batchConcurrency = 3
)

var (
	ErrEmptyQuery  = errors.New("query must not be empty")
	ErrEmptySource = errors.New("source must not be empty")
)

type HistoryStore interface {
	AppendObservation(ctx context.Context, obs models.PriceObservation) error
	PriceHistory(ctx context.Context, url string) ([]models.PricePoint, error)
}

type CatalogStore interface {
	UpsertCatalog(ctx context.Context, source string, records []models.FeedRecord) (int, error)
	SearchCatalog(ctx context.Context, text string, limit int) ([]models.CatalogEntry, error)
}

// Fanout runs every registered source for a query.
type Fanout interface {
	RunAll(ctx context.Context, query string) ([]models.ProductResult, error)
}

// Resolver maps a product URL to the strategy able to scrape it.
type Resolver interface {
	ForURL(raw string) (*extract.Strategy, string, error)
}

type Deps struct {
	Resolver Resolver
	Fanout   Fanout
	Cache    *cache.QueryCache
	History  HistoryStore
	Catalog  CatalogStore
	Now      func() time.Time
}

type Service struct {
	resolver Resolver
	fanout   Fanout
	cache    *cache.QueryCache
	history  HistoryStore
	catalog  CatalogStore
	now      func() time.Time
}

func New(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		resolver: d.Resolver,
		fanout:   d.Fanout,
		cache:    d.Cache,
		history:  d.History,
		catalog:  d.Catalog,
		now:      d.Now,
	}
}

// Comparison is a scraped product with its deal analysis. Deal is nil when
// the scraped price did not resolve to a number.
type Comparison struct {
	Product models.ProductResult `json:"product"`
	Deal    *models.DealAnalysis `json:"deal"`
}

// ScrapeOne extracts a single product URL. It always returns a complete
// envelope; unknown hosts produce the "Not supported" result.
func (s *Service) ScrapeOne(ctx context.Context, rawURL string) models.ProductResult {
	strategy, target, err := s.resolver.ForURL(rawURL)
	if err != nil {
		res := models.FailedResult(UnsupportedSource, err.Error())
		res.Title = UnsupportedTitle
		res.URL = strings.TrimSpace(rawURL)
		return res
	}
	return strategy.Scrape(ctx, target)
}

// SearchAll returns catalog matches followed by live results for query,
// deduplicated by URL and cached per normalized query. Live results with a
// numeric price are recorded in the price history when freshly computed.
func (s *Service) SearchAll(ctx context.Context, query string) ([]models.ProductResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	// The payload is shared by every caller of the key, so one caller going
	// away must not cut the fan-out short. Per-task timeouts still bound it.
	return s.cache.GetOrCompute(context.WithoutCancel(ctx), query, func(ctx context.Context) ([]models.ProductResult, error) {
		feed, err := s.catalog.SearchCatalog(ctx, cache.Key(query), catalogLimit)
		if err != nil {
			log.Printf("Catalog search failed for %q: %v", query, err)
			feed = nil
		}

		live, err := s.fanout.RunAll(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}

		s.recordLive(ctx, live)
		return aggregate.Combine(aggregate.FromCatalog(feed), live), nil
	})
}

func (s *Service) recordLive(ctx context.Context, results []models.ProductResult) {
	for _, r := range results {
		if !r.OK() || r.PriceValue == nil || r.URL == "" {
			continue
		}
		s.record(ctx, r)
	}
}

func (s *Service) record(ctx context.Context, r models.ProductResult) {
	obs := models.PriceObservation{URL: r.URL, Title: r.Title, Price: r.Price, ObservedAt: s.now()}
	if err := s.history.AppendObservation(ctx, obs); err != nil {
		log.Printf("Failed to record price for %s: %v", r.URL, err)
	}
}

// Score rates price against the recorded history for url.
func (s *Service) Score(ctx context.Context, price float64, url string) (models.DealAnalysis, error) {
	var history []models.PricePoint
	if url != "" {
		var err error
		history, err = s.history.PriceHistory(ctx, url)
		if err != nil {
			return models.DealAnalysis{}, err
		}
	}
	return deal.ScoreAgainst(price, history), nil
}

// Compare scrapes url, records the observation and scores it against the
// history including that observation.
func (s *Service) Compare(ctx context.Context, rawURL string) (Comparison, error) {
	product := s.ScrapeOne(ctx, rawURL)
	cmp := Comparison{Product: product}
	if !product.OK() || product.PriceValue == nil {
		return cmp, nil
	}

	s.record(ctx, product)
	analysis, err := s.Score(ctx, *product.PriceValue, product.URL)
	if err != nil {
		return cmp, err
	}
	cmp.Deal = &analysis
	return cmp, nil
}

func (s *Service) History(ctx context.Context, url string) ([]models.PricePoint, error) {
	return s.history.PriceHistory(ctx, url)
}

func (s *Service) ImportFeed(ctx context.Context, source string, records []models.FeedRecord) (int, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, ErrEmptySource
	}
	return s.catalog.UpsertCatalog(ctx, source, records)
}

// ScrapeBatch scrapes every item's URL and merges the caller's fields over
// the scraped ones. Output order matches input order.
func (s *Service) ScrapeBatch(ctx context.Context, items []models.ProductResult) []models.ProductResult {
	out := make([]models.ProductResult, len(items))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, item := range items {
		g.Go(func() error {
			var scraped models.ProductResult
			if strings.TrimSpace(item.URL) == "" {
				scraped = models.FailedResult(item.Source, "missing url")
			} else {
				scraped = s.ScrapeOne(ctx, item.URL)
			}
			out[i] = models.Merge(item, scraped)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
