package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pricepilot/pkg/fetch"
	"pricepilot/pkg/logger"
	"pricepilot/pkg/models"
	"pricepilot/pkg/normalize"
	"pricepilot/pkg/render"
)

const fetchAttempts = 2

var errEmptyBody = errors.New("empty document")

// Page is the input every tier works on. Doc is nil when the fetch failed.
type Page struct {
	Source  *SourceConfig
	Profile *PageProfile
	Target  string
	Doc     *goquery.Document
}

// resolve turns relative and protocol-relative links into absolute URLs.
func (p *Page) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	base, err := url.Parse(p.Source.BaseURL)
	if err != nil || base.Host == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// Tier is one extraction attempt. ok=false is the explicit "no match"
// signal that advances the strategy to the next tier.
type Tier interface {
	Name() string
	Extract(ctx context.Context, p *Page) (res models.ProductResult, ok bool)
}

// headlessTier re-runs the DOM tier against browser-rendered markup.
type headlessTier struct {
	renderer render.Renderer
	timeout  time.Duration
}

func (headlessTier) Name() string { return "headless" }

func (h headlessTier) Extract(ctx context.Context, p *Page) (models.ProductResult, bool) {
	html, err := h.renderer.Render(ctx, p.Target, h.timeout)
	if err != nil || html == "" {
		if err != nil && !errors.Is(err, render.ErrDisabled) {
			logger.SourceDedup(p.Source.Name, "Headless render failed: %v", err)
		}
		return models.ProductResult{}, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.ProductResult{}, false
	}
	rendered := *p
	rendered.Doc = doc
	return extractDOM(&rendered)
}

// DefaultHeadlessTimeout leaves room for a fetch inside a fan-out task.
const DefaultHeadlessTimeout = 4 * time.Second

type Options struct {
	Renderer        render.Renderer
	EnableHeadless  bool
	HeadlessTimeout time.Duration
}

// Strategy extracts one source's product data with the tier fallback
// structured data -> DOM -> headless.
type Strategy struct {
	cfg      *SourceConfig
	fetcher  fetch.Fetcher
	renderer render.Renderer
	headless bool
	timeout  time.Duration
}

func NewStrategy(cfg *SourceConfig, fetcher fetch.Fetcher, opts Options) *Strategy {
	s := &Strategy{
		cfg:      cfg,
		fetcher:  fetcher,
		renderer: opts.Renderer,
		headless: opts.EnableHeadless && opts.Renderer != nil,
		timeout:  opts.HeadlessTimeout,
	}
	if s.renderer == nil {
		s.renderer = render.Disabled{}
	}
	if s.timeout <= 0 {
		s.timeout = DefaultHeadlessTimeout
	}
	return s
}

func (s *Strategy) Name() string {
	return s.cfg.Name
}

// Search extracts the first listing for query from the source's search page.
func (s *Strategy) Search(ctx context.Context, query string) models.ProductResult {
	if !s.cfg.Searchable() {
		return models.FailedResult(s.cfg.Name, "source does not support search")
	}
	return s.extract(ctx, s.cfg.SearchTarget(query), s.cfg.Search)
}

// Scrape extracts a single product page.
func (s *Strategy) Scrape(ctx context.Context, target string) models.ProductResult {
	if s.cfg.Product == nil {
		return models.FailedResult(s.cfg.Name, "source does not support product pages")
	}
	res := s.extract(ctx, target, s.cfg.Product)
	if res.URL == "" {
		res.URL = target
	}
	return res
}

func (s *Strategy) extract(ctx context.Context, target string, profile *PageProfile) (res models.ProductResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.FailedResult(s.cfg.Name, fmt.Sprint(r))
		}
	}()

	page := &Page{Source: s.cfg, Profile: profile, Target: target}

	doc, fetchErr := s.fetchDocument(ctx, target)
	if fetchErr != nil {
		logger.SourceDedup(s.cfg.Name, "Fetch failed: %v", fetchErr)
	}
	page.Doc = doc

	tiers := []Tier{structuredTier{}, domTier{}}
	if s.headless {
		tiers = append(tiers, headlessTier{renderer: s.renderer, timeout: s.timeout})
	}

	for _, tier := range tiers {
		if out, ok := tier.Extract(ctx, page); ok {
			logger.Source(s.cfg.Name, "Extracted via %s tier from %s", tier.Name(), target)
			return finalize(out, s.cfg.Name)
		}
	}

	if fetchErr != nil {
		return models.FailedResult(s.cfg.Name, fetchErr.Error())
	}
	return models.FailedResult(s.cfg.Name, models.ErrExtractionFailed.Error())
}

// fetchDocument retries a failed fetch once before giving up.
func (s *Strategy) fetchDocument(ctx context.Context, target string) (*goquery.Document, error) {
	hints := fetch.Hints{Referer: s.cfg.Referer}

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		resp, err := s.fetcher.Fetch(ctx, target, hints)
		switch {
		case err != nil:
			lastErr = err
		case len(bytes.TrimSpace(resp.Body)) == 0:
			lastErr = &fetch.NetworkError{URL: target, Status: resp.Status, Err: errEmptyBody}
		default:
			return goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func finalize(res models.ProductResult, source string) models.ProductResult {
	res.Source = source
	res.Origin = models.OriginLive
	res.Error = ""
	if strings.TrimSpace(res.Title) == "" {
		res.Title = models.Unavailable
	} else {
		res.Title = normalize.Title(res.Title)
	}
	if res.Price == "" {
		res.Price = models.Unavailable
	}
	res.PriceValue = normalize.PricePtr(res.Price)
	return res
}

// Set holds one strategy per registered source.
type Set struct {
	reg        *Registry
	strategies map[string]*Strategy
}

func NewSet(reg *Registry, fetcher fetch.Fetcher, opts Options) *Set {
	set := &Set{reg: reg, strategies: make(map[string]*Strategy, len(reg.Sources))}
	for _, cfg := range reg.Sources {
		set.strategies[cfg.Name] = NewStrategy(cfg, fetcher, opts)
	}
	return set
}

// Searchers returns the strategies that take part in query fan-out, in
// registry order.
func (s *Set) Searchers() []*Strategy {
	var out []*Strategy
	for _, cfg := range s.reg.SearchSources() {
		out = append(out, s.strategies[cfg.Name])
	}
	return out
}

// ForURL returns the strategy for a product URL and the target to fetch.
func (s *Set) ForURL(raw string) (*Strategy, string, error) {
	cfg, target, err := s.reg.ForURL(raw)
	if err != nil {
		return nil, "", err
	}
	return s.strategies[cfg.Name], target, nil
}
