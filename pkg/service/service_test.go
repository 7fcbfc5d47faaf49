package service

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pricepilot/pkg/cache"
	"pricepilot/pkg/extract"
	"pricepilot/pkg/fetch"
	"pricepilot/pkg/models"
	"pricepilot/pkg/orchestrator"
	"pricepilot/pkg/store"
)

const amazonProductPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"Echo Dot (5th Gen)",
 "image":"https://m.media-amazon.com/images/echo.jpg",
 "offers":{"@type":"Offer","price":"4499","priceCurrency":"INR","availability":"https://schema.org/InStock"}}
</script></head><body></body></html>`

// pageFetcher serves fixed bodies per URL and 404s everything else.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]string
}

func (f *pageFetcher) Fetch(ctx context.Context, url string, hints fetch.Hints) (*fetch.Response, error) {
	f.mu.Lock()
	body, ok := f.pages[url]
	f.mu.Unlock()
	if !ok {
		return nil, &fetch.NetworkError{URL: url, Status: http.StatusNotFound, Err: errors.New("not found")}
	}
	return &fetch.Response{URL: url, Status: http.StatusOK, Body: []byte(body)}, nil
}

type fakeFanout struct {
	calls   atomic.Int32
	results []models.ProductResult
	err     error
}

func (f *fakeFanout) RunAll(ctx context.Context, query string) ([]models.ProductResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.ProductResult, len(f.results))
	copy(out, f.results)
	return out, nil
}

func liveResult(source, url, price string) models.ProductResult {
	r := models.NewResult(source)
	r.Title = source + " listing"
	r.URL = url
	r.Price = price
	if v, ok := map[string]float64{"1299": 1299, "999": 999}[price]; ok {
		r.PriceValue = &v
	}
	return r
}

type fixture struct {
	svc    *Service
	fanout *fakeFanout
	store  *store.Store
}

func newFixture(t *testing.T, pages map[string]string) *fixture {
	t.Helper()

	reg, err := extract.LoadRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	qc, err := cache.New(cache.Options{TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	fanout := &fakeFanout{results: []models.ProductResult{
		liveResult("Amazon", "https://www.amazon.in/dp/B0", "1299"),
		liveResult("Croma", "https://www.croma.com/p/1", "999"),
		models.FailedResult("Ajio", models.ErrTextTimeout),
	}}

	svc := New(Deps{
		Resolver: extract.NewSet(reg, &pageFetcher{pages: pages}, extract.Options{}),
		Fanout:   fanout,
		Cache:    qc,
		History:  st,
		Catalog:  st,
	})
	return &fixture{svc: svc, fanout: fanout, store: st}
}

func TestScrapeOne_Unsupported(t *testing.T) {
	f := newFixture(t, nil)
	res := f.svc.ScrapeOne(context.Background(), "https://example.org/item/1")

	if res.Source != UnsupportedSource || res.Title != UnsupportedTitle || res.Price != models.Unavailable {
		t.Errorf("unexpected envelope %+v", res)
	}
	if res.Error == "" {
		t.Error("expected an error text on unsupported result")
	}
}

func TestScrapeOne_StructuredProduct(t *testing.T) {
	url := "https://www.amazon.in/dp/B09B8V1LZ3"
	f := newFixture(t, map[string]string{url: amazonProductPage})

	res := f.svc.ScrapeOne(context.Background(), url)
	if !res.OK() {
		t.Fatalf("unexpected error %q", res.Error)
	}
	if res.Source != "Amazon" || res.Title != "Echo Dot (5th Gen)" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.PriceValue == nil || *res.PriceValue != 4499 {
		t.Errorf("expected numeric price 4499, got %v", res.PriceValue)
	}
	if res.URL != url {
		t.Errorf("expected URL %s, got %s", url, res.URL)
	}
}

func TestScrapeOne_FetchFailureIsCaptured(t *testing.T) {
	f := newFixture(t, nil)
	res := f.svc.ScrapeOne(context.Background(), "https://www.flipkart.com/p/itm1")

	if res.OK() || res.Source != "Flipkart" {
		t.Errorf("expected a Flipkart failure envelope, got %+v", res)
	}
	if res.Title != models.Unavailable || res.Price != models.Unavailable {
		t.Errorf("expected sentinels, got title=%q price=%q", res.Title, res.Price)
	}
}

func TestSearchAll_CachesAndRecordsHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.ImportFeed(ctx, "Amazon", []models.FeedRecord{{
		ExternalID: "B0",
		Title:      "Echo Dot",
		Price:      "1199",
		URL:        "https://www.AMAZON.in/dp/B0",
		Brand:      "Amazon",
	}}); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.SearchAll(ctx, "  Echo ")
	if err != nil {
		t.Fatal(err)
	}
	// Feed entry shadows the live Amazon result with the same URL.
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(got), got)
	}
	if got[0].Origin != models.OriginFeed || got[0].Price != "1199" {
		t.Errorf("expected feed entry first, got %+v", got[0])
	}

	if _, err := f.svc.SearchAll(ctx, "echo"); err != nil {
		t.Fatal(err)
	}
	if n := f.fanout.calls.Load(); n != 1 {
		t.Errorf("expected one fan-out inside TTL, got %d", n)
	}

	// Only live results with numeric prices are recorded, once per miss.
	points, err := f.svc.History(ctx, "https://www.croma.com/p/1")
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 || points[0].Price != 999 {
		t.Errorf("expected one Croma observation, got %+v", points)
	}
}

func TestSearchAll_Errors(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.SearchAll(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}

	f.fanout.err = models.ErrPoolClosed
	if _, err := f.svc.SearchAll(context.Background(), "tv"); !errors.Is(err, models.ErrPoolClosed) {
		t.Errorf("expected pool error to surface, got %v", err)
	}
}

func TestCompare_RecordsAndScores(t *testing.T) {
	url := "https://www.amazon.in/dp/B09B8V1LZ3"
	f := newFixture(t, map[string]string{url: amazonProductPage})
	ctx := context.Background()

	first, err := f.svc.Compare(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if first.Deal == nil || first.Deal.Label != models.FairPrice {
		t.Fatalf("first observation should be a fair price, got %+v", first.Deal)
	}

	for _, p := range []string{"6000", "6000"} {
		if err := f.store.AppendObservation(ctx, models.PriceObservation{URL: url, Title: "Echo", Price: p}); err != nil {
			t.Fatal(err)
		}
	}

	// History: 4499, 6000, 6000 plus the new 4499.
	second, err := f.svc.Compare(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if second.Deal == nil || second.Deal.Label != models.GoodDeal {
		t.Errorf("expected a good deal against the recorded history, got %+v", second.Deal)
	}
}

func TestCompare_UnresolvedPriceHasNoDeal(t *testing.T) {
	f := newFixture(t, nil)
	cmp, err := f.svc.Compare(context.Background(), "https://example.org/x")
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Deal != nil {
		t.Errorf("expected no deal for unsupported url, got %+v", cmp.Deal)
	}
}

func TestScore_NoHistory(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.svc.Score(context.Background(), 1500, "https://never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != models.FairPrice || got.Savings != 0 {
		t.Errorf("expected fair price, got %+v", got)
	}
}

func TestImportFeed_RequiresSource(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.ImportFeed(context.Background(), " ", nil); !errors.Is(err, ErrEmptySource) {
		t.Errorf("expected ErrEmptySource, got %v", err)
	}
}

func TestScrapeBatch_MergesCallerFields(t *testing.T) {
	url := "https://www.amazon.in/dp/B09B8V1LZ3"
	f := newFixture(t, map[string]string{url: amazonProductPage})

	items := []models.ProductResult{
		{URL: url, Title: "My Echo", Price: models.Unavailable},
		{Source: "Manual", Title: "No link"},
	}
	got := f.svc.ScrapeBatch(context.Background(), items)

	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Title != "My Echo" {
		t.Errorf("caller title should win, got %q", got[0].Title)
	}
	if got[0].Price != "4499" || got[0].Source != "Amazon" {
		t.Errorf("scraped fields should fill the rest, got %+v", got[0])
	}
	if got[1].Error == "" || got[1].Source != "Manual" || got[1].Title != "No link" {
		t.Errorf("expected a failure that keeps caller fields, got %+v", got[1])
	}
}

// ctxSource fails with the context error when its context is already done.
type ctxSource struct {
	name  string
	calls *atomic.Int32
}

func (s ctxSource) Name() string { return s.name }

func (s ctxSource) Search(ctx context.Context, query string) models.ProductResult {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return models.FailedResult(s.name, err.Error())
	}
	return liveResult(s.name, "https://"+s.name+".example/"+query, "999")
}

func TestSearchAll_CanceledCallerDoesNotPoisonCache(t *testing.T) {
	f := newFixture(t, nil)

	var calls atomic.Int32
	fanout := orchestrator.New([]orchestrator.Source{
		ctxSource{name: "Amazon", calls: &calls},
		ctxSource{name: "Croma", calls: &calls},
	}, time.Second)
	defer fanout.Close()
	f.svc.fanout = fanout

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	first, err := f.svc.SearchAll(canceled, "tv")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range first {
		if !r.OK() {
			t.Errorf("caller cancellation leaked into %s: %q", r.Source, r.Error)
		}
	}

	second, err := f.svc.SearchAll(context.Background(), "tv")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 {
		t.Fatalf("expected 2 results, got %d", len(second))
	}
	for _, r := range second {
		if !r.OK() || r.PriceValue == nil {
			t.Errorf("later caller served a failed result for %s: %q", r.Source, r.Error)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected one fan-out of 2 sources, got %d source calls", n)
	}
}
