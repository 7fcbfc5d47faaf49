package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"

	"pricepilot/pkg/api"
	"pricepilot/pkg/cache"
	"pricepilot/pkg/config"
	"pricepilot/pkg/extract"
	"pricepilot/pkg/fetch"
	"pricepilot/pkg/models"
	"pricepilot/pkg/normalize"
	"pricepilot/pkg/orchestrator"
	"pricepilot/pkg/render"
	"pricepilot/pkg/service"
	"pricepilot/pkg/store"
)

const maxBodyBytes = 4 << 20

var (
	svc         *service.Service
	sourceNames []string
)

func main() {
	cfg := config.Load()

	reg, err := extract.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	var renderer render.Renderer = render.Disabled{}
	if cfg.Scraper.EnableHeadless {
		renderer = render.NewChrome(cfg.UserAgent)
	}
	strategies := extract.NewSet(reg, fetch.NewCollyFetcher(cfg.UserAgent, cfg.Scraper.FetchTimeout), extract.Options{
		Renderer:        renderer,
		EnableHeadless:  cfg.Scraper.EnableHeadless,
		HeadlessTimeout: cfg.Scraper.HeadlessTimeout,
	})

	var sources []orchestrator.Source
	for _, s := range strategies.Searchers() {
		sources = append(sources, s)
	}
	fanout := orchestrator.New(sources, cfg.Scraper.TaskTimeout)
	defer fanout.Close()
	sourceNames = fanout.Sources()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	queryCache, err := cache.New(cache.Options{TTL: cfg.Cache.TTL, MaxEntries: cfg.Cache.MaxEntries})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	svc = service.New(service.Deps{
		Resolver: strategies,
		Fanout:   fanout,
		Cache:    queryCache,
		History:  db,
		Catalog:  db,
	})

	log.Printf("Store opened at %s", cfg.DBPath)
	log.Printf("Cache TTL %v, max %d entries", cfg.Cache.TTL, cfg.Cache.MaxEntries)
	log.Printf("Sources: %s (headless: %v)", strings.Join(sourceNames, ", "), cfg.Scraper.EnableHeadless)

	printBanner(os.Stdout, cfg.Port, localNetworkIP())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", rootHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/search", searchHandler)
	mux.HandleFunc("/scrape", scrapeHandler)
	mux.HandleFunc("/scrape/batch", batchHandler)
	mux.HandleFunc("/compare", compareHandler)
	mux.HandleFunc("/price-history", historyHandler)
	mux.HandleFunc("/deal", dealHandler)
	mux.HandleFunc("/catalog/{source}/import", importHandler)
	return mux
}

// renderDocs builds the Scalar page from api.yaml once per process.
var renderDocs = sync.OnceValues(func() (string, error) {
	return scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("PricePilot API"),
		),
	)
})

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		api.WriteNotFound(w, "Unknown route "+r.URL.Path, r.URL.Path)
		return
	}

	html, err := renderDocs()
	if err != nil {
		api.WriteInternalServerError(w, fmt.Errorf("render api docs: %w", err), r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func printBanner(w io.Writer, port string, lan net.IP) {
	if lan != nil {
		fmt.Fprintf(w, "Local Network URL: http://%s:%s\n", lan, port)
	} else {
		fmt.Fprintln(w, "Could not determine local IP address.")
	}
	fmt.Fprintf(w, "Access URL: http://localhost:%s\n", port)
	fmt.Fprintf(w, "API Docs: http://localhost:%s/\n", port)
}

// localNetworkIP prefers the source address of the default route and falls
// back to the first non-loopback IPv4 interface address.
func localNetworkIP() net.IP {
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.IP
		}
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	return firstLANIPv4(addrs)
}

func firstLANIPv4(addrs []net.Addr) net.IP {
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		api.WriteMethodNotAllowed(w, method, r.URL.Path)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "sources": sourceNames})
}

func searchHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		api.WriteBadRequest(w, "Missing query parameter q.", r.URL.Path)
		return
	}

	results, err := svc.SearchAll(r.Context(), query)
	if err != nil {
		log.Printf("Search failed for %q: %v", query, err)
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func scrapeHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		api.WriteBadRequest(w, "Missing query parameter url.", r.URL.Path)
		return
	}

	res := svc.ScrapeOne(r.Context(), target)
	if res.Source == service.UnsupportedSource {
		api.WriteUnprocessable(w, res.Error, r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

type compareRequest struct {
	URL string `json:"url"`
}

func compareHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req compareRequest
	if err := decodeBody(w, r, &req); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected {\"url\": \"...\"}.", r.URL.Path)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		api.WriteBadRequest(w, "Field url is required.", r.URL.Path)
		return
	}

	cmp, err := svc.Compare(r.Context(), req.URL)
	if err != nil {
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	if cmp.Product.Source == service.UnsupportedSource {
		api.WriteUnprocessable(w, cmp.Product.Error, r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, cmp)
}

func batchHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var items []models.ProductResult
	if err := decodeBody(w, r, &items); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected array of objects.", r.URL.Path)
		return
	}
	if len(items) == 0 {
		api.WriteBadRequest(w, "Batch must contain at least one item.", r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, svc.ScrapeBatch(r.Context(), items))
}

func historyHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	productURL := strings.TrimSpace(r.URL.Query().Get("product_url"))
	if productURL == "" {
		api.WriteBadRequest(w, "Missing query parameter product_url.", r.URL.Path)
		return
	}

	points, err := svc.History(r.Context(), productURL)
	if err != nil {
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"product_url": productURL, "history": points})
}

func dealHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	raw := r.URL.Query().Get("price")
	price, ok := normalize.Price(raw)
	if !ok {
		api.WriteBadRequest(w, fmt.Sprintf("Invalid price: %q. Must contain a number.", raw), r.URL.Path)
		return
	}

	analysis, err := svc.Score(r.Context(), price, strings.TrimSpace(r.URL.Query().Get("url")))
	if err != nil {
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, analysis)
}

func importHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	source := r.PathValue("source")

	var records []models.FeedRecord
	if err := decodeBody(w, r, &records); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected array of feed records.", r.URL.Path)
		return
	}

	n, err := svc.ImportFeed(r.Context(), source, records)
	if err != nil {
		if errors.Is(err, service.ErrEmptySource) {
			api.WriteBadRequest(w, err.Error(), r.URL.Path)
			return
		}
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	log.Printf("Imported %d catalog records for %s", n, source)
	api.WriteJSON(w, http.StatusOK, map[string]any{"source": source, "imported": n})
}
