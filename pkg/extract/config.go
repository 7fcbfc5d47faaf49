package extract

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pricepilot/pkg/models"
)

//go:embed sources.yaml
var defaultSources []byte

// Selectors holds ordered candidates per field.
type Selectors struct {
	Title        []string `yaml:"title"`
	Price        []string `yaml:"price"`
	Image        []string `yaml:"image"`
	Link         []string `yaml:"link"`
	Rating       []string `yaml:"rating"`
	Availability []string `yaml:"availability"`
	Seller       []string `yaml:"seller"`
	Brand        []string `yaml:"brand"`
}

// StateConfig reads an inline script assignment such as
// window.__PRELOADED_STATE__ = {...}; fields are dotted paths into it.
type StateConfig struct {
	Marker string `yaml:"marker"`
	Title  string `yaml:"title"`
	Price  string `yaml:"price"`
	Image  string `yaml:"image"`
	URL    string `yaml:"url"`
}

// PageProfile describes one kind of page (search listing or product detail).
type PageProfile struct {
	Selectors        `yaml:",inline"`
	Item             []string     `yaml:"item"`
	DocumentFallback bool         `yaml:"document_fallback"`
	SoldOutText      string       `yaml:"sold_out_text"`
	State            *StateConfig `yaml:"state"`
}

type SourceConfig struct {
	Name        string            `yaml:"name"`
	BaseURL     string            `yaml:"base_url"`
	Hosts       []string          `yaml:"hosts"`
	HostAliases map[string]string `yaml:"host_aliases"`
	SearchURL   string            `yaml:"search_url"`
	Referer     string            `yaml:"referer"`
	KeepDecimal bool              `yaml:"keep_decimal"`
	Search      *PageProfile      `yaml:"search"`
	Product     *PageProfile      `yaml:"product"`
}

// Searchable reports whether the source takes part in query fan-out.
func (c *SourceConfig) Searchable() bool {
	return c.SearchURL != "" && c.Search != nil
}

func (c *SourceConfig) SearchTarget(query string) string {
	return strings.ReplaceAll(c.SearchURL, "{query}", url.QueryEscape(query))
}

func (c *SourceConfig) matchesHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range c.Hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

type Registry struct {
	Sources []*SourceConfig `yaml:"sources"`
}

func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// LoadRegistry reads a registry file, or the embedded defaults when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return ParseRegistry(defaultSources)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

func (r *Registry) validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("source registry is empty")
	}
	seen := make(map[string]bool)
	for i, s := range r.Sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: missing name", i)
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return fmt.Errorf("source %s: duplicate name", s.Name)
		}
		seen[key] = true
		if s.Search == nil && s.Product == nil {
			return fmt.Errorf("source %s: needs a search or product profile", s.Name)
		}
		if s.SearchURL != "" && !strings.Contains(s.SearchURL, "{query}") {
			return fmt.Errorf("source %s: search_url lacks {query}", s.Name)
		}
	}
	return nil
}

func (r *Registry) SearchSources() []*SourceConfig {
	var out []*SourceConfig
	for _, s := range r.Sources {
		if s.Searchable() {
			out = append(out, s)
		}
	}
	return out
}

// ForURL maps a product URL to its source, returning the target with host
// aliases applied. Unknown hosts yield models.ErrUnsupportedSource.
func (r *Registry) ForURL(raw string) (*SourceConfig, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, "", fmt.Errorf("%w: invalid url %q", models.ErrUnsupportedSource, raw)
	}
	for _, s := range r.Sources {
		if s.Product == nil || !s.matchesHost(u.Hostname()) {
			continue
		}
		if alias, ok := s.HostAliases[strings.ToLower(u.Host)]; ok {
			u.Host = alias
		}
		return s, u.String(), nil
	}
	return nil, "", fmt.Errorf("%w: %s", models.ErrUnsupportedSource, u.Hostname())
}
