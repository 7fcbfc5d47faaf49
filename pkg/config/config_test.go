package config

import (
	"testing"
	"time"

	"pricepilot/pkg/fetch"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "SOURCES_FILE", "USER_AGENT", "CACHE_TTL_MINUTES",
		"CACHE_MAX_ENTRIES", "TASK_TIMEOUT", "FETCH_TIMEOUT", "ENABLE_HEADLESS", "HEADLESS_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "9090" || cfg.DBPath != "./pricepilot.db" {
		t.Errorf("unexpected defaults: port=%s db=%s", cfg.Port, cfg.DBPath)
	}
	if cfg.UserAgent != fetch.DefaultUserAgent {
		t.Errorf("expected default user agent, got %q", cfg.UserAgent)
	}
	if cfg.Cache.TTL != 24*time.Hour || cfg.Cache.MaxEntries != 1024 {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Scraper.TaskTimeout != 6*time.Second || cfg.Scraper.EnableHeadless {
		t.Errorf("unexpected scraper config %+v", cfg.Scraper)
	}
	if cfg.Scraper.HeadlessTimeout >= cfg.Scraper.TaskTimeout {
		t.Errorf("default headless timeout %v must fit inside the task timeout %v",
			cfg.Scraper.HeadlessTimeout, cfg.Scraper.TaskTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CACHE_TTL_MINUTES", "30")
	t.Setenv("TASK_TIMEOUT", "2500ms")
	t.Setenv("HEADLESS_TIMEOUT", "12")
	t.Setenv("CACHE_MAX_ENTRIES", "not-a-number")

	cfg := Load()
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Scraper.TaskTimeout != 2500*time.Millisecond {
		t.Errorf("expected 2.5s task timeout, got %v", cfg.Scraper.TaskTimeout)
	}
	if cfg.Scraper.HeadlessTimeout != 12*time.Second {
		t.Errorf("expected bare seconds to parse, got %v", cfg.Scraper.HeadlessTimeout)
	}
	if cfg.Cache.MaxEntries != 1024 {
		t.Errorf("expected fallback on bad int, got %d", cfg.Cache.MaxEntries)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{" on ", true},
		{"0", false},
		{"false", false},
		{"nope", false},
		{"", true},
	}
	for _, tt := range tests {
		t.Setenv("ENABLE_HEADLESS", tt.val)
		if got := getEnvBool("ENABLE_HEADLESS", true); got != tt.want {
			t.Errorf("getEnvBool(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}
