package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pricepilot/pkg/fetch"
)

type Config struct {
	Port        string
	DBPath      string
	SourcesFile string
	UserAgent   string
	Cache       CacheConfig
	Scraper     ScraperConfig
}

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type ScraperConfig struct {
	TaskTimeout     time.Duration
	FetchTimeout    time.Duration
	EnableHeadless  bool
	HeadlessTimeout time.Duration
}

// Load reads the process environment, after merging a .env file from the
// working directory when one exists.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "9090"),
		DBPath:      getEnv("DB_PATH", "./pricepilot.db"),
		SourcesFile: os.Getenv("SOURCES_FILE"),
		UserAgent:   getEnv("USER_AGENT", fetch.DefaultUserAgent),
		Cache: CacheConfig{
			TTL:        time.Duration(getEnvInt("CACHE_TTL_MINUTES", 24*60)) * time.Minute,
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 1024),
		},
		Scraper: ScraperConfig{
			TaskTimeout:     getEnvDuration("TASK_TIMEOUT", 6*time.Second),
			FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 6*time.Second),
			EnableHeadless:  getEnvBool("ENABLE_HEADLESS", false),
			HeadlessTimeout: getEnvDuration("HEADLESS_TIMEOUT", 4*time.Second),
		},
	}

	if cfg.Scraper.EnableHeadless && cfg.Scraper.HeadlessTimeout >= cfg.Scraper.TaskTimeout {
		log.Printf("Config: HEADLESS_TIMEOUT %v is not below TASK_TIMEOUT %v; search fan-out will cut rendering short",
			cfg.Scraper.HeadlessTimeout, cfg.Scraper.TaskTimeout)
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("6s") or a bare number of seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "":
		return defaultVal
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
