package config

import (
	"fmt"
	"net/url"
	"time"
)

// StorageConfig configures the persistence layer.
type StorageConfig struct {
	Namespace  string
	Path       string // badger directory; empty keeps data in memory
	InMemory   bool
	DefaultTTL time.Duration
	QuotaBytes int
}

// AutoSaveConfig configures the auto-save controller.
type AutoSaveConfig struct {
	Debounce   time.Duration
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
	Endpoint   string // optional HTTP save endpoint
}

// MonitorConfig configures the performance monitor.
type MonitorConfig struct {
	Interval        time.Duration
	MaxDataPoints   int
	MaxErrors       int
	MaxInteractions int
	ProbeURL        string
}

// Config holds storefront configuration.
type Config struct {
	// Catalog crawl.
	BaseURL          string
	MaxPages         int
	Parallelism      int
	Delay            time.Duration
	RandomDelay      time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	UserAgent        string
	RespectRobotsTxt bool

	// Export pipeline.
	OutputFile         string
	OutputFormat       string // csv, json, or dual
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int

	// Browsing.
	CatalogFile     string
	FilterCacheSize int

	Storage  StorageConfig
	AutoSave AutoSaveConfig
	Monitor  MonitorConfig

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "http://localhost:8080/plants",
		MaxPages:         50,
		Parallelism:      8,
		Delay:            0,
		RandomDelay:      0,
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		UserAgent:        "plant-storefront/1.0 (+https://github.com/aluiziolira/go-plant-storefront)",
		RespectRobotsTxt: false,

		OutputFile:         "output/products.csv",
		OutputFormat:       "csv",
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,

		CatalogFile:     "data/catalog.json",
		FilterCacheSize: 64,

		Storage: StorageConfig{
			Namespace:  "plantstore_",
			Path:       "",
			InMemory:   true,
			DefaultTTL: 7 * 24 * time.Hour,
			QuotaBytes: 4000 * 1024,
		},
		AutoSave: AutoSaveConfig{
			Debounce:   2 * time.Second,
			MaxRetries: 3,
			RetryBase:  time.Second,
			RetryMax:   30 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:        time.Second,
			MaxDataPoints:   1000,
			MaxErrors:       100,
			MaxInteractions: 50,
		},

		MetricsAddr: "",
		Verbose:     false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.FilterCacheSize <= 0 {
		return fmt.Errorf("filter cache size must be positive")
	}

	if c.Storage.Namespace == "" {
		return fmt.Errorf("storage namespace cannot be empty")
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required unless storage is in memory")
	}
	if c.Storage.DefaultTTL <= 0 {
		return fmt.Errorf("storage ttl must be positive")
	}
	if c.Storage.QuotaBytes <= 0 {
		return fmt.Errorf("storage quota must be positive")
	}

	if c.AutoSave.Debounce <= 0 {
		return fmt.Errorf("auto-save debounce must be positive")
	}
	if c.AutoSave.MaxRetries < 0 {
		return fmt.Errorf("auto-save max retries cannot be negative")
	}
	if c.AutoSave.RetryBase <= 0 {
		return fmt.Errorf("auto-save retry base must be positive")
	}
	if c.AutoSave.RetryMax < c.AutoSave.RetryBase {
		return fmt.Errorf("auto-save retry max (%s) cannot be below retry base (%s)", c.AutoSave.RetryMax, c.AutoSave.RetryBase)
	}
	if c.AutoSave.Endpoint != "" {
		if u, err := url.Parse(c.AutoSave.Endpoint); err != nil || u.Host == "" {
			return fmt.Errorf("auto-save endpoint must be an absolute URL")
		}
	}

	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	if c.Monitor.MaxDataPoints <= 0 || c.Monitor.MaxErrors <= 0 || c.Monitor.MaxInteractions <= 0 {
		return fmt.Errorf("monitor buffer sizes must be positive")
	}

	return nil
}
