package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config for TOML files. Unset keys stay nil so only the
// keys present in the file override the receiver.
type fileConfig struct {
	BaseURL          *string `toml:"base_url"`
	MaxPages         *int    `toml:"max_pages"`
	Parallelism      *int    `toml:"parallelism"`
	Delay            *string `toml:"delay"`
	RandomDelay      *string `toml:"random_delay"`
	Timeout          *string `toml:"timeout"`
	MaxRetries       *int    `toml:"max_retries"`
	RetryBackoff     *string `toml:"retry_backoff"`
	RetryBackoffMax  *string `toml:"retry_backoff_max"`
	UserAgent        *string `toml:"user_agent"`
	RespectRobotsTxt *bool   `toml:"respect_robots_txt"`

	OutputFile         *string `toml:"output_file"`
	OutputFormat       *string `toml:"output_format"`
	PipelineBufferSize *int    `toml:"pipeline_buffer_size"`
	BatchSize          *int    `toml:"batch_size"`
	DedupeMaxSize      *int    `toml:"dedupe_max_size"`

	CatalogFile     *string `toml:"catalog_file"`
	FilterCacheSize *int    `toml:"filter_cache_size"`
	MetricsAddr     *string `toml:"metrics_addr"`
	Verbose         *bool   `toml:"verbose"`

	Storage struct {
		Namespace  *string `toml:"namespace"`
		Path       *string `toml:"path"`
		InMemory   *bool   `toml:"in_memory"`
		DefaultTTL *string `toml:"default_ttl"`
		QuotaBytes *int    `toml:"quota_bytes"`
	} `toml:"storage"`

	AutoSave struct {
		Debounce   *string `toml:"debounce"`
		MaxRetries *int    `toml:"max_retries"`
		RetryBase  *string `toml:"retry_base"`
		RetryMax   *string `toml:"retry_max"`
		Endpoint   *string `toml:"endpoint"`
	} `toml:"autosave"`

	Monitor struct {
		Interval        *string `toml:"interval"`
		MaxDataPoints   *int    `toml:"max_data_points"`
		MaxErrors       *int    `toml:"max_errors"`
		MaxInteractions *int    `toml:"max_interactions"`
		ProbeURL        *string `toml:"probe_url"`
	} `toml:"monitor"`
}

// LoadFile overlays the TOML file at path onto c.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return c.Decode(raw)
}

// Decode overlays TOML document raw onto c. Unknown keys are rejected.
func (c *Config) Decode(raw []byte) error {
	var fc fileConfig
	dec := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return fc.apply(c)
}

func (fc *fileConfig) apply(c *Config) error {
	setString(&c.BaseURL, fc.BaseURL)
	setInt(&c.MaxPages, fc.MaxPages)
	setInt(&c.Parallelism, fc.Parallelism)
	setInt(&c.MaxRetries, fc.MaxRetries)
	setString(&c.UserAgent, fc.UserAgent)
	setBool(&c.RespectRobotsTxt, fc.RespectRobotsTxt)
	setString(&c.OutputFile, fc.OutputFile)
	setString(&c.OutputFormat, fc.OutputFormat)
	setInt(&c.PipelineBufferSize, fc.PipelineBufferSize)
	setInt(&c.BatchSize, fc.BatchSize)
	setInt(&c.DedupeMaxSize, fc.DedupeMaxSize)
	setString(&c.CatalogFile, fc.CatalogFile)
	setInt(&c.FilterCacheSize, fc.FilterCacheSize)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	setBool(&c.Verbose, fc.Verbose)

	setString(&c.Storage.Namespace, fc.Storage.Namespace)
	setBool(&c.Storage.InMemory, fc.Storage.InMemory)
	if fc.Storage.Path != nil {
		c.Storage.Path = *fc.Storage.Path
		if fc.Storage.InMemory == nil {
			c.Storage.InMemory = c.Storage.Path == ""
		}
	}
	setInt(&c.Storage.QuotaBytes, fc.Storage.QuotaBytes)

	setInt(&c.AutoSave.MaxRetries, fc.AutoSave.MaxRetries)
	setString(&c.AutoSave.Endpoint, fc.AutoSave.Endpoint)

	setInt(&c.Monitor.MaxDataPoints, fc.Monitor.MaxDataPoints)
	setInt(&c.Monitor.MaxErrors, fc.Monitor.MaxErrors)
	setInt(&c.Monitor.MaxInteractions, fc.Monitor.MaxInteractions)
	setString(&c.Monitor.ProbeURL, fc.Monitor.ProbeURL)

	durations := []struct {
		name string
		dst  *time.Duration
		raw  *string
	}{
		{"delay", &c.Delay, fc.Delay},
		{"random_delay", &c.RandomDelay, fc.RandomDelay},
		{"timeout", &c.Timeout, fc.Timeout},
		{"retry_backoff", &c.RetryBackoff, fc.RetryBackoff},
		{"retry_backoff_max", &c.RetryBackoffMax, fc.RetryBackoffMax},
		{"storage.default_ttl", &c.Storage.DefaultTTL, fc.Storage.DefaultTTL},
		{"autosave.debounce", &c.AutoSave.Debounce, fc.AutoSave.Debounce},
		{"autosave.retry_base", &c.AutoSave.RetryBase, fc.AutoSave.RetryBase},
		{"autosave.retry_max", &c.AutoSave.RetryMax, fc.AutoSave.RetryMax},
		{"monitor.interval", &c.Monitor.Interval, fc.Monitor.Interval},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		value, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = value
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
