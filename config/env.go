package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overlays STOREFRONT_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	ints := map[string]*int{
		"STOREFRONT_PAGES":          &c.MaxPages,
		"STOREFRONT_PARALLEL":       &c.Parallelism,
		"STOREFRONT_MAX_RETRIES":    &c.MaxRetries,
		"STOREFRONT_AUTOSAVE_RETRY": &c.AutoSave.MaxRetries,
		"STOREFRONT_STORAGE_QUOTA":  &c.Storage.QuotaBytes,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return fmt.Errorf("invalid %w", err)
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"STOREFRONT_TIMEOUT":           &c.Timeout,
		"STOREFRONT_AUTOSAVE_DEBOUNCE": &c.AutoSave.Debounce,
		"STOREFRONT_MONITOR_INTERVAL":  &c.Monitor.Interval,
		"STOREFRONT_STORAGE_TTL":       &c.Storage.DefaultTTL,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return fmt.Errorf("invalid %w", err)
		}
		if ok {
			*dst = value
		}
	}

	strs := map[string]*string{
		"STOREFRONT_BASE_URL":          &c.BaseURL,
		"STOREFRONT_OUTPUT":            &c.OutputFile,
		"STOREFRONT_CATALOG":           &c.CatalogFile,
		"STOREFRONT_METRICS_ADDR":      &c.MetricsAddr,
		"STOREFRONT_STORAGE_NAMESPACE": &c.Storage.Namespace,
		"STOREFRONT_AUTOSAVE_ENDPOINT": &c.AutoSave.Endpoint,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	if path, ok := EnvString("STOREFRONT_STORAGE_PATH"); ok {
		c.Storage.Path = path
		c.Storage.InMemory = false
	}
	if verbose, ok, err := EnvBool("STOREFRONT_VERBOSE"); err != nil {
		return fmt.Errorf("invalid %w", err)
	} else if ok {
		c.Verbose = verbose
	}
	return nil
}
