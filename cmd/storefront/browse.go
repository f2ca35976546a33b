package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-plant-storefront/autosave"
	"github.com/aluiziolira/go-plant-storefront/boundary"
	"github.com/aluiziolira/go-plant-storefront/catalog"
	"github.com/aluiziolira/go-plant-storefront/filter"
	"github.com/aluiziolira/go-plant-storefront/models"
	"github.com/aluiziolira/go-plant-storefront/monitor"
	"github.com/aluiziolira/go-plant-storefront/render"
	"github.com/aluiziolira/go-plant-storefront/storage"
	"github.com/aluiziolira/go-plant-storefront/urlsync"
)

const (
	lastViewKey  = "last_view"
	savedViewKey = "saved_view"
)

// savedView is the document the auto-save controller persists.
type savedView struct {
	Query string `json:"query"`
}

type browseOptions struct {
	query     string
	search    string
	category  string
	sort      string
	limit     int
	histogram bool
	watch     bool
	export    string
}

func newBrowseCmd(a *app) *cobra.Command {
	var opts browseOptions
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Filter and sort a catalog file and render the result",
		Example: `  storefront browse --catalog plants.jsonl --query "category=succulents&sort=price-low"
  storefront browse --catalog plants.json --search fern --histogram`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBrowse(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&a.cfg.CatalogFile, "catalog", a.cfg.CatalogFile, "Catalog file (JSON array or JSON lines)")
	flags.StringVar(&opts.query, "query", "", "Shareable query string to start from")
	flags.StringVar(&opts.search, "search", "", "Search term")
	flags.StringVar(&opts.category, "category", "", "Category filter")
	flags.StringVar(&opts.sort, "sort", "", "Sort order: relevance, price-low, price-high, rating, name, newest, popular")
	flags.IntVar(&opts.limit, "limit", 20, "Maximum rows to render (0 renders all)")
	flags.BoolVar(&opts.histogram, "histogram", false, "Show price range and category stats")
	flags.BoolVar(&opts.watch, "watch", false, "Re-render when the catalog file changes")
	flags.StringVar(&opts.export, "export", "", "Also write the sorted view to this CSV or JSONL file")
	return cmd
}

func (a *app) runBrowse(cmd *cobra.Command, opts browseOptions) error {
	if a.cfg.CatalogFile == "" {
		return errors.New("--catalog is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := a.openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			a.logger.Error("close storage", slog.Any("error", err))
		}
	}()
	if n := store.Cleanup(); n > 0 {
		a.logger.Debug("expired items removed", slog.Int("count", n))
	}

	monMetrics := monitor.NewMetrics()
	saveMetrics := autosave.NewMetrics()
	shutdownMetrics := a.serveMetrics(metricsHandler(monMetrics.Registry, saveMetrics.Registry))
	defer shutdownMetrics()

	source := &monitor.RuntimeSource{}
	mon := monitor.New(source, a.monitorConfig(), monitor.WithMetrics(monMetrics), monitor.WithLogger(a.logger))
	mon.Start(ctx)
	defer mon.Stop()

	b := boundary.New(boundary.Options{
		Name:    "Storefront",
		Store:   store,
		Tracker: mon,
		Logger:  a.logger,
		Context: func() map[string]string {
			return map[string]string{"catalog": a.cfg.CatalogFile}
		},
	})

	engine, err := filter.NewEngine(a.cfg.FilterCacheSize)
	if err != nil {
		return err
	}
	loadStart := time.Now()
	products, skipped, err := catalog.LoadFile(a.cfg.CatalogFile)
	if err != nil {
		mon.TrackError("catalog", err, map[string]string{"path": a.cfg.CatalogFile})
		return err
	}
	if skipped > 0 {
		a.logger.Warn("invalid catalog records skipped", slog.Int("skipped", skipped))
	}
	engine.SetProducts(products)

	saver, err := autosave.NewController(store, autosave.Options{
		Key:        lastViewKey,
		Save:       a.viewSaver(store),
		Debounce:   a.cfg.AutoSave.Debounce,
		MaxRetries: a.cfg.AutoSave.MaxRetries,
		RetryBase:  a.cfg.AutoSave.RetryBase,
		RetryMax:   a.cfg.AutoSave.RetryMax,
		Metrics:    saveMetrics,
		Logger:     a.logger,
		OnStatusChange: func(s autosave.Status) {
			a.logger.Debug("auto-save status", slog.String("status", string(s)))
		},
	})
	if err != nil {
		return err
	}
	defer saver.Close()

	query := opts.query
	if query == "" {
		var last savedView
		if saver.Restore(&last) {
			query = last.Query
			a.logger.Debug("restored last view", slog.String("query", query))
		}
	}

	nav := urlsync.NewMemoryNavigator(query)
	syncer := urlsync.NewSyncer(nav)
	f, key := syncer.Mount()
	f, key, err = applyOverrides(cmd, opts, f, key)
	if err != nil {
		return err
	}
	if err := syncer.Push(f, key); err != nil {
		return err
	}
	if f != urlsync.QueryToState(query) {
		mon.TrackInteraction("filter", "change", map[string]string{"active": strconv.Itoa(f.ActiveCount())})
	}

	show := func() error {
		err := b.Render(ctx, "ProductGrid", func(ctx context.Context) error {
			result := engine.Apply(f, key)
			fmt.Fprintln(a.out, render.View(result, f, key, render.Options{Limit: opts.limit, Histogram: opts.histogram}))
			if opts.export != "" {
				return exportView(opts.export, result.Sorted)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(a.out, render.Fallback(b.Fallback(), render.Theme{}))
			return err
		}
		fmt.Fprintln(a.out, "?"+nav.Query())
		return nil
	}
	renderErr := show()
	source.SetPageLoad(monitor.PageLoad{LoadMillis: float64(time.Since(loadStart)) / float64(time.Millisecond)})

	if err := saver.TriggerAutoSave(savedView{Query: nav.Query()}); err != nil {
		return err
	}

	if opts.watch && renderErr == nil {
		a.logger.Info("watching catalog", slog.String("path", a.cfg.CatalogFile))
		werr := catalog.Watch(ctx, a.cfg.CatalogFile, func(updated []models.Product) {
			engine.SetProducts(updated)
			mon.TrackInteraction("catalog", "reload", map[string]string{"products": strconv.Itoa(len(updated))})
			if b.Retry() {
				a.logger.Debug("boundary reset after reload")
			}
			_ = show()
		}, a.logger)
		if werr != nil && !errors.Is(werr, context.Canceled) {
			renderErr = werr
		}
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), a.cfg.AutoSave.RetryMax)
	defer cancel()
	if err := saver.ForceSave(saveCtx); err != nil {
		a.logger.Warn("final save failed", slog.Any("error", err))
	}
	for _, insight := range mon.Insights() {
		a.logger.Warn("performance insight", slog.String("type", insight.Kind), slog.String("message", insight.Message))
	}
	return renderErr
}

// viewSaver posts to the configured endpoint, or keeps the view in local
// storage when none is set.
func (a *app) viewSaver(store *storage.Manager) autosave.SaveFunc {
	if a.cfg.AutoSave.Endpoint != "" {
		return autosave.HTTPSaver(nil, a.cfg.AutoSave.Endpoint)
	}
	return func(_ context.Context, payload json.RawMessage) error {
		return store.SetItem(savedViewKey, payload, 0)
	}
}

func (a *app) monitorConfig() monitor.Config {
	return monitor.Config{
		Interval:        a.cfg.Monitor.Interval,
		MaxDataPoints:   a.cfg.Monitor.MaxDataPoints,
		MaxErrors:       a.cfg.Monitor.MaxErrors,
		MaxInteractions: a.cfg.Monitor.MaxInteractions,
	}
}

// applyOverrides layers explicitly set flags over the state parsed from the
// query string.
func applyOverrides(cmd *cobra.Command, opts browseOptions, f models.FilterState, key models.SortKey) (models.FilterState, models.SortKey, error) {
	flags := cmd.Flags()
	if flags.Changed("search") {
		f.Search = opts.search
	}
	if flags.Changed("category") {
		f.Category = strings.ToLower(strings.TrimSpace(opts.category))
		if f.Category == "" {
			f.Category = models.AllValues
		}
	}
	if flags.Changed("sort") {
		parsed, ok := models.ParseSortKey(opts.sort)
		if !ok {
			return f, key, fmt.Errorf("unknown sort order %q", opts.sort)
		}
		key = parsed
	}
	return f, key, nil
}

func exportView(path string, products []models.Product) error {
	format := "csv"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".jsonl" || ext == ".json" {
		format = "json"
	}
	writer, err := createWriter(format, path)
	if err != nil {
		return err
	}
	batch := make([]*models.Product, len(products))
	for i := range products {
		batch[i] = &products[i]
	}
	if err := writer.Write(batch); err != nil {
		_ = writer.Close()
		return fmt.Errorf("export view: %w", err)
	}
	if len(batch) > 0 {
		if err := writer.Validate(); err != nil {
			_ = writer.Close()
			return err
		}
	}
	return writer.Close()
}
