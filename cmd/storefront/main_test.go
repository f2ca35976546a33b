package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-plant-storefront/autosave"
	"github.com/aluiziolira/go-plant-storefront/models"
	"github.com/aluiziolira/go-plant-storefront/monitor"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func writeCatalog(t *testing.T) string {
	t.Helper()
	products := []models.Product{
		{ID: "p1", Name: "Aloe Vera", Category: "succulents", Price: 299, Rating: 4.5, Stock: 4, CareLevel: models.CareEasy, Size: models.SizeSmall},
		{ID: "p2", Name: "Boston Fern", Category: "ferns", Price: 549, Rating: 4.2, Stock: 7, CareLevel: models.CareModerate, Size: models.SizeMedium},
		{ID: "p3", Name: "Jade Plant", Category: "succulents", Price: 199, Rating: 4.7, Stock: 0, Discount: 10, CareLevel: models.CareEasy, Size: models.SizeSmall},
	}
	data, err := json.Marshal(products)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestBrowseRendersFilteredView(t *testing.T) {
	catalogPath := writeCatalog(t)

	out, err := runCLI(t, "browse", "--catalog", catalogPath, "--query", "category=succulents&sort=price-low")
	require.NoError(t, err)

	assert.Contains(t, out, "Showing 2 of 3 plants")
	assert.Contains(t, out, "Jade Plant")
	assert.NotContains(t, out, "Boston Fern")
	assert.Less(t, strings.Index(out, "Jade Plant"), strings.Index(out, "Aloe Vera"), "price-low order")
	assert.Contains(t, out, "?category=succulents&sort=price-low")
}

func TestBrowseFlagsOverrideQuery(t *testing.T) {
	catalogPath := writeCatalog(t)
	exportPath := filepath.Join(t.TempDir(), "view.csv")

	out, err := runCLI(t, "browse", "--catalog", catalogPath, "--query", "category=succulents", "--category", "ferns", "--export", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Boston Fern")
	assert.Contains(t, out, "?category=ferns")

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Boston Fern")
	assert.NotContains(t, string(data), "Aloe Vera")
}

func TestBrowseRejectsUnknownSort(t *testing.T) {
	catalogPath := writeCatalog(t)

	_, err := runCLI(t, "browse", "--catalog", catalogPath, "--sort", "cheapest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sort order")
}

func TestStorageRoundTrip(t *testing.T) {
	catalogPath := writeCatalog(t)
	src := t.TempDir()
	dst := t.TempDir()
	exportPath := filepath.Join(t.TempDir(), "state.json")

	_, err := runCLI(t, "--storage-path", src, "browse", "--catalog", catalogPath, "--query", "search=fern")
	require.NoError(t, err)

	// A second browse without a query restores the last view.
	out, err := runCLI(t, "--storage-path", src, "browse", "--catalog", catalogPath)
	require.NoError(t, err)
	assert.Contains(t, out, "?search=fern")

	_, err = runCLI(t, "--storage-path", src, "storage", "export", "-o", exportPath)
	require.NoError(t, err)

	var exported map[string]json.RawMessage
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Contains(t, exported, savedViewKey)
	assert.Contains(t, exported, "autosave_"+lastViewKey)

	out, err = runCLI(t, "--storage-path", dst, "storage", "import", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("imported %d items", len(exported)))

	out, err = runCLI(t, "--storage-path", dst, "storage", "usage")
	require.NoError(t, err)
	assert.Contains(t, out, "bytes used")

	out, err = runCLI(t, "--storage-path", dst, "storage", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, `cleared namespace "plantstore_"`)

	out, err = runCLI(t, "--storage-path", dst, "storage", "export")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, out)
}

func TestCrawlWritesCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
<article class="product-card" data-id="fern-1" data-category="ferns" data-care="moderate" data-size="medium">
<h3><a href="/plants/fern-1">Boston Fern</a></h3><p class="price">&#8377;549</p>
<p class="rating" data-rating="4.2"></p><p class="availability">In stock (3 available)</p>
</article>
<article class="product-card" data-id="aloe-1" data-category="succulents" data-care="easy" data-size="small">
<h3><a href="/plants/aloe-1">Aloe Vera</a></h3><p class="price">&#8377;299</p>
<p class="star-rating Four"></p><p class="availability">In stock</p>
</article>
</body></html>`)
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "products.csv")
	out, err := runCLI(t, "crawl", "--base-url", server.URL+"/plants/", "--pages", "1", "--parallel", "1", "--output", outputPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Crawl complete")
	assert.Contains(t, out, "Products:      2")

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Boston Fern")
	assert.Contains(t, string(data), "aloe-1")
}

func TestInvalidConfigFails(t *testing.T) {
	_, err := runCLI(t, "storage", "usage", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestMetricsHandlerServesEveryRegistry(t *testing.T) {
	monMetrics := monitor.NewMetrics()
	saveMetrics := autosave.NewMetrics()

	saver, err := autosave.NewController(nil, autosave.Options{
		Save:    func(context.Context, json.RawMessage) error { return nil },
		Metrics: saveMetrics,
	})
	require.NoError(t, err)
	defer saver.Close()
	require.NoError(t, saver.SaveNow(context.Background(), savedView{Query: "search=fern"}))

	mon := monitor.New(&monitor.RuntimeSource{}, monitor.DefaultConfig(), monitor.WithMetrics(monMetrics))
	_, err = mon.SampleOnce(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metricsHandler(monMetrics.Registry, saveMetrics.Registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `autosave_saves_total{result="saved"} 1`)
	assert.Contains(t, body, `monitor_samples_total{result="ok"} 1`)
}
