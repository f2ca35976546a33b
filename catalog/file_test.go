package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-plant-storefront/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeFormats(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantIDs     []string
		wantSkipped int
		wantErr     error
	}{
		{
			name:    "json array",
			input:   `[{"id":"a","name":"Aloe","category":"succulents","price":299},{"id":"b","name":"Boston Fern","category":"ferns","price":499}]`,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "json lines with bom",
			input:   "\xEF\xBB\xBF{\"id\":\"a\",\"name\":\"Aloe\",\"category\":\"succulents\"}\n\n{\"id\":\"b\",\"name\":\"Fern\",\"category\":\"ferns\"}\n",
			wantIDs: []string{"a", "b"},
		},
		{
			name:        "invalid products skipped",
			input:       `[{"id":"a","name":"Aloe","category":"succulents"},{"id":"b","name":"","category":"ferns"},{"id":"c","name":"Cactus","category":"succulents","rating":9}]`,
			wantIDs:     []string{"a"},
			wantSkipped: 2,
		},
		{
			name:    "empty",
			input:   "  \n",
			wantErr: ErrEmptyCatalog,
		},
		{
			name:        "only invalid",
			input:       `[{"id":"x"}]`,
			wantSkipped: 1,
			wantErr:     ErrEmptyCatalog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, skipped, err := Decode(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if skipped != tt.wantSkipped {
				t.Fatalf("skipped = %d, want %d", skipped, tt.wantSkipped)
			}
			if len(products) != len(tt.wantIDs) {
				t.Fatalf("products = %d, want %d", len(products), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if products[i].ID != id {
					t.Fatalf("products[%d] = %q, want %q", i, products[i].ID, id)
				}
			}
		})
	}
}

func TestDecodeMalformedLine(t *testing.T) {
	_, _, err := Decode(strings.NewReader("{\"id\":\"a\",\"name\":\"Aloe\",\"category\":\"x\"}\n{broken\n"))
	if err == nil || !strings.Contains(err.Error(), "record 2") {
		t.Fatalf("expected record 2 error, got %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, _, err := LoadFile(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected error for missing catalog")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	writeCatalog(t, path, `[{"id":"a","name":"Aloe","category":"succulents"}]`)

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan []models.Product, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(p []models.Product) {
			select {
			case reloaded <- p:
			default:
			}
		}, quietLogger())
	}()

	// Keep writing until the watcher is registered and reports the change.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(3 * watchDebounce)
	defer ticker.Stop()

	var got []models.Product
wait:
	for {
		select {
		case got = <-reloaded:
			break wait
		case <-ticker.C:
			writeCatalog(t, path, `[{"id":"a","name":"Aloe","category":"succulents"},{"id":"b","name":"Fern","category":"ferns"}]`)
		case <-deadline:
			cancel()
			t.Fatalf("watch did not reload the catalog")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
	if len(got) != 2 || got[1].ID != "b" {
		t.Fatalf("reloaded = %+v", got)
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "gone", "catalog.json"), func([]models.Product) {}, quietLogger())
	if err == nil {
		t.Fatalf("expected error watching a missing directory")
	}
}

func writeCatalog(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
}
