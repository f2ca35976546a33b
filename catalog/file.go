package catalog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aluiziolira/go-plant-storefront/models"
	"github.com/aluiziolira/go-plant-storefront/parser"
)

// ErrEmptyCatalog is returned when a catalog file holds no products.
var ErrEmptyCatalog = errors.New("catalog: no products")

// LoadFile reads a catalog written as a JSON array or as JSON lines (the
// export pipeline's JSONL output). Invalid products are skipped and counted.
func LoadFile(path string) ([]models.Product, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a catalog from r. See LoadFile.
func Decode(r io.Reader) ([]models.Product, int, error) {
	br := bufio.NewReader(r)
	first, err := firstByte(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, ErrEmptyCatalog
		}
		return nil, 0, fmt.Errorf("read catalog: %w", err)
	}

	var decoded []models.Product
	if first == '[' {
		if err := json.NewDecoder(br).Decode(&decoded); err != nil {
			return nil, 0, fmt.Errorf("decode catalog array: %w", err)
		}
	} else {
		dec := json.NewDecoder(br)
		for line := 1; ; line++ {
			var p models.Product
			err := dec.Decode(&p)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, 0, fmt.Errorf("decode catalog record %d: %w", line, err)
			}
			decoded = append(decoded, p)
		}
	}

	products := decoded[:0]
	skipped := 0
	for i := range decoded {
		if err := parser.ValidateProduct(&decoded[i]); err != nil {
			skipped++
			continue
		}
		products = append(products, decoded[i])
	}
	if len(products) == 0 {
		return nil, skipped, ErrEmptyCatalog
	}
	return products, skipped, nil
}

func firstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF: // whitespace and UTF-8 BOM
			continue
		}
		return b, br.UnreadByte()
	}
}

// watchDebounce coalesces the burst of events an editor produces per save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the catalog at path whenever it changes and hands the new
// products to onChange. It watches the parent directory so atomic
// rename-over saves are seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func([]models.Product), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve catalog path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	reload := time.NewTimer(watchDebounce)
	if !reload.Stop() {
		<-reload.C
	}
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("catalog changed", slog.String("path", abs), slog.String("op", event.Op.String()))
			reload.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("catalog watcher error", slog.Any("error", err))

		case <-reload.C:
			products, skipped, err := LoadFile(abs)
			if err != nil {
				// A half-written file fails to decode; the next write retries.
				logger.Warn("catalog reload failed", slog.String("path", abs), slog.Any("error", err))
				continue
			}
			logger.Info("catalog reloaded",
				slog.String("path", abs),
				slog.Int("products", len(products)),
				slog.Int("skipped", skipped),
			)
			onChange(products)
		}
	}
}
