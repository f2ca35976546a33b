package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-plant-storefront/models"
)

// DualWriter exports the same catalog as CSV and as JSON lines.
type DualWriter struct {
	csv  *CSVWriter
	json *JSONWriter
	mu   sync.Mutex
}

// NewDualWriter opens both exports. If the JSON file cannot be created the CSV
// writer is closed again.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	cw, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("csv export: %w", err)
	}
	jw, err := NewJSONWriter(jsonFilename)
	if err != nil {
		_ = cw.Close()
		return nil, fmt.Errorf("json export: %w", err)
	}
	return &DualWriter{csv: cw, json: jw}, nil
}

// Write sends the batch to both exports. The JSON export is skipped when the
// CSV write fails so the two never diverge by more than one batch.
func (dw *DualWriter) Write(products []*models.Product) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csv.Write(products); err != nil {
		return fmt.Errorf("csv export: %w", err)
	}
	if err := dw.json.Write(products); err != nil {
		return fmt.Errorf("json export: %w", err)
	}
	return nil
}

func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	return errors.Join(
		wrapExport("csv", dw.csv.Close()),
		wrapExport("json", dw.json.Close()),
	)
}

// Validate checks each export on its own and then that both hold the same
// number of products.
func (dw *DualWriter) Validate() error {
	err := errors.Join(
		wrapExport("csv", dw.csv.Validate()),
		wrapExport("json", dw.json.Validate()),
	)
	if err != nil {
		return err
	}

	dw.mu.Lock()
	defer dw.mu.Unlock()
	dw.csv.mu.Lock()
	csvRows := dw.csv.rows
	dw.csv.mu.Unlock()
	dw.json.mu.Lock()
	jsonRows := dw.json.rows
	dw.json.mu.Unlock()
	if csvRows != jsonRows {
		return fmt.Errorf("exports disagree: %d csv rows, %d json lines", csvRows, jsonRows)
	}
	return nil
}

func wrapExport(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s export: %w", name, err)
}
