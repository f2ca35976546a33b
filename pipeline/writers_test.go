package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-plant-storefront/models"
)

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	product := &models.Product{
		ID:          "plant-1",
		Name:        "Monstera, Variegated",
		Category:    "tropical",
		Price:       1299,
		Rating:      4.5,
		Stock:       7,
		Discount:    15,
		CareLevel:   models.CareModerate,
		Size:        models.SizeLarge,
		PetFriendly: false,
		CreatedAt:   time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
		URL:         "http://example.test/plants/1",
	}

	if err := writer.Write([]*models.Product{product}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "id" || records[0][3] != "price" || len(records[0]) != len(records[1]) {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][1] != "Monstera, Variegated" || records[1][3] != "1299.00" || records[1][6] != "15" {
		t.Fatalf("unexpected record: %v", records[1])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	product := &models.Product{
		ID:          "plant-1",
		Name:        "Monstera, Variegated",
		Category:    "tropical",
		Price:       1299,
		Rating:      4.5,
		Stock:       7,
		Discount:    15,
		CareLevel:   models.CareModerate,
		Size:        models.SizeLarge,
		PetFriendly: false,
		CreatedAt:   time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
		URL:         "http://example.test/plants/1",
	}

	if err := writer.Write([]*models.Product{product}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Product
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 1 {
		t.Fatalf("json lines=%d, want 1", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	jsonPath := filepath.Join(dir, "products.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	product := &models.Product{
		ID:          "plant-1",
		Name:        "Monstera, Variegated",
		Category:    "tropical",
		Price:       1299,
		Rating:      4.5,
		Stock:       7,
		Discount:    15,
		CareLevel:   models.CareModerate,
		Size:        models.SizeLarge,
		PetFriendly: false,
		CreatedAt:   time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
		URL:         "http://example.test/plants/1",
	}

	if err := writer.Write([]*models.Product{product}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestWritersValidateProductOutput(t *testing.T) {
	dir := t.TempDir()
	product := &models.Product{ID: "plant-2", Name: "Fern", Category: "ferns", Price: 450}

	tests := []struct {
		name    string
		open    func(path string) (OutputWriter, error)
		tamper  string
		wantErr bool
	}{
		{
			name: "csv ok",
			open: func(path string) (OutputWriter, error) { return NewCSVWriter(path) },
		},
		{
			name:    "csv foreign header",
			open:    func(path string) (OutputWriter, error) { return NewCSVWriter(path) },
			tamper:  "name,id\nFern,plant-2\n",
			wantErr: true,
		},
		{
			name:    "csv missing row",
			open:    func(path string) (OutputWriter, error) { return NewCSVWriter(path) },
			tamper:  strings.Join(csvHeader(), ",") + "\n",
			wantErr: true,
		},
		{
			name: "json ok",
			open: func(path string) (OutputWriter, error) { return NewJSONWriter(path) },
		},
		{
			name:    "json line without id",
			open:    func(path string) (OutputWriter, error) { return NewJSONWriter(path) },
			tamper:  `{"name":"Fern"}` + "\n",
			wantErr: true,
		},
		{
			name:    "json not a product",
			open:    func(path string) (OutputWriter, error) { return NewJSONWriter(path) },
			tamper:  "plain text\n",
			wantErr: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, fmt.Sprintf("out-%d", i))
			w, err := tt.open(path)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer w.Close()

			if err := w.Write([]*models.Product{product}); err != nil {
				t.Fatalf("write: %v", err)
			}
			if tt.tamper != "" {
				if err := os.WriteFile(path, []byte(tt.tamper), 0o644); err != nil {
					t.Fatalf("tamper: %v", err)
				}
			}
			err = w.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRejectsEmptyExport(t *testing.T) {
	dir := t.TempDir()
	cw, err := NewCSVWriter(filepath.Join(dir, "empty.csv"))
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	defer cw.Close()
	if err := cw.Validate(); err == nil {
		t.Fatalf("header-only csv passed validation")
	}
}

func TestDualWriterValidateCrossChecksExports(t *testing.T) {
	dir := t.TempDir()
	dw, err := NewDualWriter(filepath.Join(dir, "p.csv"), filepath.Join(dir, "p.jsonl"))
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	defer dw.Close()

	batch := []*models.Product{
		{ID: "a", Name: "Aloe", Category: "succulents", Price: 300},
		{ID: "b", Name: "Boston Fern", Category: "ferns", Price: 450},
	}
	if err := dw.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := dw.Validate(); err != nil {
		t.Fatalf("validate matching exports: %v", err)
	}

	// One more row on the CSV side only.
	if err := dw.csv.Write(batch[:1]); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	err = dw.Validate()
	if err == nil || !strings.Contains(err.Error(), "exports disagree") {
		t.Fatalf("Validate() = %v, want disagreement", err)
	}
}
