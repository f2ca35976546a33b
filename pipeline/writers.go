package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-plant-storefront/models"
)

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	rows   int
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	header := csvHeader()
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends products to the CSV output.
func (cw *CSVWriter) Write(products []*models.Product) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, product := range products {
		if err := cw.writer.Write(csvRecord(product)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate re-reads the file and checks the header matches the product csv
// tags and that every written row is present.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	want := cw.rows
	cw.mu.Unlock()

	f, err := os.Open(cw.file.Name())
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	if !slices.Equal(header, csvHeader()) {
		return fmt.Errorf("csv header %v does not match product columns", header)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read csv rows: %w", err)
	}
	if len(rows) == 0 {
		return errors.New("csv file has no product rows")
	}
	if len(rows) != want {
		return fmt.Errorf("csv file has %d rows, wrote %d", len(rows), want)
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	rows    int
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends products in JSONL format.
func (jw *JSONWriter) Write(products []*models.Product) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, product := range products {
		if err := jw.encoder.Encode(product); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.rows++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate decodes every line back into a product and checks the line count
// against what was written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	want := jw.rows
	jw.mu.Unlock()

	f, err := os.Open(jw.file.Name())
	if err != nil {
		return fmt.Errorf("open json file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lines := 0
	for scanner.Scan() {
		lines++
		var p models.Product
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			return fmt.Errorf("json line %d: %w", lines, err)
		}
		if p.ID == "" {
			return fmt.Errorf("json line %d: product without id", lines)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan json file: %w", err)
	}
	if lines == 0 {
		return errors.New("json file has no products")
	}
	if lines != want {
		return fmt.Errorf("json file has %d lines, wrote %d", lines, want)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

var productType = reflect.TypeOf(models.Product{})

// csvHeader lists the csv tags of models.Product in field order.
func csvHeader() []string {
	header := make([]string, 0, productType.NumField())
	for i := 0; i < productType.NumField(); i++ {
		header = append(header, productType.Field(i).Tag.Get("csv"))
	}
	return header
}

func csvRecord(p *models.Product) []string {
	return []string{
		p.ID,
		p.Name,
		p.Category,
		strconv.FormatFloat(p.Price, 'f', 2, 64),
		strconv.FormatFloat(p.Rating, 'f', 1, 64),
		strconv.Itoa(p.Stock),
		strconv.FormatFloat(p.Discount, 'f', -1, 64),
		p.CareLevel,
		p.Size,
		strconv.FormatBool(p.PetFriendly),
		strconv.FormatBool(p.AirPurifying),
		p.CreatedAt.Format(time.RFC3339),
		strconv.Itoa(p.SoldCount),
		p.URL,
	}
}
