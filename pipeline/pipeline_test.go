package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-plant-storefront/config"
	"github.com/aluiziolira/go-plant-storefront/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Product
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.Product, len(products))
	copy(copyBatch, products)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(products []*models.Product) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	valid := &models.Product{
		ID:        "plant-1",
		Name:      "Snake Plant",
		Category:  "foliage",
		Price:     499,
		Rating:    4,
		Stock:     3,
		CreatedAt: time.Now(),
	}
	invalid := &models.Product{
		ID:        "plant-2",
		Name:      "",
		Category:  "foliage",
		Price:     499,
		Rating:    4,
		Stock:     3,
		CreatedAt: time.Now(),
	}
	duplicate := &models.Product{
		ID:        "plant-1",
		Name:      "Snake Plant",
		Category:  "foliage",
		Price:     499,
		Rating:    4,
		Stock:     3,
		CreatedAt: time.Now(),
	}

	if err := p.Process(valid, invalid, duplicate); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written products = %d, want 1", got)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_id"] == 0 {
		t.Fatalf("expected duplicate_id validation error")
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 65; i++ {
		product := &models.Product{
			ID:        "plant-" + strconv.Itoa(i),
			Name:      "Pothos",
			Category:  "foliage",
			Price:     499,
			Rating:    4,
			Stock:     3,
			CreatedAt: time.Now(),
		}
		if err := p.Process(product); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		product := &models.Product{
			ID:        "plant-" + strconv.Itoa(i+200),
			Name:      "Pothos",
			Category:  "foliage",
			Price:     499,
			Rating:    4,
			Stock:     3,
			CreatedAt: time.Now(),
		}
		if err := p.Process(product); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written products = %d, want 100", got)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	product := &models.Product{
		ID:        "plant-blocked",
		Name:      "Blocked Fern",
		Category:  "foliage",
		Price:     499,
		Rating:    4,
		Stock:     3,
		CreatedAt: time.Now(),
	}
	if err := p.Process(product); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}

func TestPipelineNormalizesLabels(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, config.DefaultConfig())
	p.Start(1)

	product := &models.Product{
		ID:        "plant-care",
		Name:      "Calathea",
		Category:  "foliage",
		Price:     899,
		CareLevel: " Expert ",
		Size:      "MEDIUM",
		CreatedAt: time.Now(),
	}
	if err := p.Process(product); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if product.CareLevel != models.CareExpert || product.Size != models.SizeMedium {
		t.Fatalf("labels = %q/%q", product.CareLevel, product.Size)
	}
}

func TestPipelineDedupeWindowIsBounded(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DedupeMaxSize = 2
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for _, id := range []string{"a", "b", "c", "a"} {
		product := &models.Product{ID: id, Name: "Pothos", Category: "foliage", CreatedAt: time.Now()}
		if err := p.Process(product); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// "a" was evicted by "c", so it is written twice.
	if got := writer.totalWritten(); got != 4 {
		t.Fatalf("written products = %d, want 4", got)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(context.Background(), &mockWriter{}, config.DefaultConfig())
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := p.Process(&models.Product{ID: "late", Name: "Fern", Category: "ferns"})
	if !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}
