// Package boundary contains rendering faults. A panic inside Render moves
// the boundary to the faulted state, records the fault in a bounded log and
// keeps the boundary faulted until the user retries or navigates home.
package boundary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-plant-storefront/models"
	"github.com/aluiziolira/go-plant-storefront/storage"
	"github.com/google/uuid"
)

// State is the boundary state.
type State string

const (
	StateOK      State = "ok"
	StateFaulted State = "faulted"
)

const (
	// ErrorLogKey is the storage key of the persisted error log.
	ErrorLogKey = "error_log"
	// DefaultMaxRecords bounds the persisted error log.
	DefaultMaxRecords = 10
)

// ErrFaulted is returned by Render while the boundary shows its fallback.
var ErrFaulted = errors.New("boundary: faulted")

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Tracker receives faults for observability. *monitor.Monitor satisfies it.
type Tracker interface {
	TrackError(category string, err error, fields map[string]string)
}

// Options configures a Boundary.
type Options struct {
	Name       string
	Store      *storage.Manager
	MaxRecords int
	Home       func() error
	OnFault    func(models.ErrorRecord)
	Tracker    Tracker
	Context    func() map[string]string
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Boundary is a fault container for one subtree of the view.
type Boundary struct {
	opts Options

	mu      sync.Mutex
	state   State
	record  *models.ErrorRecord
	retries int
}

// New builds a boundary. A nil Store keeps the error log in memory.
func New(opts Options) *Boundary {
	if opts.Name == "" {
		opts.Name = "App"
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Store == nil {
		opts.Store = storage.NewManager(storage.NewMemoryPort(0), storage.WithLogger(opts.Logger))
	}
	return &Boundary{opts: opts, state: StateOK}
}

type componentKey struct{}

// WithComponent records name as the innermost component rendering under ctx.
func WithComponent(ctx context.Context, name string) context.Context {
	parent, _ := ctx.Value(componentKey{}).([]string)
	path := make([]string, len(parent), len(parent)+1)
	copy(path, parent)
	return context.WithValue(ctx, componentKey{}, append(path, name))
}

func componentStack(ctx context.Context) string {
	path, _ := ctx.Value(componentKey{}).([]string)
	var b strings.Builder
	for i := len(path) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "\n    in %s", path[i])
	}
	return b.String()
}

// Render runs fn for component. A panic in fn faults the boundary and is
// returned as a *PanicError. Ordinary errors are returned unchanged. While
// faulted, fn is not called and ErrFaulted is returned.
func (b *Boundary) Render(ctx context.Context, component string, fn func(ctx context.Context) error) (err error) {
	if b.State() == StateFaulted {
		return ErrFaulted
	}
	ctx = WithComponent(ctx, component)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		perr := &PanicError{Value: r, Stack: debug.Stack()}
		b.fault(ctx, perr, string(perr.Stack))
		err = perr
	}()
	return fn(ctx)
}

// Fault moves the boundary to faulted for an error caught outside Render.
func (b *Boundary) Fault(ctx context.Context, err error) models.ErrorRecord {
	if err == nil {
		err = errors.New("unknown rendering fault")
	}
	return b.fault(ctx, err, string(debug.Stack()))
}

func (b *Boundary) fault(ctx context.Context, err error, stack string) models.ErrorRecord {
	fields := map[string]string{"boundary": b.opts.Name}
	if b.opts.Context != nil {
		maps.Copy(fields, b.opts.Context())
	}

	b.mu.Lock()
	if b.state == StateFaulted && b.record != nil {
		existing := *b.record
		b.mu.Unlock()
		return existing
	}
	fields["retryCount"] = fmt.Sprint(b.retries)
	record := models.ErrorRecord{
		ID:             uuid.NewString(),
		Message:        err.Error(),
		Stack:          stack,
		ComponentStack: componentStack(ctx),
		Timestamp:      b.opts.Clock(),
		Context:        fields,
	}
	b.state = StateFaulted
	b.record = &record
	b.mu.Unlock()

	b.opts.Logger.Error("rendering fault",
		slog.String("boundary", b.opts.Name),
		slog.String("error_id", record.ID),
		slog.Any("error", err),
	)
	if err := b.persist(record); err != nil {
		b.opts.Logger.Warn("persist error record failed", slog.Any("error", err))
	}
	if b.opts.Tracker != nil {
		b.opts.Tracker.TrackError("render", err, map[string]string{"errorId": record.ID, "boundary": b.opts.Name})
	}
	if b.opts.OnFault != nil {
		b.opts.OnFault(record)
	}
	return record
}

// persist appends record to the error log shared by every boundary on the
// same store.
func (b *Boundary) persist(record models.ErrorRecord) error {
	return b.opts.Store.Update(ErrorLogKey, 0, func(current json.RawMessage, ok bool) (any, error) {
		var records []models.ErrorRecord
		if ok {
			if err := json.Unmarshal(current, &records); err != nil {
				b.opts.Logger.Warn("discarding unreadable error log", slog.Any("error", err))
				records = nil
			}
		}
		records = append(records, record)
		if extra := len(records) - b.opts.MaxRecords; extra > 0 {
			records = records[extra:]
		}
		return records, nil
	})
}

// State returns the current state.
func (b *Boundary) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Record returns the fault being shown, if any.
func (b *Boundary) Record() (models.ErrorRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.record == nil {
		return models.ErrorRecord{}, false
	}
	return *b.record, true
}

// Retry returns a faulted boundary to ok so the subtree renders again. It
// reports whether the state changed.
func (b *Boundary) Retry() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateFaulted {
		return false
	}
	b.state = StateOK
	b.record = nil
	b.retries++
	b.opts.Logger.Info("boundary retry", slog.String("boundary", b.opts.Name), slog.Int("retries", b.retries))
	return true
}

// Retries returns how many times the user retried.
func (b *Boundary) Retries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retries
}

// GoHome navigates to the home view through the host callback and clears the
// fault. The boundary stays faulted when navigation fails.
func (b *Boundary) GoHome() error {
	if b.opts.Home != nil {
		if err := b.opts.Home(); err != nil {
			return fmt.Errorf("navigate home: %w", err)
		}
	}
	b.mu.Lock()
	b.state = StateOK
	b.record = nil
	b.retries = 0
	b.mu.Unlock()
	return nil
}

// ErrorLog returns the persisted error log, oldest first.
func (b *Boundary) ErrorLog() []models.ErrorRecord {
	var records []models.ErrorRecord
	b.opts.Store.GetItem(ErrorLogKey, &records)
	return records
}

// ClearLog removes the persisted error log.
func (b *Boundary) ClearLog() error {
	return b.opts.Store.RemoveItem(ErrorLogKey)
}

// Report is the diagnostic document offered for copying.
type Report struct {
	Boundary    string              `json:"boundary"`
	State       State               `json:"state"`
	Error       *models.ErrorRecord `json:"error,omitempty"`
	RetryCount  int                 `json:"retryCount"`
	RecentCount int                 `json:"recentErrors"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// Report returns the diagnostic report as indented JSON.
func (b *Boundary) Report() (string, error) {
	b.mu.Lock()
	r := Report{
		Boundary:    b.opts.Name,
		State:       b.state,
		RetryCount:  b.retries,
		GeneratedAt: b.opts.Clock(),
	}
	if b.record != nil {
		rec := *b.record
		r.Error = &rec
	}
	b.mu.Unlock()
	r.RecentCount = len(b.ErrorLog())

	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return string(out), nil
}

// Fallback is what the renderer shows in place of a faulted subtree.
type Fallback struct {
	Faulted bool
	Title   string
	Message string
	ErrorID string
	Actions []string
}

// Fallback returns the view-model for the current state.
func (b *Boundary) Fallback() Fallback {
	rec, ok := b.Record()
	if !ok {
		return Fallback{}
	}
	return Fallback{
		Faulted: true,
		Title:   "Something went wrong",
		Message: rec.Message,
		ErrorID: rec.ID,
		Actions: []string{"retry", "home", "report"},
	}
}
