// Package autosave debounces document saves, retries failures with
// exponential backoff and queues payloads while the host is offline.
package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-plant-storefront/models"
	"github.com/aluiziolira/go-plant-storefront/storage"
	"golang.org/x/sync/singleflight"
)

// Status is the save state of a document.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSaving   Status = "saving"
	StatusSaved    Status = "saved"
	StatusError    Status = "error"
	StatusConflict Status = "conflict"
)

const (
	DefaultDebounce   = 2 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryBase  = time.Second
	DefaultRetryMax   = 30 * time.Second
	DefaultKey        = "document"
)

// SaveFunc persists a payload remotely.
type SaveFunc func(ctx context.Context, payload json.RawMessage) error

// Remote is the remote copy of a document as reported by a LoadFunc.
type Remote struct {
	Data      json.RawMessage
	UpdatedAt time.Time
}

// LoadFunc fetches the remote copy for the conflict check. A zero Remote
// means nothing is stored remotely.
type LoadFunc func(ctx context.Context) (Remote, error)

// Conflict describes a save suspended because the remote copy is newer.
type Conflict struct {
	Local        json.RawMessage
	Remote       Remote
	LocalSavedAt time.Time
}

// Resolution picks the winning side of a Conflict.
type Resolution int

const (
	KeepLocal Resolution = iota
	UseRemote
)

// Options configures a Controller. Save is required.
type Options struct {
	Key        string
	Save       SaveFunc
	Load       LoadFunc
	Debounce   time.Duration
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
	Offline    bool

	OnStatusChange func(Status)
	OnConflict     func(Conflict)
	OnDrop         func(item models.QueueItem, err error)
	OnFlush        func(FlushResult)

	Metrics *Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

// DefaultOptions returns options with the package defaults.
func DefaultOptions() Options {
	return Options{
		Key:        DefaultKey,
		Debounce:   DefaultDebounce,
		MaxRetries: DefaultMaxRetries,
		RetryBase:  DefaultRetryBase,
		RetryMax:   DefaultRetryMax,
	}
}

// State is a point-in-time view of a Controller.
type State struct {
	Status      Status
	LastSavedAt time.Time
	LastError   error
	Pending     bool
	Online      bool
	QueueLen    int
	Conflict    *Conflict
}

// Controller saves one logical document. At most one save runs at a time;
// debounced, manual and queued saves all pass through the same guard.
type Controller struct {
	opts   Options
	store  *storage.Manager
	flight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	status      Status
	online      bool
	closed      bool
	flushing    bool
	timer       *time.Timer
	seq         uint64
	pending     json.RawMessage
	lastSaved   json.RawMessage
	lastSavedAt time.Time
	lastErr     error
	conflict    *Conflict
	queue       []models.QueueItem
}

// NewController builds a controller persisting snapshots and the offline
// queue through store. A nil store keeps them in memory.
func NewController(store *storage.Manager, opts Options) (*Controller, error) {
	if opts.Save == nil {
		return nil, errors.New("autosave: save function is required")
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultRetryBase
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = DefaultRetryMax
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if store == nil {
		store = storage.NewManager(storage.NewMemoryPort(0), storage.WithLogger(opts.Logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:   opts,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
		status: StatusIdle,
		online: !opts.Offline,
	}
	c.loadQueue()
	return c, nil
}

func (c *Controller) snapshotKey() string {
	return "autosave_" + c.opts.Key
}

// TriggerAutoSave snapshots data locally and (re)starts the debounce timer.
// Only the last call inside a debounce window is saved.
func (c *Controller) TriggerAutoSave(data any) error {
	payload, err := canonical(data)
	if err != nil {
		return err
	}
	if err := c.snapshot(payload); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.pending = payload
	c.seq++
	seq := c.seq
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.opts.Debounce, func() {
		c.fireDebounce(seq)
	})
	return nil
}

// snapshot writes payload to local storage unless the controller is closed.
// The lock keeps a concurrent Close from being followed by a write.
func (c *Controller) snapshot(payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.store.SetItem(c.snapshotKey(), payload, 0); err != nil {
		c.opts.Logger.Warn("local snapshot failed", slog.String("key", c.opts.Key), slog.Any("error", err))
	}
	return nil
}

func (c *Controller) fireDebounce(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	payload := c.pending
	c.pending = nil
	c.timer = nil
	if payload == nil {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	if err := c.save(c.ctx, payload); err != nil {
		c.opts.Logger.Debug("auto-save did not complete", slog.String("key", c.opts.Key), slog.Any("error", err))
	}
}

// SaveNow saves data immediately, superseding any pending debounced save.
func (c *Controller) SaveNow(ctx context.Context, data any) error {
	payload, err := canonical(data)
	if err != nil {
		return err
	}
	if err := c.snapshot(payload); err != nil {
		return err
	}
	if err := c.dropPending(); err != nil {
		return err
	}
	return c.save(ctx, payload)
}

// ForceSave saves the pending debounced payload now. Without one it saves
// the local snapshot; with neither it does nothing.
func (c *Controller) ForceSave(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	payload := c.pending
	c.mu.Unlock()
	if err := c.dropPending(); err != nil {
		return err
	}

	if payload == nil {
		raw, ok := c.store.GetRaw(c.snapshotKey())
		if !ok {
			return nil
		}
		payload = raw
	}
	return c.save(ctx, payload)
}

func (c *Controller) dropPending() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.seq++
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return nil
}

// Restore decodes the last local snapshot into dst.
func (c *Controller) Restore(dst any) bool {
	return c.store.GetItem(c.snapshotKey(), dst)
}

func (c *Controller) save(ctx context.Context, payload json.RawMessage) error {
	return c.exclusive(ctx, payload, func() error {
		return c.performSave(ctx, payload)
	})
}

// exclusive runs fn under the single-flight guard. A caller that joined a
// save for a different payload waits for it and then runs its own.
func (c *Controller) exclusive(ctx context.Context, payload json.RawMessage, fn func() error) error {
	for {
		ran := false
		ch := c.flight.DoChan(c.opts.Key, func() (any, error) {
			ran = true
			return nil, fn()
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		if ran {
			return res.Err
		}
		if c.isSaved(payload) {
			return nil
		}
		if c.isClosed() {
			return ErrClosed
		}
	}
}

func (c *Controller) performSave(ctx context.Context, payload json.RawMessage) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conflict != nil {
		pending := &ConflictError{LocalSavedAt: c.conflict.LocalSavedAt, RemoteUpdatedAt: c.conflict.Remote.UpdatedAt}
		c.mu.Unlock()
		return pending
	}
	if bytes.Equal(payload, c.lastSaved) {
		c.mu.Unlock()
		c.opts.Metrics.IncSave("skipped")
		return nil
	}
	online := c.online
	hasLocal := c.lastSaved != nil
	lastSavedAt := c.lastSavedAt
	c.mu.Unlock()

	if !online {
		c.enqueue(payload)
		c.opts.Metrics.IncSave("queued")
		c.fail(ErrOffline)
		return ErrOffline
	}

	if hasLocal && c.opts.Load != nil {
		remote, err := c.opts.Load(ctx)
		switch {
		case err != nil:
			c.opts.Logger.Debug("conflict check skipped", slog.String("key", c.opts.Key), slog.Any("error", err))
		case remote.Data != nil && remote.UpdatedAt.After(lastSavedAt):
			return c.suspend(Conflict{Local: payload, Remote: remote, LocalSavedAt: lastSavedAt})
		}
	}

	var lastErr error
	attempts := 0
	for retry := 0; retry <= c.opts.MaxRetries; retry++ {
		if retry > 0 {
			c.opts.Metrics.IncRetries()
			delay := c.backoff(retry - 1)
			c.opts.Logger.Debug("retrying save",
				slog.String("key", c.opts.Key),
				slog.Int("attempt", retry),
				slog.Duration("delay", delay),
			)
			if err := c.wait(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		c.setStatus(StatusSaving)
		attempts++
		start := time.Now()
		err := c.opts.Save(ctx, payload)
		c.opts.Metrics.ObserveDuration(time.Since(start))
		if err == nil {
			c.markSaved(payload)
			c.opts.Metrics.IncSave("saved")
			return nil
		}

		c.opts.Metrics.IncError(errorTypeLabel(err))
		c.opts.Logger.Warn("save attempt failed",
			slog.String("key", c.opts.Key),
			slog.Int("attempt", attempts),
			slog.String("category", errorTypeLabel(err)),
			slog.Any("error", err),
		)
		if IsConflict(err) {
			return c.suspend(Conflict{Local: payload, LocalSavedAt: lastSavedAt})
		}
		lastErr = err
	}

	retryErr := &RetryError{Attempts: attempts, Err: lastErr}
	c.opts.Metrics.IncSave("failed")
	c.fail(retryErr)

	if !c.isOnline() {
		c.enqueue(payload)
	}
	return retryErr
}

// backoff returns RetryBase·2^n capped at RetryMax.
func (c *Controller) backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	delay := c.opts.RetryBase
	for i := 0; i < n && delay < c.opts.RetryMax; i++ {
		delay *= 2
	}
	if delay > c.opts.RetryMax {
		delay = c.opts.RetryMax
	}
	return delay
}

func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Controller) suspend(conflict Conflict) error {
	c.mu.Lock()
	c.conflict = &conflict
	c.lastErr = &ConflictError{LocalSavedAt: conflict.LocalSavedAt, RemoteUpdatedAt: conflict.Remote.UpdatedAt}
	err := c.lastErr
	c.mu.Unlock()

	c.opts.Metrics.IncConflict()
	c.opts.Metrics.IncSave("conflict")
	c.opts.Logger.Warn("save suspended on conflict",
		slog.String("key", c.opts.Key),
		slog.Time("remote_updated_at", conflict.Remote.UpdatedAt),
		slog.Time("local_saved_at", conflict.LocalSavedAt),
	)
	c.setStatus(StatusConflict)
	if c.opts.OnConflict != nil {
		c.opts.OnConflict(conflict)
	}
	return err
}

// Resolve settles a pending conflict. KeepLocal saves the local payload over
// the remote copy; UseRemote adopts the remote payload as the saved state.
func (c *Controller) Resolve(ctx context.Context, resolution Resolution) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conflict := c.conflict
	if conflict == nil {
		c.mu.Unlock()
		return ErrNoConflict
	}
	c.conflict = nil
	c.lastErr = nil

	switch resolution {
	case KeepLocal:
		if conflict.Remote.UpdatedAt.After(c.lastSavedAt) {
			c.lastSavedAt = conflict.Remote.UpdatedAt
		}
		c.mu.Unlock()
		return c.save(ctx, conflict.Local)
	case UseRemote:
		c.lastSaved = conflict.Remote.Data
		c.lastSavedAt = conflict.Remote.UpdatedAt
		c.mu.Unlock()
		if err := c.store.SetItem(c.snapshotKey(), conflict.Remote.Data, 0); err != nil {
			c.opts.Logger.Warn("local snapshot failed", slog.String("key", c.opts.Key), slog.Any("error", err))
		}
		c.setStatus(StatusSaved)
		return nil
	default:
		c.conflict = conflict
		c.mu.Unlock()
		return fmt.Errorf("autosave: unknown resolution %d", resolution)
	}
}

func (c *Controller) markSaved(payload json.RawMessage) {
	c.mu.Lock()
	c.lastSaved = payload
	if now := c.opts.Clock(); now.After(c.lastSavedAt) {
		c.lastSavedAt = now
	}
	c.lastErr = nil
	c.mu.Unlock()
	c.setStatus(StatusSaved)
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.setStatus(StatusError)
}

func (c *Controller) setStatus(status Status) {
	c.mu.Lock()
	changed := c.status != status
	c.status = status
	c.mu.Unlock()
	if changed && c.opts.OnStatusChange != nil {
		c.opts.OnStatusChange(status)
	}
}

func (c *Controller) isSaved(payload json.RawMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved != nil && bytes.Equal(payload, c.lastSaved)
}

func (c *Controller) isOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Status:      c.status,
		LastSavedAt: c.lastSavedAt,
		LastError:   c.lastErr,
		Pending:     c.pending != nil,
		Online:      c.online,
		QueueLen:    len(c.queue),
	}
	if c.conflict != nil {
		conflict := *c.conflict
		st.Conflict = &conflict
	}
	return st
}

// Close cancels the debounce timer, backoff waits and background flushes.
// Pending debounced payloads stay in the local snapshot.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// canonical marshals data so that structurally equal values produce equal
// bytes. Object keys are sorted by re-encoding through a generic value.
func canonical(data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalise payload: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("normalise payload: %w", err)
	}
	return out, nil
}
