package autosave

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-plant-storefront/models"
	"github.com/google/uuid"
)

// FlushResult summarises one pass over the offline queue.
type FlushResult struct {
	Saved    int
	Requeued int
	Dropped  int
}

func (c *Controller) queueKey() string {
	return "offline_queue_" + c.opts.Key
}

// loadQueue restores the persisted queue. Unreadable queues start empty.
func (c *Controller) loadQueue() {
	var items []models.QueueItem
	if !c.store.GetItem(c.queueKey(), &items) {
		return
	}
	c.mu.Lock()
	c.queue = items
	c.mu.Unlock()
	c.opts.Metrics.SetQueueDepth(len(items))
}

func (c *Controller) enqueue(payload json.RawMessage) models.QueueItem {
	item := models.QueueItem{
		ID:        uuid.NewString(),
		Data:      payload,
		Timestamp: c.opts.Clock(),
	}
	c.mu.Lock()
	c.queue = append(c.queue, item)
	c.persistQueueLocked()
	c.mu.Unlock()

	c.opts.Logger.Info("save queued while offline",
		slog.String("key", c.opts.Key),
		slog.String("item", item.ID),
	)
	return item
}

// persistQueueLocked writes the queue through the storage manager. The
// caller holds c.mu.
func (c *Controller) persistQueueLocked() {
	c.opts.Metrics.SetQueueDepth(len(c.queue))
	if len(c.queue) == 0 {
		if err := c.store.RemoveItem(c.queueKey()); err != nil {
			c.opts.Logger.Warn("clear offline queue failed", slog.Any("error", err))
		}
		return
	}
	if err := c.store.SetItem(c.queueKey(), c.queue, 0); err != nil {
		c.opts.Logger.Warn("persist offline queue failed", slog.Any("error", err))
	}
}

// Queue returns a copy of the pending offline items.
func (c *Controller) Queue() []models.QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.QueueItem, len(c.queue))
	copy(out, c.queue)
	return out
}

// SetOnline records connectivity. A transition to online starts a queue
// flush in the background; its outcome is reported through OnFlush.
func (c *Controller) SetOnline(online bool) {
	c.mu.Lock()
	flush := online && !c.online && !c.closed
	c.online = online
	if flush {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	if !flush {
		return
	}
	go func() {
		defer c.wg.Done()
		res, err := c.FlushQueue(c.ctx)
		if err != nil {
			c.opts.Logger.Debug("offline queue flush skipped", slog.Any("error", err))
			return
		}
		if c.opts.OnFlush != nil {
			c.opts.OnFlush(res)
		}
	}()
}

// FlushQueue makes one save attempt per queued item, oldest first. Saved
// items leave the queue; failures are re-queued with RetryCount+1 and items
// whose RetryCount passes MaxRetries are dropped and passed to OnDrop.
func (c *Controller) FlushQueue(ctx context.Context) (FlushResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return FlushResult{}, ErrClosed
	}
	if c.flushing {
		c.mu.Unlock()
		return FlushResult{}, ErrFlushInProgress
	}
	c.flushing = true
	items := c.queue
	c.queue = nil
	c.mu.Unlock()

	var (
		res  FlushResult
		keep []models.QueueItem
	)
	for i, item := range items {
		if ctx.Err() != nil {
			keep = append(keep, items[i:]...)
			break
		}
		err := c.exclusive(ctx, item.Data, func() error {
			return c.attemptQueued(ctx, item.Data)
		})
		if err == nil {
			res.Saved++
			c.opts.Metrics.IncFlushed()
			continue
		}
		if IsConflict(err) {
			// The rest of the queue waits for Resolve, retry counts untouched.
			res.Requeued += len(items) - i
			keep = append(keep, items[i:]...)
			break
		}

		item.RetryCount++
		if item.RetryCount > c.opts.MaxRetries {
			res.Dropped++
			c.opts.Metrics.IncDropped()
			c.opts.Logger.Warn("dropping offline save after retries",
				slog.String("key", c.opts.Key),
				slog.String("item", item.ID),
				slog.Int("retry_count", item.RetryCount),
				slog.Any("error", err),
			)
			if c.opts.OnDrop != nil {
				c.opts.OnDrop(item, err)
			}
			continue
		}
		res.Requeued++
		keep = append(keep, item)
	}

	c.mu.Lock()
	c.queue = append(keep, c.queue...)
	c.flushing = false
	c.persistQueueLocked()
	c.mu.Unlock()

	c.opts.Logger.Debug("offline queue flushed",
		slog.String("key", c.opts.Key),
		slog.Int("saved", res.Saved),
		slog.Int("requeued", res.Requeued),
		slog.Int("dropped", res.Dropped),
	)
	return res, nil
}

// attemptQueued makes a single attempt for a queued payload. It runs the same
// conflict check as a direct save and never writes over a pending conflict.
func (c *Controller) attemptQueued(ctx context.Context, payload json.RawMessage) error {
	if c.isSaved(payload) {
		return nil
	}

	c.mu.Lock()
	if c.conflict != nil {
		pending := &ConflictError{LocalSavedAt: c.conflict.LocalSavedAt, RemoteUpdatedAt: c.conflict.Remote.UpdatedAt}
		c.mu.Unlock()
		return pending
	}
	hasLocal := c.lastSaved != nil
	lastSavedAt := c.lastSavedAt
	c.mu.Unlock()

	if hasLocal && c.opts.Load != nil {
		remote, err := c.opts.Load(ctx)
		switch {
		case err != nil:
			c.opts.Logger.Debug("conflict check skipped", slog.String("key", c.opts.Key), slog.Any("error", err))
		case remote.Data != nil && remote.UpdatedAt.After(lastSavedAt):
			return c.suspend(Conflict{Local: payload, Remote: remote, LocalSavedAt: lastSavedAt})
		}
	}

	start := time.Now()
	err := c.opts.Save(ctx, payload)
	c.opts.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		c.opts.Metrics.IncError(errorTypeLabel(err))
		if IsConflict(err) {
			return c.suspend(Conflict{Local: payload, LocalSavedAt: lastSavedAt})
		}
		return err
	}
	c.markSaved(payload)
	return nil
}
