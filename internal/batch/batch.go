// Package batch runs per-item uploads where each item can be cancelled on
// its own without disturbing its siblings.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wuwenbin0122/evalboard/internal/metrics"
)

var (
	// ErrBatchFailed is returned when every item that was not cancelled failed.
	ErrBatchFailed = errors.New("batch: all items failed")
	ErrAlreadyRun  = errors.New("batch: already run")
	ErrUnknownItem = errors.New("batch: unknown item")
)

const defaultConcurrency = 3

type Item struct {
	ID          string
	ProjectID   string
	Name        string
	ContentType string
	Data        []byte
}

type Uploader interface {
	Upload(ctx context.Context, item Item) error
}

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeRunning   Outcome = "running"
	OutcomeProcessed Outcome = "processed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

type Result struct {
	Processed int
	Cancelled int
	Failed    int
	Errors    map[string]error
}

func (r Result) String() string {
	s := fmt.Sprintf("%d processed, %d cancelled", r.Processed, r.Cancelled)
	if r.Failed > 0 {
		s += fmt.Sprintf(", %d failed", r.Failed)
	}
	return s
}

type Options struct {
	Concurrency int64
	Logger      *zap.SugaredLogger
}

type entry struct {
	item      Item
	outcome   Outcome
	cancelled bool
	cancel    context.CancelFunc
	err       error
}

type Batch struct {
	uploader Uploader
	sem      *semaphore.Weighted
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	started bool
}

func New(uploader Uploader, items []Item, opts Options) *Batch {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	b := &Batch{
		uploader: uploader,
		sem:      semaphore.NewWeighted(opts.Concurrency),
		logger:   opts.Logger,
		entries:  make(map[string]*entry, len(items)),
	}
	for _, item := range items {
		if _, dup := b.entries[item.ID]; dup {
			continue
		}
		b.order = append(b.order, item.ID)
		b.entries[item.ID] = &entry{item: item, outcome: OutcomePending}
	}
	return b
}

// Cancel stops one item. Items already finished are left alone and
// Cancel reports false for them.
func (b *Batch) Cancel(id string) (bool, error) {
	b.mu.Lock()
	e, ok := b.entries[id]
	if !ok {
		b.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if e.outcome != OutcomePending && e.outcome != OutcomeRunning {
		b.mu.Unlock()
		return false, nil
	}
	e.cancelled = true
	cancel := e.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true, nil
}

func (b *Batch) CancelAll() {
	b.mu.Lock()
	ids := append([]string(nil), b.order...)
	b.mu.Unlock()
	for _, id := range ids {
		_, _ = b.Cancel(id)
	}
}

func (b *Batch) Outcome(id string) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[id]; ok {
		return e.outcome
	}
	return ""
}

// Run uploads every item and blocks until each has settled. A batch in
// which every item was cancelled returns a nil error; one in which every
// remaining item failed returns ErrBatchFailed.
func (b *Batch) Run(ctx context.Context) (Result, error) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return Result{}, ErrAlreadyRun
	}
	b.started = true
	contexts := make(map[string]context.Context, len(b.order))
	for _, id := range b.order {
		e := b.entries[id]
		itemCtx, cancel := context.WithCancel(ctx)
		e.cancel = cancel
		if e.cancelled {
			cancel()
		}
		contexts[id] = itemCtx
	}
	ids := append([]string(nil), b.order...)
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			b.runItem(contexts[id], id)
		}(id)
	}
	wg.Wait()

	return b.result()
}

func (b *Batch) runItem(ctx context.Context, id string) {
	b.mu.Lock()
	e := b.entries[id]
	cancel := e.cancel
	item := e.item
	b.mu.Unlock()
	defer cancel()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		b.settle(ctx, id, err)
		return
	}
	defer b.sem.Release(1)

	b.mu.Lock()
	if e.cancelled {
		b.mu.Unlock()
		b.settle(ctx, id, context.Canceled)
		return
	}
	e.outcome = OutcomeRunning
	b.mu.Unlock()

	b.settle(ctx, id, b.uploader.Upload(ctx, item))
}

func (b *Batch) settle(ctx context.Context, id string, err error) {
	b.mu.Lock()
	e := b.entries[id]
	switch {
	case err == nil:
		e.outcome = OutcomeProcessed
	case e.cancelled || errors.Is(ctx.Err(), context.Canceled):
		e.outcome = OutcomeCancelled
	default:
		e.outcome = OutcomeFailed
		e.err = err
	}
	outcome := e.outcome
	b.mu.Unlock()

	metrics.UploadItemsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeFailed {
		b.logger.Warnw("upload failed", "item", id, "error", err)
		return
	}
	b.logger.Debugw("upload settled", "item", id, "outcome", string(outcome))
}

func (b *Batch) result() (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := Result{Errors: make(map[string]error)}
	var first error
	for _, id := range b.order {
		e := b.entries[id]
		switch e.outcome {
		case OutcomeProcessed:
			res.Processed++
		case OutcomeCancelled:
			res.Cancelled++
		case OutcomeFailed:
			res.Failed++
			res.Errors[id] = e.err
			if first == nil {
				first = e.err
			}
		}
	}

	if res.Failed > 0 && res.Processed == 0 {
		return res, fmt.Errorf("%w: %w", ErrBatchFailed, first)
	}
	return res, nil
}
