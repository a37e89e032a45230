package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type gatedUploader struct {
	mu       sync.Mutex
	started  chan string
	release  map[string]chan struct{}
	failures map[string]error
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newGatedUploader(ids ...string) *gatedUploader {
	u := &gatedUploader{
		started:  make(chan string, len(ids)),
		release:  make(map[string]chan struct{}),
		failures: make(map[string]error),
	}
	for _, id := range ids {
		u.release[id] = make(chan struct{})
	}
	return u
}

func (u *gatedUploader) Upload(ctx context.Context, item Item) error {
	u.calls.Add(1)
	n := u.inFlight.Add(1)
	defer u.inFlight.Add(-1)
	for {
		peak := u.peak.Load()
		if n <= peak || u.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	u.started <- item.ID
	u.mu.Lock()
	gate := u.release[item.ID]
	failure := u.failures[item.ID]
	u.mu.Unlock()

	select {
	case <-gate:
		return failure
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *gatedUploader) finish(id string) {
	close(u.release[id])
}

func items(ids ...string) []Item {
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, Item{ID: id, Name: id + ".pdf"})
	}
	return out
}

func awaitStarted(t *testing.T, u *gatedUploader, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-u.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d uploads started", i, n)
		}
	}
}

type runResult struct {
	res Result
	err error
}

func runAsync(b *Batch) chan runResult {
	done := make(chan runResult, 1)
	go func() {
		res, err := b.Run(context.Background())
		done <- runResult{res, err}
	}()
	return done
}

func TestCancellingOneItemLeavesSiblingsRunning(t *testing.T) {
	u := newGatedUploader("a", "b", "c")
	b := New(u, items("a", "b", "c"), Options{Concurrency: 3})
	done := runAsync(b)
	awaitStarted(t, u, 3)

	ok, err := b.Cancel("b")
	if err != nil || !ok {
		t.Fatalf("cancel b: ok=%v err=%v", ok, err)
	}
	u.finish("a")
	u.finish("c")

	out := <-done
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}
	if out.res.Processed != 2 || out.res.Cancelled != 1 || out.res.Failed != 0 {
		t.Fatalf("unexpected result %+v", out.res)
	}
	if got := out.res.String(); got != "2 processed, 1 cancelled" {
		t.Fatalf("unexpected summary %q", got)
	}
	if b.Outcome("b") != OutcomeCancelled || b.Outcome("a") != OutcomeProcessed {
		t.Fatalf("unexpected outcomes a=%s b=%s", b.Outcome("a"), b.Outcome("b"))
	}
}

func TestFullyCancelledBatchIsNotAnError(t *testing.T) {
	u := newGatedUploader("a", "b", "c")
	b := New(u, items("a", "b", "c"), Options{Concurrency: 3})
	done := runAsync(b)
	awaitStarted(t, u, 3)

	b.CancelAll()

	out := <-done
	if out.err != nil {
		t.Fatalf("fully cancelled batch must not error, got %v", out.err)
	}
	if out.res.Cancelled != 3 || out.res.Processed != 0 || out.res.Failed != 0 {
		t.Fatalf("unexpected result %+v", out.res)
	}
}

func TestAllFailedBatchReportsError(t *testing.T) {
	u := newGatedUploader("a", "b")
	u.failures["a"] = errors.New("storage rejected a")
	u.failures["b"] = errors.New("storage rejected b")
	b := New(u, items("a", "b"), Options{Concurrency: 2})
	done := runAsync(b)
	awaitStarted(t, u, 2)
	u.finish("a")
	u.finish("b")

	out := <-done
	if !errors.Is(out.err, ErrBatchFailed) {
		t.Fatalf("expected ErrBatchFailed, got %v", out.err)
	}
	if out.res.Failed != 2 || len(out.res.Errors) != 2 {
		t.Fatalf("unexpected result %+v", out.res)
	}
}

func TestPartialFailureIsReportedPerItem(t *testing.T) {
	u := newGatedUploader("a", "b")
	u.failures["b"] = errors.New("timeout")
	b := New(u, items("a", "b"), Options{Concurrency: 2})
	done := runAsync(b)
	awaitStarted(t, u, 2)
	u.finish("a")
	u.finish("b")

	out := <-done
	if out.err != nil {
		t.Fatalf("partial failure must not fail the batch: %v", out.err)
	}
	if out.res.String() != "1 processed, 0 cancelled, 1 failed" {
		t.Fatalf("unexpected summary %q", out.res.String())
	}
	if out.res.Errors["b"] == nil {
		t.Fatalf("expected error recorded for b")
	}
}

func TestCancelBeforeRunSkipsUpload(t *testing.T) {
	u := newGatedUploader("a", "b")
	b := New(u, items("a", "b"), Options{Concurrency: 2})
	if ok, err := b.Cancel("a"); !ok || err != nil {
		t.Fatalf("cancel a: ok=%v err=%v", ok, err)
	}
	done := runAsync(b)
	awaitStarted(t, u, 1)
	u.finish("b")

	out := <-done
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}
	if out.res.Processed != 1 || out.res.Cancelled != 1 {
		t.Fatalf("unexpected result %+v", out.res)
	}
	if u.calls.Load() != 1 {
		t.Fatalf("cancelled item must not be uploaded, got %d calls", u.calls.Load())
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	u := newGatedUploader("a", "b", "c")
	b := New(u, items("a", "b", "c"), Options{Concurrency: 1})
	done := runAsync(b)

	for i := 0; i < 3; i++ {
		select {
		case id := <-u.started:
			u.finish(id)
		case <-time.After(2 * time.Second):
			t.Fatalf("upload %d never started", i)
		}
	}

	out := <-done
	if out.err != nil || out.res.Processed != 3 {
		t.Fatalf("unexpected outcome %+v %v", out.res, out.err)
	}
	if u.peak.Load() != 1 {
		t.Fatalf("expected at most one upload in flight, saw %d", u.peak.Load())
	}
}

func TestBatchMisuse(t *testing.T) {
	b := New(newGatedUploader(), nil, Options{})
	if _, err := b.Cancel("missing"); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
	res, err := b.Run(context.Background())
	if err != nil || res.Processed != 0 {
		t.Fatalf("empty batch: %+v %v", res, err)
	}
	if _, err := b.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("expected ErrAlreadyRun, got %v", err)
	}
}
