package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/metrics"
	"github.com/wuwenbin0122/evalboard/internal/snapshot"
)

// persister is the single writer of the durable snapshot.
type persister struct {
	backend snapshot.Backend
	timeout time.Duration
	now     func() time.Time
	logger  *zap.SugaredLogger
	fill    func(*snapshot.Snapshot)

	mu sync.Mutex
}

func newPersister(backend snapshot.Backend, timeout time.Duration, now func() time.Time, logger *zap.SugaredLogger, fill func(*snapshot.Snapshot)) *persister {
	if timeout <= 0 {
		timeout = defaultSaveTimeout
	}
	return &persister{backend: backend, timeout: timeout, now: now, logger: logger, fill: fill}
}

// load returns the stored snapshot, or nil when there is none or it cannot
// be trusted.
func (p *persister) load(ctx context.Context) *snapshot.Snapshot {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snap, err := p.backend.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrCorrupt):
		p.logger.Warnw("discarding corrupt snapshot", "error", err)
		return nil
	case err != nil:
		p.logger.Warnw("snapshot load failed, starting fresh", "error", err)
		return nil
	}
	return snap
}

func (p *persister) save() {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := &snapshot.Snapshot{Version: snapshot.CurrentVersion, SavedAt: p.now()}
	p.fill(snap)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.backend.Save(ctx, snap)
	metrics.SnapshotSavesTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		p.logger.Warnw("snapshot save failed", "error", err)
	}
}

func (p *persister) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend.Close()
}
