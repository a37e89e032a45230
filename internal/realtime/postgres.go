package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const DefaultPostgresChannel = "evalboard_changes"

// PostgresFeed listens on a LISTEN/NOTIFY channel fed by row triggers and
// fans notifications out to filtered channels. The listener connection is
// started on the first Open and restarted by the next Open after it dies.
type PostgresFeed struct {
	pool    *pgxpool.Pool
	channel string
	logger  *zap.SugaredLogger
	hub     *Hub

	mu        sync.Mutex
	listening bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewPostgresFeed(pool *pgxpool.Pool, channel string, logger *zap.SugaredLogger) *PostgresFeed {
	if channel == "" {
		channel = DefaultPostgresChannel
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PostgresFeed{pool: pool, channel: channel, logger: logger, hub: NewHub()}
}

func (f *PostgresFeed) Open(ctx context.Context, filter Filter, onEvent func(Event)) (Channel, error) {
	if err := f.ensureListening(ctx); err != nil {
		return nil, err
	}
	return f.hub.Open(ctx, filter, onEvent)
}

func (f *PostgresFeed) ensureListening(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening {
		return nil
	}

	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("realtime: acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		conn.Release()
		return fmt.Errorf("realtime: listen %s: %w", f.channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	f.listening = true
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.listen(listenCtx, conn, f.done)

	f.logger.Infow("postgres change feed listening", "channel", f.channel)
	return nil
}

func (f *PostgresFeed) listen(ctx context.Context, conn *pgxpool.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlistenCtx, "UNLISTEN *"); err != nil {
			// a broken connection must not go back to the pool
			_ = conn.Conn().Close(unlistenCtx)
		}
		conn.Release()

		f.mu.Lock()
		f.listening = false
		f.mu.Unlock()
	}()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Warnw("postgres change feed stopped", "channel", f.channel, "error", err)
			}
			return
		}

		ev, err := DecodeEvent([]byte(notification.Payload))
		if err != nil {
			f.logger.Warnw("dropping malformed change notification", "error", err)
			continue
		}
		_ = f.hub.Publish(ctx, ev)
	}
}

// Publish sends ev through pg_notify so every listener sees it.
func (f *PostgresFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode event: %w", err)
	}
	if _, err := f.pool.Exec(ctx, "SELECT pg_notify($1, $2)", f.channel, string(payload)); err != nil {
		return fmt.Errorf("realtime: notify: %w", err)
	}
	return nil
}

func (f *PostgresFeed) Close() error {
	f.mu.Lock()
	cancel := f.cancel
	done := f.done
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return f.hub.Close()
}
