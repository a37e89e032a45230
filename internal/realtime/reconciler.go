package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/debounce"
	"github.com/wuwenbin0122/evalboard/internal/metrics"
)

type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unsubscribed"
	}
}

type Mode int

const (
	// ModeReload answers every event with a debounced full reload.
	ModeReload Mode = iota
	// ModeMerge merges inserts in place and reloads for anything else.
	ModeMerge
)

const defaultReloadTimeout = 30 * time.Second

type ReconcilerOptions struct {
	Kind Kind
	Feed Feed
	Mode Mode
	// Reload fetches the full collection for a project.
	Reload func(ctx context.Context, projectID string) error
	// Merge applies one inserted record; an error falls back to Reload.
	Merge func(ev Event) error
	// OnEvent observes every accepted event before it is applied.
	OnEvent        func(ev Event)
	ReloadDebounce time.Duration
	ReloadTimeout  time.Duration
	Logger         *zap.SugaredLogger
}

// Reconciler keeps at most one channel open for its kind, scoped to the
// active project, and folds incoming events into the owning store.
type Reconciler struct {
	opts      ReconcilerOptions
	logger    *zap.SugaredLogger
	debouncer *debounce.Debouncer[string]

	mu        sync.Mutex
	state     State
	projectID string
	channel   Channel
	gen       uint64
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = defaultReloadTimeout
	}
	r := &Reconciler{
		opts:   opts,
		logger: opts.Logger.With("kind", string(opts.Kind)),
	}
	r.debouncer = debounce.New(opts.ReloadDebounce, r.reload)
	return r
}

// Subscribe points the reconciler at projectID. An existing channel for
// another project is closed before the new one opens. Subscribing to the
// current project again is a no-op, and an empty projectID tears down.
// Open failures leave the reconciler unsubscribed; the next Subscribe
// retries.
func (r *Reconciler) Subscribe(ctx context.Context, projectID string) error {
	if projectID == "" {
		r.Teardown()
		return nil
	}

	r.mu.Lock()
	if r.projectID == projectID && r.state != StateUnsubscribed {
		r.mu.Unlock()
		return nil
	}
	previous := r.channel
	r.channel = nil
	r.gen++
	gen := r.gen
	r.projectID = projectID
	r.state = StateSubscribing
	r.mu.Unlock()

	r.debouncer.Cancel()
	r.closeChannel(previous)

	ch, err := r.opts.Feed.Open(ctx, Filter{Kind: r.opts.Kind, ProjectID: projectID}, func(ev Event) {
		r.handle(gen, ev)
	})

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		r.discardChannel(ch)
		return nil
	}
	if err != nil {
		r.state = StateUnsubscribed
		r.mu.Unlock()
		metrics.SubscribeFailuresTotal.WithLabelValues(string(r.opts.Kind)).Inc()
		r.logger.Warnw("realtime subscribe failed", "project", projectID, "error", err)
		return err
	}
	r.channel = ch
	r.state = StateSubscribed
	r.mu.Unlock()

	metrics.ChannelsOpen.WithLabelValues(string(r.opts.Kind)).Set(1)
	r.logger.Debugw("realtime subscribed", "project", projectID)
	return nil
}

// Teardown closes the open channel, if any, and drops pending reloads.
func (r *Reconciler) Teardown() {
	r.mu.Lock()
	ch := r.channel
	r.channel = nil
	r.gen++
	r.state = StateUnsubscribed
	r.projectID = ""
	r.mu.Unlock()

	r.debouncer.Cancel()
	r.closeChannel(ch)
}

// closeChannel releases the reconciler's current channel.
func (r *Reconciler) closeChannel(ch Channel) {
	if ch == nil {
		return
	}
	r.discardChannel(ch)
	metrics.ChannelsOpen.WithLabelValues(string(r.opts.Kind)).Set(0)
}

// discardChannel closes a channel that never became current, such as one
// whose open finished after a newer Subscribe. It leaves the gauge alone.
func (r *Reconciler) discardChannel(ch Channel) {
	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		r.logger.Warnw("realtime channel close failed", "error", err)
		metrics.ChannelCloseFailuresTotal.WithLabelValues(string(r.opts.Kind)).Inc()
	}
}

func (r *Reconciler) handle(gen uint64, ev Event) {
	r.mu.Lock()
	stale := gen != r.gen || r.state == StateUnsubscribed
	projectID := r.projectID
	r.mu.Unlock()

	if stale || ev.Kind != r.opts.Kind || ev.ProjectID != projectID {
		metrics.EventsIgnoredTotal.WithLabelValues(string(r.opts.Kind)).Inc()
		return
	}

	if r.opts.OnEvent != nil {
		r.opts.OnEvent(ev)
	}

	if r.opts.Mode == ModeMerge && ev.Op == OpInsert && r.opts.Merge != nil {
		err := r.opts.Merge(ev)
		if err == nil {
			return
		}
		r.logger.Debugw("merge failed, reloading", "project", projectID, "error", err)
	}

	r.debouncer.Call(projectID)
}

func (r *Reconciler) reload(projectID string) {
	r.mu.Lock()
	current := r.projectID
	r.mu.Unlock()
	if projectID != current || r.opts.Reload == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.ReloadTimeout)
	defer cancel()
	if err := r.opts.Reload(ctx, projectID); err != nil {
		r.logger.Warnw("realtime reload failed", "project", projectID, "error", err)
	}
}

// FlushReload runs a pending reload now instead of waiting for the
// debounce window.
func (r *Reconciler) FlushReload() bool {
	return r.debouncer.Flush()
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) ProjectID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.projectID
}
