// Package app wires the project-scoped stores, their realtime reconcilers
// and the snapshot backend into one dashboard state container.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/project"
	"github.com/wuwenbin0122/evalboard/internal/realtime"
	"github.com/wuwenbin0122/evalboard/internal/snapshot"
	"github.com/wuwenbin0122/evalboard/internal/store"
	"github.com/wuwenbin0122/evalboard/internal/timeline"
)

const (
	defaultReloadTimeout = 30 * time.Second
	defaultSaveTimeout   = 5 * time.Second
)

var ErrClosed = errors.New("app: dashboard closed")

type Options struct {
	Signal    *project.Signal
	Snapshots snapshot.Backend
	Feed      realtime.Feed

	ConversationRemote  store.ConversationRemote
	Assistant           store.Assistant
	QuestionRemote      store.QuestionRemote
	CommunicationRemote store.CommunicationRemote
	NotificationRemote  store.NotificationRemote

	MaxSavedThreads int
	SwitchDebounce  time.Duration
	ReloadDebounce  time.Duration
	ReloadTimeout   time.Duration
	SaveTimeout     time.Duration

	Logger *zap.SugaredLogger
	Now    func() time.Time
}

// Dashboard owns every piece of client state for the process. It is built
// once and handed to the HTTP layer.
type Dashboard struct {
	Signal         *project.Signal
	Conversation   *store.ConversationStore
	Questions      *store.QuestionStore
	Communications *store.CommunicationStore
	Notifications  *store.NotificationStore
	Modules        *store.ModuleCounter

	feed          realtime.Feed
	reconcilers   map[realtime.Kind]*realtime.Reconciler
	persister     *persister
	logger        *zap.SugaredLogger
	reloadTimeout time.Duration
	switchWait    time.Duration

	mu           sync.Mutex
	watcher      *store.ProjectWatcher
	started      bool
	closed       bool
	switchGen    uint64
	cancelSwitch context.CancelFunc

	// switchMu serializes activations so only one switch touches the
	// reconcilers at a time.
	switchMu sync.Mutex
}

func New(opts Options) *Dashboard {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	signal := opts.Signal
	if signal == nil {
		signal = project.NewSignal("")
	}
	backend := opts.Snapshots
	if backend == nil {
		backend = snapshot.NewMemoryBackend()
	}
	feed := opts.Feed
	if feed == nil {
		feed = realtime.NewHub()
	}
	reloadTimeout := opts.ReloadTimeout
	if reloadTimeout <= 0 {
		reloadTimeout = defaultReloadTimeout
	}

	d := &Dashboard{
		Signal: signal,
		Conversation: store.NewConversationStore(store.ConversationOptions{
			Remote:          opts.ConversationRemote,
			Assistant:       opts.Assistant,
			Logger:          logger.With("store", "conversation"),
			MaxSavedThreads: opts.MaxSavedThreads,
			Now:             now,
		}),
		Questions:      store.NewQuestionStore(opts.QuestionRemote, logger.With("store", "questions")),
		Communications: store.NewCommunicationStore(opts.CommunicationRemote, logger.With("store", "communications")),
		Notifications:  store.NewNotificationStore(opts.NotificationRemote, logger.With("store", "notifications")),
		Modules:        store.NewModuleCounter(now),
		feed:           feed,
		logger:         logger,
		reloadTimeout:  reloadTimeout,
		switchWait:     opts.SwitchDebounce,
	}
	d.persister = newPersister(backend, opts.SaveTimeout, now, logger, d.writeSnapshot)

	d.reconcilers = map[realtime.Kind]*realtime.Reconciler{
		realtime.KindQuestion: realtime.NewReconciler(realtime.ReconcilerOptions{
			Kind:           realtime.KindQuestion,
			Feed:           feed,
			Mode:           realtime.ModeReload,
			Reload:         d.Questions.Reload,
			OnEvent:        d.observe,
			ReloadDebounce: opts.ReloadDebounce,
			ReloadTimeout:  reloadTimeout,
			Logger:         logger,
		}),
		realtime.KindNotification: realtime.NewReconciler(realtime.ReconcilerOptions{
			Kind:           realtime.KindNotification,
			Feed:           feed,
			Mode:           realtime.ModeMerge,
			Reload:         d.Notifications.Reload,
			Merge:          d.mergeNotification,
			OnEvent:        d.observe,
			ReloadDebounce: opts.ReloadDebounce,
			ReloadTimeout:  reloadTimeout,
			Logger:         logger,
		}),
		realtime.KindCommunication: realtime.NewReconciler(realtime.ReconcilerOptions{
			Kind:           realtime.KindCommunication,
			Feed:           feed,
			Mode:           realtime.ModeReload,
			Reload:         d.Communications.Reload,
			OnEvent:        d.observe,
			ReloadDebounce: opts.ReloadDebounce,
			ReloadTimeout:  reloadTimeout,
			Logger:         logger,
		}),
	}

	return d
}

// Start restores the persisted snapshot against the live project, opens
// the realtime channels, loads every entity collection and begins
// following project changes.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	snap := d.persister.load(ctx)
	live := d.Signal.Current()

	d.Conversation.Rehydrate(snap, live)
	if snap != nil {
		d.Modules.Restore(snap)
	}
	if !d.Conversation.HistoryLoaded() {
		if err := d.Conversation.LoadHistory(ctx); err != nil {
			d.logger.Warnw("initial history load failed", "project", live, "error", err)
		}
	}

	d.Conversation.SetOnChange(d.persister.save)
	d.Modules.SetOnChange(d.persister.save)
	d.persister.save()

	switchCtx, stale, cancel := d.beginSwitch(ctx)
	d.switchMu.Lock()
	d.activate(switchCtx, d.Conversation.ProjectID(), stale)
	d.switchMu.Unlock()
	cancel()

	watcher := store.WatchProject(d.Signal, d.switchWait, d.applyProject, d.interruptSwitch)
	d.mu.Lock()
	d.watcher = watcher
	d.mu.Unlock()

	d.logger.Infow("dashboard started", "project", d.Conversation.ProjectID(), "restored", snap != nil)
	return nil
}

// SetProject changes the active project. With immediate set the debounce
// window is skipped.
func (d *Dashboard) SetProject(projectID string, immediate bool) {
	d.Signal.Set(strings.TrimSpace(projectID))
	if !immediate {
		return
	}
	d.mu.Lock()
	watcher := d.watcher
	d.mu.Unlock()
	if watcher != nil {
		watcher.Flush()
	}
}

func (d *Dashboard) applyProject(projectID string) {
	ctx, stale, cancel := d.beginSwitch(context.Background())
	defer cancel()

	d.switchMu.Lock()
	defer d.switchMu.Unlock()
	if stale() {
		return
	}

	d.Conversation.SwitchProject(projectID)
	d.activate(ctx, projectID, stale)
}

// beginSwitch supersedes any switch still in flight and returns the context
// for a new one. stale reports whether a later change or Close arrived.
func (d *Dashboard) beginSwitch(parent context.Context) (context.Context, func() bool, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	d.mu.Lock()
	if d.cancelSwitch != nil {
		d.cancelSwitch()
	}
	d.cancelSwitch = cancel
	d.switchGen++
	gen := d.switchGen
	d.mu.Unlock()

	stale := func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.closed || gen != d.switchGen
	}
	return ctx, stale, cancel
}

// interruptSwitch runs on every project change, before the change is
// queued behind the switch currently running.
func (d *Dashboard) interruptSwitch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.switchGen++
	if d.cancelSwitch != nil {
		d.cancelSwitch()
		d.cancelSwitch = nil
	}
}

// activate points every entity store and reconciler at projectID. The
// channel is opened before the reload so no change between the two is
// missed. It gives up as soon as stale reports a newer switch.
func (d *Dashboard) activate(ctx context.Context, projectID string, stale func() bool) {
	d.Questions.SetProject(projectID)
	d.Communications.SetProject(projectID)
	d.Notifications.SetProject(projectID)

	for kind, reconciler := range d.reconcilers {
		if stale() {
			d.logger.Debugw("project switch superseded", "project", projectID)
			return
		}
		if err := reconciler.Subscribe(ctx, projectID); err != nil {
			d.logger.Warnw("realtime subscription unavailable", "kind", string(kind), "project", projectID, "error", err)
		}
	}

	if projectID == "" || stale() {
		return
	}

	reloadCtx, cancel := context.WithTimeout(ctx, d.reloadTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, reload := range []func(context.Context, string) error{
		d.Questions.Reload,
		d.Communications.Reload,
		d.Notifications.Reload,
	} {
		wg.Add(1)
		go func(reload func(context.Context, string) error) {
			defer wg.Done()
			if err := reload(reloadCtx, projectID); err != nil {
				d.logger.Debugw("entity reload failed", "project", projectID, "error", err)
			}
		}(reload)
	}
	wg.Wait()
}

func (d *Dashboard) observe(ev realtime.Event) {
	switch ev.Kind {
	case realtime.KindQuestion:
		d.Modules.RecordUpdate(store.ModuleQA)
	case realtime.KindCommunication:
		d.Modules.RecordUpdate(store.ModuleCommunications)
	case realtime.KindNotification:
		d.Modules.RecordUpdate(store.ModuleNotifications)
	}
}

func (d *Dashboard) mergeNotification(ev realtime.Event) error {
	if len(ev.Record) == 0 {
		return fmt.Errorf("notification event %s carried no record", ev.RecordID)
	}
	n, err := models.DecodeNotificationRecord(ev.Record)
	if err != nil {
		return err
	}
	if n.ProjectID == "" {
		n.ProjectID = ev.ProjectID
	}
	d.Notifications.Merge(n)
	return nil
}

// MarkViewed records that the user looked at module. Viewing the chat also
// clears its unread reply count.
func (d *Dashboard) MarkViewed(module string) {
	if module == store.ModuleChat {
		d.Conversation.MarkRead()
	}
	d.Modules.MarkAsViewed(module)
}

// Timeline merges the active project's communications and questions.
func (d *Dashboard) Timeline(filter timeline.Filter) []timeline.Item {
	return timeline.Aggregate(d.Communications.Communications(), d.Questions.Questions(), filter)
}

func (d *Dashboard) Providers() []timeline.Provider {
	return timeline.Providers(d.Communications.Communications(), d.Questions.Questions())
}

func (d *Dashboard) RealtimeState(kind realtime.Kind) realtime.State {
	if r, ok := d.reconcilers[kind]; ok {
		return r.State()
	}
	return realtime.StateUnsubscribed
}

// Feed exposes the change feed so the HTTP layer can stream it.
func (d *Dashboard) Feed() realtime.Feed {
	return d.feed
}

// Close stops following project changes, releases every channel and writes
// a final snapshot.
func (d *Dashboard) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	watcher := d.watcher
	started := d.started
	d.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	d.interruptSwitch()
	d.switchMu.Lock()
	for _, reconciler := range d.reconcilers {
		reconciler.Teardown()
	}
	d.switchMu.Unlock()
	if started {
		d.persister.save()
	}
	return d.persister.close()
}

func (d *Dashboard) writeSnapshot(snap *snapshot.Snapshot) {
	d.Conversation.WriteSnapshot(snap)
	d.Modules.WriteSnapshot(snap)
}
