package store

import (
	"strings"
	"sync"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/snapshot"
)

// Module names tracked by the counter.
const (
	ModuleChat           = "chat"
	ModuleQA             = "qa"
	ModuleCommunications = "communications"
	ModuleNotifications  = "notifications"
)

type moduleMark struct {
	lastViewed *time.Time
	lastUpdate *time.Time
}

// ModuleCounter tracks, per module, whether content changed since the user
// last looked at it.
type ModuleCounter struct {
	now func() time.Time

	mu       sync.Mutex
	marks    map[string]moduleMark
	onChange func()
}

func NewModuleCounter(now func() time.Time) *ModuleCounter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ModuleCounter{now: now, marks: make(map[string]moduleMark)}
}

func (c *ModuleCounter) SetOnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// MarkAsViewed records now as the last view. A module that never saw an
// update gets one at the same instant so it does not stay unread forever.
func (c *ModuleCounter) MarkAsViewed(module string) {
	module = strings.TrimSpace(module)
	now := c.now()

	c.mu.Lock()
	mark := c.marks[module]
	mark.lastViewed = &now
	if mark.lastUpdate == nil {
		seeded := now
		mark.lastUpdate = &seeded
	}
	c.marks[module] = mark
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *ModuleCounter) RecordUpdate(module string) {
	module = strings.TrimSpace(module)
	now := c.now()

	c.mu.Lock()
	mark := c.marks[module]
	mark.lastUpdate = &now
	c.marks[module] = mark
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// HasUnread is true for a module never seen before, or one updated strictly
// after its last view.
func (c *ModuleCounter) HasUnread(module string) bool {
	module = strings.TrimSpace(module)

	c.mu.Lock()
	defer c.mu.Unlock()

	mark, ok := c.marks[module]
	if !ok || mark.lastViewed == nil {
		return true
	}
	if mark.lastUpdate == nil {
		return false
	}
	return mark.lastUpdate.After(*mark.lastViewed)
}

type ModuleState struct {
	Module     string     `json:"module"`
	Unread     bool       `json:"unread"`
	LastViewed *time.Time `json:"lastViewed,omitempty"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

func (c *ModuleCounter) State(module string) ModuleState {
	unread := c.HasUnread(module)

	c.mu.Lock()
	defer c.mu.Unlock()
	mark := c.marks[strings.TrimSpace(module)]
	return ModuleState{Module: module, Unread: unread, LastViewed: mark.lastViewed, LastUpdate: mark.lastUpdate}
}

func (c *ModuleCounter) WriteSnapshot(snap *snapshot.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap.Modules = make(map[string]snapshot.ModuleMark, len(c.marks))
	for module, mark := range c.marks {
		snap.Modules[module] = snapshot.ModuleMark{LastViewed: mark.lastViewed, LastUpdate: mark.lastUpdate}
	}
}

func (c *ModuleCounter) Restore(snap *snapshot.Snapshot) {
	if snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks = make(map[string]moduleMark, len(snap.Modules))
	for module, mark := range snap.Modules {
		c.marks[module] = moduleMark{lastViewed: mark.LastViewed, lastUpdate: mark.LastUpdate}
	}
}
