package store

import (
	"sort"
	"strings"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/debounce"
	"github.com/wuwenbin0122/evalboard/internal/metrics"
	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/project"
)

// SwitchProject moves the store to newID. The thread being left is filed
// under its project when non-empty, and the thread saved for newID (if any)
// becomes active. An empty newID always resets to a project-less thread.
// History is marked loaded so the switch never triggers a fetch. It reports
// whether anything changed.
func (s *ConversationStore) SwitchProject(newID string) bool {
	newID = strings.TrimSpace(newID)

	s.mu.Lock()
	if newID != "" && newID == s.active.ProjectID {
		s.mu.Unlock()
		return false
	}

	now := s.now()
	if prev := s.active; prev.ProjectID != "" && !prev.IsEmpty() {
		prev = prev.Clone()
		prev.UpdatedAt = now
		s.saved[prev.ProjectID] = prev
	}

	switch saved, ok := s.saved[newID]; {
	case newID == "":
		s.active = models.Conversation{}
	case ok && !saved.IsEmpty():
		s.active = saved.Clone()
	default:
		s.active = models.Conversation{ProjectID: newID}
	}

	s.unread = 0
	s.historyLoaded = true
	s.evictLocked()
	s.mu.Unlock()

	metrics.ProjectSwitchesTotal.Inc()
	s.logger.Debugw("conversation switched project", "project", newID)
	s.changed()
	return true
}

// Saved returns the thread filed for projectID.
func (s *ConversationStore) Saved(projectID string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.saved[projectID]
	if !ok {
		return models.Conversation{}, false
	}
	return conv.Clone(), true
}

func (s *ConversationStore) SavedProjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.saved))
	for id := range s.saved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// evictLocked drops the least recently updated saved threads beyond the
// configured cap. The active project's thread is never evicted.
func (s *ConversationStore) evictLocked() {
	if s.maxSaved <= 0 {
		return
	}
	for len(s.saved) > s.maxSaved {
		oldestID := ""
		var oldest time.Time
		for id, conv := range s.saved {
			if id == s.active.ProjectID {
				continue
			}
			if oldestID == "" || conv.UpdatedAt.Before(oldest) || (conv.UpdatedAt.Equal(oldest) && id < oldestID) {
				oldestID = id
				oldest = conv.UpdatedAt
			}
		}
		if oldestID == "" {
			return
		}
		delete(s.saved, oldestID)
		s.logger.Debugw("evicted saved conversation", "project", oldestID)
	}
}

// ProjectWatcher feeds active project changes into apply, collapsing every
// change inside the wait window into one call with the latest value. Calls
// to apply never overlap.
type ProjectWatcher struct {
	debouncer   *debounce.Debouncer[string]
	interrupt   func()
	unsubscribe func()
}

// WatchProject starts following signal. interrupt, when set, runs on the
// notifying goroutine for every change before it is queued, so a long
// running apply can notice it has been superseded.
func WatchProject(signal *project.Signal, wait time.Duration, apply func(projectID string), interrupt func()) *ProjectWatcher {
	w := &ProjectWatcher{debouncer: debounce.New(wait, apply), interrupt: interrupt}
	w.unsubscribe = signal.Subscribe(w.changed)
	return w
}

func (w *ProjectWatcher) changed(projectID string) {
	if w.interrupt != nil {
		w.interrupt()
	}
	w.debouncer.Call(projectID)
}

// Flush applies a pending change immediately.
func (w *ProjectWatcher) Flush() bool {
	return w.debouncer.Flush()
}

func (w *ProjectWatcher) Stop() {
	w.unsubscribe()
	w.debouncer.Cancel()
}
