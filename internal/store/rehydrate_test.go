package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/snapshot"
)

func msg(id, content string) models.Message {
	return models.Message{ID: id, Role: models.RoleUser, Content: content, Timestamp: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
}

func persistedSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ProjectID: "A",
		Active: snapshot.Thread{
			Messages:      []models.Message{msg("a1", "from A"), msg("a2", ""), msg("a3", "second A")},
			SessionID:     "session-A",
			HistoryLoaded: true,
		},
		Saved: map[string]snapshot.Thread{
			"B": {Messages: []models.Message{msg("b1", "from B")}, SessionID: "session-B"},
		},
	}
}

func TestRehydrateMatchingProjectSanitizesMessages(t *testing.T) {
	s := newTestConversationStore(nil, nil)
	s.Rehydrate(persistedSnapshot(), "A")

	conv := s.Conversation()
	if conv.ProjectID != "A" || conv.SessionID != "session-A" {
		t.Fatalf("unexpected thread %+v", conv)
	}
	if got := messageContents(conv); !sameStrings(got, []string{"from A", "second A"}) {
		t.Fatalf("expected empty message to be dropped, got %v", got)
	}
	if !s.HistoryLoaded() {
		t.Fatalf("expected persisted history flag to be kept")
	}
}

func TestRehydrateAdoptsLiveProjectSlice(t *testing.T) {
	s := newTestConversationStore(nil, nil)
	s.Rehydrate(persistedSnapshot(), "B")

	conv := s.Conversation()
	if conv.ProjectID != "B" || conv.SessionID != "session-B" {
		t.Fatalf("expected B thread, got %+v", conv)
	}
	if got := messageContents(conv); !sameStrings(got, []string{"from B"}) {
		t.Fatalf("expected only B content, got %v", got)
	}
	if !s.HistoryLoaded() || s.Unread() != 0 {
		t.Fatalf("expected history loaded and unread reset")
	}

	saved, ok := s.Saved("A")
	if !ok || len(saved.Messages) != 2 {
		t.Fatalf("expected A thread to be kept as a saved slice, got %+v", saved)
	}
}

func TestRehydrateWithoutSliceStartsEmpty(t *testing.T) {
	s := newTestConversationStore(nil, nil)
	s.Rehydrate(persistedSnapshot(), "C")

	conv := s.Conversation()
	if conv.ProjectID != "C" || !conv.IsEmpty() || conv.SessionID != "" {
		t.Fatalf("expected empty thread scoped to C, got %+v", conv)
	}
	if !s.HistoryLoaded() {
		t.Fatalf("expected history marked loaded")
	}
}

func TestRehydrateIsIdempotent(t *testing.T) {
	for _, live := range []string{"A", "B", "C", ""} {
		once := newTestConversationStore(nil, nil)
		once.Rehydrate(persistedSnapshot(), live)

		twice := newTestConversationStore(nil, nil)
		twice.Rehydrate(persistedSnapshot(), live)
		twice.Rehydrate(persistedSnapshot(), live)

		if !reflect.DeepEqual(once.Conversation(), twice.Conversation()) {
			t.Fatalf("live %q: active thread differs after second run", live)
		}
		if !sameStrings(once.SavedProjects(), twice.SavedProjects()) {
			t.Fatalf("live %q: saved projects differ after second run", live)
		}
		if once.HistoryLoaded() != twice.HistoryLoaded() {
			t.Fatalf("live %q: history flag differs after second run", live)
		}
	}
}

func TestRehydrateRoundTripsThroughSnapshot(t *testing.T) {
	s := newTestConversationStore(nil, nil)
	s.Rehydrate(persistedSnapshot(), "B")

	var snap snapshot.Snapshot
	s.WriteSnapshot(&snap)
	if snap.ProjectID != "B" || len(snap.Active.Messages) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	restored := newTestConversationStore(nil, nil)
	restored.Rehydrate(&snap, "B")
	if !reflect.DeepEqual(s.Conversation(), restored.Conversation()) {
		t.Fatalf("expected identical thread after round trip")
	}
}

func TestRehydrateWithoutSnapshotResets(t *testing.T) {
	s := newTestConversationStore(nil, nil)
	s.Rehydrate(nil, "A")

	if s.ProjectID() != "A" {
		t.Fatalf("expected project A, got %q", s.ProjectID())
	}
	if s.HistoryLoaded() {
		t.Fatalf("a fresh start must still fetch history")
	}
}
