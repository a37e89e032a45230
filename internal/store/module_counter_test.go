package store

import (
	"testing"

	"github.com/wuwenbin0122/evalboard/internal/snapshot"
)

func TestModuleCounterUnreadRules(t *testing.T) {
	c := NewModuleCounter(newStepClock().Now)

	if !c.HasUnread(ModuleQA) {
		t.Fatalf("a never-seen module is unread")
	}

	c.RecordUpdate(ModuleQA)
	if !c.HasUnread(ModuleQA) {
		t.Fatalf("expected unread after update with no view")
	}

	c.MarkAsViewed(ModuleQA)
	if c.HasUnread(ModuleQA) {
		t.Fatalf("expected read after viewing the last update")
	}

	c.RecordUpdate(ModuleQA)
	if !c.HasUnread(ModuleQA) {
		t.Fatalf("expected unread after a newer update")
	}
}

func TestMarkAsViewedSeedsMissingUpdate(t *testing.T) {
	c := NewModuleCounter(newStepClock().Now)
	c.MarkAsViewed(ModuleChat)

	state := c.State(ModuleChat)
	if state.Unread {
		t.Fatalf("a viewed module with no updates must not stay unread")
	}
	if state.LastUpdate == nil || !state.LastUpdate.Equal(*state.LastViewed) {
		t.Fatalf("expected last update seeded with the view time, got %+v", state)
	}
}

func TestRecordUpdatePreservesLastViewed(t *testing.T) {
	c := NewModuleCounter(newStepClock().Now)
	c.MarkAsViewed(ModuleCommunications)
	viewed := *c.State(ModuleCommunications).LastViewed

	c.RecordUpdate(ModuleCommunications)
	if got := c.State(ModuleCommunications).LastViewed; got == nil || !got.Equal(viewed) {
		t.Fatalf("expected last viewed to be preserved")
	}
}

func TestModuleCounterSnapshotRoundTrip(t *testing.T) {
	c := NewModuleCounter(newStepClock().Now)
	c.MarkAsViewed(ModuleQA)
	c.RecordUpdate(ModuleChat)

	var snap snapshot.Snapshot
	c.WriteSnapshot(&snap)

	restored := NewModuleCounter(nil)
	restored.Restore(&snap)
	if restored.HasUnread(ModuleQA) {
		t.Fatalf("expected qa to stay read after restore")
	}
	if !restored.HasUnread(ModuleChat) {
		t.Fatalf("expected chat to stay unread after restore")
	}
}
