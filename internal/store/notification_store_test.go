package store

import (
	"context"
	"testing"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

func notification(id, projectID string, minute int) models.Notification {
	return models.Notification{
		ID:        id,
		ProjectID: projectID,
		Type:      "question_answered",
		Message:   "update " + id,
		CreatedAt: time.Date(2024, 3, 1, 10, minute, 0, 0, time.UTC),
	}
}

func TestMergeInsertsAtHeadAndCountsUnread(t *testing.T) {
	remote := &fakeNotificationRemote{list: map[string][]models.Notification{
		"p1": {notification("n1", "p1", 1)},
	}}
	s := NewNotificationStore(remote, nil)
	s.SetProject("p1")
	if err := s.Reload(context.Background(), "p1"); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if !s.Merge(notification("n2", "p1", 5)) {
		t.Fatalf("expected n2 to be merged")
	}
	if s.Merge(notification("n2", "p1", 5)) {
		t.Fatalf("duplicate delivery must be ignored")
	}
	if s.Merge(notification("n3", "p2", 6)) {
		t.Fatalf("notification for another project must be ignored")
	}

	list := s.Notifications()
	if len(list) != 2 || list[0].ID != "n2" {
		t.Fatalf("expected n2 at head, got %+v", list)
	}
	if s.UnreadCount() != 2 {
		t.Fatalf("expected 2 unread, got %d", s.UnreadCount())
	}

	late := notification("n0", "p1", 0)
	late.Read = true
	s.Merge(late)
	list = s.Notifications()
	if list[len(list)-1].ID != "n0" {
		t.Fatalf("out-of-order record should land in chronological position, got %+v", list)
	}
	if s.UnreadCount() != 2 {
		t.Fatalf("a read record must not bump unread, got %d", s.UnreadCount())
	}
}

func TestMarkReadUpdatesCounts(t *testing.T) {
	remote := &fakeNotificationRemote{list: map[string][]models.Notification{
		"p1": {notification("n1", "p1", 1), notification("n2", "p1", 2)},
	}}
	s := NewNotificationStore(remote, nil)
	s.SetProject("p1")
	if err := s.Reload(context.Background(), "p1"); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if err := s.MarkRead(context.Background(), "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if s.UnreadCount() != 1 {
		t.Fatalf("expected 1 unread, got %d", s.UnreadCount())
	}
	if err := s.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if s.UnreadCount() != 0 {
		t.Fatalf("expected 0 unread, got %d", s.UnreadCount())
	}
}
