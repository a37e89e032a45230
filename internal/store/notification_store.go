package store

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/metrics"
	"github.com/wuwenbin0122/evalboard/internal/models"
)

// NotificationStore keeps the active project's notifications newest first.
// Notifications are append-only, so realtime inserts are merged in place.
type NotificationStore struct {
	remote NotificationRemote
	logger *zap.SugaredLogger

	mu            sync.Mutex
	projectID     string
	notifications []models.Notification
	unread        int
	err           error
}

func NewNotificationStore(remote NotificationRemote, logger *zap.SugaredLogger) *NotificationStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &NotificationStore{remote: remote, logger: logger}
}

func (s *NotificationStore) SetProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectID == projectID {
		return
	}
	s.projectID = projectID
	s.notifications = nil
	s.unread = 0
	s.err = nil
}

func (s *NotificationStore) Reload(ctx context.Context, projectID string) error {
	if s.remote == nil || projectID == "" {
		return nil
	}

	list, err := s.remote.ListNotifications(ctx, projectID)
	metrics.ReloadsTotal.WithLabelValues("notification", metrics.Status(err)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectID != projectID {
		return nil
	}
	if err != nil {
		s.err = remoteError("notification", "list", err)
		s.logger.Warnw("notification reload failed", "project", projectID, "error", err)
		return s.err
	}

	s.notifications = append([]models.Notification(nil), list...)
	sortNotifications(s.notifications)
	s.unread = countUnread(s.notifications)
	s.err = nil
	return nil
}

// Merge inserts a pushed notification. Repeated deliveries of the same
// record are ignored; the unread count only grows for a new unread record.
// It reports whether the record was new.
func (s *NotificationStore) Merge(n models.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" || n.ProjectID != s.projectID {
		metrics.MergesTotal.WithLabelValues("notification", "ignored").Inc()
		return false
	}
	for _, existing := range s.notifications {
		if existing.ID == n.ID {
			metrics.MergesTotal.WithLabelValues("notification", "duplicate").Inc()
			return false
		}
	}

	s.notifications = append([]models.Notification{n}, s.notifications...)
	sortNotifications(s.notifications)
	if !n.Read {
		s.unread++
	}
	metrics.MergesTotal.WithLabelValues("notification", "inserted").Inc()
	return true
}

func (s *NotificationStore) MarkRead(ctx context.Context, id string) error {
	if s.remote == nil {
		return ErrNotConfigured
	}

	updated, err := s.remote.MarkNotificationRead(ctx, id)
	if err != nil {
		return s.fail(remoteError("notification", "mark read", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i] = updated
			break
		}
	}
	s.unread = countUnread(s.notifications)
	s.err = nil
	return nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context) error {
	if s.remote == nil {
		return ErrNotConfigured
	}

	s.mu.Lock()
	projectID := s.projectID
	s.mu.Unlock()
	if projectID == "" {
		return ErrNoProject
	}

	if err := s.remote.MarkAllNotificationsRead(ctx, projectID); err != nil {
		return s.fail(remoteError("notification", "mark all read", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectID != projectID {
		return nil
	}
	for i := range s.notifications {
		s.notifications[i].Read = true
	}
	s.unread = 0
	s.err = nil
	return nil
}

func (s *NotificationStore) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *NotificationStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *NotificationStore) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Warnw("notification operation failed", "error", err)
	return err
}

// sortNotifications orders newest first; a record delivered out of order
// still lands at its chronological position.
func sortNotifications(list []models.Notification) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func countUnread(list []models.Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}
