package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/metrics"
	"github.com/wuwenbin0122/evalboard/internal/models"
)

// CommunicationStore only changes through its own writes or a full reload.
type CommunicationStore struct {
	remote CommunicationRemote
	logger *zap.SugaredLogger
	now    func() time.Time

	mu             sync.Mutex
	projectID      string
	communications []models.Communication
	err            error
}

func NewCommunicationStore(remote CommunicationRemote, logger *zap.SugaredLogger) *CommunicationStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CommunicationStore{
		remote: remote,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *CommunicationStore) SetProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectID == projectID {
		return
	}
	s.projectID = projectID
	s.communications = nil
	s.err = nil
}

func (s *CommunicationStore) Reload(ctx context.Context, projectID string) error {
	if s.remote == nil || projectID == "" {
		return nil
	}

	comms, err := s.remote.ListCommunications(ctx, projectID)
	metrics.ReloadsTotal.WithLabelValues("communication", metrics.Status(err)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectID != projectID {
		return nil
	}
	if err != nil {
		s.err = remoteError("communication", "list", err)
		s.logger.Warnw("communication reload failed", "project", projectID, "error", err)
		return s.err
	}
	s.communications = comms
	s.err = nil
	return nil
}

func (s *CommunicationStore) Create(ctx context.Context, c models.Communication) (models.Communication, error) {
	if s.remote == nil {
		return models.Communication{}, ErrNotConfigured
	}

	s.mu.Lock()
	if c.ProjectID == "" {
		c.ProjectID = s.projectID
	}
	s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.CommunicationLogged
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if err := c.Validate(); err != nil {
		return models.Communication{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	created, err := s.remote.CreateCommunication(ctx, c)
	if err != nil {
		return models.Communication{}, s.fail(remoteError("communication", "create", err))
	}

	s.mu.Lock()
	s.upsertLocked(created)
	s.err = nil
	s.mu.Unlock()
	return created, nil
}

func (s *CommunicationStore) Update(ctx context.Context, c models.Communication) (models.Communication, error) {
	if s.remote == nil {
		return models.Communication{}, ErrNotConfigured
	}
	if _, ok := s.Get(c.ID); !ok {
		return models.Communication{}, ErrNotFound
	}
	if err := c.Validate(); err != nil {
		return models.Communication{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	updated, err := s.remote.UpdateCommunication(ctx, c)
	if err != nil {
		return models.Communication{}, s.fail(remoteError("communication", "update", err))
	}

	s.mu.Lock()
	s.upsertLocked(updated)
	s.err = nil
	s.mu.Unlock()
	return updated, nil
}

func (s *CommunicationStore) Delete(ctx context.Context, id string) error {
	if s.remote == nil {
		return ErrNotConfigured
	}
	if err := s.remote.DeleteCommunication(ctx, id); err != nil {
		return s.fail(remoteError("communication", "delete", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.communications {
		if c.ID == id {
			s.communications = append(s.communications[:i:i], s.communications[i+1:]...)
			break
		}
	}
	s.err = nil
	return nil
}

func (s *CommunicationStore) upsertLocked(c models.Communication) {
	if c.ProjectID != s.projectID {
		return
	}
	for i := range s.communications {
		if s.communications[i].ID == c.ID {
			s.communications[i] = c
			return
		}
	}
	s.communications = append(s.communications, c)
}

func (s *CommunicationStore) Get(id string) (models.Communication, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.communications {
		if c.ID == id {
			return c, true
		}
	}
	return models.Communication{}, false
}

func (s *CommunicationStore) Communications() []models.Communication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Communication(nil), s.communications...)
}

func (s *CommunicationStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *CommunicationStore) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Warnw("communication operation failed", "error", err)
	return err
}
