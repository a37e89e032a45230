package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/metrics"
	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/timeline"
)

type QuestionStore struct {
	remote QuestionRemote
	logger *zap.SugaredLogger
	now    func() time.Time

	mu        sync.Mutex
	projectID string
	questions []models.Question
	loading   int
	err       error
}

func NewQuestionStore(remote QuestionRemote, logger *zap.SugaredLogger) *QuestionStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &QuestionStore{
		remote: remote,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetProject scopes the store to projectID, dropping the previous
// project's questions.
func (s *QuestionStore) SetProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectID == projectID {
		return
	}
	s.projectID = projectID
	s.questions = nil
	s.err = nil
}

// Reload replaces the collection with the remote's full set for projectID.
// Overlapping reloads are not cancelled; whichever completes last wins. A
// result for a project that is no longer active is discarded.
func (s *QuestionStore) Reload(ctx context.Context, projectID string) error {
	if s.remote == nil || projectID == "" {
		return nil
	}

	s.mu.Lock()
	s.loading++
	s.mu.Unlock()

	questions, err := s.remote.ListQuestions(ctx, projectID)
	metrics.ReloadsTotal.WithLabelValues("question", metrics.Status(err)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading--

	if s.projectID != projectID {
		return nil
	}
	if err != nil {
		s.err = remoteError("question", "list", err)
		s.logger.Warnw("question reload failed", "project", projectID, "error", err)
		return s.err
	}

	s.questions = dedupeQuestions(questions)
	s.err = nil
	return nil
}

func dedupeQuestions(in []models.Question) []models.Question {
	seen := make(map[string]int, len(in))
	out := make([]models.Question, 0, len(in))
	for _, q := range in {
		if idx, ok := seen[q.ID]; ok {
			out[idx] = q
			continue
		}
		seen[q.ID] = len(out)
		out = append(out, q)
	}
	return out
}

func (s *QuestionStore) Create(ctx context.Context, q models.Question) (models.Question, error) {
	if s.remote == nil {
		return models.Question{}, ErrNotConfigured
	}

	s.mu.Lock()
	if q.ProjectID == "" {
		q.ProjectID = s.projectID
	}
	s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Status == "" {
		q.Status = models.QuestionDraft
	}
	if q.Importance == "" {
		q.Importance = models.ImportanceMedium
	}
	if q.Discipline == "" {
		q.Discipline = models.DisciplineGeneral
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	q.UpdatedAt = q.CreatedAt
	if err := q.Validate(); err != nil {
		return models.Question{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	created, err := s.remote.CreateQuestion(ctx, q)
	if err != nil {
		return models.Question{}, s.fail(remoteError("question", "create", err))
	}

	s.mu.Lock()
	s.upsertLocked(created)
	s.err = nil
	s.mu.Unlock()
	return created, nil
}

// Update writes q through and replaces the local copy. The status change,
// if any, must follow the question lifecycle.
func (s *QuestionStore) Update(ctx context.Context, q models.Question) (models.Question, error) {
	if s.remote == nil {
		return models.Question{}, ErrNotConfigured
	}

	current, ok := s.Get(q.ID)
	if !ok {
		return models.Question{}, ErrNotFound
	}
	if !models.CanTransition(current.Status, q.Status) {
		return models.Question{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, q.Status)
	}
	if err := q.Validate(); err != nil {
		return models.Question{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	q.UpdatedAt = s.now()
	if q.Status == models.QuestionAnswered && q.ResponseAt == nil && strings.TrimSpace(q.Response) != "" {
		at := q.UpdatedAt
		q.ResponseAt = &at
	}

	updated, err := s.remote.UpdateQuestion(ctx, q)
	if err != nil {
		return models.Question{}, s.fail(remoteError("question", "update", err))
	}

	s.mu.Lock()
	s.upsertLocked(updated)
	s.err = nil
	s.mu.Unlock()
	return updated, nil
}

func (s *QuestionStore) SetStatus(ctx context.Context, id string, status models.QuestionStatus) (models.Question, error) {
	current, ok := s.Get(id)
	if !ok {
		return models.Question{}, ErrNotFound
	}
	current.Status = status
	return s.Update(ctx, current)
}

func (s *QuestionStore) Delete(ctx context.Context, id string) error {
	if s.remote == nil {
		return ErrNotConfigured
	}
	if err := s.remote.DeleteQuestion(ctx, id); err != nil {
		return s.fail(remoteError("question", "delete", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.questions {
		if q.ID == id {
			s.questions = append(s.questions[:i:i], s.questions[i+1:]...)
			break
		}
	}
	s.err = nil
	return nil
}

func (s *QuestionStore) upsertLocked(q models.Question) {
	if q.ProjectID != s.projectID {
		return
	}
	for i := range s.questions {
		if s.questions[i].ID == q.ID {
			s.questions[i] = q
			return
		}
	}
	s.questions = append(s.questions, q)
}

func (s *QuestionStore) Get(id string) (models.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.questions {
		if q.ID == id {
			return q, true
		}
	}
	return models.Question{}, false
}

func (s *QuestionStore) Questions() []models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Question(nil), s.questions...)
}

// Approved lists the questions ready to be bundled into a draft for
// provider, most important first. An empty provider matches every provider.
func (s *QuestionStore) Approved(provider string) []models.Question {
	key := timeline.NormalizeProvider(provider)

	s.mu.Lock()
	out := make([]models.Question, 0, len(s.questions))
	for _, q := range s.questions {
		if !q.EligibleForBundling() {
			continue
		}
		if key != "" && timeline.NormalizeProvider(q.Provider) != key {
			continue
		}
		out = append(out, q)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return importanceRank(out[i].Importance) < importanceRank(out[j].Importance)
	})
	return out
}

func importanceRank(i models.Importance) int {
	switch i {
	case models.ImportanceHigh:
		return 0
	case models.ImportanceMedium:
		return 1
	default:
		return 2
	}
}

func (s *QuestionStore) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

func (s *QuestionStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

func (s *QuestionStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *QuestionStore) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Warnw("question operation failed", "error", err)
	return err
}
