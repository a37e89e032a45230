package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

var errBoom = errors.New("boom")

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeAssistant struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	err   error
	calls []AssistantRequest
}

func (a *fakeAssistant) gate(content string) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gates == nil {
		a.gates = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	a.gates[content] = ch
	return ch
}

func (a *fakeAssistant) Reply(ctx context.Context, req AssistantRequest) (AssistantReply, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	gate := a.gates[req.Content]
	err := a.err
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return AssistantReply{}, ctx.Err()
		}
	}
	if err != nil {
		return AssistantReply{}, err
	}
	return AssistantReply{
		Message:   models.Message{Role: models.RoleAssistant, Content: "re: " + req.Content},
		SessionID: "session-" + req.ProjectID,
	}, nil
}

type fakeConversationRemote struct {
	mu        sync.Mutex
	appended  map[string][]models.Message
	history   map[string]models.Conversation
	loadErr   error
	appendErr error
	loads     int
}

func newFakeConversationRemote() *fakeConversationRemote {
	return &fakeConversationRemote{
		appended: make(map[string][]models.Message),
		history:  make(map[string]models.Conversation),
	}
}

func (r *fakeConversationRemote) LoadConversation(_ context.Context, projectID string) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if r.loadErr != nil {
		return models.Conversation{}, r.loadErr
	}
	return r.history[projectID], nil
}

func (r *fakeConversationRemote) AppendMessages(_ context.Context, projectID, _ string, msgs []models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended[projectID] = append(r.appended[projectID], msgs...)
	return nil
}

func (r *fakeConversationRemote) ClearConversation(_ context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.appended, projectID)
	return nil
}

type listCall struct {
	projectID string
	release   chan []models.Question
}

type fakeQuestionRemote struct {
	mu        sync.Mutex
	questions map[string][]models.Question
	blocking  bool
	pending   chan listCall
	err       error
	updates   int
}

func newFakeQuestionRemote() *fakeQuestionRemote {
	return &fakeQuestionRemote{questions: make(map[string][]models.Question), pending: make(chan listCall, 8)}
}

func (r *fakeQuestionRemote) ListQuestions(_ context.Context, projectID string) ([]models.Question, error) {
	r.mu.Lock()
	blocking := r.blocking
	err := r.err
	list := append([]models.Question(nil), r.questions[projectID]...)
	r.mu.Unlock()

	if blocking {
		call := listCall{projectID: projectID, release: make(chan []models.Question, 1)}
		r.pending <- call
		return <-call.release, nil
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *fakeQuestionRemote) CreateQuestion(_ context.Context, q models.Question) (models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return models.Question{}, r.err
	}
	r.questions[q.ProjectID] = append(r.questions[q.ProjectID], q)
	return q, nil
}

func (r *fakeQuestionRemote) UpdateQuestion(_ context.Context, q models.Question) (models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.err != nil {
		return models.Question{}, r.err
	}
	list := r.questions[q.ProjectID]
	for i := range list {
		if list[i].ID == q.ID {
			list[i] = q
		}
	}
	return q, nil
}

func (r *fakeQuestionRemote) DeleteQuestion(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for project, list := range r.questions {
		for i := range list {
			if list[i].ID == id {
				r.questions[project] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

type fakeNotificationRemote struct {
	mu   sync.Mutex
	list map[string][]models.Notification
}

func (r *fakeNotificationRemote) ListNotifications(_ context.Context, projectID string) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.list[projectID]...), nil
}

func (r *fakeNotificationRemote) MarkNotificationRead(_ context.Context, id string) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for project, list := range r.list {
		for i := range list {
			if list[i].ID == id {
				list[i].Read = true
				r.list[project] = list
				return list[i], nil
			}
		}
	}
	return models.Notification{}, errors.New("not found")
}

func (r *fakeNotificationRemote) MarkAllNotificationsRead(_ context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.list[projectID] {
		r.list[projectID][i].Read = true
	}
	return nil
}

func messageContents(conv models.Conversation) []string {
	out := make([]string, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		out = append(out, msg.Content)
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
