package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

type ConversationOptions struct {
	Remote    ConversationRemote
	Assistant Assistant
	Logger    *zap.SugaredLogger
	// MaxSavedThreads caps the per-project mapping; zero keeps every thread.
	MaxSavedThreads int
	Now             func() time.Time
}

// ConversationStore holds the active project's conversation plus the saved
// threads of every project visited before.
type ConversationStore struct {
	remote    ConversationRemote
	assistant Assistant
	logger    *zap.SugaredLogger
	now       func() time.Time
	maxSaved  int

	mu            sync.Mutex
	active        models.Conversation
	saved         map[string]models.Conversation
	historyLoaded bool
	unread        int
	sending       int
	err           error
	onChange      func()
}

func NewConversationStore(opts ConversationOptions) *ConversationStore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &ConversationStore{
		remote:    opts.Remote,
		assistant: opts.Assistant,
		logger:    logger,
		now:       now,
		maxSaved:  opts.MaxSavedThreads,
		saved:     make(map[string]models.Conversation),
	}
}

// SetOnChange registers the hook run after every state change, outside the
// store lock.
func (s *ConversationStore) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SendMessage asks the assistant for a reply and appends both messages once
// the reply and the remote write have succeeded. Concurrent sends are
// appended in the order they complete. A reply that lands after the user
// moved to another project is filed under the project it was sent from.
func (s *ConversationStore) SendMessage(ctx context.Context, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrInvalidInput
	}
	if s.assistant == nil {
		return models.Message{}, ErrNotConfigured
	}

	s.mu.Lock()
	projectID := s.active.ProjectID
	sessionID := s.active.SessionID
	history := append([]models.Message(nil), s.active.Messages...)
	s.sending++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending--
		s.mu.Unlock()
	}()

	userMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: s.now(),
	}

	reply, err := s.assistant.Reply(ctx, AssistantRequest{
		ProjectID: projectID,
		SessionID: sessionID,
		History:   history,
		Content:   content,
	})
	if err != nil {
		return models.Message{}, s.fail(remoteError("conversation", "reply", err))
	}

	assistantMsg := reply.Message
	if assistantMsg.ID == "" {
		assistantMsg.ID = uuid.NewString()
	}
	if !assistantMsg.Role.Valid() {
		assistantMsg.Role = models.RoleAssistant
	}
	if assistantMsg.Timestamp.IsZero() {
		assistantMsg.Timestamp = s.now()
	}
	if strings.TrimSpace(reply.SessionID) != "" {
		sessionID = reply.SessionID
	}

	if s.remote != nil {
		if err := s.remote.AppendMessages(ctx, projectID, sessionID, []models.Message{userMsg, assistantMsg}); err != nil {
			return models.Message{}, s.fail(remoteError("conversation", "append", err))
		}
	}

	s.mu.Lock()
	s.appendLocked(projectID, sessionID, userMsg, assistantMsg)
	s.err = nil
	s.mu.Unlock()

	s.changed()
	return assistantMsg, nil
}

func (s *ConversationStore) appendLocked(projectID, sessionID string, msgs ...models.Message) {
	now := s.now()

	if s.active.ProjectID == projectID {
		s.active.Messages = append(s.active.Messages, msgs...)
		s.active.SessionID = sessionID
		s.active.UpdatedAt = now
		s.unread++
		return
	}

	if projectID == "" {
		s.logger.Warnw("dropping reply for a project-less conversation that is no longer active", "messages", len(msgs))
		return
	}

	conv := s.saved[projectID].Clone()
	conv.ProjectID = projectID
	conv.Messages = append(conv.Messages, msgs...)
	conv.SessionID = sessionID
	conv.UpdatedAt = now
	s.saved[projectID] = conv
	s.evictLocked()
}

// ClearConversation empties the active project's thread locally and
// remotely, including its saved slice.
func (s *ConversationStore) ClearConversation(ctx context.Context) error {
	s.mu.Lock()
	projectID := s.active.ProjectID
	s.mu.Unlock()

	if s.remote != nil && projectID != "" {
		if err := s.remote.ClearConversation(ctx, projectID); err != nil {
			return s.fail(remoteError("conversation", "clear", err))
		}
	}

	s.mu.Lock()
	if s.active.ProjectID == projectID {
		s.active = models.Conversation{ProjectID: projectID, UpdatedAt: s.now()}
		s.unread = 0
	}
	delete(s.saved, projectID)
	s.err = nil
	s.mu.Unlock()

	s.changed()
	return nil
}

// LoadHistory fetches the active project's history once. The attempt is
// recorded before the fetch so a failing remote is not retried in a loop;
// on failure the local thread is kept as it was.
func (s *ConversationStore) LoadHistory(ctx context.Context) error {
	s.mu.Lock()
	if s.historyLoaded {
		s.mu.Unlock()
		return nil
	}
	s.historyLoaded = true
	projectID := s.active.ProjectID
	s.mu.Unlock()

	if s.remote == nil || projectID == "" {
		return nil
	}

	remote, err := s.remote.LoadConversation(ctx, projectID)
	if err != nil {
		return s.fail(remoteError("conversation", "load", err))
	}

	s.mu.Lock()
	if s.active.ProjectID != projectID {
		s.mu.Unlock()
		return nil
	}
	s.active = mergeHistory(s.active, remote)
	s.err = nil
	s.mu.Unlock()

	s.changed()
	return nil
}

// mergeHistory puts the remote history first and keeps local messages the
// remote has not seen yet.
func mergeHistory(local, remote models.Conversation) models.Conversation {
	seen := make(map[string]struct{}, len(remote.Messages))
	merged := models.Conversation{
		ProjectID: local.ProjectID,
		SessionID: local.SessionID,
		UpdatedAt: local.UpdatedAt,
	}
	for _, msg := range remote.Messages {
		if !msg.Valid() {
			continue
		}
		seen[msg.ID] = struct{}{}
		merged.Messages = append(merged.Messages, msg)
	}
	for _, msg := range local.Messages {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		merged.Messages = append(merged.Messages, msg)
	}
	if merged.SessionID == "" {
		merged.SessionID = remote.SessionID
	}
	if remote.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
	}
	return merged
}

func (s *ConversationStore) Conversation() models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Clone()
}

func (s *ConversationStore) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.ProjectID
}

func (s *ConversationStore) HistoryLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLoaded
}

// Sending reports whether a SendMessage call is outstanding.
func (s *ConversationStore) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending > 0
}

func (s *ConversationStore) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *ConversationStore) MarkRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = 0
}

func (s *ConversationStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ConversationStore) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Warnw("conversation operation failed", "error", err)
	return err
}

func (s *ConversationStore) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
