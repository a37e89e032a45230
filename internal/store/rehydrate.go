package store

import (
	"strings"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/snapshot"
)

type restoredState struct {
	active        models.Conversation
	saved         map[string]models.Conversation
	historyLoaded bool
}

// Rehydrate restores the store from a persisted snapshot and reconciles it
// with the live active project. When the snapshot belongs to the live
// project its thread is kept as is, minus messages without content. When it
// does not, the thread saved for the live project is adopted, or an empty
// thread scoped to it. Running it again with the same inputs yields the
// same state.
func (s *ConversationStore) Rehydrate(snap *snapshot.Snapshot, liveProjectID string) {
	if snap == nil {
		s.Reset(liveProjectID)
		return
	}

	state := reconcileSnapshot(snap, strings.TrimSpace(liveProjectID))

	s.mu.Lock()
	s.active = state.active
	s.saved = state.saved
	s.historyLoaded = state.historyLoaded
	s.unread = 0
	s.err = nil
	s.evictLocked()
	s.mu.Unlock()

	s.logger.Infow("conversation rehydrated",
		"persisted_project", snap.ProjectID,
		"live_project", liveProjectID,
		"messages", len(state.active.Messages),
		"saved_threads", len(state.saved),
	)
}

// Reset starts from an empty thread scoped to projectID with history not
// yet loaded.
func (s *ConversationStore) Reset(projectID string) {
	s.mu.Lock()
	s.active = models.Conversation{ProjectID: strings.TrimSpace(projectID)}
	s.saved = make(map[string]models.Conversation)
	s.historyLoaded = false
	s.unread = 0
	s.err = nil
	s.mu.Unlock()
}

func reconcileSnapshot(snap *snapshot.Snapshot, live string) restoredState {
	persistedID := strings.TrimSpace(snap.ProjectID)

	saved := make(map[string]models.Conversation, len(snap.Saved))
	for projectID, thread := range snap.Saved {
		if conv := threadToConversation(projectID, thread); !conv.IsEmpty() {
			saved[projectID] = conv
		}
	}
	persisted := threadToConversation(persistedID, snap.Active)

	if persistedID == live {
		return restoredState{
			active:        persisted,
			saved:         saved,
			historyLoaded: snap.Active.HistoryLoaded,
		}
	}

	if persistedID != "" && !persisted.IsEmpty() {
		saved[persistedID] = persisted
	}

	active := models.Conversation{ProjectID: live}
	if live != "" {
		if conv, ok := saved[live]; ok && !conv.IsEmpty() {
			active = conv.Clone()
		}
	}

	return restoredState{active: active, saved: saved, historyLoaded: true}
}

func threadToConversation(projectID string, thread snapshot.Thread) models.Conversation {
	conv := models.Conversation{
		ProjectID: projectID,
		SessionID: thread.SessionID,
		UpdatedAt: thread.UpdatedAt,
	}
	for _, msg := range thread.Messages {
		if msg.Valid() {
			conv.Messages = append(conv.Messages, msg)
		}
	}
	return conv
}

func conversationToThread(conv models.Conversation, historyLoaded bool) snapshot.Thread {
	return snapshot.Thread{
		Messages:      append([]models.Message(nil), conv.Messages...),
		SessionID:     conv.SessionID,
		HistoryLoaded: historyLoaded,
		UpdatedAt:     conv.UpdatedAt,
	}
}

// WriteSnapshot copies the conversation state into snap.
func (s *ConversationStore) WriteSnapshot(snap *snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.ProjectID = s.active.ProjectID
	snap.Active = conversationToThread(s.active, s.historyLoaded)
	snap.Saved = make(map[string]snapshot.Thread, len(s.saved))
	for projectID, conv := range s.saved {
		if projectID == "" || conv.IsEmpty() {
			continue
		}
		snap.Saved[projectID] = conversationToThread(conv, true)
	}
}
