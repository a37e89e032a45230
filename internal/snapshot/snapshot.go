// Package snapshot persists the client-side cache between restarts.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

const CurrentVersion = 1

var (
	ErrCorrupt = errors.New("snapshot: corrupt document")
	// ErrUnsupportedScheme is returned for DSN schemes with no backend.
	ErrUnsupportedScheme = errors.New("snapshot: unsupported backend scheme")
)

// Backend is the durable store behind the cache. Load returns (nil, nil)
// when nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}

type Thread struct {
	Messages      []models.Message `json:"messages"`
	SessionID     string           `json:"sessionId,omitempty"`
	HistoryLoaded bool             `json:"historyLoaded"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

func (t Thread) IsEmpty() bool {
	return len(t.Messages) == 0
}

type ModuleMark struct {
	LastViewed *time.Time `json:"lastViewed,omitempty"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

type Snapshot struct {
	Version   int                   `json:"version"`
	ProjectID string                `json:"projectId"`
	Active    Thread                `json:"active"`
	Saved     map[string]Thread     `json:"saved,omitempty"`
	Modules   map[string]ModuleMark `json:"modules,omitempty"`
	SavedAt   time.Time             `json:"savedAt"`
}

func Encode(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot: nil snapshot")
	}
	out := *snap
	if out.Version == 0 {
		out.Version = CurrentVersion
	}
	return json.Marshal(out)
}

type rawSnapshot struct {
	Version   int                        `json:"version"`
	ProjectID string                     `json:"projectId"`
	Active    json.RawMessage            `json:"active"`
	Saved     map[string]json.RawMessage `json:"saved"`
	Modules   map[string]json.RawMessage `json:"modules"`
	SavedAt   json.RawMessage            `json:"savedAt"`
}

type rawThread struct {
	Messages      []json.RawMessage `json:"messages"`
	SessionID     string            `json:"sessionId"`
	HistoryLoaded bool              `json:"historyLoaded"`
	UpdatedAt     json.RawMessage   `json:"updatedAt"`
}

// Decode parses a stored document. Records that fail validation are
// dropped individually; only a document that cannot be read at all is
// reported as ErrCorrupt.
func Decode(data []byte) (*Snapshot, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if raw.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorrupt, raw.Version)
	}

	snap := &Snapshot{
		Version:   CurrentVersion,
		ProjectID: strings.TrimSpace(raw.ProjectID),
		SavedAt:   decodeTime(raw.SavedAt),
	}

	if active, ok := decodeThread(raw.Active); ok {
		snap.Active = active
	}

	for projectID, payload := range raw.Saved {
		projectID = strings.TrimSpace(projectID)
		if projectID == "" {
			continue
		}
		thread, ok := decodeThread(payload)
		if !ok || thread.IsEmpty() {
			continue
		}
		if snap.Saved == nil {
			snap.Saved = make(map[string]Thread)
		}
		snap.Saved[projectID] = thread
	}

	for module, payload := range raw.Modules {
		module = strings.TrimSpace(module)
		if module == "" {
			continue
		}
		var mark ModuleMark
		if err := json.Unmarshal(payload, &mark); err != nil {
			continue
		}
		if mark.LastViewed == nil && mark.LastUpdate == nil {
			continue
		}
		if snap.Modules == nil {
			snap.Modules = make(map[string]ModuleMark)
		}
		snap.Modules[module] = mark
	}

	return snap, nil
}

func decodeThread(payload json.RawMessage) (Thread, bool) {
	if len(payload) == 0 || string(payload) == "null" {
		return Thread{}, false
	}

	var raw rawThread
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Thread{}, false
	}

	thread := Thread{
		SessionID:     strings.TrimSpace(raw.SessionID),
		HistoryLoaded: raw.HistoryLoaded,
		UpdatedAt:     decodeTime(raw.UpdatedAt),
	}
	for _, item := range raw.Messages {
		var msg models.Message
		if err := json.Unmarshal(item, &msg); err != nil {
			continue
		}
		if !msg.Valid() {
			continue
		}
		thread.Messages = append(thread.Messages, msg)
	}
	return thread, true
}

func decodeTime(payload json.RawMessage) time.Time {
	if len(payload) == 0 {
		return time.Time{}
	}
	var t time.Time
	if err := json.Unmarshal(payload, &t); err != nil {
		return time.Time{}
	}
	return t
}
