// Package realtime delivers change events for one entity kind and project
// and reconciles them into the local stores.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindQuestion      Kind = "question"
	KindNotification  Kind = "notification"
	KindCommunication Kind = "communication"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

var ErrFeedClosed = errors.New("realtime: feed closed")

// Event is one change pushed by the feed. Delivery is at least once and
// may be duplicated or out of order.
type Event struct {
	Kind      Kind            `json:"kind"`
	Op        Op              `json:"op"`
	ProjectID string          `json:"projectId"`
	RecordID  string          `json:"recordId,omitempty"`
	Record    json.RawMessage `json:"record,omitempty"`
	At        time.Time       `json:"at"`
}

// NewEvent builds an event carrying record encoded as JSON.
func NewEvent(kind Kind, op Op, projectID, recordID string, record any) (Event, error) {
	ev := Event{Kind: kind, Op: op, ProjectID: projectID, RecordID: recordID, At: time.Now().UTC()}
	if record != nil {
		raw, err := json.Marshal(record)
		if err != nil {
			return Event{}, fmt.Errorf("realtime: encode record: %w", err)
		}
		ev.Record = raw
	}
	return ev, nil
}

func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	ev.Kind = Kind(strings.ToLower(string(ev.Kind)))
	ev.Op = Op(strings.ToLower(string(ev.Op)))
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("realtime: event without kind")
	}
	return ev, nil
}

// Filter selects events of one kind; an empty ProjectID matches every
// project.
type Filter struct {
	Kind      Kind
	ProjectID string
}

func (f Filter) Matches(ev Event) bool {
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	return f.ProjectID == "" || ev.ProjectID == f.ProjectID
}

// Feed opens filtered channels on a change feed. onEvent runs on the feed's
// delivery goroutine, which for the Hub is the publisher, so it should hand
// slow work off rather than block.
type Feed interface {
	Open(ctx context.Context, filter Filter, onEvent func(Event)) (Channel, error)
}

// Channel is one open subscription. Close is safe to call more than once.
type Channel interface {
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
