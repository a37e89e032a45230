package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRecord marks a record rejected by model validation.
var ErrInvalidRecord = errors.New("models: invalid record")

func fieldError(kind, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrInvalidRecord, kind, field)
}

type CommunicationType string

const (
	CommunicationEmail   CommunicationType = "email"
	CommunicationCall    CommunicationType = "call"
	CommunicationMeeting CommunicationType = "meeting"
	CommunicationNote    CommunicationType = "note"
)

func (t CommunicationType) Valid() bool {
	switch t {
	case CommunicationEmail, CommunicationCall, CommunicationMeeting, CommunicationNote:
		return true
	default:
		return false
	}
}

type CommunicationStatus string

const (
	CommunicationDraft     CommunicationStatus = "draft"
	CommunicationSent      CommunicationStatus = "sent"
	CommunicationFailed    CommunicationStatus = "failed"
	CommunicationLogged    CommunicationStatus = "logged"
	CommunicationScheduled CommunicationStatus = "scheduled"
	CommunicationRead      CommunicationStatus = "read"
)

func (s CommunicationStatus) Valid() bool {
	switch s {
	case CommunicationDraft, CommunicationSent, CommunicationFailed,
		CommunicationLogged, CommunicationScheduled, CommunicationRead:
		return true
	default:
		return false
	}
}

type Communication struct {
	ID              string              `json:"id"`
	ProjectID       string              `json:"projectId"`
	Provider        string              `json:"provider"`
	Type            CommunicationType   `json:"type"`
	Status          CommunicationStatus `json:"status"`
	Subject         string              `json:"subject,omitempty"`
	Body            string              `json:"body,omitempty"`
	RecipientEmail  string              `json:"recipientEmail,omitempty"`
	DurationMinutes int                 `json:"durationMinutes,omitempty"`
	Participants    []string            `json:"participants,omitempty"`
	Location        string              `json:"location,omitempty"`
	SentAt          *time.Time          `json:"sentAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// SortDate is the instant used to order the communication on a timeline.
func (c Communication) SortDate() time.Time {
	if c.SentAt != nil && !c.SentAt.IsZero() {
		return *c.SentAt
	}
	return c.CreatedAt
}

// Validate enforces the fields each communication type requires: emails
// need a recipient and subject, calls a duration, meetings participants.
func (c Communication) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return fieldError("communication", "projectId")
	}
	if strings.TrimSpace(c.Provider) == "" {
		return fieldError("communication", "provider")
	}
	if !c.Type.Valid() {
		return fieldError("communication", "type")
	}
	if !c.Status.Valid() {
		return fieldError("communication", "status")
	}

	switch c.Type {
	case CommunicationEmail:
		if strings.TrimSpace(c.RecipientEmail) == "" {
			return fieldError("email", "recipientEmail")
		}
		if strings.TrimSpace(c.Subject) == "" {
			return fieldError("email", "subject")
		}
	case CommunicationCall:
		if c.DurationMinutes <= 0 {
			return fieldError("call", "durationMinutes")
		}
	case CommunicationMeeting:
		if len(c.Participants) == 0 {
			return fieldError("meeting", "participants")
		}
	case CommunicationNote:
		if strings.TrimSpace(c.Body) == "" {
			return fieldError("note", "body")
		}
	}

	return nil
}
