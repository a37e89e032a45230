package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Records arriving from the change feed use the snake_case column names of
// the current schema (version 2). Version 1 rows used a handful of different
// names; they are translated here and nowhere else.
const (
	RecordSchemaV1 = 1
	RecordSchemaV2 = 2
)

var legacyFieldAliases = map[string]string{
	"provider_name": "provider",
	"question_text": "text",
	"is_read":       "read",
	"thread_id":     "session_id",
	"comm_type":     "type",
}

var camelFieldNames = map[string]string{
	"projectId":       "project_id",
	"responseAt":      "response_at",
	"createdAt":       "created_at",
	"updatedAt":       "updated_at",
	"sentAt":          "sent_at",
	"readAt":          "read_at",
	"recipientEmail":  "recipient_email",
	"durationMinutes": "duration_minutes",
	"sessionId":       "session_id",
}

type record map[string]any

func decodeRecord(raw []byte) (record, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidRecord)
	}

	version := RecordSchemaV2
	if v, ok := fields["schema_version"].(float64); ok {
		version = int(v)
	}

	out := make(record, len(fields))
	for key, value := range fields {
		if canonical, ok := camelFieldNames[key]; ok {
			key = canonical
		}
		if version < RecordSchemaV2 {
			if canonical, ok := legacyFieldAliases[key]; ok {
				key = canonical
			}
		} else if canonical, ok := legacyFieldAliases[key]; ok {
			// canonical name wins over a stray alias
			if _, exists := fields[canonical]; exists {
				continue
			}
			key = canonical
		}
		out[key] = value
	}
	return out, nil
}

func (r record) str(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func (r record) integer(key string) int {
	if v, ok := r[key].(float64); ok {
		return int(v)
	}
	return 0
}

func (r record) boolean(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "t"
	default:
		return false
	}
}

func (r record) timestamp(key string) time.Time {
	v, ok := r[key].(string)
	if !ok || v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (r record) timePtr(key string) *time.Time {
	t := r.timestamp(key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r record) list(key string) []string {
	values, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func DecodeQuestionRecord(raw []byte) (Question, error) {
	r, err := decodeRecord(raw)
	if err != nil {
		return Question{}, err
	}

	q := Question{
		ID:         r.str("id"),
		ProjectID:  r.str("project_id"),
		Provider:   r.str("provider"),
		Discipline: Discipline(r.str("discipline")),
		Text:       r.str("text"),
		Status:     QuestionStatus(r.str("status")),
		Importance: Importance(r.str("importance")),
		Response:   r.str("response"),
		ResponseAt: r.timePtr("response_at"),
		CreatedAt:  r.timestamp("created_at"),
		UpdatedAt:  r.timestamp("updated_at"),
	}
	if q.ID == "" {
		return Question{}, fieldError("question", "id")
	}
	return q, nil
}

func DecodeCommunicationRecord(raw []byte) (Communication, error) {
	r, err := decodeRecord(raw)
	if err != nil {
		return Communication{}, err
	}

	c := Communication{
		ID:              r.str("id"),
		ProjectID:       r.str("project_id"),
		Provider:        r.str("provider"),
		Type:            CommunicationType(r.str("type")),
		Status:          CommunicationStatus(r.str("status")),
		Subject:         r.str("subject"),
		Body:            r.str("body"),
		RecipientEmail:  r.str("recipient_email"),
		DurationMinutes: r.integer("duration_minutes"),
		Participants:    r.list("participants"),
		Location:        r.str("location"),
		SentAt:          r.timePtr("sent_at"),
		CreatedAt:       r.timestamp("created_at"),
	}
	if c.ID == "" {
		return Communication{}, fieldError("communication", "id")
	}
	return c, nil
}

func DecodeNotificationRecord(raw []byte) (Notification, error) {
	r, err := decodeRecord(raw)
	if err != nil {
		return Notification{}, err
	}

	n := Notification{
		ID:        r.str("id"),
		ProjectID: r.str("project_id"),
		Type:      r.str("type"),
		Message:   r.str("message"),
		Read:      r.boolean("read"),
		CreatedAt: r.timestamp("created_at"),
		ReadAt:    r.timePtr("read_at"),
	}
	if n.ID == "" {
		return Notification{}, fieldError("notification", "id")
	}
	return n, nil
}
