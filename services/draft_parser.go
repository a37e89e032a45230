package services

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// FallbackDraftSubject labels drafts whose response carried no structure.
const FallbackDraftSubject = "Draft Generated"

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// ParsedDraft is the subject and body extracted from a completion.
type ParsedDraft struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Structured bool   `json:"structured"`
}

// ParseDraft extracts {subject, body} from a model response. It accepts a
// bare JSON object, a JSON object inside a markdown fence or surrounding
// prose, and otherwise keeps the whole trimmed text as the body.
func ParseDraft(raw string) ParsedDraft {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParsedDraft{Subject: FallbackDraftSubject}
	}

	if draft, ok := decodeDraftObject([]byte(trimmed)); ok {
		return draft
	}

	for _, match := range fencedBlock.FindAllStringSubmatch(trimmed, -1) {
		if draft, ok := decodeDraftObject([]byte(strings.TrimSpace(match[1]))); ok {
			return draft
		}
	}

	if draft, ok := scanEmbeddedObject(trimmed); ok {
		return draft
	}

	return ParsedDraft{Subject: FallbackDraftSubject, Body: trimmed}
}

// scanEmbeddedObject tries every opening brace in order and decodes the
// first complete object that looks like a draft.
func scanEmbeddedObject(text string) (ParsedDraft, bool) {
	data := []byte(text)
	for offset := 0; offset < len(data); {
		idx := bytes.IndexByte(data[offset:], '{')
		if idx < 0 {
			break
		}
		start := offset + idx

		var payload map[string]any
		decoder := json.NewDecoder(bytes.NewReader(data[start:]))
		if err := decoder.Decode(&payload); err == nil {
			if draft, ok := draftFromPayload(payload); ok {
				return draft, true
			}
		}
		offset = start + 1
	}
	return ParsedDraft{}, false
}

func decodeDraftObject(data []byte) (ParsedDraft, bool) {
	if len(data) == 0 || data[0] != '{' {
		return ParsedDraft{}, false
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return ParsedDraft{}, false
	}
	return draftFromPayload(payload)
}

func draftFromPayload(payload map[string]any) (ParsedDraft, bool) {
	subject := firstString(payload, "subject", "title")
	body := firstString(payload, "body", "content", "message")
	if subject == "" && body == "" {
		return ParsedDraft{}, false
	}
	if subject == "" {
		subject = FallbackDraftSubject
	}
	return ParsedDraft{Subject: subject, Body: body, Structured: true}, true
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
