package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/store"
	"github.com/wuwenbin0122/evalboard/internal/utils"
)

func completionServer(t *testing.T, reply string, seen *chatAPIRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatAPIResponse{
			Choices: []chatAPIChoice{{Message: ChatMessage{Role: "assistant", Content: reply}}},
			Usage:   &ChatUsage{TotalTokens: 42},
		})
	}))
}

func TestChatServiceReply(t *testing.T) {
	var seen chatAPIRequest
	server := completionServer(t, "  The bid bond is 5%.  ", &seen)
	defer server.Close()

	svc := NewChatService(utils.LLMConfig{ActiveEndpoint: server.URL, APIKey: "test-key", Model: "m", SummaryThreshold: 2, RecentKeep: 1}, nil)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	history := []models.Message{
		{ID: "1", Role: models.RoleUser, Content: "first question"},
		{ID: "2", Role: models.RoleAssistant, Content: "first answer"},
		{ID: "3", Role: models.RoleUser, Content: "second question"},
	}
	reply, err := svc.Reply(context.Background(), store.AssistantRequest{ProjectID: "p1", History: history, Content: "What is the bid bond?"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}

	if reply.Message.Content != "The bid bond is 5%." || reply.Message.Role != models.RoleAssistant {
		t.Fatalf("unexpected reply %+v", reply.Message)
	}
	if !reply.Message.Timestamp.Equal(fixed) || reply.Message.ID == "" {
		t.Fatalf("reply missing id or timestamp: %+v", reply.Message)
	}
	if reply.SessionID == "" {
		t.Fatalf("expected a session id to be assigned")
	}

	// system prompt, summary, one preserved turn, new user message
	if len(seen.Messages) != 4 {
		t.Fatalf("expected 4 prompt messages, got %d: %+v", len(seen.Messages), seen.Messages)
	}
	if !strings.Contains(seen.Messages[0].Content, "p1") {
		t.Fatalf("system prompt should name the project: %q", seen.Messages[0].Content)
	}
	if !strings.Contains(seen.Messages[1].Content, "first question") {
		t.Fatalf("summary should recap older turns: %q", seen.Messages[1].Content)
	}
	if seen.Messages[3].Content != "What is the bid bond?" {
		t.Fatalf("unexpected final message %+v", seen.Messages[3])
	}
}

func TestChatServiceFallsBackToBackup(t *testing.T) {
	var primaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"overloaded","message":"try later"}}`))
	}))
	defer primary.Close()
	backup := completionServer(t, "from backup", nil)
	defer backup.Close()

	svc := NewChatService(utils.LLMConfig{ActiveEndpoint: primary.URL, BackupEndpoint: backup.URL, APIKey: "test-key"}, nil)
	reply, err := svc.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, CompletionOptions{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply.Content != "from backup" || primaryCalls.Load() != 1 {
		t.Fatalf("unexpected reply %+v after %d primary calls", reply, primaryCalls.Load())
	}
}

func TestChatServiceDoesNotRetryClientErrors(t *testing.T) {
	var backupCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_request","message":"bad model"}}`))
	}))
	defer primary.Close()
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupCalls.Add(1)
	}))
	defer backup.Close()

	svc := NewChatService(utils.LLMConfig{ActiveEndpoint: primary.URL, BackupEndpoint: backup.URL, APIKey: "test-key"}, nil)
	_, err := svc.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, CompletionOptions{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "invalid_request" || apiErr.Message != "bad model" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if backupCalls.Load() != 0 {
		t.Fatalf("client errors must not hit the backup endpoint")
	}
}

func TestChatServiceRequiresKeyAndContent(t *testing.T) {
	svc := NewChatService(utils.LLMConfig{ActiveEndpoint: "http://127.0.0.1:1"}, nil)
	if _, err := svc.Complete(context.Background(), nil, CompletionOptions{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := svc.Reply(context.Background(), store.AssistantRequest{Content: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSplitHistoryKeepsShortHistories(t *testing.T) {
	history := []ChatMessage{{Role: "user", Content: "a"}, {Role: "", Content: "b"}, {Role: "assistant", Content: "  "}}
	summary, kept := splitHistory(history, 5, 2)
	if summary != "" || len(kept) != 2 || kept[1].Role != "user" {
		t.Fatalf("unexpected split %q %+v", summary, kept)
	}
}

func TestBuildAPIErrorFallsBackToBody(t *testing.T) {
	err := buildAPIError(http.StatusBadGateway, []byte("upstream exploded"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "upstream exploded" || !apiErr.Retryable() {
		t.Fatalf("unexpected error %#v", err)
	}
	if got := buildAPIError(http.StatusNotFound, nil).Error(); !strings.Contains(got, "Not Found") {
		t.Fatalf("expected status text in %q", got)
	}
}
