package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/store"
	"github.com/wuwenbin0122/evalboard/internal/utils"
)

const (
	defaultSummaryThreshold  = 12
	defaultRecentMessageKeep = 6
	defaultModel             = "deepseek-v3"
	maxSummaryRuneLength     = 160
)

var (
	ErrMissingAPIKey = errors.New("services: llm api key is not configured")
	ErrEmptyMessage  = errors.New("services: message cannot be empty")
	ErrNoChoices     = errors.New("services: chat response contained no choices")
)

// ChatMessage mirrors OpenAI-compatible chat message payloads.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatUsage contains token usage metadata returned by the completion API.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionOptions tunes a single completion call.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	JSONOutput  bool
}

// ChatService talks to an OpenAI-compatible chat completion API. It tries
// the active endpoint first and the backup endpoint when the first fails
// with a transport error or a retryable status.
type ChatService struct {
	endpoints        []string
	apiKey           string
	model            string
	summaryThreshold int
	recentKeep       int
	client           httpDoer
	logger           *zap.SugaredLogger
	now              func() time.Time
}

// NewChatService constructs a ChatService initialised from cfg.
func NewChatService(cfg utils.LLMConfig, logger *zap.SugaredLogger) *ChatService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	endpoints := make([]string, 0, 2)
	for _, candidate := range []string{cfg.BaseURL(), cfg.BackupEndpoint} {
		base := strings.TrimRight(strings.TrimSpace(candidate), "/")
		if base == "" || containsString(endpoints, base) {
			continue
		}
		endpoints = append(endpoints, base)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	threshold := cfg.SummaryThreshold
	if threshold <= 0 {
		threshold = defaultSummaryThreshold
	}
	recentKeep := cfg.RecentKeep
	if recentKeep <= 0 {
		recentKeep = defaultRecentMessageKeep
	}
	if recentKeep > threshold {
		recentKeep = threshold
	}

	return &ChatService{
		endpoints:        endpoints,
		apiKey:           strings.TrimSpace(cfg.APIKey),
		model:            model,
		summaryThreshold: threshold,
		recentKeep:       recentKeep,
		client:           newHTTPClientWithTimeout(cfg.Timeout),
		logger:           logger,
		now:              time.Now,
	}
}

// Reply answers the latest user message of a project conversation. Older
// turns beyond the summary threshold are folded into a short recap so the
// prompt stays bounded.
func (s *ChatService) Reply(ctx context.Context, req store.AssistantRequest) (store.AssistantReply, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return store.AssistantReply{}, ErrEmptyMessage
	}

	history := make([]ChatMessage, 0, len(req.History))
	for _, msg := range req.History {
		history = append(history, ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	summary, preserved := splitHistory(history, s.summaryThreshold, s.recentKeep)

	prompt := make([]ChatMessage, 0, 3+len(preserved))
	prompt = append(prompt, ChatMessage{Role: "system", Content: buildSystemPrompt(req.ProjectID)})
	if summary != "" {
		prompt = append(prompt, ChatMessage{Role: "system", Content: "Earlier in this conversation:\n" + summary})
	}
	prompt = append(prompt, preserved...)
	prompt = append(prompt, ChatMessage{Role: "user", Content: content})

	reply, err := s.Complete(ctx, prompt, CompletionOptions{})
	if err != nil {
		return store.AssistantReply{}, err
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return store.AssistantReply{
		Message: models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleAssistant,
			Content:   strings.TrimSpace(reply.Content),
			Timestamp: s.now().UTC(),
		},
		SessionID: sessionID,
	}, nil
}

// Complete sends messages to the completion endpoint and returns the first
// choice.
func (s *ChatService) Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (ChatMessage, error) {
	if s.apiKey == "" || len(s.endpoints) == 0 {
		return ChatMessage{}, ErrMissingAPIKey
	}

	payload := chatAPIRequest{Model: s.model, Messages: messages}
	if opts.Temperature > 0 {
		payload.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		payload.MaxTokens = opts.MaxTokens
	}
	if opts.JSONOutput {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	var lastErr error
	for i, base := range s.endpoints {
		reply, err := s.complete(ctx, base, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			break
		}
		if i+1 < len(s.endpoints) {
			s.logger.Warnf("chat endpoint %s failed, trying backup: %v", base, err)
		}
	}
	return ChatMessage{}, lastErr
}

func (s *ChatService) complete(ctx context.Context, base string, body []byte) (ChatMessage, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("create chat request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+s.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("call chat api: %w", err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("read chat response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return ChatMessage{}, buildAPIError(response.StatusCode, respBody)
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return ChatMessage{}, fmt.Errorf("decode chat response: %w", err)
	}
	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return ChatMessage{}, &APIError{StatusCode: response.StatusCode, Code: apiResp.Error.Code, Message: apiResp.Error.Message}
	}
	if len(apiResp.Choices) == 0 {
		return ChatMessage{}, ErrNoChoices
	}

	reply := apiResp.Choices[0].Message
	if strings.TrimSpace(reply.Role) == "" {
		reply.Role = "assistant"
	}
	if apiResp.Usage != nil {
		s.logger.Debugw("chat completion", "endpoint", base, "total_tokens", apiResp.Usage.TotalTokens)
	}
	return reply, nil
}

func buildSystemPrompt(projectID string) string {
	var builder strings.Builder
	builder.WriteString("You are a procurement evaluation assistant helping a buyer assess supplier submissions.\n")
	if projectID = strings.TrimSpace(projectID); projectID != "" {
		builder.WriteString(fmt.Sprintf("- Active project: %s\n", projectID))
	}
	builder.WriteString("Rules:\n")
	builder.WriteString("- Answer in the language of the question.\n")
	builder.WriteString("- Use short paragraphs and bullet lists where they help.\n")
	builder.WriteString("- When a fact is uncertain, say so and suggest which clarification question to ask the provider.")
	return builder.String()
}

func splitHistory(history []ChatMessage, threshold, recentKeep int) (string, []ChatMessage) {
	cleaned := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		role := strings.TrimSpace(msg.Role)
		if content == "" {
			continue
		}
		if role == "" {
			role = "user"
		}
		cleaned = append(cleaned, ChatMessage{Role: role, Content: content})
	}

	if threshold <= 0 || len(cleaned) <= threshold {
		return "", cleaned
	}

	if recentKeep <= 0 {
		recentKeep = defaultRecentMessageKeep
	}
	if recentKeep >= len(cleaned) {
		recentKeep = len(cleaned)
	}

	cutoff := len(cleaned) - recentKeep
	summary := summariseMessages(cleaned[:cutoff])
	preserved := append([]ChatMessage(nil), cleaned[cutoff:]...)

	return summary, preserved
}

func summariseMessages(messages []ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	index := 1
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		builder.WriteString(fmt.Sprintf("%d. %s: %s\n", index, labelForRole(msg.Role), truncateRunes(content, maxSummaryRuneLength)))
		index++
	}

	return strings.TrimSpace(builder.String())
}

func labelForRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	default:
		return "User"
	}
}

func truncateRunes(input string, max int) string {
	if max <= 0 || utf8.RuneCountInString(input) <= max {
		return input
	}

	var builder strings.Builder
	count := 0
	for _, r := range input {
		if count >= max {
			builder.WriteRune('…')
			break
		}
		builder.WriteRune(r)
		count++
	}
	return builder.String()
}

func filterNonEmpty(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatAPIRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatAPIChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatAPIResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Choices []chatAPIChoice `json:"choices"`
	Usage   *ChatUsage      `json:"usage"`
	Error   *apiErrorBody   `json:"error,omitempty"`
}
