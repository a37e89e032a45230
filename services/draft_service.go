package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/timeline"
)

var ErrNoApprovedQuestions = errors.New("services: no approved questions for provider")

// Completer is the part of ChatService the draft service needs.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (ChatMessage, error)
}

// DraftRequest asks for an outbound email bundling the approved questions
// for one provider.
type DraftRequest struct {
	ProjectID    string
	Provider     string
	Recipient    string
	Sender       string
	Instructions string
	Questions    []models.Question
}

// Draft is the generated email plus the questions it covers.
type Draft struct {
	ProjectID   string   `json:"projectId"`
	Provider    string   `json:"provider"`
	Recipient   string   `json:"recipient,omitempty"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Structured  bool     `json:"structured"`
	QuestionIDs []string `json:"questionIds"`
}

// DraftService turns approved clarification questions into an email draft.
type DraftService struct {
	completer Completer
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewDraftService(completer Completer, logger *zap.SugaredLogger) *DraftService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DraftService{completer: completer, logger: logger, now: time.Now}
}

// Generate bundles the approved questions addressed to req.Provider and
// asks the model for a {subject, body} draft. Responses that cannot be
// parsed still yield a draft with the raw text as body.
func (s *DraftService) Generate(ctx context.Context, req DraftRequest) (Draft, error) {
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		return Draft{}, fmt.Errorf("%w: provider is required", models.ErrInvalidRecord)
	}

	bundle := bundleQuestions(req.Questions, provider)
	if len(bundle) == 0 {
		return Draft{}, ErrNoApprovedQuestions
	}

	prompt := []ChatMessage{
		{Role: "system", Content: draftSystemPrompt},
		{Role: "user", Content: buildDraftPrompt(req, provider, bundle)},
	}

	reply, err := s.completer.Complete(ctx, prompt, CompletionOptions{Temperature: 0.3, JSONOutput: true})
	if err != nil {
		return Draft{}, fmt.Errorf("generate draft: %w", err)
	}

	parsed := ParseDraft(reply.Content)
	if !parsed.Structured {
		s.logger.Warnw("draft response was not structured, using raw text", "provider", provider)
	}

	ids := make([]string, 0, len(bundle))
	for _, q := range bundle {
		ids = append(ids, q.ID)
	}

	return Draft{
		ProjectID:   req.ProjectID,
		Provider:    provider,
		Recipient:   strings.TrimSpace(req.Recipient),
		Subject:     parsed.Subject,
		Body:        parsed.Body,
		Structured:  parsed.Structured,
		QuestionIDs: ids,
	}, nil
}

// Communication converts the draft into an email record ready to be logged.
func (s *DraftService) Communication(d Draft) models.Communication {
	return models.Communication{
		ID:             uuid.NewString(),
		ProjectID:      d.ProjectID,
		Provider:       d.Provider,
		Type:           models.CommunicationEmail,
		Status:         models.CommunicationDraft,
		Subject:        d.Subject,
		Body:           d.Body,
		RecipientEmail: d.Recipient,
		CreatedAt:      s.now().UTC(),
	}
}

// bundleQuestions keeps approved questions for provider, high importance
// first and then by creation time.
func bundleQuestions(questions []models.Question, provider string) []models.Question {
	key := timeline.NormalizeProvider(provider)
	bundle := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		if q.EligibleForBundling() && timeline.NormalizeProvider(q.Provider) == key {
			bundle = append(bundle, q)
		}
	}
	sort.SliceStable(bundle, func(i, j int) bool {
		ri, rj := importanceRank(bundle[i].Importance), importanceRank(bundle[j].Importance)
		if ri != rj {
			return ri < rj
		}
		return bundle[i].CreatedAt.Before(bundle[j].CreatedAt)
	})
	return bundle
}

func importanceRank(i models.Importance) int {
	switch i {
	case models.ImportanceHigh:
		return 0
	case models.ImportanceMedium:
		return 1
	default:
		return 2
	}
}

const draftSystemPrompt = "You write concise, professional procurement clarification emails. " +
	"Reply with a JSON object of the form {\"subject\": string, \"body\": string} and nothing else."

func buildDraftPrompt(req DraftRequest, provider string, bundle []models.Question) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Write an email to %s asking the following clarification questions.\n", provider))
	if recipient := strings.TrimSpace(req.Recipient); recipient != "" {
		builder.WriteString(fmt.Sprintf("Recipient: %s\n", recipient))
	}
	if sender := strings.TrimSpace(req.Sender); sender != "" {
		builder.WriteString(fmt.Sprintf("Sign the email as: %s\n", sender))
	}
	builder.WriteString("Questions:\n")
	for i, q := range bundle {
		builder.WriteString(fmt.Sprintf("%d. [%s, %s] %s\n", i+1, q.Discipline, q.Importance, strings.TrimSpace(q.Text)))
	}
	if extra := filterNonEmpty([]string{req.Instructions}); len(extra) > 0 {
		builder.WriteString("Additional instructions: ")
		builder.WriteString(extra[0])
	}
	return strings.TrimSpace(builder.String())
}
