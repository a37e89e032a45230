package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

type fakeCompleter struct {
	reply    string
	err      error
	messages []ChatMessage
	opts     CompletionOptions
}

func (f *fakeCompleter) Complete(_ context.Context, messages []ChatMessage, opts CompletionOptions) (ChatMessage, error) {
	f.messages = messages
	f.opts = opts
	if f.err != nil {
		return ChatMessage{}, f.err
	}
	return ChatMessage{Role: "assistant", Content: f.reply}, nil
}

func draftQuestions() []models.Question {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return []models.Question{
		{ID: "q1", Provider: "ACME Ltd.", Text: "Confirm lead time", Status: models.QuestionApproved, Importance: models.ImportanceMedium, Discipline: models.DisciplineSchedule, CreatedAt: base},
		{ID: "q2", Provider: "acme ltd", Text: "Clarify liability cap", Status: models.QuestionApproved, Importance: models.ImportanceHigh, Discipline: models.DisciplineLegal, CreatedAt: base.Add(time.Hour)},
		{ID: "q3", Provider: "ACME Ltd.", Text: "Still a draft", Status: models.QuestionDraft, Importance: models.ImportanceHigh, Discipline: models.DisciplineGeneral, CreatedAt: base},
		{ID: "q4", Provider: "Globex", Text: "Other provider", Status: models.QuestionApproved, Importance: models.ImportanceHigh, Discipline: models.DisciplineGeneral, CreatedAt: base},
	}
}

func TestDraftServiceBundlesApprovedQuestions(t *testing.T) {
	completer := &fakeCompleter{reply: "Here is the draft:\n```json\n{\"subject\":\"Re: Quote\",\"body\":\"Hello\"}\n```"}
	svc := NewDraftService(completer, nil)

	draft, err := svc.Generate(context.Background(), DraftRequest{
		ProjectID: "p1",
		Provider:  "ACME Ltd.",
		Recipient: "bids@acme.test",
		Questions: draftQuestions(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if draft.Subject != "Re: Quote" || draft.Body != "Hello" || !draft.Structured {
		t.Fatalf("unexpected draft %+v", draft)
	}
	if strings.Join(draft.QuestionIDs, ",") != "q2,q1" {
		t.Fatalf("expected high importance first, got %v", draft.QuestionIDs)
	}
	if !completer.opts.JSONOutput {
		t.Fatalf("expected JSON output to be requested")
	}
	prompt := completer.messages[1].Content
	if !strings.Contains(prompt, "Clarify liability cap") || strings.Contains(prompt, "Still a draft") || strings.Contains(prompt, "Other provider") {
		t.Fatalf("prompt bundled the wrong questions:\n%s", prompt)
	}

	comm := svc.Communication(draft)
	if comm.Type != models.CommunicationEmail || comm.Status != models.CommunicationDraft {
		t.Fatalf("unexpected communication %+v", comm)
	}
	if err := comm.Validate(); err != nil {
		t.Fatalf("draft communication should validate: %v", err)
	}
}

func TestDraftServiceFallsBackToRawText(t *testing.T) {
	svc := NewDraftService(&fakeCompleter{reply: "Sorry, no draft"}, nil)
	draft, err := svc.Generate(context.Background(), DraftRequest{ProjectID: "p1", Provider: "Globex", Questions: draftQuestions()})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if draft.Subject != "Draft Generated" || draft.Body != "Sorry, no draft" || draft.Structured {
		t.Fatalf("unexpected draft %+v", draft)
	}
}

func TestDraftServiceErrors(t *testing.T) {
	svc := NewDraftService(&fakeCompleter{err: errors.New("boom")}, nil)

	if _, err := svc.Generate(context.Background(), DraftRequest{Provider: "Initech", Questions: draftQuestions()}); !errors.Is(err, ErrNoApprovedQuestions) {
		t.Fatalf("expected ErrNoApprovedQuestions, got %v", err)
	}
	if _, err := svc.Generate(context.Background(), DraftRequest{Questions: draftQuestions()}); !errors.Is(err, models.ErrInvalidRecord) {
		t.Fatalf("expected invalid record without provider, got %v", err)
	}
	if _, err := svc.Generate(context.Background(), DraftRequest{Provider: "Globex", Questions: draftQuestions()}); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected completion failure to surface, got %v", err)
	}
}
