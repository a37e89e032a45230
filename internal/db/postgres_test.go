package db_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wuwenbin0122/evalboard/internal/db"
	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/realtime"
	"github.com/wuwenbin0122/evalboard/internal/store"
	"github.com/wuwenbin0122/evalboard/internal/utils"
)

func openPostgres(t *testing.T) *db.Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	pg, err := db.NewPostgres(context.Background(), utils.PostgresConfig{DSN: dsn, ConnectTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pg.Close)

	if err := pg.EnsureSchema(context.Background(), "evalboard_test_changes"); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
	return pg
}

func TestPostgresQuestionLifecycle(t *testing.T) {
	pg := openPostgres(t)
	ctx := context.Background()

	hub := realtime.NewHub()
	var events []realtime.Event
	if _, err := hub.Open(ctx, realtime.Filter{Kind: realtime.KindQuestion}, func(ev realtime.Event) { events = append(events, ev) }); err != nil {
		t.Fatalf("open hub: %v", err)
	}

	repo := db.NewQuestionRepository(pg.Pool, hub, nil)
	projectID := "project-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	created, err := repo.CreateQuestion(ctx, models.Question{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Provider:   "ACME",
		Discipline: models.DisciplineTechnical,
		Text:       "Confirm the pump rating",
		Status:     models.QuestionDraft,
		Importance: models.ImportanceHigh,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	defer repo.DeleteQuestion(ctx, created.ID)

	created.Status = models.QuestionPending
	if _, err := repo.UpdateQuestion(ctx, created); err != nil {
		t.Fatalf("update question: %v", err)
	}

	listed, err := repo.ListQuestions(ctx, projectID)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(listed) != 1 || listed[0].Status != models.QuestionPending {
		t.Fatalf("unexpected questions %+v", listed)
	}

	if len(events) != 2 || events[0].Op != realtime.OpInsert || events[1].Op != realtime.OpUpdate {
		t.Fatalf("expected insert and update events, got %+v", events)
	}

	if _, err := repo.UpdateQuestion(ctx, models.Question{ID: uuid.NewString()}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing question, got %v", err)
	}
	if _, err := repo.CreateQuestion(ctx, created); !errors.Is(err, db.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}
}

func TestPostgresNotificationsAndTriggers(t *testing.T) {
	pg := openPostgres(t)
	ctx := context.Background()

	feed := realtime.NewPostgresFeed(pg.Pool, "evalboard_test_changes", nil)
	defer feed.Close()

	projectID := "project-" + uuid.NewString()
	received := make(chan realtime.Event, 4)
	ch, err := feed.Open(ctx, realtime.Filter{Kind: realtime.KindNotification, ProjectID: projectID}, func(ev realtime.Event) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	defer ch.Close()

	repo := db.NewNotificationRepository(pg.Pool, nil, nil)
	created, err := repo.CreateNotification(ctx, projectID, "question_answered", "ACME answered 2 questions")
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}

	select {
	case ev := <-received:
		if ev.Op != realtime.OpInsert || ev.RecordID != created.ID {
			t.Fatalf("unexpected trigger event %+v", ev)
		}
		decoded, err := models.DecodeNotificationRecord(ev.Record)
		if err != nil {
			t.Fatalf("decode trigger record: %v", err)
		}
		if decoded.Message != created.Message || decoded.Read {
			t.Fatalf("unexpected decoded notification %+v", decoded)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for trigger notification")
	}

	if err := repo.MarkAllNotificationsRead(ctx, projectID); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	listed, err := repo.ListNotifications(ctx, projectID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(listed) != 1 || !listed[0].Read || listed[0].ReadAt == nil {
		t.Fatalf("expected notification marked read, got %+v", listed)
	}

	if _, err := pg.Pool.Exec(ctx, "DELETE FROM notifications WHERE project_id = $1", projectID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestPostgresCommunicationRoundTrip(t *testing.T) {
	pg := openPostgres(t)
	ctx := context.Background()

	repo := db.NewCommunicationRepository(pg.Pool, nil, nil)
	projectID := "project-" + uuid.NewString()
	sent := time.Now().UTC().Truncate(time.Millisecond)

	created, err := repo.CreateCommunication(ctx, models.Communication{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		Provider:     "ACME",
		Type:         models.CommunicationMeeting,
		Status:       models.CommunicationScheduled,
		Participants: []string{"buyer", "acme sales"},
		Location:     "Room 4",
		SentAt:       &sent,
		CreatedAt:    sent,
	})
	if err != nil {
		t.Fatalf("create communication: %v", err)
	}
	defer repo.DeleteCommunication(ctx, created.ID)

	listed, err := repo.ListCommunications(ctx, projectID)
	if err != nil {
		t.Fatalf("list communications: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Participants) != 2 || listed[0].Location != "Room 4" {
		t.Fatalf("unexpected communications %+v", listed)
	}
}
