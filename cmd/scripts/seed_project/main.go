package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/wuwenbin0122/evalboard/internal/db"
	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/utils"
)

type seedQuestion struct {
	provider   string
	discipline models.Discipline
	importance models.Importance
	status     models.QuestionStatus
	text       string
	response   string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	projectID := strings.TrimSpace(os.Getenv("SEED_PROJECT_ID"))
	if projectID == "" {
		projectID = "demo-tender"
	}

	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.EnsureSchema(ctx, cfg.Realtime.PostgresChannel); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	tx, err := postgres.Pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"questions", "communications", "notifications"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE project_id = $1", projectID); err != nil {
			log.Fatalf("clear %s: %v", table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit tx: %v", err)
	}

	questionRepo := db.NewQuestionRepository(postgres.Pool, nil, nil)
	commRepo := db.NewCommunicationRepository(postgres.Pool, nil, nil)
	notificationRepo := db.NewNotificationRepository(postgres.Pool, nil, nil)

	now := time.Now().UTC()

	questions := []seedQuestion{
		{"ACME Engineering Ltd", models.DisciplineTechnical, models.ImportanceHigh, models.QuestionApproved,
			"Confirm the pump efficiency figures in section 4.2 were measured at the duty point.", ""},
		{"ACME Engineering Ltd", models.DisciplineCommercial, models.ImportanceMedium, models.QuestionDraft,
			"Clarify whether spare parts for the first two years are included in the lump sum.", ""},
		{"Northwind Construction", models.DisciplineSchedule, models.ImportanceHigh, models.QuestionSent,
			"Provide the critical path for the civil works programme.", ""},
		{"Northwind Construction", models.DisciplineSafety, models.ImportanceLow, models.QuestionAnswered,
			"Share your lost time injury rate for the last three years.",
			"LTIR was 0.21, 0.18 and 0.15 for the last three years."},
		{"Globex Utilities", models.DisciplineLegal, models.ImportanceMedium, models.QuestionPending,
			"List any deviations from the liability cap in the conditions of contract.", ""},
	}

	for i, q := range questions {
		record := models.Question{
			ID:         uuid.NewString(),
			ProjectID:  projectID,
			Provider:   q.provider,
			Discipline: q.discipline,
			Text:       q.text,
			Status:     q.status,
			Importance: q.importance,
			Response:   q.response,
			CreatedAt:  now.Add(-time.Duration(len(questions)-i) * time.Hour),
		}
		record.UpdatedAt = record.CreatedAt
		if q.response != "" {
			answered := record.CreatedAt.Add(30 * time.Minute)
			record.ResponseAt = &answered
		}
		if _, err := questionRepo.CreateQuestion(ctx, record); err != nil {
			log.Fatalf("insert question for %s: %v", q.provider, err)
		}
	}

	sent := now.Add(-26 * time.Hour)
	communications := []models.Communication{
		{
			Provider:       "ACME Engineering Ltd",
			Type:           models.CommunicationEmail,
			Status:         models.CommunicationSent,
			Subject:        "Tender clarifications round 1",
			Body:           "Please find attached our first round of clarification questions.",
			RecipientEmail: "tenders@acme.example",
			SentAt:         &sent,
		},
		{
			Provider:        "Northwind Construction",
			Type:            models.CommunicationCall,
			Status:          models.CommunicationLogged,
			Body:            "Discussed the programme float and weather allowances.",
			DurationMinutes: 25,
		},
		{
			Provider:     "Globex Utilities",
			Type:         models.CommunicationMeeting,
			Status:       models.CommunicationScheduled,
			Subject:      "Bid clarification meeting",
			Participants: []string{"Evaluation lead", "Globex bid manager", "Legal counsel"},
			Location:     "Meeting room 3",
		},
	}

	for i, c := range communications {
		c.ID = uuid.NewString()
		c.ProjectID = projectID
		c.CreatedAt = now.Add(-time.Duration(len(communications)-i) * 2 * time.Hour)
		if err := c.Validate(); err != nil {
			log.Fatalf("invalid communication for %s: %v", c.Provider, err)
		}
		if _, err := commRepo.CreateCommunication(ctx, c); err != nil {
			log.Fatalf("insert communication for %s: %v", c.Provider, err)
		}
	}

	notices := []struct{ kind, message string }{
		{"answer", "Northwind Construction answered a safety question"},
		{"reminder", "Clarification deadline for ACME Engineering Ltd is tomorrow"},
	}
	for _, n := range notices {
		if _, err := notificationRepo.CreateNotification(ctx, projectID, n.kind, n.message); err != nil {
			log.Fatalf("insert notification: %v", err)
		}
	}

	log.Printf("seeded project %s: %d questions, %d communications, %d notifications",
		projectID, len(questions), len(communications), len(notices))
}
