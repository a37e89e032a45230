package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/realtime"
	"github.com/wuwenbin0122/evalboard/internal/store"
)

const questionColumns = `id, project_id, provider, discipline, text, status, importance, response, response_at, created_at, updated_at`

// QuestionRepository persists questions in Postgres.
type QuestionRepository struct {
	pool    *pgxpool.Pool
	changes changePublisher
}

var _ store.QuestionRemote = (*QuestionRepository)(nil)

func NewQuestionRepository(pool *pgxpool.Pool, publisher realtime.Publisher, logger *zap.SugaredLogger) *QuestionRepository {
	return &QuestionRepository{pool: pool, changes: newChangePublisher(publisher, logger)}
}

func scanQuestion(row pgx.Row) (models.Question, error) {
	var q models.Question
	var discipline, status, importance string
	if err := row.Scan(&q.ID, &q.ProjectID, &q.Provider, &discipline, &q.Text, &status, &importance,
		&q.Response, &q.ResponseAt, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return models.Question{}, err
	}
	q.Discipline = models.Discipline(discipline)
	q.Status = models.QuestionStatus(status)
	q.Importance = models.Importance(importance)
	return q, nil
}

func (r *QuestionRepository) ListQuestions(ctx context.Context, projectID string) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE project_id = $1 ORDER BY created_at DESC, id`, projectID)
	if err != nil {
		return nil, translate("list questions", err)
	}
	defer rows.Close()

	questions := make([]models.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list questions", err)
	}
	return questions, nil
}

func (r *QuestionRepository) CreateQuestion(ctx context.Context, q models.Question) (models.Question, error) {
	const stmt = `INSERT INTO questions (` + questionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + questionColumns

	created, err := scanQuestion(r.pool.QueryRow(ctx, stmt,
		q.ID, q.ProjectID, q.Provider, string(q.Discipline), q.Text, string(q.Status), string(q.Importance),
		q.Response, q.ResponseAt, q.CreatedAt, q.UpdatedAt))
	if err != nil {
		return models.Question{}, translate("create question", err)
	}

	r.changes.publish(ctx, realtime.KindQuestion, realtime.OpInsert, created.ProjectID, created.ID, created)
	return created, nil
}

func (r *QuestionRepository) UpdateQuestion(ctx context.Context, q models.Question) (models.Question, error) {
	const stmt = `UPDATE questions
SET provider = $2, discipline = $3, text = $4, status = $5, importance = $6, response = $7, response_at = $8, updated_at = $9
WHERE id = $1
RETURNING ` + questionColumns

	updatedAt := q.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	updated, err := scanQuestion(r.pool.QueryRow(ctx, stmt,
		q.ID, q.Provider, string(q.Discipline), q.Text, string(q.Status), string(q.Importance),
		q.Response, q.ResponseAt, updatedAt))
	if err != nil {
		return models.Question{}, translate("update question", err)
	}

	r.changes.publish(ctx, realtime.KindQuestion, realtime.OpUpdate, updated.ProjectID, updated.ID, updated)
	return updated, nil
}

func (r *QuestionRepository) DeleteQuestion(ctx context.Context, id string) error {
	var projectID string
	if err := r.pool.QueryRow(ctx, `DELETE FROM questions WHERE id = $1 RETURNING project_id`, id).Scan(&projectID); err != nil {
		return translate("delete question", err)
	}

	r.changes.publish(ctx, realtime.KindQuestion, realtime.OpDelete, projectID, id, nil)
	return nil
}
