package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/realtime"
	"github.com/wuwenbin0122/evalboard/internal/store"
)

const communicationColumns = `id, project_id, provider, type, status, subject, body, recipient_email, duration_minutes, participants, location, sent_at, created_at`

type CommunicationRepository struct {
	pool    *pgxpool.Pool
	changes changePublisher
}

var _ store.CommunicationRemote = (*CommunicationRepository)(nil)

func NewCommunicationRepository(pool *pgxpool.Pool, publisher realtime.Publisher, logger *zap.SugaredLogger) *CommunicationRepository {
	return &CommunicationRepository{pool: pool, changes: newChangePublisher(publisher, logger)}
}

func scanCommunication(row pgx.Row) (models.Communication, error) {
	var c models.Communication
	var kind, status string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Provider, &kind, &status, &c.Subject, &c.Body, &c.RecipientEmail,
		&c.DurationMinutes, &c.Participants, &c.Location, &c.SentAt, &c.CreatedAt); err != nil {
		return models.Communication{}, err
	}
	c.Type = models.CommunicationType(kind)
	c.Status = models.CommunicationStatus(status)
	if len(c.Participants) == 0 {
		c.Participants = nil
	}
	return c, nil
}

func participantsParam(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func (r *CommunicationRepository) ListCommunications(ctx context.Context, projectID string) ([]models.Communication, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+communicationColumns+` FROM communications WHERE project_id = $1 ORDER BY COALESCE(sent_at, created_at) DESC, id`, projectID)
	if err != nil {
		return nil, translate("list communications", err)
	}
	defer rows.Close()

	comms := make([]models.Communication, 0)
	for rows.Next() {
		c, err := scanCommunication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan communication: %w", err)
		}
		comms = append(comms, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list communications", err)
	}
	return comms, nil
}

func (r *CommunicationRepository) CreateCommunication(ctx context.Context, c models.Communication) (models.Communication, error) {
	const stmt = `INSERT INTO communications (` + communicationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + communicationColumns

	created, err := scanCommunication(r.pool.QueryRow(ctx, stmt,
		c.ID, c.ProjectID, c.Provider, string(c.Type), string(c.Status), c.Subject, c.Body, c.RecipientEmail,
		c.DurationMinutes, participantsParam(c.Participants), c.Location, c.SentAt, c.CreatedAt))
	if err != nil {
		return models.Communication{}, translate("create communication", err)
	}

	r.changes.publish(ctx, realtime.KindCommunication, realtime.OpInsert, created.ProjectID, created.ID, created)
	return created, nil
}

func (r *CommunicationRepository) UpdateCommunication(ctx context.Context, c models.Communication) (models.Communication, error) {
	const stmt = `UPDATE communications
SET provider = $2, type = $3, status = $4, subject = $5, body = $6, recipient_email = $7,
    duration_minutes = $8, participants = $9, location = $10, sent_at = $11
WHERE id = $1
RETURNING ` + communicationColumns

	updated, err := scanCommunication(r.pool.QueryRow(ctx, stmt,
		c.ID, c.Provider, string(c.Type), string(c.Status), c.Subject, c.Body, c.RecipientEmail,
		c.DurationMinutes, participantsParam(c.Participants), c.Location, c.SentAt))
	if err != nil {
		return models.Communication{}, translate("update communication", err)
	}

	r.changes.publish(ctx, realtime.KindCommunication, realtime.OpUpdate, updated.ProjectID, updated.ID, updated)
	return updated, nil
}

func (r *CommunicationRepository) DeleteCommunication(ctx context.Context, id string) error {
	var projectID string
	if err := r.pool.QueryRow(ctx, `DELETE FROM communications WHERE id = $1 RETURNING project_id`, id).Scan(&projectID); err != nil {
		return translate("delete communication", err)
	}

	r.changes.publish(ctx, realtime.KindCommunication, realtime.OpDelete, projectID, id, nil)
	return nil
}
