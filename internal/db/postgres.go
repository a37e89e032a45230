package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wuwenbin0122/evalboard/internal/utils"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg utils.PostgresConfig) (*Postgres, error) {
	dsn := cfg.BuildDSN()
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close() {
	if p == nil || p.Pool == nil {
		return
	}
	p.Pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.Pool.Ping(ctx)
}

// EnsureSchema creates the entity tables and the row triggers that publish
// every change on notifyChannel for the change feed.
func (p *Postgres) EnsureSchema(ctx context.Context, notifyChannel string) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}
	if strings.TrimSpace(notifyChannel) == "" {
		return fmt.Errorf("postgres: notify channel is required")
	}
	channel := quoteLiteral(notifyChannel)

	statements := []string{
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS questions (",
			"    id TEXT PRIMARY KEY,",
			"    project_id TEXT NOT NULL,",
			"    provider TEXT NOT NULL,",
			"    discipline TEXT NOT NULL DEFAULT 'general',",
			"    text TEXT NOT NULL,",
			"    status TEXT NOT NULL DEFAULT 'draft',",
			"    importance TEXT NOT NULL DEFAULT 'medium',",
			"    response TEXT NOT NULL DEFAULT '',",
			"    response_at TIMESTAMPTZ,",
			"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),",
			"    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			")",
		}, "\n"),
		"CREATE INDEX IF NOT EXISTS questions_project_idx ON questions (project_id, created_at DESC)",
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS communications (",
			"    id TEXT PRIMARY KEY,",
			"    project_id TEXT NOT NULL,",
			"    provider TEXT NOT NULL,",
			"    type TEXT NOT NULL,",
			"    status TEXT NOT NULL DEFAULT 'logged',",
			"    subject TEXT NOT NULL DEFAULT '',",
			"    body TEXT NOT NULL DEFAULT '',",
			"    recipient_email TEXT NOT NULL DEFAULT '',",
			"    duration_minutes INTEGER NOT NULL DEFAULT 0,",
			"    participants TEXT[] NOT NULL DEFAULT '{}',",
			"    location TEXT NOT NULL DEFAULT '',",
			"    sent_at TIMESTAMPTZ,",
			"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			")",
		}, "\n"),
		"CREATE INDEX IF NOT EXISTS communications_project_idx ON communications (project_id, created_at DESC)",
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS notifications (",
			"    id TEXT PRIMARY KEY,",
			"    project_id TEXT NOT NULL,",
			"    type TEXT NOT NULL DEFAULT '',",
			"    message TEXT NOT NULL,",
			"    read BOOLEAN NOT NULL DEFAULT FALSE,",
			"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),",
			"    read_at TIMESTAMPTZ",
			")",
		}, "\n"),
		"CREATE INDEX IF NOT EXISTS notifications_project_idx ON notifications (project_id, created_at DESC)",
		strings.Join([]string{
			"CREATE OR REPLACE FUNCTION evalboard_notify_change() RETURNS trigger AS $$",
			"DECLARE",
			"    rec RECORD;",
			"    payload TEXT;",
			"BEGIN",
			"    IF TG_OP = 'DELETE' THEN rec := OLD; ELSE rec := NEW; END IF;",
			"    payload := json_build_object('kind', TG_ARGV[0], 'op', lower(TG_OP), 'projectId', rec.project_id,",
			"        'recordId', rec.id, 'record', row_to_json(rec), 'at', NOW())::text;",
			"    -- NOTIFY payloads are capped at 8000 bytes; large rows go out without the record",
			"    IF octet_length(payload) > 7900 THEN",
			"        payload := json_build_object('kind', TG_ARGV[0], 'op', lower(TG_OP), 'projectId', rec.project_id,",
			"            'recordId', rec.id, 'at', NOW())::text;",
			"    END IF;",
			"    PERFORM pg_notify(TG_ARGV[1], payload);",
			"    RETURN rec;",
			"END;",
			"$$ LANGUAGE plpgsql",
		}, "\n"),
	}

	for _, trigger := range []struct{ table, kind string }{
		{"questions", "question"},
		{"communications", "communication"},
		{"notifications", "notification"},
	} {
		name := trigger.table + "_notify"
		statements = append(statements,
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", name, trigger.table),
			fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION evalboard_notify_change(%s, %s)",
				name, trigger.table, quoteLiteral(trigger.kind), channel),
		)
	}

	for _, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}

	return nil
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
