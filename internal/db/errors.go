package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/store"
)

var ErrConflict = errors.New("db: record already exists")

// translate maps driver errors onto the errors the stores understand.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		case pgerrcode.NotNullViolation, pgerrcode.CheckViolation:
			return fmt.Errorf("%s: %w: %s", op, models.ErrInvalidRecord, pgErr.ColumnName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
