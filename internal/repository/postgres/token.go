package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
	"github.com/nkiryanov/graphtoken/internal/models"
)

// Subset of pgx pool/conn/tx the repo needs
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type TokenRepo struct {
	DB DBTX
}

func NewTokenRepo(db DBTX) *TokenRepo {
	return &TokenRepo{DB: db}
}

const loadToken = `-- name: Load token
SELECT payload
FROM graph_token
WHERE id = 1
`

func (r *TokenRepo) Load(ctx context.Context) (models.TokenRecord, error) {
	rows, _ := r.DB.Query(ctx, loadToken)
	payload, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return models.TokenRecord{}, apperrors.ErrTokenNotFound
	default:
		return models.TokenRecord{}, dbError(err)
	}

	token, err := models.ParseTokenRecord([]byte(payload))
	if err != nil {
		return token, fmt.Errorf("%w: decode payload. Err: %v", apperrors.ErrPersistenceFailed, err)
	}

	return token, nil
}

const saveToken = `-- name: Save token replacing previous one
INSERT INTO graph_token (id, payload, saved_at)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE
SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at
`

func (r *TokenRepo) Save(ctx context.Context, token models.TokenRecord) error {
	if token.IsZero() {
		return fmt.Errorf("%w: empty token", apperrors.ErrPersistenceFailed)
	}

	_, err := r.DB.Exec(ctx, saveToken, string(token.Raw), time.Now())
	if err != nil {
		return dbError(err)
	}
	return nil
}

func dbError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("%w: token table is missing, were migrations applied? Err: %v", apperrors.ErrPersistenceFailed, err)
	}
	return fmt.Errorf("%w: db error. Err: %v", apperrors.ErrPersistenceFailed, err)
}
