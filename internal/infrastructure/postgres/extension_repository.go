package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wrenchhub/wrenchhub/internal/domain/extension"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
)

const extensionColumns = `id, session_id, minutes, idempotency_token, total_minutes, created_at`

// errTokenTaken aborts an append whose token was inserted by a concurrent caller.
var errTokenTaken = errors.New("idempotency token already used")

// ExtensionRepository implements extension.Repository.
type ExtensionRepository struct {
	pool *pgxpool.Pool
}

func NewExtensionRepository(pool *pgxpool.Pool) *ExtensionRepository {
	return &ExtensionRepository{pool: pool}
}

func (r *ExtensionRepository) GetByToken(ctx context.Context, token string) (*extension.Extension, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+extensionColumns+` FROM session_extensions WHERE idempotency_token=$1`, token)
	return scanExtension(row)
}

func (r *ExtensionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*extension.Extension, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+extensionColumns+` FROM session_extensions
		WHERE session_id=$1
		ORDER BY total_minutes ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*extension.Extension{}
	for rows.Next() {
		e, err := scanExtension(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Append bumps the live session's allowance and inserts the entry in one
// transaction. The session row lock orders concurrent appends; a duplicate token
// rolls the bump back and the stored entry is returned instead.
func (r *ExtensionRepository) Append(ctx context.Context, e *extension.Extension) (*extension.Extension, bool, error) {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var total int
		err := tx.QueryRow(ctx, `
			UPDATE sessions SET extension_minutes = extension_minutes + $2, updated_at=$3, version = version + 1
			WHERE id=$1 AND status='live'
			RETURNING extension_minutes
		`, e.SessionID, e.Minutes, e.CreatedAt).Scan(&total)
		if err == pgx.ErrNoRows {
			return sessionNotExtendable(ctx, tx, e)
		}
		if err != nil {
			return err
		}
		res, err := tx.Exec(ctx, `
			INSERT INTO session_extensions (`+extensionColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (idempotency_token) DO NOTHING
		`, e.ID, e.SessionID, e.Minutes, e.IdempotencyToken, total, e.CreatedAt)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return errTokenTaken
		}
		e.TotalMinutes = total
		return nil
	})
	switch {
	case err == nil:
		return e, true, nil
	case errors.Is(err, errTokenTaken):
		existing, err := r.GetByToken(ctx, e.IdempotencyToken)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, err
	}
}

// sessionNotExtendable explains why the allowance update matched no row. A replayed
// token wins over the session state.
func sessionNotExtendable(ctx context.Context, tx pgx.Tx, e *extension.Extension) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM session_extensions WHERE idempotency_token=$1)`,
		e.IdempotencyToken).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return errTokenTaken
	}
	var status session.Status
	err := tx.QueryRow(ctx, `SELECT status FROM sessions WHERE id=$1`, e.SessionID).Scan(&status)
	if err == pgx.ErrNoRows {
		return extension.ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	return extension.ErrSessionNotLive
}

func scanExtension(row pgx.Row) (*extension.Extension, error) {
	var e extension.Extension
	if err := row.Scan(&e.ID, &e.SessionID, &e.Minutes, &e.IdempotencyToken, &e.TotalMinutes, &e.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
