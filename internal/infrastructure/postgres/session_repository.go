package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wrenchhub/wrenchhub/internal/domain/session"
)

const sessionColumns = `id, request_id, customer_id, mechanic_id, status, plan,
	scheduled_start, scheduled_end, started_at, ended_at, duration_seconds, extension_minutes,
	waiver_signed_at, customer_joined_at, mechanic_joined_at, last_activity_at, end_reason,
	status_changed_at, created_at, updated_at, version`

// SessionRepository implements session.Repository.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	return insertSession(ctx, r.pool, s)
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSession(ctx context.Context, db execer, s *session.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, s.ID, s.RequestID, s.CustomerID, s.MechanicID, s.Status, s.Plan,
		s.ScheduledStart, s.ScheduledEnd, s.StartedAt, s.EndedAt, s.DurationSeconds, s.ExtensionMinutes,
		s.WaiverSignedAt, s.CustomerJoinedAt, s.MechanicJoinedAt, s.LastActivityAt, s.EndReason,
		s.StatusChangedAt, s.CreatedAt, s.UpdatedAt, s.Version)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, sessionID)
	return scanSession(row)
}

// UpdateIfStatus never writes extension_minutes: the allowance belongs to the ledger.
// last_activity_at only moves forward so a heartbeat landing mid-write survives.
func (r *SessionRepository) UpdateIfStatus(ctx context.Context, s *session.Session, expected session.Status) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE sessions SET
			mechanic_id=$2, status=$3, scheduled_start=$4, scheduled_end=$5, started_at=$6, ended_at=$7,
			duration_seconds=$8, waiver_signed_at=$9, customer_joined_at=$10, mechanic_joined_at=$11,
			last_activity_at=GREATEST(last_activity_at, $12), end_reason=$13, status_changed_at=$14,
			updated_at=$15, version=version+1
		WHERE id=$1 AND status=$16 AND version=$17
	`, s.ID, s.MechanicID, s.Status, s.ScheduledStart, s.ScheduledEnd, s.StartedAt, s.EndedAt,
		s.DurationSeconds, s.WaiverSignedAt, s.CustomerJoinedAt, s.MechanicJoinedAt,
		s.LastActivityAt, s.EndReason, s.StatusChangedAt, s.UpdatedAt, expected, s.Version)
	if err != nil {
		return false, err
	}
	if res.RowsAffected() != 1 {
		return false, nil
	}
	s.Version++
	return true, nil
}

func (r *SessionRepository) ListByStatusChangedBefore(ctx context.Context, status session.Status, cutoff time.Time, limit int) ([]*session.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status=$1 AND status_changed_at <= $2
		ORDER BY status_changed_at ASC
		LIMIT $3
	`, status, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *SessionRepository) ListOrphanedLive(ctx context.Context, startedBefore, idleSince time.Time, limit int) ([]*session.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status='live' AND started_at <= $1
		  AND (last_activity_at IS NULL OR last_activity_at <= $2)
		ORDER BY started_at ASC
		LIMIT $3
	`, startedBefore, idleSince, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *SessionRepository) TouchActivity(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET last_activity_at=$2
		WHERE id=$1 AND (last_activity_at IS NULL OR last_activity_at < $2)
	`, sessionID, at)
	return err
}

func collectSessions(rows pgx.Rows) ([]*session.Session, error) {
	defer rows.Close()
	out := []*session.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	if err := row.Scan(&s.ID, &s.RequestID, &s.CustomerID, &s.MechanicID, &s.Status, &s.Plan,
		&s.ScheduledStart, &s.ScheduledEnd, &s.StartedAt, &s.EndedAt, &s.DurationSeconds, &s.ExtensionMinutes,
		&s.WaiverSignedAt, &s.CustomerJoinedAt, &s.MechanicJoinedAt, &s.LastActivityAt, &s.EndReason,
		&s.StatusChangedAt, &s.CreatedAt, &s.UpdatedAt, &s.Version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
