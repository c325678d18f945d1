package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wrenchhub/wrenchhub/internal/domain/session"
)

const requestColumns = `id, customer_id, description, plan, scheduled_start, status,
	accepted_by, session_id, created_at, updated_at`

// RequestRepository implements session.RequestRepository.
type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

func (r *RequestRepository) CreateRequest(ctx context.Context, req *session.Request) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_requests (`+requestColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, req.ID, req.CustomerID, req.Description, req.Plan, req.ScheduledStart, req.Status,
		req.AcceptedBy, req.SessionID, req.CreatedAt, req.UpdatedAt)
	return err
}

func (r *RequestRepository) GetRequest(ctx context.Context, requestID uuid.UUID) (*session.Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM session_requests WHERE id=$1`, requestID)
	return scanRequest(row)
}

func (r *RequestRepository) ListPendingRequests(ctx context.Context, limit, offset int) ([]*session.Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM session_requests
		WHERE status='pending'
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (r *RequestRepository) ListPendingRequestsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*session.Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM session_requests
		WHERE status='pending' AND created_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (r *RequestRepository) TransitionRequest(ctx context.Context, requestID uuid.UUID, from, to session.RequestStatus, at time.Time) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE session_requests SET status=$3, updated_at=$4
		WHERE id=$1 AND status=$2
	`, requestID, from, to, at)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

// AcceptRequest claims the request with a conditional update and inserts the
// session in the same transaction. Concurrent accepts serialize on the request row
// and only the first sees status pending.
func (r *RequestRepository) AcceptRequest(ctx context.Context, requestID uuid.UUID, s *session.Session) (bool, error) {
	accepted := false
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		res, err := tx.Exec(ctx, `
			UPDATE session_requests SET status='accepted', accepted_by=$2, session_id=$3, updated_at=$4
			WHERE id=$1 AND status='pending'
		`, requestID, s.MechanicID, s.ID, s.CreatedAt)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return nil
		}
		if err := insertSession(ctx, tx, s); err != nil {
			return err
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return accepted, nil
}

func collectRequests(rows pgx.Rows) ([]*session.Request, error) {
	defer rows.Close()
	out := []*session.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*session.Request, error) {
	var req session.Request
	if err := row.Scan(&req.ID, &req.CustomerID, &req.Description, &req.Plan, &req.ScheduledStart, &req.Status,
		&req.AcceptedBy, &req.SessionID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}
