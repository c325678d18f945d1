package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
)

const rfqColumns = `id, customer_id, origin_session_id, origin_mechanic_id, title, description,
	vehicle_make, vehicle_model, vehicle_year, category, urgency, budget_min_cents, budget_max_cents,
	bid_deadline, max_bids, bid_count, status, accepted_bid_id, created_at, updated_at, closed_at`

const bidPerWorkshop = "rfq_bids_one_per_workshop"

const bidColumns = `id, rfq_id, workshop_id, amount_cents, notes, estimated_days, status, submitted_at, decided_at`

// RFQRepository implements rfq.Repository.
type RFQRepository struct {
	pool *pgxpool.Pool
}

func NewRFQRepository(pool *pgxpool.Pool) *RFQRepository {
	return &RFQRepository{pool: pool}
}

func (r *RFQRepository) Create(ctx context.Context, q *rfq.RFQ) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rfqs (`+rfqColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, q.ID, q.CustomerID, q.OriginSessionID, q.OriginMechanicID, q.Title, q.Description,
		q.Vehicle.Make, q.Vehicle.Model, q.Vehicle.Year, q.Category, q.Urgency, q.BudgetMinCents, q.BudgetMaxCents,
		q.BidDeadline, q.MaxBids, q.BidCount, q.Status, q.AcceptedBidID, q.CreatedAt, q.UpdatedAt, q.ClosedAt)
	return err
}

func (r *RFQRepository) GetByID(ctx context.Context, rfqID uuid.UUID) (*rfq.RFQ, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE id=$1`, rfqID)
	return scanRFQ(row)
}

func (r *RFQRepository) List(ctx context.Context, f rfq.Filter, limit, offset int) ([]*rfq.RFQ, error) {
	where, args := rfqFilterClause(f)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM rfqs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		rfqColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRFQs(rows)
}

func rfqFilterClause(f rfq.Filter) (string, []any) {
	conds := []string{}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Urgency != "" {
		add("urgency = $%d", f.Urgency)
	}
	if f.MinBudgetCents > 0 {
		add("(budget_max_cents = 0 OR budget_max_cents >= $%d)", f.MinBudgetCents)
	}
	if f.MaxBudgetCents > 0 {
		add("budget_min_cents <= $%d", f.MaxBudgetCents)
	}
	if f.CustomerID != nil {
		add("customer_id = $%d", *f.CustomerID)
	}
	if f.ExcludeBidder != nil {
		add("NOT EXISTS (SELECT 1 FROM rfq_bids b WHERE b.rfq_id = rfqs.id AND b.workshop_id = $%d)", *f.ExcludeBidder)
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (r *RFQRepository) TransitionStatus(ctx context.Context, rfqID uuid.UUID, to rfq.Status, at time.Time) (bool, error) {
	if to == rfq.StatusOpen {
		return false, nil
	}
	moved := false
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		res, err := tx.Exec(ctx, `
			UPDATE rfqs SET status=$2, closed_at=$3, updated_at=$3
			WHERE id=$1 AND status='open'
		`, rfqID, to, at)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE rfq_bids SET status='rejected', decided_at=$2
			WHERE rfq_id=$1 AND status='submitted'
		`, rfqID, at); err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, err
}

func (r *RFQRepository) ListOpenPastDeadline(ctx context.Context, now time.Time, limit int) ([]*rfq.RFQ, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+rfqColumns+` FROM rfqs
		WHERE status='open' AND bid_deadline < $1
		ORDER BY bid_deadline ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectRFQs(rows)
}

// InsertBid locks the RFQ row so the gates are evaluated against the value every
// concurrent bidder will see after commit.
func (r *RFQRepository) InsertBid(ctx context.Context, bid *rfq.Bid, now time.Time) (rfq.RejectReason, error) {
	reason := rfq.RejectNone
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanRFQ(tx.QueryRow(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE id=$1 FOR UPDATE`, bid.RFQID))
		if err != nil {
			return err
		}
		if reason = rfq.ClassifyRejection(current, now); reason != rfq.RejectNone {
			return nil
		}
		var taken bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM rfq_bids WHERE rfq_id=$1 AND workshop_id=$2)
		`, bid.RFQID, bid.WorkshopID).Scan(&taken); err != nil {
			return err
		}
		if taken {
			reason = rfq.RejectAlreadyBid
			return nil
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO rfq_bids (`+bidColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, bid.ID, bid.RFQID, bid.WorkshopID, bid.AmountCents, bid.Notes, bid.EstimatedDays,
			bid.Status, bid.SubmittedAt, bid.DecidedAt); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE rfqs SET bid_count = bid_count + 1, updated_at=$2 WHERE id=$1`, bid.RFQID, now)
		return err
	})
	if isUniqueViolation(err) && constraintOf(err, bidPerWorkshop) == bidPerWorkshop {
		return rfq.RejectAlreadyBid, nil
	}
	if err != nil {
		return rfq.RejectNone, err
	}
	return reason, nil
}

func (r *RFQRepository) GetBid(ctx context.Context, bidID uuid.UUID) (*rfq.Bid, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM rfq_bids WHERE id=$1`, bidID)
	return scanBid(row)
}

func (r *RFQRepository) ListBids(ctx context.Context, rfqID uuid.UUID) ([]*rfq.Bid, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bidColumns+` FROM rfq_bids
		WHERE rfq_id=$1
		ORDER BY submitted_at ASC
	`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*rfq.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Award closes the RFQ first; concurrent awards block on the row and find it no
// longer open.
func (r *RFQRepository) Award(ctx context.Context, rfqID, bidID uuid.UUID, at time.Time) (bool, error) {
	awarded := false
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		res, err := tx.Exec(ctx, `
			UPDATE rfqs SET status='awarded', accepted_bid_id=$2, closed_at=$3, updated_at=$3
			WHERE id=$1 AND status='open'
		`, rfqID, bidID, at)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return nil
		}
		res, err = tx.Exec(ctx, `
			UPDATE rfq_bids SET status='accepted', decided_at=$3
			WHERE id=$2 AND rfq_id=$1 AND status='submitted'
		`, rfqID, bidID, at)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return errAwardAborted
		}
		if _, err := tx.Exec(ctx, `
			UPDATE rfq_bids SET status='rejected', decided_at=$3
			WHERE rfq_id=$1 AND id<>$2 AND status='submitted'
		`, rfqID, bidID, at); err != nil {
			return err
		}
		awarded = true
		return nil
	})
	if errors.Is(err, errAwardAborted) {
		return false, nil
	}
	return awarded, err
}

var errAwardAborted = errors.New("bid no longer submitted")

func (r *RFQRepository) RejectBid(ctx context.Context, bidID uuid.UUID, at time.Time) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE rfq_bids b SET status='rejected', decided_at=$2
		FROM rfqs q
		WHERE b.id=$1 AND b.status='submitted' AND q.id=b.rfq_id AND q.status='open'
	`, bidID, at)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func collectRFQs(rows pgx.Rows) ([]*rfq.RFQ, error) {
	defer rows.Close()
	out := []*rfq.RFQ{}
	for rows.Next() {
		q, err := scanRFQ(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanRFQ(row pgx.Row) (*rfq.RFQ, error) {
	var q rfq.RFQ
	if err := row.Scan(&q.ID, &q.CustomerID, &q.OriginSessionID, &q.OriginMechanicID, &q.Title, &q.Description,
		&q.Vehicle.Make, &q.Vehicle.Model, &q.Vehicle.Year, &q.Category, &q.Urgency, &q.BudgetMinCents, &q.BudgetMaxCents,
		&q.BidDeadline, &q.MaxBids, &q.BidCount, &q.Status, &q.AcceptedBidID, &q.CreatedAt, &q.UpdatedAt, &q.ClosedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &q, nil
}

func scanBid(row pgx.Row) (*rfq.Bid, error) {
	var b rfq.Bid
	if err := row.Scan(&b.ID, &b.RFQID, &b.WorkshopID, &b.AmountCents, &b.Notes, &b.EstimatedDays,
		&b.Status, &b.SubmittedAt, &b.DecidedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
