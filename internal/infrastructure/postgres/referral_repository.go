package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
)

const referralColumns = `id, rfq_id, bid_id, mechanic_id, bid_amount_cents, fee_basis_points, fee_cents, created_at`

// ReferralRepository implements rfq.ReferralRepository.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

func (r *ReferralRepository) Record(ctx context.Context, p *rfq.ReferralPayout) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO referral_payouts (`+referralColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (rfq_id) DO NOTHING
	`, p.ID, p.RFQID, p.BidID, p.MechanicID, p.BidAmountCents, p.FeeBasisPoints, p.FeeCents, p.CreatedAt)
	return err
}

func (r *ReferralRepository) GetByRFQ(ctx context.Context, rfqID uuid.UUID) (*rfq.ReferralPayout, error) {
	var p rfq.ReferralPayout
	err := r.pool.QueryRow(ctx, `SELECT `+referralColumns+` FROM referral_payouts WHERE rfq_id=$1`, rfqID).
		Scan(&p.ID, &p.RFQID, &p.BidID, &p.MechanicID, &p.BidAmountCents, &p.FeeBasisPoints, &p.FeeCents, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ReferralRepository) ListUnrecorded(ctx context.Context, limit int) ([]*rfq.RFQ, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+rfqColumns+` FROM rfqs
		WHERE status='awarded' AND origin_mechanic_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM referral_payouts p WHERE p.rfq_id = rfqs.id)
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectRFQs(rows)
}
