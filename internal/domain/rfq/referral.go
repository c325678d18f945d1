package rfq

import (
	"time"

	"github.com/google/uuid"
)

// ReferralFeeBasisPoints is the share of an accepted bid owed to the mechanic whose
// session originated the RFQ: 500 bp = 5%. This is the single canonical rate.
const ReferralFeeBasisPoints = 500

// ReferralFee computes the fee in cents, rounding half up.
func ReferralFee(amountCents int64, basisPoints int) int64 {
	if amountCents <= 0 || basisPoints <= 0 {
		return 0
	}
	return (amountCents*int64(basisPoints) + 5000) / 10000
}

// ReferralPayout records the fee owed for an awarded RFQ.
type ReferralPayout struct {
	ID             uuid.UUID `json:"id"`
	RFQID          uuid.UUID `json:"rfqId"`
	BidID          uuid.UUID `json:"bidId"`
	MechanicID     uuid.UUID `json:"mechanicId"`
	BidAmountCents int64     `json:"bidAmountCents"`
	FeeBasisPoints int       `json:"feeBasisPoints"`
	FeeCents       int64     `json:"feeCents"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewReferralPayout computes the payout for an accepted bid.
func NewReferralPayout(r *RFQ, b *Bid, now time.Time) *ReferralPayout {
	return &ReferralPayout{
		ID:             uuid.New(),
		RFQID:          r.ID,
		BidID:          b.ID,
		MechanicID:     *r.OriginMechanicID,
		BidAmountCents: b.AmountCents,
		FeeBasisPoints: ReferralFeeBasisPoints,
		FeeCents:       ReferralFee(b.AmountCents, ReferralFeeBasisPoints),
		CreatedAt:      now,
	}
}
