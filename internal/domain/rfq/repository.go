package rfq

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_referral_repository.go -package=mocks . ReferralRepository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows RFQ listings.
type Filter struct {
	Status         *Status
	Category       string
	Urgency        Urgency
	MinBudgetCents int64
	MaxBudgetCents int64
	// ExcludeBidder hides RFQs this workshop already bid on.
	ExcludeBidder *uuid.UUID
	CustomerID    *uuid.UUID
}

// Repository defines RFQ and bid persistence.
type Repository interface {
	Create(ctx context.Context, r *RFQ) error
	GetByID(ctx context.Context, rfqID uuid.UUID) (*RFQ, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*RFQ, error)
	// TransitionStatus moves an RFQ out of open. Submitted bids are rejected in the same step.
	TransitionStatus(ctx context.Context, rfqID uuid.UUID, to Status, at time.Time) (bool, error)
	ListOpenPastDeadline(ctx context.Context, now time.Time, limit int) ([]*RFQ, error)

	// InsertBid checks open status, deadline and cap against the current row and, when
	// all hold, inserts the bid and increments the counter atomically.
	InsertBid(ctx context.Context, bid *Bid, now time.Time) (RejectReason, error)
	GetBid(ctx context.Context, bidID uuid.UUID) (*Bid, error)
	ListBids(ctx context.Context, rfqID uuid.UUID) ([]*Bid, error)
	// Award accepts the bid, rejects its siblings and marks the RFQ awarded
	// atomically. It reports false when the RFQ was no longer open or the bid no
	// longer submitted.
	Award(ctx context.Context, rfqID, bidID uuid.UUID, at time.Time) (bool, error)
	// RejectBid moves a single submitted bid to rejected.
	RejectBid(ctx context.Context, bidID uuid.UUID, at time.Time) (bool, error)
}

// ReferralRepository defines payout persistence.
type ReferralRepository interface {
	// Record stores the payout; recording the same RFQ twice is a no-op.
	Record(ctx context.Context, p *ReferralPayout) error
	GetByRFQ(ctx context.Context, rfqID uuid.UUID) (*ReferralPayout, error)
	// ListUnrecorded returns awarded RFQs with an origin mechanic and no payout row.
	ListUnrecorded(ctx context.Context, limit int) ([]*RFQ, error)
}
