package rfq

import (
	"time"

	"github.com/google/uuid"
)

// BidStatus represents bid status.
type BidStatus string

const (
	BidSubmitted BidStatus = "submitted"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
)

// Bid is a workshop's offer against an RFQ.
type Bid struct {
	ID            uuid.UUID  `json:"id"`
	RFQID         uuid.UUID  `json:"rfqId"`
	WorkshopID    uuid.UUID  `json:"workshopId"`
	AmountCents   int64      `json:"amountCents"`
	Notes         string     `json:"notes,omitempty"`
	EstimatedDays int        `json:"estimatedDays,omitempty"`
	Status        BidStatus  `json:"status"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
}

// RejectReason explains why a bid was refused at intake.
type RejectReason string

const (
	RejectNone       RejectReason = ""
	RejectNotFound   RejectReason = "not_found"
	RejectClosed     RejectReason = "closed"
	RejectExpired    RejectReason = "expired"
	RejectCapReached RejectReason = "cap_reached"
	RejectAlreadyBid RejectReason = "already_bid"
)

// ClassifyRejection evaluates the intake gates in order against the current row.
// It returns RejectNone when the bid would be admitted.
func ClassifyRejection(r *RFQ, now time.Time) RejectReason {
	if r == nil {
		return RejectNotFound
	}
	switch r.Status {
	case StatusOpen:
	case StatusExpired:
		return RejectExpired
	default:
		return RejectClosed
	}
	if now.After(r.BidDeadline) {
		return RejectExpired
	}
	if r.BidCount >= r.MaxBids {
		return RejectCapReached
	}
	return RejectNone
}
