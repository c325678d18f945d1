package rfq

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestReferralFeeBasisPointsIsFivePercent(t *testing.T) {
	// The customer disclosure once said 2%; 5% is the rate payouts are computed with.
	assert.Equal(t, 500, ReferralFeeBasisPoints)
	assert.Equal(t, int64(2500), ReferralFee(50000, ReferralFeeBasisPoints))
}

func TestReferralFee(t *testing.T) {
	cases := []struct {
		amount int64
		bp     int
		want   int64
	}{
		{45000, 500, 2250},
		{1, 500, 0},
		{10, 500, 1}, // 0.5 cent rounds up
		{19999, 500, 1000},
		{0, 500, 0},
		{-100, 500, 0},
		{10000, 0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ReferralFee(tc.amount, tc.bp), "amount=%d bp=%d", tc.amount, tc.bp)
	}
}

func TestNewReferralPayout(t *testing.T) {
	mech := uuid.New()
	r := &RFQ{ID: uuid.New(), OriginMechanicID: &mech}
	b := &Bid{ID: uuid.New(), AmountCents: 45000}

	p := NewReferralPayout(r, b, time.Now())

	assert.Equal(t, r.ID, p.RFQID)
	assert.Equal(t, b.ID, p.BidID)
	assert.Equal(t, mech, p.MechanicID)
	assert.Equal(t, int64(2250), p.FeeCents)
	assert.Equal(t, ReferralFeeBasisPoints, p.FeeBasisPoints)
}

func TestClassifyRejection(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	open := func() *RFQ {
		return &RFQ{Status: StatusOpen, BidDeadline: now.Add(time.Hour), MaxBids: 2}
	}

	assert.Equal(t, RejectNotFound, ClassifyRejection(nil, now))
	assert.Equal(t, RejectNone, ClassifyRejection(open(), now))

	r := open()
	r.Status = StatusAwarded
	assert.Equal(t, RejectClosed, ClassifyRejection(r, now))

	r = open()
	r.Status = StatusCancelled
	assert.Equal(t, RejectClosed, ClassifyRejection(r, now))

	r = open()
	r.Status = StatusExpired
	assert.Equal(t, RejectExpired, ClassifyRejection(r, now))

	r = open()
	r.BidDeadline = now.Add(-time.Second)
	assert.Equal(t, RejectExpired, ClassifyRejection(r, now))

	r = open()
	r.BidDeadline = now
	assert.Equal(t, RejectNone, ClassifyRejection(r, now), "deadline itself is still open")

	r = open()
	r.BidCount = 2
	assert.Equal(t, RejectCapReached, ClassifyRejection(r, now))

	r = open()
	r.BidCount = 2
	r.BidDeadline = now.Add(-time.Second)
	assert.Equal(t, RejectExpired, ClassifyRejection(r, now), "deadline is checked before the cap")
}

func TestDetails_Validate(t *testing.T) {
	valid := Details{Title: "Brake noise", Category: "brakes", Urgency: UrgencyNormal, BudgetMinCents: 100, BudgetMaxCents: 500}
	assert.NoError(t, valid.Validate())

	d := valid
	d.Title = " "
	assert.Error(t, d.Validate())

	d = valid
	d.Urgency = "whenever"
	assert.Error(t, d.Validate())

	d = valid
	d.BudgetMinCents = 1000
	assert.Error(t, d.Validate())

	d = valid
	d.Vehicle.Year = 1800
	assert.Error(t, d.Validate())
}

func TestRFQ_SlotsLeftAndAcceptingBids(t *testing.T) {
	now := time.Now()
	r := &RFQ{Status: StatusOpen, MaxBids: 3, BidCount: 1, BidDeadline: now.Add(time.Minute)}
	assert.Equal(t, 2, r.SlotsLeft())
	assert.True(t, r.AcceptingBids(now))

	r.BidCount = 3
	assert.Equal(t, 0, r.SlotsLeft())
	assert.False(t, r.AcceptingBids(now))

	assert.True(t, r.CanTransitionTo(StatusAwarded))
	r.Status = StatusExpired
	assert.False(t, r.CanTransitionTo(StatusAwarded))
}
