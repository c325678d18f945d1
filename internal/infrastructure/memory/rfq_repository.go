package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
)

// RFQRepository implements rfq.Repository.
type RFQRepository struct {
	store *Store
}

func (r *RFQRepository) Create(_ context.Context, q *rfq.RFQ) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.rfqs[q.ID]; ok {
		return errExists("rfq", q.ID)
	}
	r.store.rfqs[q.ID] = *q
	return nil
}

func (r *RFQRepository) GetByID(_ context.Context, rfqID uuid.UUID) (*rfq.RFQ, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.rfqs[rfqID]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (r *RFQRepository) List(_ context.Context, f rfq.Filter, limit, offset int) ([]*rfq.RFQ, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*rfq.RFQ{}
	for _, q := range r.store.rfqs {
		if matches(&q, f) && !r.hasBidLocked(q.ID, f.ExcludeBidder) {
			out = append(out, &q)
		}
	}
	sortByTime(out, func(a, b *rfq.RFQ) bool { return a.CreatedAt.After(b.CreatedAt) })
	return page(out, limit, offset), nil
}

func matches(q *rfq.RFQ, f rfq.Filter) bool {
	if f.Status != nil && q.Status != *f.Status {
		return false
	}
	if f.Category != "" && q.Category != f.Category {
		return false
	}
	if f.Urgency != "" && q.Urgency != f.Urgency {
		return false
	}
	if f.MinBudgetCents > 0 && q.BudgetMaxCents > 0 && q.BudgetMaxCents < f.MinBudgetCents {
		return false
	}
	if f.MaxBudgetCents > 0 && q.BudgetMinCents > f.MaxBudgetCents {
		return false
	}
	if f.CustomerID != nil && q.CustomerID != *f.CustomerID {
		return false
	}
	return true
}

func (r *RFQRepository) hasBidLocked(rfqID uuid.UUID, workshopID *uuid.UUID) bool {
	if workshopID == nil {
		return false
	}
	for _, b := range r.store.bids {
		if b.RFQID == rfqID && b.WorkshopID == *workshopID {
			return true
		}
	}
	return false
}

func (r *RFQRepository) TransitionStatus(_ context.Context, rfqID uuid.UUID, to rfq.Status, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.rfqs[rfqID]
	if !ok || !q.CanTransitionTo(to) {
		return false, nil
	}
	q.Status = to
	q.UpdatedAt = at
	q.ClosedAt = &at
	r.store.rfqs[rfqID] = q
	for id, b := range r.store.bids {
		if b.RFQID == rfqID && b.Status == rfq.BidSubmitted {
			b.Status = rfq.BidRejected
			b.DecidedAt = &at
			r.store.bids[id] = b
		}
	}
	return true, nil
}

func (r *RFQRepository) ListOpenPastDeadline(_ context.Context, now time.Time, limit int) ([]*rfq.RFQ, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*rfq.RFQ{}
	for _, q := range r.store.rfqs {
		if q.Status == rfq.StatusOpen && now.After(q.BidDeadline) {
			out = append(out, &q)
		}
	}
	sortByTime(out, func(a, b *rfq.RFQ) bool { return a.BidDeadline.Before(b.BidDeadline) })
	return page(out, limit, 0), nil
}

func (r *RFQRepository) InsertBid(_ context.Context, bid *rfq.Bid, now time.Time) (rfq.RejectReason, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var current *rfq.RFQ
	if q, ok := r.store.rfqs[bid.RFQID]; ok {
		current = &q
	}
	if reason := rfq.ClassifyRejection(current, now); reason != rfq.RejectNone {
		return reason, nil
	}
	if r.hasBidLocked(bid.RFQID, &bid.WorkshopID) {
		return rfq.RejectAlreadyBid, nil
	}
	current.BidCount++
	current.UpdatedAt = now
	r.store.rfqs[current.ID] = *current
	r.store.bids[bid.ID] = *bid
	return rfq.RejectNone, nil
}

func (r *RFQRepository) GetBid(_ context.Context, bidID uuid.UUID) (*rfq.Bid, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.bids[bidID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *RFQRepository) ListBids(_ context.Context, rfqID uuid.UUID) ([]*rfq.Bid, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*rfq.Bid{}
	for _, b := range r.store.bids {
		if b.RFQID == rfqID {
			out = append(out, &b)
		}
	}
	sortByTime(out, func(a, b *rfq.Bid) bool { return a.SubmittedAt.Before(b.SubmittedAt) })
	return out, nil
}

func (r *RFQRepository) Award(_ context.Context, rfqID, bidID uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.rfqs[rfqID]
	if !ok || q.Status != rfq.StatusOpen {
		return false, nil
	}
	winner, ok := r.store.bids[bidID]
	if !ok || winner.RFQID != rfqID || winner.Status != rfq.BidSubmitted {
		return false, nil
	}
	for id, b := range r.store.bids {
		if b.RFQID != rfqID || b.Status != rfq.BidSubmitted {
			continue
		}
		if id == bidID {
			b.Status = rfq.BidAccepted
		} else {
			b.Status = rfq.BidRejected
		}
		b.DecidedAt = &at
		r.store.bids[id] = b
	}
	q.Status = rfq.StatusAwarded
	q.AcceptedBidID = &bidID
	q.ClosedAt = &at
	q.UpdatedAt = at
	r.store.rfqs[rfqID] = q
	return true, nil
}

func (r *RFQRepository) RejectBid(_ context.Context, bidID uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.bids[bidID]
	if !ok || b.Status != rfq.BidSubmitted {
		return false, nil
	}
	if q, ok := r.store.rfqs[b.RFQID]; !ok || q.Status != rfq.StatusOpen {
		return false, nil
	}
	b.Status = rfq.BidRejected
	b.DecidedAt = &at
	r.store.bids[bidID] = b
	return true, nil
}

// ReferralRepository implements rfq.ReferralRepository.
type ReferralRepository struct {
	store *Store
}

func (r *ReferralRepository) Record(_ context.Context, p *rfq.ReferralPayout) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.referrals[p.RFQID]; ok {
		return nil
	}
	r.store.referrals[p.RFQID] = *p
	return nil
}

func (r *ReferralRepository) GetByRFQ(_ context.Context, rfqID uuid.UUID) (*rfq.ReferralPayout, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.referrals[rfqID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *ReferralRepository) ListUnrecorded(_ context.Context, limit int) ([]*rfq.RFQ, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*rfq.RFQ{}
	for _, q := range r.store.rfqs {
		if q.Status != rfq.StatusAwarded || !q.HasReferral() {
			continue
		}
		if _, ok := r.store.referrals[q.ID]; ok {
			continue
		}
		out = append(out, &q)
	}
	sortByTime(out, func(a, b *rfq.RFQ) bool { return a.UpdatedAt.Before(b.UpdatedAt) })
	return page(out, limit, 0), nil
}
