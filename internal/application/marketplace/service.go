package marketplace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
	"github.com/wrenchhub/wrenchhub/internal/domain/outcome"
	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
)

const (
	// DefaultMaxBidsLimit caps maxBids on new RFQs.
	DefaultMaxBidsLimit = 10

	maxNotesLength   = 2000
	listBatchSize    = 200
	referralAttempts = 3
)

// Service runs the RFQ marketplace.
type Service struct {
	rfqs            rfq.Repository
	referrals       rfq.ReferralRepository
	sessions        session.Repository
	dispatcher      notification.Dispatcher
	maxBidsLimit    int
	referralBackoff time.Duration
	now             func() time.Time
	logger          zerolog.Logger
}

// NewService creates a marketplace service.
func NewService(
	rfqs rfq.Repository,
	referrals rfq.ReferralRepository,
	sessions session.Repository,
	dispatcher notification.Dispatcher,
	maxBidsLimit int,
	logger zerolog.Logger,
) *Service {
	if maxBidsLimit <= 0 {
		maxBidsLimit = DefaultMaxBidsLimit
	}
	return &Service{
		rfqs:            rfqs,
		referrals:       referrals,
		sessions:        sessions,
		dispatcher:      dispatcher,
		maxBidsLimit:    maxBidsLimit,
		referralBackoff: 100 * time.Millisecond,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.With().Str("service", "marketplace").Logger(),
	}
}

// WithClock replaces the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithReferralBackoff overrides the delay between payout record attempts.
func (s *Service) WithReferralBackoff(d time.Duration) *Service {
	s.referralBackoff = d
	return s
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", outcome.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// PostInput describes a new RFQ.
type PostInput struct {
	CustomerID  uuid.UUID
	Details     rfq.Details
	BidDeadline time.Time
	MaxBids     int
}

// PostRfq opens an RFQ for bidding.
func (s *Service) PostRfq(ctx context.Context, in PostInput) (*rfq.RFQ, error) {
	if in.CustomerID == uuid.Nil {
		return nil, invalidInput("customer_id is required")
	}
	if err := in.Details.Validate(); err != nil {
		return nil, invalidInput("%v", err)
	}
	now := s.now()
	if !in.BidDeadline.After(now) {
		return nil, invalidInput("bid_deadline must be in the future")
	}
	if in.MaxBids <= 0 || in.MaxBids > s.maxBidsLimit {
		return nil, invalidInput("max_bids must be between 1 and %d", s.maxBidsLimit)
	}

	d := in.Details
	r := &rfq.RFQ{
		ID:             uuid.New(),
		CustomerID:     in.CustomerID,
		Title:          strings.TrimSpace(d.Title),
		Description:    strings.TrimSpace(d.Description),
		Vehicle:        d.Vehicle,
		Category:       strings.ToLower(strings.TrimSpace(d.Category)),
		Urgency:        d.Urgency,
		BudgetMinCents: d.BudgetMinCents,
		BudgetMaxCents: d.BudgetMaxCents,
		BidDeadline:    in.BidDeadline.UTC(),
		MaxBids:        in.MaxBids,
		Status:         rfq.StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if d.OriginSessionID != nil {
		mechanicID, err := s.referralBeneficiary(ctx, *d.OriginSessionID, in.CustomerID)
		if err != nil {
			return nil, err
		}
		originID := *d.OriginSessionID
		r.OriginSessionID = &originID
		r.OriginMechanicID = mechanicID
	}

	if err := s.rfqs.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create rfq: %w", err)
	}
	s.logger.Info().
		Str("rfqId", r.ID.String()).
		Str("category", r.Category).
		Int("maxBids", r.MaxBids).
		Time("bidDeadline", r.BidDeadline).
		Msg("rfq posted")
	s.emit(ctx, notification.NewEvent(notification.TypeRfqPosted, r.ID).
		ToGroups(notification.GroupWorkshops).
		With("category", r.Category).
		With("urgency", r.Urgency))
	return r, nil
}

// referralBeneficiary returns the mechanic of a completed session owned by customerID.
func (s *Service) referralBeneficiary(ctx context.Context, sessionID, customerID uuid.UUID) (*uuid.UUID, error) {
	if s.sessions == nil {
		return nil, invalidInput("origin session lookup unavailable")
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load origin session: %w", err)
	}
	if sess == nil {
		return nil, invalidInput("origin session not found")
	}
	if sess.CustomerID != customerID {
		return nil, outcome.ErrForbidden
	}
	if sess.Status != session.StatusCompleted {
		return nil, invalidInput("origin session is not completed")
	}
	return sess.MechanicID, nil
}

// GetRfq returns an RFQ or nil.
func (s *Service) GetRfq(ctx context.Context, rfqID uuid.UUID) (*rfq.RFQ, error) {
	return s.rfqs.GetByID(ctx, rfqID)
}

// ListInput narrows the RFQ board.
type ListInput struct {
	Filter     rfq.Filter
	Expression string
	Limit      int
	Offset     int
}

// ListRfqs lists RFQs, open ones by default, optionally narrowed by a lead expression.
func (s *Service) ListRfqs(ctx context.Context, in ListInput) ([]*rfq.RFQ, error) {
	if in.Filter.Status == nil && in.Filter.CustomerID == nil {
		open := rfq.StatusOpen
		in.Filter.Status = &open
	}
	lead, err := CompileLeadFilter(in.Expression)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	if lead.expr == nil {
		return s.rfqs.List(ctx, in.Filter, in.Limit, in.Offset)
	}

	now := s.now()
	out := []*rfq.RFQ{}
	skipped := 0
	for offset := 0; ; offset += listBatchSize {
		batch, err := s.rfqs.List(ctx, in.Filter, listBatchSize, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			ok, err := lead.Match(r, now)
			if err != nil {
				return nil, invalidInput("lead filter: %v", err)
			}
			if !ok {
				continue
			}
			if skipped < in.Offset {
				skipped++
				continue
			}
			out = append(out, r)
			if in.Limit > 0 && len(out) >= in.Limit {
				return out, nil
			}
		}
		if len(batch) < listBatchSize {
			return out, nil
		}
	}
}

// ListBids returns the bids the caller may see: all of them for the RFQ owner,
// only their own for a workshop.
func (s *Service) ListBids(ctx context.Context, rfqID, callerID uuid.UUID) ([]*rfq.Bid, error) {
	r, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	bids, err := s.rfqs.ListBids(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if r.CustomerID == callerID {
		return bids, nil
	}
	own := []*rfq.Bid{}
	for _, b := range bids {
		if b.WorkshopID == callerID {
			own = append(own, b)
		}
	}
	return own, nil
}

// BidInput is a workshop's offer.
type BidInput struct {
	RFQID         uuid.UUID
	WorkshopID    uuid.UUID
	AmountCents   int64
	Notes         string
	EstimatedDays int
}

// BidResult is the outcome of a bid operation.
type BidResult struct {
	outcome.Result
	Bid *rfq.Bid `json:"bid,omitempty"`
}

var rejectOutcomes = map[rfq.RejectReason]outcome.Result{
	rfq.RejectNotFound:   outcome.Conflict(outcome.ReasonNotFound, "rfq not found"),
	rfq.RejectClosed:     outcome.PreconditionFailed(outcome.ReasonClosed, "bidding is closed"),
	rfq.RejectExpired:    outcome.PreconditionFailed(outcome.ReasonExpired, "bidding deadline has passed"),
	rfq.RejectCapReached: outcome.PreconditionFailed(outcome.ReasonCapReached, "maximum number of bids reached"),
	rfq.RejectAlreadyBid: outcome.PreconditionFailed(outcome.ReasonAlreadyBid, "workshop already bid on this rfq"),
}

// SubmitBid places a bid if the RFQ is open, before its deadline and under its cap.
func (s *Service) SubmitBid(ctx context.Context, in BidInput) (*BidResult, error) {
	if in.RFQID == uuid.Nil || in.WorkshopID == uuid.Nil {
		return nil, invalidInput("rfq_id and workshop_id are required")
	}
	if in.AmountCents <= 0 {
		return nil, invalidInput("amount must be positive")
	}
	if in.EstimatedDays < 0 {
		return nil, invalidInput("estimated_days must not be negative")
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLength {
		return nil, invalidInput("notes exceed %d characters", maxNotesLength)
	}

	now := s.now()
	bid := &rfq.Bid{
		ID:            uuid.New(),
		RFQID:         in.RFQID,
		WorkshopID:    in.WorkshopID,
		AmountCents:   in.AmountCents,
		Notes:         notes,
		EstimatedDays: in.EstimatedDays,
		Status:        rfq.BidSubmitted,
		SubmittedAt:   now,
	}
	reason, err := s.rfqs.InsertBid(ctx, bid, now)
	if err != nil {
		return nil, fmt.Errorf("failed to submit bid: %w", err)
	}
	if reason != rfq.RejectNone {
		s.logger.Debug().
			Str("rfqId", in.RFQID.String()).
			Str("workshopId", in.WorkshopID.String()).
			Str("reason", string(reason)).
			Msg("bid rejected at intake")
		return &BidResult{Result: rejectOutcomes[reason]}, nil
	}

	s.logger.Info().
		Str("rfqId", in.RFQID.String()).
		Str("bidId", bid.ID.String()).
		Int64("amountCents", bid.AmountCents).
		Msg("bid submitted")
	if r, err := s.rfqs.GetByID(ctx, in.RFQID); err == nil && r != nil {
		s.emit(ctx, notification.NewEvent(notification.TypeRfqBidSubmitted, r.ID, r.CustomerID).
			With("bidId", bid.ID).
			With("bidCount", r.BidCount).
			With("maxBids", r.MaxBids))
	}
	return &BidResult{Result: outcome.Success(), Bid: bid}, nil
}

// AwardResult is the outcome of AcceptBid.
type AwardResult struct {
	outcome.Result
	RFQ      *rfq.RFQ            `json:"rfq,omitempty"`
	Bid      *rfq.Bid            `json:"bid,omitempty"`
	Referral *rfq.ReferralPayout `json:"referral,omitempty"`
}

// loadOwned fetches an RFQ and one of its bids on behalf of the owning customer.
func (s *Service) loadOwned(ctx context.Context, rfqID, bidID, customerID uuid.UUID) (*rfq.RFQ, *rfq.Bid, *outcome.Result, error) {
	r, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load rfq: %w", err)
	}
	if r == nil {
		res := outcome.Conflict(outcome.ReasonNotFound, "rfq not found")
		return nil, nil, &res, nil
	}
	if r.CustomerID != customerID {
		return nil, nil, nil, outcome.ErrForbidden
	}
	b, err := s.rfqs.GetBid(ctx, bidID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load bid: %w", err)
	}
	if b == nil {
		res := outcome.Conflict(outcome.ReasonNotFound, "bid not found")
		return nil, nil, &res, nil
	}
	if b.RFQID != r.ID {
		return nil, nil, nil, fmt.Errorf("%w: bid %s does not belong to rfq %s", outcome.ErrInvariantViolation, b.ID, r.ID)
	}
	if r.Status != rfq.StatusOpen {
		res := outcome.Conflict(outcome.ReasonRfqNotOpen, "rfq is no longer open")
		return nil, nil, &res, nil
	}
	if b.Status != rfq.BidSubmitted {
		res := outcome.PreconditionFailed(outcome.ReasonBidNotAvailable, "bid is no longer available")
		return nil, nil, &res, nil
	}
	return r, b, nil, nil
}

// AcceptBid awards the RFQ to one bid and rejects the rest. The referral payout,
// when owed, is recorded afterwards and never blocks the award.
func (s *Service) AcceptBid(ctx context.Context, rfqID, bidID, customerID uuid.UUID) (*AwardResult, error) {
	_, _, res, err := s.loadOwned(ctx, rfqID, bidID, customerID)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return &AwardResult{Result: *res}, nil
	}

	ok, err := s.rfqs.Award(ctx, rfqID, bidID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to award rfq: %w", err)
	}
	r, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload rfq: %w", err)
	}
	if !ok {
		if r == nil || r.Status != rfq.StatusOpen {
			return &AwardResult{Result: outcome.Conflict(outcome.ReasonRfqNotOpen, "rfq is no longer open")}, nil
		}
		return &AwardResult{Result: outcome.Conflict(outcome.ReasonBidNotAvailable, "bid is no longer available")}, nil
	}
	bids, err := s.rfqs.ListBids(ctx, rfqID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload bids: %w", err)
	}

	result := &AwardResult{Result: outcome.Success(), RFQ: r}
	for _, b := range bids {
		if b.ID == bidID {
			result.Bid = b
			s.emit(ctx, notification.NewEvent(notification.TypeBidAccepted, b.ID, b.WorkshopID).With("rfqId", rfqID))
		} else if b.Status == rfq.BidRejected {
			s.emit(ctx, notification.NewEvent(notification.TypeBidRejected, b.ID, b.WorkshopID).With("rfqId", rfqID))
		}
	}
	s.logger.Info().
		Str("rfqId", rfqID.String()).
		Str("bidId", bidID.String()).
		Msg("rfq awarded")
	s.emit(ctx, notification.NewEvent(notification.TypeRfqAwarded, rfqID, r.CustomerID).With("bidId", bidID))

	if r.HasReferral() && result.Bid != nil {
		result.Referral = s.recordReferral(ctx, r, result.Bid)
	}
	return result, nil
}

// recordReferral computes and stores the payout, retrying transient failures.
// A payout that still fails is left for ReconcileReferrals.
func (s *Service) recordReferral(ctx context.Context, r *rfq.RFQ, b *rfq.Bid) *rfq.ReferralPayout {
	payout := rfq.NewReferralPayout(r, b, s.now())
	var err error
	for attempt := 1; attempt <= referralAttempts; attempt++ {
		if err = s.referrals.Record(ctx, payout); err == nil {
			s.logger.Info().
				Str("rfqId", r.ID.String()).
				Str("mechanicId", payout.MechanicID.String()).
				Int64("feeCents", payout.FeeCents).
				Msg("referral payout recorded")
			s.emit(ctx, notification.NewEvent(notification.TypeReferralRecorded, r.ID, payout.MechanicID).
				With("feeCents", payout.FeeCents))
			return payout
		}
		if attempt < referralAttempts {
			select {
			case <-time.After(s.referralBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				attempt = referralAttempts
			}
		}
	}
	s.logger.Error().Err(err).
		Str("rfqId", r.ID.String()).
		Str("bidId", b.ID.String()).
		Int64("feeCents", payout.FeeCents).
		Msg("referral payout pending reconciliation")
	return nil
}

// ReconcileReferrals records payouts missing for awarded referral RFQs.
func (s *Service) ReconcileReferrals(ctx context.Context, limit int) (int, error) {
	pending, err := s.referrals.ListUnrecorded(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unrecorded referrals: %w", err)
	}
	recorded := 0
	for _, r := range pending {
		if r.AcceptedBidID == nil {
			continue
		}
		b, err := s.rfqs.GetBid(ctx, *r.AcceptedBidID)
		if err != nil || b == nil {
			s.logger.Warn().Err(err).Str("rfqId", r.ID.String()).Msg("accepted bid missing for referral")
			continue
		}
		payout := rfq.NewReferralPayout(r, b, s.now())
		if err := s.referrals.Record(ctx, payout); err != nil {
			s.logger.Warn().Err(err).Str("rfqId", r.ID.String()).Msg("referral reconciliation failed")
			continue
		}
		recorded++
		s.emit(ctx, notification.NewEvent(notification.TypeReferralRecorded, r.ID, payout.MechanicID).
			With("feeCents", payout.FeeCents))
	}
	if recorded > 0 {
		s.logger.Info().Int("recorded", recorded).Msg("referral payouts reconciled")
	}
	return recorded, nil
}

// RejectBid declines one submitted bid while the RFQ stays open. The bid still
// counts toward the cap.
func (s *Service) RejectBid(ctx context.Context, rfqID, bidID, customerID uuid.UUID) (*BidResult, error) {
	_, b, res, err := s.loadOwned(ctx, rfqID, bidID, customerID)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return &BidResult{Result: *res}, nil
	}
	ok, err := s.rfqs.RejectBid(ctx, bidID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to reject bid: %w", err)
	}
	if !ok {
		return &BidResult{Result: outcome.Conflict(outcome.ReasonBidNotAvailable, "bid is no longer available")}, nil
	}
	b, err = s.rfqs.GetBid(ctx, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload bid: %w", err)
	}
	s.emit(ctx, notification.NewEvent(notification.TypeBidRejected, bidID, b.WorkshopID).With("rfqId", rfqID))
	return &BidResult{Result: outcome.Success(), Bid: b}, nil
}

// RFQResult is the outcome of an RFQ status change.
type RFQResult struct {
	outcome.Result
	RFQ *rfq.RFQ `json:"rfq,omitempty"`
}

// CancelRfq withdraws an open RFQ; submitted bids are rejected.
func (s *Service) CancelRfq(ctx context.Context, rfqID, customerID uuid.UUID) (*RFQResult, error) {
	r, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rfq: %w", err)
	}
	if r == nil {
		return &RFQResult{Result: outcome.Conflict(outcome.ReasonNotFound, "rfq not found")}, nil
	}
	if r.CustomerID != customerID {
		return nil, outcome.ErrForbidden
	}
	ok, err := s.rfqs.TransitionStatus(ctx, rfqID, rfq.StatusCancelled, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel rfq: %w", err)
	}
	if !ok {
		return &RFQResult{Result: outcome.Conflict(outcome.ReasonRfqNotOpen, "rfq is no longer open")}, nil
	}
	r, err = s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload rfq: %w", err)
	}
	s.emit(ctx, notification.NewEvent(notification.TypeRfqCancelled, rfqID, s.bidders(ctx, rfqID)...))
	return &RFQResult{Result: outcome.Success(), RFQ: r}, nil
}

// ExpireRfq closes one RFQ whose deadline passed and asks the customer to review
// the bids it collected.
func (s *Service) ExpireRfq(ctx context.Context, r *rfq.RFQ, now time.Time) (bool, error) {
	if !now.After(r.BidDeadline) {
		return false, nil
	}
	ok, err := s.rfqs.TransitionStatus(ctx, r.ID, rfq.StatusExpired, now)
	if err != nil || !ok {
		return ok, err
	}
	s.logger.Info().Str("rfqId", r.ID.String()).Int("bidCount", r.BidCount).Msg("rfq expired")
	s.emit(ctx, notification.NewEvent(notification.TypeRfqExpired, r.ID, r.CustomerID).
		With("bidCount", r.BidCount).
		With("action", "review_bids"))
	if bidders := s.bidders(ctx, r.ID); len(bidders) > 0 {
		s.emit(ctx, notification.NewEvent(notification.TypeRfqExpired, r.ID, bidders...))
	}
	return true, nil
}

// ExpireRfqs expires every open RFQ past its deadline.
func (s *Service) ExpireRfqs(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.rfqs.ListOpenPastDeadline(ctx, now, listBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired rfqs: %w", err)
	}
	expired := 0
	for _, r := range due {
		ok, err := s.ExpireRfq(ctx, r, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("rfqId", r.ID.String()).Msg("failed to expire rfq")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) bidders(ctx context.Context, rfqID uuid.UUID) []uuid.UUID {
	bids, err := s.rfqs.ListBids(ctx, rfqID)
	if err != nil {
		return nil
	}
	out := make([]uuid.UUID, 0, len(bids))
	for _, b := range bids {
		out = append(out, b.WorkshopID)
	}
	return out
}

func (s *Service) emit(ctx context.Context, event notification.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(ctx, event)
}
