package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wrenchhub/wrenchhub/internal/application/ledger"
	"github.com/wrenchhub/wrenchhub/internal/domain/extension"
	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
	"github.com/wrenchhub/wrenchhub/internal/domain/outcome"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
)

const (
	// DefaultRequestTTL is how long an unaccepted request stays claimable.
	DefaultRequestTTL    = 15 * time.Minute
	maxDescriptionLength = 2000
	// maxWriteAttempts bounds re-reads after concurrent same-status writes.
	maxWriteAttempts = 5
)

// Service owns the session request and session state machines.
type Service struct {
	requests   session.RequestRepository
	sessions   session.Repository
	ledger     *ledger.Service
	dispatcher notification.Dispatcher
	requestTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates a lifecycle service.
func NewService(
	requests session.RequestRepository,
	sessions session.Repository,
	ledgerSvc *ledger.Service,
	dispatcher notification.Dispatcher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		requests:   requests,
		sessions:   sessions,
		ledger:     ledgerSvc,
		dispatcher: dispatcher,
		requestTTL: DefaultRequestTTL,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With().Str("service", "lifecycle").Logger(),
	}
}

// WithClock replaces the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithRequestTTL sets how long a pending request may be accepted. Zero disables the check.
func (s *Service) WithRequestTTL(ttl time.Duration) *Service {
	s.requestTTL = ttl
	return s
}

// RequestResult is the outcome of a request operation.
type RequestResult struct {
	outcome.Result
	Request *session.Request `json:"request,omitempty"`
}

// SessionResult is the outcome of a session operation.
type SessionResult struct {
	outcome.Result
	Session *session.Session `json:"session,omitempty"`
}

func sessionConflict(reason outcome.Reason, msg string) *SessionResult {
	return &SessionResult{Result: outcome.Conflict(reason, msg)}
}

func sessionPrecondition(reason outcome.Reason, msg string) *SessionResult {
	return &SessionResult{Result: outcome.PreconditionFailed(reason, msg)}
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", outcome.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// CreateRequestInput is a customer's ask for help.
type CreateRequestInput struct {
	CustomerID     uuid.UUID
	Description    string
	Plan           string
	ScheduledStart *time.Time
}

// CreateRequest posts a request to the mechanic queue.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*session.Request, error) {
	if in.CustomerID == uuid.Nil {
		return nil, invalidInput("customer_id is required")
	}
	plan, err := session.ParsePlan(in.Plan)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, invalidInput("description is required")
	}
	if len(desc) > maxDescriptionLength {
		return nil, invalidInput("description exceeds %d characters", maxDescriptionLength)
	}
	now := s.now()
	start, err := normalizeStart(in.ScheduledStart, now)
	if err != nil {
		return nil, err
	}

	req := &session.Request{
		ID:             uuid.New(),
		CustomerID:     in.CustomerID,
		Description:    desc,
		Plan:           plan,
		ScheduledStart: start,
		Status:         session.RequestPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.logger.Info().
		Str("requestId", req.ID.String()).
		Str("customerId", req.CustomerID.String()).
		Str("plan", string(plan)).
		Msg("session request created")
	s.emit(ctx, notification.NewEvent(notification.TypeRequestCreated, req.ID).
		ToGroups(notification.GroupMechanics).
		With("plan", plan).
		With("immediate", req.IsImmediate()))
	return req, nil
}

func normalizeStart(start *time.Time, now time.Time) (*time.Time, error) {
	if start == nil {
		return nil, nil
	}
	if !start.After(now) {
		return nil, invalidInput("scheduled_start must be in the future")
	}
	utc := start.UTC()
	return &utc, nil
}

// GetRequest returns a request or nil.
func (s *Service) GetRequest(ctx context.Context, requestID uuid.UUID) (*session.Request, error) {
	return s.requests.GetRequest(ctx, requestID)
}

// ListPendingRequests is the mechanic queue, oldest first.
func (s *Service) ListPendingRequests(ctx context.Context, limit, offset int) ([]*session.Request, error) {
	return s.requests.ListPendingRequests(ctx, limit, offset)
}

// CancelRequest withdraws a pending request.
func (s *Service) CancelRequest(ctx context.Context, requestID, customerID uuid.UUID) (*RequestResult, error) {
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return &RequestResult{Result: outcome.Conflict(outcome.ReasonNotFound, "request not found")}, nil
	}
	if req.CustomerID != customerID {
		return nil, outcome.ErrForbidden
	}
	ok, err := s.requests.TransitionRequest(ctx, requestID, session.RequestPending, session.RequestCancelled, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel request: %w", err)
	}
	if !ok {
		return &RequestResult{Result: outcome.Conflict(outcome.ReasonInvalidTransition, "request is no longer pending")}, nil
	}
	req, err = s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload request: %w", err)
	}
	s.emit(ctx, notification.NewEvent(notification.TypeRequestCancelled, requestID).ToGroups(notification.GroupMechanics))
	return &RequestResult{Result: outcome.Success(), Request: req}, nil
}

// AcceptRequest lets a mechanic claim a pending request. Exactly one concurrent
// caller wins; the rest get conflict/request_taken.
func (s *Service) AcceptRequest(ctx context.Context, requestID, mechanicID uuid.UUID) (*SessionResult, error) {
	if mechanicID == uuid.Nil {
		return nil, invalidInput("mechanic_id is required")
	}
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return sessionConflict(outcome.ReasonNotFound, "request not found"), nil
	}
	if req.Status != session.RequestPending {
		return sessionConflict(outcome.ReasonRequestTaken, "request is no longer available"), nil
	}
	now := s.now()
	if s.requestTTL > 0 && now.Sub(req.CreatedAt) > s.requestTTL {
		if ok, err := s.requests.TransitionRequest(ctx, requestID, session.RequestPending, session.RequestExpired, now); err != nil {
			s.logger.Warn().Err(err).Str("requestId", requestID.String()).Msg("failed to expire stale request")
		} else if ok {
			s.emit(ctx, notification.NewEvent(notification.TypeRequestExpired, requestID, req.CustomerID).ToGroups(notification.GroupMechanics))
		}
		return sessionConflict(outcome.ReasonRequestTaken, "request expired"), nil
	}

	sess := newSessionFromRequest(req, mechanicID, now)
	ok, err := s.requests.AcceptRequest(ctx, requestID, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to accept request: %w", err)
	}
	if !ok {
		s.logger.Debug().
			Str("requestId", requestID.String()).
			Str("mechanicId", mechanicID.String()).
			Msg("lost acceptance race")
		return sessionConflict(outcome.ReasonRequestTaken, "request was accepted by another mechanic"), nil
	}

	s.logger.Info().
		Str("requestId", requestID.String()).
		Str("sessionId", sess.ID.String()).
		Str("mechanicId", mechanicID.String()).
		Msg("request accepted")
	s.emit(ctx, notification.NewEvent(notification.TypeRequestTaken, requestID).
		ToGroups(notification.GroupMechanics).
		With("mechanicId", mechanicID))
	s.emit(ctx, notification.NewEvent(notification.TypeSessionCreated, sess.ID, participants(sess)...).
		With("status", sess.Status))
	return &SessionResult{Result: outcome.Success(), Session: sess}, nil
}

func newSessionFromRequest(req *session.Request, mechanicID uuid.UUID, now time.Time) *session.Session {
	requestID := req.ID
	sess := &session.Session{
		ID:              uuid.New(),
		RequestID:       &requestID,
		CustomerID:      req.CustomerID,
		MechanicID:      &mechanicID,
		Status:          session.StatusWaiting,
		Plan:            req.Plan,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.ScheduledStart != nil && req.ScheduledStart.After(now) {
		sess.Status = session.StatusScheduled
		setWindow(sess, *req.ScheduledStart)
	}
	return sess
}

func setWindow(sess *session.Session, start time.Time) {
	end := start.Add(sess.Plan.BaseDuration())
	sess.ScheduledStart = &start
	sess.ScheduledEnd = &end
}

// BookInput is a direct booking with a chosen mechanic.
type BookInput struct {
	CustomerID     uuid.UUID
	MechanicID     uuid.UUID
	Plan           string
	ScheduledStart *time.Time
}

// BookSession creates a pending session awaiting mechanic confirmation.
func (s *Service) BookSession(ctx context.Context, in BookInput) (*session.Session, error) {
	if in.CustomerID == uuid.Nil || in.MechanicID == uuid.Nil {
		return nil, invalidInput("customer_id and mechanic_id are required")
	}
	if in.CustomerID == in.MechanicID {
		return nil, invalidInput("customer and mechanic must differ")
	}
	plan, err := session.ParsePlan(in.Plan)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	now := s.now()
	start, err := normalizeStart(in.ScheduledStart, now)
	if err != nil {
		return nil, err
	}
	mechanicID := in.MechanicID
	sess := &session.Session{
		ID:              uuid.New(),
		CustomerID:      in.CustomerID,
		MechanicID:      &mechanicID,
		Status:          session.StatusPending,
		Plan:            plan,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if start != nil {
		setWindow(sess, *start)
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info().
		Str("sessionId", sess.ID.String()).
		Str("mechanicId", mechanicID.String()).
		Msg("session booked")
	s.emit(ctx, notification.NewEvent(notification.TypeSessionCreated, sess.ID, mechanicID).
		With("status", sess.Status))
	return sess, nil
}

// GetSession returns a session or nil.
func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

// ListExtensions returns the extension ledger of a session.
func (s *Service) ListExtensions(ctx context.Context, sessionID uuid.UUID) ([]*extension.Extension, error) {
	return s.ledger.ListBySession(ctx, sessionID)
}

// loadForActor fetches a session and checks the actor takes part in it.
func (s *Service) loadForActor(ctx context.Context, sessionID, actorID uuid.UUID) (*session.Session, *SessionResult, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, sessionConflict(outcome.ReasonNotFound, "session not found"), nil
	}
	if actorID != uuid.Nil && !sess.IsParticipant(actorID) {
		return nil, nil, outcome.ErrForbidden
	}
	return sess, nil, nil
}

// update reads the session, lets change edit it and writes it back if the row is
// untouched. A concurrent write in the same status (a join, a waiver, a ledger
// extension) is re-read and change runs again on fresh state; a status change by
// someone else is a conflict. change returns a non-nil result to stop without
// writing.
func (s *Service) update(
	ctx context.Context,
	sessionID, actorID uuid.UUID,
	change func(sess *session.Session) (*SessionResult, error),
) (*SessionResult, error) {
	var first session.Status
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		sess, res, err := s.loadForActor(ctx, sessionID, actorID)
		if err != nil || res != nil {
			return res, err
		}
		if attempt == 0 {
			first = sess.Status
		} else if sess.Status != first {
			break
		}
		expected := sess.Status
		if res, err := change(sess); err != nil || res != nil {
			return res, err
		}
		ok, err := s.sessions.UpdateIfStatus(ctx, sess, expected)
		if err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		if ok {
			return &SessionResult{Result: outcome.Success(), Session: sess}, nil
		}
	}
	return sessionConflict(outcome.ReasonInvalidTransition, "session changed concurrently"), nil
}

// ConfirmBooking is the mechanic's acceptance of a direct booking.
func (s *Service) ConfirmBooking(ctx context.Context, sessionID, mechanicID uuid.UUID) (*SessionResult, error) {
	res, err := s.update(ctx, sessionID, mechanicID, func(sess *session.Session) (*SessionResult, error) {
		if sess.MechanicID == nil || *sess.MechanicID != mechanicID {
			return nil, outcome.ErrForbidden
		}
		if sess.Status != session.StatusPending {
			return sessionConflict(outcome.ReasonInvalidTransition, "session is not awaiting confirmation"), nil
		}
		if err := sess.Confirm(s.now()); err != nil {
			return sessionConflict(outcome.ReasonInvalidTransition, err.Error()), nil
		}
		return nil, nil
	})
	if err != nil || !res.OK() {
		return res, err
	}
	sess := res.Session
	s.emit(ctx, notification.NewEvent(notification.TypeSessionConfirmed, sess.ID, sess.CustomerID).
		With("status", sess.Status))
	return res, nil
}

// SignWaiver records the customer's liability waiver. Signing twice is a no-op.
func (s *Service) SignWaiver(ctx context.Context, sessionID, customerID uuid.UUID) (*SessionResult, error) {
	return s.update(ctx, sessionID, customerID, func(sess *session.Session) (*SessionResult, error) {
		if sess.CustomerID != customerID {
			return nil, outcome.ErrForbidden
		}
		if sess.WaiverSignedAt != nil {
			return &SessionResult{Result: outcome.Success(), Session: sess}, nil
		}
		if sess.IsTerminal() {
			return sessionConflict(outcome.ReasonInvalidTransition, "session has ended"), nil
		}
		now := s.now()
		sess.WaiverSignedAt = &now
		sess.UpdatedAt = now
		return nil, nil
	})
}

// JoinSession records that a participant has entered the session room.
func (s *Service) JoinSession(ctx context.Context, sessionID, userID uuid.UUID) (*SessionResult, error) {
	if userID == uuid.Nil {
		return nil, invalidInput("user_id is required")
	}
	return s.update(ctx, sessionID, userID, func(sess *session.Session) (*SessionResult, error) {
		if sess.IsTerminal() || sess.Status == session.StatusPending {
			return sessionConflict(outcome.ReasonInvalidTransition, "session cannot be joined in status "+string(sess.Status)), nil
		}
		if err := sess.MarkJoined(userID, s.now()); err != nil {
			return nil, outcome.ErrForbidden
		}
		return nil, nil
	})
}

// Heartbeat records activity in a live session.
func (s *Service) Heartbeat(ctx context.Context, sessionID, userID uuid.UUID) (outcome.Result, error) {
	sess, res, err := s.loadForActor(ctx, sessionID, userID)
	if err != nil {
		return outcome.Result{}, err
	}
	if res != nil {
		return res.Result, nil
	}
	if sess.Status != session.StatusLive {
		return outcome.PreconditionFailed(outcome.ReasonSessionNotLive, "session is not live"), nil
	}
	if err := s.sessions.TouchActivity(ctx, sessionID, s.now()); err != nil {
		return outcome.Result{}, fmt.Errorf("failed to record activity: %w", err)
	}
	return outcome.Success(), nil
}

// StartSession puts a waiting or scheduled session live. actorID may be uuid.Nil
// for system callers.
func (s *Service) StartSession(ctx context.Context, sessionID, actorID uuid.UUID) (*SessionResult, error) {
	res, err := s.update(ctx, sessionID, actorID, func(sess *session.Session) (*SessionResult, error) {
		if sess.Status != session.StatusWaiting && sess.Status != session.StatusScheduled {
			return sessionConflict(outcome.ReasonInvalidTransition, "session cannot start from status "+string(sess.Status)), nil
		}
		if !sess.BothJoined() {
			return sessionPrecondition(outcome.ReasonParticipantsMissing, "both participants must join before the session starts"), nil
		}
		if sess.IsBooked() && sess.WaiverSignedAt == nil {
			return sessionPrecondition(outcome.ReasonWaiverRequired, "customer must sign the waiver first"), nil
		}
		if err := sess.Start(s.now()); err != nil {
			return sessionConflict(outcome.ReasonInvalidTransition, err.Error()), nil
		}
		return nil, nil
	})
	if err != nil || !res.OK() {
		return res, err
	}
	sess := res.Session
	s.logger.Info().Str("sessionId", sess.ID.String()).Msg("session started")
	s.emit(ctx, notification.NewEvent(notification.TypeSessionStarted, sess.ID, participants(sess)...))
	return res, nil
}

// ExtendSession applies a paid extension. Replayed tokens succeed without effect.
func (s *Service) ExtendSession(ctx context.Context, sessionID uuid.UUID, minutes int, paymentToken string) (*ledger.ApplyResult, error) {
	res, err := s.ledger.Apply(ctx, sessionID, minutes, paymentToken)
	if err != nil || !res.OK() || res.Replayed {
		return res, err
	}
	var audience []uuid.UUID
	if sess, err := s.sessions.GetByID(ctx, sessionID); err == nil && sess != nil {
		audience = participants(sess)
	}
	s.emit(ctx, notification.NewEvent(notification.TypeSessionExtended, sessionID, audience...).
		With("minutes", minutes).
		With("totalMinutes", res.TotalMinutes))
	return res, nil
}

// EndInput ends a session.
type EndInput struct {
	SessionID uuid.UUID
	// ActorID is uuid.Nil for system callers.
	ActorID   uuid.UUID
	Reason    string
	Completed bool
}

// EndSession completes a live session or cancels any non-terminal one. The
// recorded duration is clipped to the plan allowance including every extension
// stored before the write.
func (s *Service) EndSession(ctx context.Context, in EndInput) (*SessionResult, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "cancelled"
		if in.Completed {
			reason = "completed"
		}
	}
	res, err := s.update(ctx, in.SessionID, in.ActorID, func(sess *session.Session) (*SessionResult, error) {
		var err error
		if in.Completed {
			if sess.Status != session.StatusLive {
				return sessionConflict(outcome.ReasonInvalidTransition, "only live sessions can be completed"), nil
			}
			err = sess.Complete(s.now(), reason)
		} else {
			err = sess.Cancel(s.now(), reason)
		}
		if err != nil {
			return sessionConflict(outcome.ReasonInvalidTransition, err.Error()), nil
		}
		return nil, nil
	})
	if err != nil || !res.OK() {
		return res, err
	}
	sess := res.Session

	eventType := notification.TypeSessionCancelled
	if in.Completed {
		eventType = notification.TypeSessionCompleted
	}
	s.logger.Info().
		Str("sessionId", sess.ID.String()).
		Str("status", string(sess.Status)).
		Int64("durationSeconds", sess.DurationSeconds).
		Str("reason", reason).
		Msg("session ended")
	s.emit(ctx, notification.NewEvent(eventType, sess.ID, participants(sess)...).
		With("durationSeconds", sess.DurationSeconds).
		With("reason", reason))
	return res, nil
}

func participants(sess *session.Session) []uuid.UUID {
	out := []uuid.UUID{sess.CustomerID}
	if sess.MechanicID != nil {
		out = append(out, *sess.MechanicID)
	}
	return out
}

func (s *Service) emit(ctx context.Context, event notification.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(ctx, event)
}
