package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wrenchhub/wrenchhub/internal/application/ledger"
	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
	"github.com/wrenchhub/wrenchhub/internal/domain/notification/mocks"
	"github.com/wrenchhub/wrenchhub/internal/domain/outcome"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	events *mocks.RecordingDispatcher
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f, _ := newInterceptedFixture(t)
	return f
}

// newInterceptedFixture lets a test act between a service's session read and its write.
func newInterceptedFixture(t *testing.T) (*fixture, *interceptedSessions) {
	t.Helper()
	store := memory.NewStore()
	sessions := &interceptedSessions{SessionRepository: store.Sessions()}
	clk := &clock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	events := &mocks.RecordingDispatcher{}
	ledgerSvc := ledger.NewService(store.Extensions(), zerolog.Nop()).WithClock(clk.Now)
	svc := NewService(store.Requests(), sessions, ledgerSvc, events, zerolog.Nop()).WithClock(clk.Now)
	return &fixture{svc: svc, store: store, events: events, clock: clk}, sessions
}

// interceptedSessions runs hook after each of the next reads returns from storage.
type interceptedSessions struct {
	*memory.SessionRepository
	mu   sync.Mutex
	left int
	hook func()
}

func (r *interceptedSessions) intercept(reads int, hook func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = reads
	r.hook = hook
}

func (r *interceptedSessions) GetByID(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	s, err := r.SessionRepository.GetByID(ctx, sessionID)
	r.mu.Lock()
	var hook func()
	if r.left > 0 {
		r.left--
		hook = r.hook
	}
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s, err
}

// barrier returns a hook that holds each of n callers until all n have arrived.
func barrier(n int) func() {
	var wg sync.WaitGroup
	wg.Add(n)
	return func() {
		wg.Done()
		wg.Wait()
	}
}

func (f *fixture) request(t *testing.T, start *time.Time) *session.Request {
	t.Helper()
	req, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
		CustomerID:     uuid.New(),
		Description:    "Check engine light after rain",
		Plan:           "chat",
		ScheduledStart: start,
	})
	require.NoError(t, err)
	return req
}

// liveSession walks an immediate request all the way to live.
func (f *fixture) liveSession(t *testing.T) *session.Session {
	t.Helper()
	ctx := context.Background()
	req := f.request(t, nil)
	mech := uuid.New()
	res, err := f.svc.AcceptRequest(ctx, req.ID, mech)
	require.NoError(t, err)
	require.True(t, res.OK())
	id := res.Session.ID
	_, err = f.svc.JoinSession(ctx, id, req.CustomerID)
	require.NoError(t, err)
	_, err = f.svc.JoinSession(ctx, id, mech)
	require.NoError(t, err)
	started, err := f.svc.StartSession(ctx, id, mech)
	require.NoError(t, err)
	require.True(t, started.OK(), started.Message)
	return started.Session
}

func TestService_CreateRequestValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRequest(ctx, CreateRequestInput{CustomerID: uuid.New(), Description: "x", Plan: "gold"})
	assert.ErrorIs(t, err, outcome.ErrInvalidInput)

	past := f.clock.Now().Add(-time.Minute)
	_, err = f.svc.CreateRequest(ctx, CreateRequestInput{CustomerID: uuid.New(), Description: "x", Plan: "chat", ScheduledStart: &past})
	assert.ErrorIs(t, err, outcome.ErrInvalidInput)

	req := f.request(t, nil)
	assert.Equal(t, session.RequestPending, req.Status)
	created := f.events.OfType(notification.TypeRequestCreated)
	require.Len(t, created, 1)
	assert.Contains(t, created[0].Audience.Groups, notification.GroupMechanics)
}

func TestService_AcceptRequestExactlyOnce(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, nil)

	const n = 25
	results := make(chan *SessionResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.AcceptRequest(context.Background(), req.ID, uuid.New())
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	var wins, taken int
	for res := range results {
		switch {
		case res.OK():
			wins++
			assert.Equal(t, session.StatusWaiting, res.Session.Status)
		case res.Kind == outcome.KindConflict && res.Reason == outcome.ReasonRequestTaken:
			taken++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, taken)
	assert.Len(t, f.events.OfType(notification.TypeRequestTaken), 1)
	assert.Len(t, f.events.OfType(notification.TypeSessionCreated), 1)
}

func TestService_AcceptExpiredRequestConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, nil)

	f.clock.Advance(16 * time.Minute)
	res, err := f.svc.AcceptRequest(ctx, req.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, outcome.KindConflict, res.Kind)
	assert.Equal(t, outcome.ReasonRequestTaken, res.Reason)

	got, err := f.svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RequestExpired, got.Status)
	assert.Nil(t, got.SessionID)
}

func TestService_AcceptUnknownRequest(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.AcceptRequest(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonNotFound, res.Reason)
}

func TestService_AcceptBookedRequestIsScheduled(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now().Add(3 * time.Hour)
	req := f.request(t, &start)

	res, err := f.svc.AcceptRequest(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, session.StatusScheduled, res.Session.Status)
	require.NotNil(t, res.Session.ScheduledEnd)
	assert.Equal(t, start.Add(30*time.Minute), *res.Session.ScheduledEnd)
}

func TestService_CancelRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, nil)

	_, err := f.svc.CancelRequest(ctx, req.ID, uuid.New())
	assert.ErrorIs(t, err, outcome.ErrForbidden)

	res, err := f.svc.CancelRequest(ctx, req.ID, req.CustomerID)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, session.RequestCancelled, res.Request.Status)

	res, err = f.svc.CancelRequest(ctx, req.ID, req.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonInvalidTransition, res.Reason)

	accept, err := f.svc.AcceptRequest(ctx, req.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonRequestTaken, accept.Reason)
}

func TestService_ListPendingRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.request(t, nil)
	f.clock.Advance(time.Second)
	b := f.request(t, nil)
	_, err := f.svc.AcceptRequest(ctx, a.ID, uuid.New())
	require.NoError(t, err)

	pending, err := f.svc.ListPendingRequests(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}

func TestService_StartSessionPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now().Add(time.Hour)
	req := f.request(t, &start)
	mech := uuid.New()
	accepted, err := f.svc.AcceptRequest(ctx, req.ID, mech)
	require.NoError(t, err)
	id := accepted.Session.ID

	res, err := f.svc.StartSession(ctx, id, mech)
	require.NoError(t, err)
	assert.Equal(t, outcome.KindPreconditionFailed, res.Kind)
	assert.Equal(t, outcome.ReasonParticipantsMissing, res.Reason)

	_, err = f.svc.JoinSession(ctx, id, req.CustomerID)
	require.NoError(t, err)
	_, err = f.svc.JoinSession(ctx, id, mech)
	require.NoError(t, err)

	res, err = f.svc.StartSession(ctx, id, mech)
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonWaiverRequired, res.Reason)

	_, err = f.svc.SignWaiver(ctx, id, mech)
	assert.ErrorIs(t, err, outcome.ErrForbidden)
	signed, err := f.svc.SignWaiver(ctx, id, req.CustomerID)
	require.NoError(t, err)
	require.True(t, signed.OK())
	again, err := f.svc.SignWaiver(ctx, id, req.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, *signed.Session.WaiverSignedAt, *again.Session.WaiverSignedAt)

	res, err = f.svc.StartSession(ctx, id, mech)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, session.StatusLive, res.Session.Status)

	res, err = f.svc.StartSession(ctx, id, mech)
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonInvalidTransition, res.Reason)

	_, err = f.svc.StartSession(ctx, id, uuid.New())
	assert.ErrorIs(t, err, outcome.ErrForbidden)
}

func TestService_EndSessionClipsDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live := f.liveSession(t)

	f.clock.Advance(50 * time.Minute)
	res, err := f.svc.EndSession(ctx, EndInput{SessionID: live.ID, ActorID: *live.MechanicID, Completed: true})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, session.StatusCompleted, res.Session.Status)
	assert.Equal(t, int64(30*60), res.Session.DurationSeconds)
	assert.Len(t, f.events.OfType(notification.TypeSessionCompleted), 1)

	again, err := f.svc.EndSession(ctx, EndInput{SessionID: live.ID, Completed: false})
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonInvalidTransition, again.Reason)
}

func TestService_ExtendSessionGrowsAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live := f.liveSession(t)

	res, err := f.svc.ExtendSession(ctx, live.ID, 15, "pay_1")
	require.NoError(t, err)
	require.True(t, res.OK())
	replay, err := f.svc.ExtendSession(ctx, live.ID, 15, "pay_1")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Len(t, f.events.OfType(notification.TypeSessionExtended), 1)

	f.clock.Advance(40 * time.Minute)
	ended, err := f.svc.EndSession(ctx, EndInput{SessionID: live.ID, Completed: true, Reason: "fixed"})
	require.NoError(t, err)
	require.True(t, ended.OK())
	assert.Equal(t, int64(40*60), ended.Session.DurationSeconds)
	assert.Equal(t, "fixed", ended.Session.EndReason)

	entries, err := f.svc.ListExtensions(ctx, live.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	late, err := f.svc.ExtendSession(ctx, live.ID, 15, "pay_2")
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonSessionNotLive, late.Reason)
}

func TestService_CancelBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, nil)
	accepted, err := f.svc.AcceptRequest(ctx, req.ID, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.EndSession(ctx, EndInput{SessionID: accepted.Session.ID, Completed: true})
	require.NoError(t, err)

	res, err := f.svc.EndSession(ctx, EndInput{SessionID: accepted.Session.ID, ActorID: req.CustomerID, Reason: "changed my mind"})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, session.StatusCancelled, res.Session.Status)
	assert.Zero(t, res.Session.DurationSeconds)
}

func TestService_Heartbeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, nil)
	accepted, err := f.svc.AcceptRequest(ctx, req.ID, uuid.New())
	require.NoError(t, err)

	res, err := f.svc.Heartbeat(ctx, accepted.Session.ID, req.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonSessionNotLive, res.Reason)

	live := f.liveSession(t)
	f.clock.Advance(10 * time.Minute)
	res, err = f.svc.Heartbeat(ctx, live.ID, live.CustomerID)
	require.NoError(t, err)
	assert.True(t, res.OK())
	got, _ := f.svc.GetSession(ctx, live.ID)
	assert.Equal(t, f.clock.Now(), *got.LastActivityAt)
}

func TestService_BookAndConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer, mech := uuid.New(), uuid.New()
	start := f.clock.Now().Add(24 * time.Hour)

	booked, err := f.svc.BookSession(ctx, BookInput{CustomerID: customer, MechanicID: mech, Plan: "diagnostic", ScheduledStart: &start})
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, booked.Status)

	_, err = f.svc.ConfirmBooking(ctx, booked.ID, customer)
	assert.ErrorIs(t, err, outcome.ErrForbidden)

	res, err := f.svc.ConfirmBooking(ctx, booked.ID, mech)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, session.StatusScheduled, res.Session.Status)

	res, err = f.svc.ConfirmBooking(ctx, booked.ID, mech)
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonInvalidTransition, res.Reason)
	assert.Len(t, f.events.OfType(notification.TypeSessionConfirmed), 1)
}

func TestService_ConcurrentJoinsBothRecorded(t *testing.T) {
	f, sessions := newInterceptedFixture(t)
	ctx := context.Background()
	req := f.request(t, nil)
	mech := uuid.New()
	accepted, err := f.svc.AcceptRequest(ctx, req.ID, mech)
	require.NoError(t, err)
	require.True(t, accepted.OK())
	id := accepted.Session.ID

	// both joins read the same snapshot before either writes
	sessions.intercept(2, barrier(2))
	var wg sync.WaitGroup
	results := make([]*SessionResult, 2)
	for i, user := range []uuid.UUID{req.CustomerID, mech} {
		wg.Add(1)
		go func(i int, user uuid.UUID) {
			defer wg.Done()
			res, err := f.svc.JoinSession(ctx, id, user)
			assert.NoError(t, err)
			results[i] = res
		}(i, user)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.True(t, res.OK(), res.Message)
	}
	stored, err := f.store.Sessions().GetByID(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, stored.CustomerJoinedAt)
	assert.NotNil(t, stored.MechanicJoinedAt)

	started, err := f.svc.StartSession(ctx, id, mech)
	require.NoError(t, err)
	assert.True(t, started.OK(), started.Message)
}

func TestService_WaiverSignedDuringJoinIsKept(t *testing.T) {
	f, sessions := newInterceptedFixture(t)
	ctx := context.Background()
	start := f.clock.Now().Add(time.Hour)
	req := f.request(t, &start)
	mech := uuid.New()
	accepted, err := f.svc.AcceptRequest(ctx, req.ID, mech)
	require.NoError(t, err)
	require.True(t, accepted.OK())
	id := accepted.Session.ID

	sessions.intercept(2, barrier(2))
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := f.svc.SignWaiver(ctx, id, req.CustomerID)
		assert.NoError(t, err)
		assert.True(t, res.OK())
	}()
	go func() {
		defer wg.Done()
		res, err := f.svc.JoinSession(ctx, id, mech)
		assert.NoError(t, err)
		assert.True(t, res.OK())
	}()
	wg.Wait()

	stored, err := f.store.Sessions().GetByID(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, stored.WaiverSignedAt)
	assert.NotNil(t, stored.MechanicJoinedAt)
}

func TestService_EndSessionCountsExtensionAppliedMidway(t *testing.T) {
	f, sessions := newInterceptedFixture(t)
	ctx := context.Background()
	live := f.liveSession(t)

	f.clock.Advance(50 * time.Minute)
	sessions.intercept(1, func() {
		res, err := f.svc.ExtendSession(ctx, live.ID, 30, "pay_midway")
		require.NoError(t, err)
		require.True(t, res.OK())
	})
	res, err := f.svc.EndSession(ctx, EndInput{SessionID: live.ID, ActorID: *live.MechanicID, Completed: true})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)

	stored, err := f.store.Sessions().GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.ExtensionMinutes)
	assert.Equal(t, int64(50*60), stored.DurationSeconds)
}

func TestService_StatusChangeDuringWriteConflicts(t *testing.T) {
	f, sessions := newInterceptedFixture(t)
	ctx := context.Background()
	live := f.liveSession(t)

	sessions.intercept(1, func() {
		res, err := f.svc.EndSession(ctx, EndInput{SessionID: live.ID, Reason: "dropped"})
		require.NoError(t, err)
		require.True(t, res.OK())
	})
	res, err := f.svc.EndSession(ctx, EndInput{SessionID: live.ID, ActorID: *live.MechanicID, Completed: true})
	require.NoError(t, err)
	assert.Equal(t, outcome.KindConflict, res.Kind)

	stored, err := f.store.Sessions().GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCancelled, stored.Status)
	assert.Equal(t, "dropped", stored.EndReason)
}

func TestService_RequestTakenDispatchedOnce(t *testing.T) {
	store := memory.NewStore()
	events := &mocks.MockDispatcher{}
	isTaken := func(e notification.Event) bool { return e.Type == notification.TypeRequestTaken }
	events.On("Dispatch", mock.Anything, mock.MatchedBy(isTaken)).Return().Once()
	events.On("Dispatch", mock.Anything, mock.MatchedBy(func(e notification.Event) bool { return !isTaken(e) })).Return()
	svc := NewService(store.Requests(), store.Sessions(), ledger.NewService(store.Extensions(), zerolog.Nop()), events, zerolog.Nop())
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, CreateRequestInput{CustomerID: uuid.New(), Description: "Brakes grinding", Plan: "video"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AcceptRequest(ctx, req.ID, uuid.New())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events.AssertExpectations(t)
	taken := 0
	for _, call := range events.Calls {
		if isTaken(call.Arguments.Get(1).(notification.Event)) {
			taken++
		}
	}
	assert.Equal(t, 1, taken)
}
