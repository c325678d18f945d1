package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenchhub/wrenchhub/internal/domain/extension"
	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func TestRequestRepository_AcceptRequestOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	reqs := store.Requests()

	req := &session.Request{ID: uuid.New(), CustomerID: uuid.New(), Plan: session.PlanChat, Status: session.RequestPending, CreatedAt: t0}
	require.NoError(t, reqs.CreateRequest(ctx, req))

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mech := uuid.New()
			s := &session.Session{ID: uuid.New(), CustomerID: req.CustomerID, MechanicID: &mech, Status: session.StatusWaiting, CreatedAt: t0}
			ok, err := reqs.AcceptRequest(ctx, req.ID, s)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := reqs.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RequestAccepted, got.Status)
	require.NotNil(t, got.SessionID)

	s, err := store.Sessions().GetByID(ctx, *got.SessionID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, *got.AcceptedBy, *s.MechanicID)
}

func TestSessionRepository_UpdateIfStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Sessions()
	s := &session.Session{ID: uuid.New(), Status: session.StatusWaiting, StatusChangedAt: t0}
	require.NoError(t, repo.Create(ctx, s))

	s.Status = session.StatusCancelled
	ok, err := repo.UpdateIfStatus(ctx, s, session.StatusWaiting)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateIfStatus(ctx, s, session.StatusWaiting)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionRepository_UpdateIfStatusRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Sessions()
	id := uuid.New()
	require.NoError(t, repo.Create(ctx, &session.Session{ID: id, Status: session.StatusWaiting}))
	customerView, _ := repo.GetByID(ctx, id)
	mechanicView, _ := repo.GetByID(ctx, id)

	customerView.CustomerJoinedAt = &t0
	ok, err := repo.UpdateIfStatus(ctx, customerView, session.StatusWaiting)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), customerView.Version)

	mechanicView.MechanicJoinedAt = &t0
	ok, err = repo.UpdateIfStatus(ctx, mechanicView, session.StatusWaiting)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, _ := repo.GetByID(ctx, id)
	assert.NotNil(t, stored.CustomerJoinedAt)
	assert.Nil(t, stored.MechanicJoinedAt)
}

func TestSessionRepository_ListOrphanedLive(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Sessions()
	started := t0.Add(-3 * time.Hour)
	idle := t0.Add(-time.Hour)
	busy := t0.Add(-time.Minute)

	orphan := &session.Session{ID: uuid.New(), Status: session.StatusLive, StartedAt: &started, LastActivityAt: &idle}
	active := &session.Session{ID: uuid.New(), Status: session.StatusLive, StartedAt: &started, LastActivityAt: &busy}
	require.NoError(t, repo.Create(ctx, orphan))
	require.NoError(t, repo.Create(ctx, active))

	got, err := repo.ListOrphanedLive(ctx, t0.Add(-2*time.Hour), t0.Add(-15*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, orphan.ID, got[0].ID)
}

func TestExtensionRepository_Append(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	live := &session.Session{ID: uuid.New(), Status: session.StatusLive}
	waiting := &session.Session{ID: uuid.New(), Status: session.StatusWaiting}
	require.NoError(t, store.Sessions().Create(ctx, live))
	require.NoError(t, store.Sessions().Create(ctx, waiting))
	repo := store.Extensions()

	first, created, err := repo.Append(ctx, extension.NewExtension(live.ID, 15, "tok-1", t0))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 15, first.TotalMinutes)

	replay, created, err := repo.Append(ctx, extension.NewExtension(live.ID, 15, "tok-1", t0.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, replay.ID)

	s, _ := store.Sessions().GetByID(ctx, live.ID)
	assert.Equal(t, 15, s.ExtensionMinutes)
	assert.Equal(t, int64(1), s.Version)

	_, _, err = repo.Append(ctx, extension.NewExtension(waiting.ID, 15, "tok-2", t0))
	assert.ErrorIs(t, err, extension.ErrSessionNotLive)
	_, _, err = repo.Append(ctx, extension.NewExtension(uuid.New(), 15, "tok-3", t0))
	assert.ErrorIs(t, err, extension.ErrSessionNotFound)
}

func TestRFQRepository_InsertBidRespectsCap(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().RFQs()
	q := &rfq.RFQ{ID: uuid.New(), Status: rfq.StatusOpen, MaxBids: 3, BidDeadline: t0.Add(time.Hour), CreatedAt: t0}
	require.NoError(t, repo.Create(ctx, q))

	reasons := make(chan rfq.RejectReason, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reason, err := repo.InsertBid(ctx, &rfq.Bid{ID: uuid.New(), RFQID: q.ID, WorkshopID: uuid.New(), Status: rfq.BidSubmitted, SubmittedAt: t0}, t0)
			assert.NoError(t, err)
			reasons <- reason
		}()
	}
	wg.Wait()
	close(reasons)

	counts := map[rfq.RejectReason]int{}
	for r := range reasons {
		counts[r]++
	}
	assert.Equal(t, 3, counts[rfq.RejectNone])
	assert.Equal(t, 7, counts[rfq.RejectCapReached])

	got, _ := repo.GetByID(ctx, q.ID)
	assert.Equal(t, 3, got.BidCount)
	bids, _ := repo.ListBids(ctx, q.ID)
	assert.Len(t, bids, 3)
}

func TestRFQRepository_DuplicateWorkshop(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().RFQs()
	q := &rfq.RFQ{ID: uuid.New(), Status: rfq.StatusOpen, MaxBids: 3, BidDeadline: t0.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, q))
	ws := uuid.New()

	reason, err := repo.InsertBid(ctx, &rfq.Bid{ID: uuid.New(), RFQID: q.ID, WorkshopID: ws}, t0)
	require.NoError(t, err)
	assert.Equal(t, rfq.RejectNone, reason)

	reason, err = repo.InsertBid(ctx, &rfq.Bid{ID: uuid.New(), RFQID: q.ID, WorkshopID: ws}, t0)
	require.NoError(t, err)
	assert.Equal(t, rfq.RejectAlreadyBid, reason)

	got, _ := repo.GetByID(ctx, q.ID)
	assert.Equal(t, 1, got.BidCount)
}

func TestRFQRepository_Award(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.RFQs()
	mech := uuid.New()
	q := &rfq.RFQ{ID: uuid.New(), Status: rfq.StatusOpen, MaxBids: 3, BidDeadline: t0.Add(time.Hour), OriginMechanicID: &mech}
	require.NoError(t, repo.Create(ctx, q))
	a := &rfq.Bid{ID: uuid.New(), RFQID: q.ID, WorkshopID: uuid.New(), Status: rfq.BidSubmitted, SubmittedAt: t0}
	b := &rfq.Bid{ID: uuid.New(), RFQID: q.ID, WorkshopID: uuid.New(), Status: rfq.BidSubmitted, SubmittedAt: t0.Add(time.Second)}
	for _, bid := range []*rfq.Bid{a, b} {
		reason, err := repo.InsertBid(ctx, bid, t0)
		require.NoError(t, err)
		require.Equal(t, rfq.RejectNone, reason)
	}

	ok, err := repo.Award(ctx, q.ID, a.ID, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Award(ctx, q.ID, b.ID, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	gotA, _ := repo.GetBid(ctx, a.ID)
	gotB, _ := repo.GetBid(ctx, b.ID)
	assert.Equal(t, rfq.BidAccepted, gotA.Status)
	assert.Equal(t, rfq.BidRejected, gotB.Status)

	pending, err := store.Referrals().ListUnrecorded(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got, _ := repo.GetByID(ctx, q.ID)
	require.NoError(t, store.Referrals().Record(ctx, rfq.NewReferralPayout(got, gotA, t0)))
	require.NoError(t, store.Referrals().Record(ctx, rfq.NewReferralPayout(got, gotA, t0)))
	pending, _ = store.Referrals().ListUnrecorded(ctx, 10)
	assert.Empty(t, pending)
}
