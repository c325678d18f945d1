package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenchhub/wrenchhub/internal/domain/outcome"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/memory"
)

func setup(t *testing.T, status session.Status) (*Service, *memory.Store, uuid.UUID) {
	t.Helper()
	store := memory.NewStore()
	s := &session.Session{ID: uuid.New(), Status: status, Plan: session.PlanChat}
	require.NoError(t, store.Sessions().Create(context.Background(), s))
	svc := NewService(store.Extensions(), zerolog.Nop()).
		WithClock(func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) })
	return svc, store, s.ID
}

func TestService_ApplyIsIdempotent(t *testing.T) {
	svc, store, sessionID := setup(t, session.StatusLive)
	ctx := context.Background()

	first, err := svc.Apply(ctx, sessionID, 15, "pay_123")
	require.NoError(t, err)
	assert.True(t, first.OK())
	assert.False(t, first.Replayed)
	assert.Equal(t, 15, first.TotalMinutes)

	second, err := svc.Apply(ctx, sessionID, 15, "pay_123")
	require.NoError(t, err)
	assert.True(t, second.OK())
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Extension.ID, second.Extension.ID)
	assert.Equal(t, 15, second.TotalMinutes)

	s, _ := store.Sessions().GetByID(ctx, sessionID)
	assert.Equal(t, 15, s.ExtensionMinutes)
	assert.Equal(t, 45*time.Minute, s.Allowance())

	entries, err := svc.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_ApplyConcurrentDuplicates(t *testing.T) {
	svc, store, sessionID := setup(t, session.StatusLive)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Apply(ctx, sessionID, 10, "pay_dup")
			assert.NoError(t, err)
			assert.True(t, res.OK())
		}()
	}
	wg.Wait()

	s, _ := store.Sessions().GetByID(ctx, sessionID)
	assert.Equal(t, 10, s.ExtensionMinutes)
}

func TestService_ApplyAccumulatesDistinctTokens(t *testing.T) {
	svc, _, sessionID := setup(t, session.StatusLive)
	ctx := context.Background()

	_, err := svc.Apply(ctx, sessionID, 10, "a")
	require.NoError(t, err)
	res, err := svc.Apply(ctx, sessionID, 20, "b")
	require.NoError(t, err)
	assert.Equal(t, 30, res.TotalMinutes)
}

func TestService_ApplyRequiresLiveSession(t *testing.T) {
	svc, _, sessionID := setup(t, session.StatusCompleted)

	res, err := svc.Apply(context.Background(), sessionID, 15, "late")
	require.NoError(t, err)
	assert.Equal(t, outcome.KindPreconditionFailed, res.Kind)
	assert.Equal(t, outcome.ReasonSessionNotLive, res.Reason)

	res, err = svc.Apply(context.Background(), uuid.New(), 15, "ghost")
	require.NoError(t, err)
	assert.Equal(t, outcome.ReasonNotFound, res.Reason)
}

func TestService_ApplyValidatesInput(t *testing.T) {
	svc, _, sessionID := setup(t, session.StatusLive)
	ctx := context.Background()

	_, err := svc.Apply(ctx, sessionID, 0, "x")
	assert.ErrorIs(t, err, outcome.ErrInvalidInput)
	_, err = svc.Apply(ctx, sessionID, 15, " ")
	assert.ErrorIs(t, err, outcome.ErrInvalidInput)

	_, err = svc.Apply(ctx, sessionID, 15, "shared")
	require.NoError(t, err)
	_, err = svc.Apply(ctx, uuid.New(), 15, "shared")
	assert.ErrorIs(t, err, outcome.ErrInvalidInput)
}
