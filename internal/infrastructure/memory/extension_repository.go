package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/wrenchhub/wrenchhub/internal/domain/extension"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
)

// ExtensionRepository implements extension.Repository.
type ExtensionRepository struct {
	store *Store
}

func (r *ExtensionRepository) GetByToken(_ context.Context, token string) (*extension.Extension, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.extensions[token]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *ExtensionRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*extension.Extension, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*extension.Extension{}
	for _, e := range r.store.extensions {
		if e.SessionID == sessionID {
			out = append(out, &e)
		}
	}
	sortByTime(out, func(a, b *extension.Extension) bool { return a.TotalMinutes < b.TotalMinutes })
	return out, nil
}

func (r *ExtensionRepository) Append(_ context.Context, e *extension.Extension) (*extension.Extension, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.extensions[e.IdempotencyToken]; ok {
		return &existing, false, nil
	}
	s, ok := r.store.sessions[e.SessionID]
	if !ok {
		return nil, false, extension.ErrSessionNotFound
	}
	if s.Status != session.StatusLive {
		return nil, false, extension.ErrSessionNotLive
	}
	s.ExtensionMinutes += e.Minutes
	s.UpdatedAt = e.CreatedAt
	s.Version++
	r.store.sessions[s.ID] = s

	stored := *e
	stored.TotalMinutes = s.ExtensionMinutes
	r.store.extensions[e.IdempotencyToken] = stored
	return &stored, true, nil
}
