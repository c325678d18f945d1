package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wrenchhub/wrenchhub/internal/domain/session"
)

// RequestRepository implements session.RequestRepository.
type RequestRepository struct {
	store *Store
}

func (r *RequestRepository) CreateRequest(_ context.Context, req *session.Request) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.requests[req.ID]; ok {
		return errExists("request", req.ID)
	}
	r.store.requests[req.ID] = *req
	return nil
}

func (r *RequestRepository) GetRequest(_ context.Context, requestID uuid.UUID) (*session.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	req, ok := r.store.requests[requestID]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r *RequestRepository) ListPendingRequests(_ context.Context, limit, offset int) ([]*session.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return page(r.pendingLocked(func(*session.Request) bool { return true }), limit, offset), nil
}

func (r *RequestRepository) ListPendingRequestsCreatedBefore(_ context.Context, cutoff time.Time, limit int) ([]*session.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := r.pendingLocked(func(req *session.Request) bool { return !req.CreatedAt.After(cutoff) })
	return page(out, limit, 0), nil
}

func (r *RequestRepository) pendingLocked(keep func(*session.Request) bool) []*session.Request {
	out := []*session.Request{}
	for _, req := range r.store.requests {
		if req.Status == session.RequestPending && keep(&req) {
			out = append(out, &req)
		}
	}
	sortByTime(out, func(a, b *session.Request) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return out
}

func (r *RequestRepository) TransitionRequest(_ context.Context, requestID uuid.UUID, from, to session.RequestStatus, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	req, ok := r.store.requests[requestID]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	req.UpdatedAt = at
	r.store.requests[requestID] = req
	return true, nil
}

func (r *RequestRepository) AcceptRequest(_ context.Context, requestID uuid.UUID, s *session.Session) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	req, ok := r.store.requests[requestID]
	if !ok || req.Status != session.RequestPending {
		return false, nil
	}
	if _, exists := r.store.sessions[s.ID]; exists {
		return false, errExists("session", s.ID)
	}
	sessionID := s.ID
	req.Status = session.RequestAccepted
	req.AcceptedBy = s.MechanicID
	req.SessionID = &sessionID
	req.UpdatedAt = s.CreatedAt
	r.store.requests[requestID] = req
	r.store.sessions[s.ID] = *s
	return true, nil
}

// SessionRepository implements session.Repository.
type SessionRepository struct {
	store *Store
}

func (r *SessionRepository) Create(_ context.Context, s *session.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sessions[s.ID]; ok {
		return errExists("session", s.ID)
	}
	r.store.sessions[s.ID] = *s
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, sessionID uuid.UUID) (*session.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *SessionRepository) UpdateIfStatus(_ context.Context, s *session.Session, expected session.Status) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.sessions[s.ID]
	if !ok || current.Status != expected || current.Version != s.Version {
		return false, nil
	}
	// allowance is owned by the extension ledger
	updated := *s
	updated.ExtensionMinutes = current.ExtensionMinutes
	if current.LastActivityAt != nil && (updated.LastActivityAt == nil || current.LastActivityAt.After(*updated.LastActivityAt)) {
		updated.LastActivityAt = current.LastActivityAt
	}
	updated.Version++
	r.store.sessions[s.ID] = updated
	s.Version = updated.Version
	return true, nil
}

func (r *SessionRepository) ListByStatusChangedBefore(_ context.Context, status session.Status, cutoff time.Time, limit int) ([]*session.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*session.Session{}
	for _, s := range r.store.sessions {
		if s.Status == status && !s.StatusChangedAt.After(cutoff) {
			out = append(out, &s)
		}
	}
	sortByTime(out, func(a, b *session.Session) bool { return a.StatusChangedAt.Before(b.StatusChangedAt) })
	return page(out, limit, 0), nil
}

func (r *SessionRepository) ListOrphanedLive(_ context.Context, startedBefore, idleSince time.Time, limit int) ([]*session.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*session.Session{}
	for _, s := range r.store.sessions {
		if s.Status != session.StatusLive || s.StartedAt == nil || s.StartedAt.After(startedBefore) {
			continue
		}
		if s.LastActivityAt != nil && s.LastActivityAt.After(idleSince) {
			continue
		}
		out = append(out, &s)
	}
	sortByTime(out, func(a, b *session.Session) bool { return a.StartedAt.Before(*b.StartedAt) })
	return page(out, limit, 0), nil
}

func (r *SessionRepository) TouchActivity(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[sessionID]
	if !ok {
		return nil
	}
	if s.LastActivityAt == nil || at.After(*s.LastActivityAt) {
		s.LastActivityAt = &at
		r.store.sessions[sessionID] = s
	}
	return nil
}
