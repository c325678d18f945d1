package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestRepository defines persistence for session requests.
type RequestRepository interface {
	CreateRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, requestID uuid.UUID) (*Request, error)
	ListPendingRequests(ctx context.Context, limit, offset int) ([]*Request, error)
	// ListPendingRequestsCreatedBefore returns pending requests created at or before cutoff.
	ListPendingRequestsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Request, error)
	// TransitionRequest moves a request from one status to another only if it is
	// still in the expected status.
	TransitionRequest(ctx context.Context, requestID uuid.UUID, from, to RequestStatus, at time.Time) (bool, error)
	// AcceptRequest marks the request accepted by the session's mechanic and inserts
	// the session in one atomic step. It reports false when the request was no longer
	// pending.
	AcceptRequest(ctx context.Context, requestID uuid.UUID, s *Session) (bool, error)
}

// Repository defines persistence for sessions.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	// UpdateIfStatus writes the session only if the stored status still equals
	// expected and the stored version equals s.Version, then advances s.Version.
	UpdateIfStatus(ctx context.Context, s *Session, expected Status) (bool, error)
	// ListByStatusChangedBefore returns sessions in status whose last status change is at or before cutoff.
	ListByStatusChangedBefore(ctx context.Context, status Status, cutoff time.Time, limit int) ([]*Session, error)
	// ListOrphanedLive returns live sessions started at or before startedBefore with no
	// activity after idleSince.
	ListOrphanedLive(ctx context.Context, startedBefore, idleSince time.Time, limit int) ([]*Session, error)
	TouchActivity(ctx context.Context, sessionID uuid.UUID, at time.Time) error
}
