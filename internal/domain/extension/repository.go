package extension

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines ledger persistence.
type Repository interface {
	GetByToken(ctx context.Context, token string) (*Extension, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Extension, error)
	// Append inserts the entry and adds its minutes to the live session's allowance
	// atomically, filling TotalMinutes. When the token already exists it returns the
	// stored entry and false. Returns ErrSessionNotLive / ErrSessionNotFound when the
	// session cannot take an extension.
	Append(ctx context.Context, e *Extension) (*Extension, bool, error)
}
