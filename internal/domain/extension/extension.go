package extension

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotLive  = errors.New("session is not live")
	ErrSessionNotFound = errors.New("session not found")
)

// Extension is an append-only ledger entry for a paid time addition.
type Extension struct {
	ID               uuid.UUID `json:"id"`
	SessionID        uuid.UUID `json:"sessionId"`
	Minutes          int       `json:"minutes"`
	IdempotencyToken string    `json:"idempotencyToken"`
	// TotalMinutes is the session's cumulative extension allowance after this entry.
	TotalMinutes int       `json:"totalMinutes"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewExtension creates an unsaved ledger entry.
func NewExtension(sessionID uuid.UUID, minutes int, token string, now time.Time) *Extension {
	return &Extension{
		ID:               uuid.New(),
		SessionID:        sessionID,
		Minutes:          minutes,
		IdempotencyToken: token,
		CreatedAt:        now,
	}
}
