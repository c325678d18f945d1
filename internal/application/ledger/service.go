package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wrenchhub/wrenchhub/internal/domain/extension"
	"github.com/wrenchhub/wrenchhub/internal/domain/outcome"
)

// MaxExtensionMinutes bounds a single paid extension.
const MaxExtensionMinutes = 240

// Service applies paid session extensions exactly once per payment token.
type Service struct {
	repo   extension.Repository
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a ledger service.
func NewService(repo extension.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("service", "ledger").Logger(),
	}
}

// WithClock replaces the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ApplyResult is the outcome of Apply.
type ApplyResult struct {
	outcome.Result
	Extension *extension.Extension `json:"extension,omitempty"`
	// Replayed is true when the token had already been applied.
	Replayed     bool `json:"replayed"`
	TotalMinutes int  `json:"totalMinutes"`
}

// Apply records an extension and grows the session allowance. Re-delivery of the
// same token returns the original entry unchanged.
func (s *Service) Apply(ctx context.Context, sessionID uuid.UUID, minutes int, token string) (*ApplyResult, error) {
	token = strings.TrimSpace(token)
	if sessionID == uuid.Nil || token == "" {
		return nil, fmt.Errorf("%w: session_id and idempotency_token are required", outcome.ErrInvalidInput)
	}
	if minutes <= 0 || minutes > MaxExtensionMinutes {
		return nil, fmt.Errorf("%w: extension minutes must be between 1 and %d", outcome.ErrInvalidInput, MaxExtensionMinutes)
	}

	existing, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up extension token: %w", err)
	}
	if existing != nil {
		return s.replay(existing, sessionID)
	}

	stored, created, err := s.repo.Append(ctx, extension.NewExtension(sessionID, minutes, token, s.now()))
	switch {
	case errors.Is(err, extension.ErrSessionNotLive):
		return &ApplyResult{Result: outcome.PreconditionFailed(outcome.ReasonSessionNotLive, "session is not live")}, nil
	case errors.Is(err, extension.ErrSessionNotFound):
		return &ApplyResult{Result: outcome.Conflict(outcome.ReasonNotFound, "session not found")}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to append extension: %w", err)
	}
	if !created {
		return s.replay(stored, sessionID)
	}

	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Int("minutes", minutes).
		Int("totalMinutes", stored.TotalMinutes).
		Msg("session extended")

	return &ApplyResult{Result: outcome.Success(), Extension: stored, TotalMinutes: stored.TotalMinutes}, nil
}

func (s *Service) replay(existing *extension.Extension, sessionID uuid.UUID) (*ApplyResult, error) {
	if existing.SessionID != sessionID {
		return nil, fmt.Errorf("%w: idempotency token already used for another session", outcome.ErrInvalidInput)
	}
	s.logger.Debug().
		Str("sessionId", sessionID.String()).
		Str("extensionId", existing.ID.String()).
		Msg("extension replay ignored")
	return &ApplyResult{Result: outcome.Success(), Extension: existing, Replayed: true, TotalMinutes: existing.TotalMinutes}, nil
}

// ListBySession returns the ledger for a session, oldest first.
func (s *Service) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*extension.Extension, error) {
	return s.repo.ListBySession(ctx, sessionID)
}
