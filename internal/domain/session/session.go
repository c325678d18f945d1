package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the status of a customer's unassigned request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

// Status is the status of a consultation session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusWaiting   Status = "waiting"
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrNotParticipant    = errors.New("user is not a participant of the session")
)

// Request is a customer's ask for help that any mechanic may accept.
type Request struct {
	ID             uuid.UUID     `json:"id"`
	CustomerID     uuid.UUID     `json:"customerId"`
	Description    string        `json:"description"`
	Plan           Plan          `json:"plan"`
	ScheduledStart *time.Time    `json:"scheduledStart,omitempty"`
	Status         RequestStatus `json:"status"`
	AcceptedBy     *uuid.UUID    `json:"acceptedBy,omitempty"`
	SessionID      *uuid.UUID    `json:"sessionId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// IsImmediate reports whether the customer asked for help right now.
func (r *Request) IsImmediate() bool {
	return r.ScheduledStart == nil
}

// Session is an active or historical consultation.
type Session struct {
	ID               uuid.UUID  `json:"id"`
	RequestID        *uuid.UUID `json:"requestId,omitempty"`
	CustomerID       uuid.UUID  `json:"customerId"`
	MechanicID       *uuid.UUID `json:"mechanicId,omitempty"`
	Status           Status     `json:"status"`
	Plan             Plan       `json:"plan"`
	ScheduledStart   *time.Time `json:"scheduledStart,omitempty"`
	ScheduledEnd     *time.Time `json:"scheduledEnd,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	DurationSeconds  int64      `json:"durationSeconds"`
	ExtensionMinutes int        `json:"extensionMinutes"`
	WaiverSignedAt   *time.Time `json:"waiverSignedAt,omitempty"`
	CustomerJoinedAt *time.Time `json:"customerJoinedAt,omitempty"`
	MechanicJoinedAt *time.Time `json:"mechanicJoinedAt,omitempty"`
	LastActivityAt   *time.Time `json:"lastActivityAt,omitempty"`
	EndReason        string     `json:"endReason,omitempty"`
	StatusChangedAt  time.Time  `json:"statusChangedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	// Version counts stored writes, including ledger extensions.
	Version int64 `json:"version"`
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusWaiting, StatusScheduled, StatusCancelled},
	StatusWaiting:   {StatusScheduled, StatusLive, StatusCancelled},
	StatusScheduled: {StatusWaiting, StatusLive, StatusCancelled},
	StatusLive:      {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransitionTo validates session status transition.
func (s *Session) CanTransitionTo(target Status) bool {
	for _, st := range transitions[s.Status] {
		if st == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// IsBooked reports whether the session was booked for a future time.
func (s *Session) IsBooked() bool {
	return s.ScheduledStart != nil
}

// IsParticipant reports whether the user is the customer or the assigned mechanic.
func (s *Session) IsParticipant(userID uuid.UUID) bool {
	if s.CustomerID == userID {
		return true
	}
	return s.MechanicID != nil && *s.MechanicID == userID
}

// BothJoined reports whether both participants have shown up.
func (s *Session) BothJoined() bool {
	return s.MechanicID != nil && s.CustomerJoinedAt != nil && s.MechanicJoinedAt != nil
}

// Allowance is the maximum billable time: plan base plus applied extensions.
func (s *Session) Allowance() time.Duration {
	return s.Plan.BaseDuration() + time.Duration(s.ExtensionMinutes)*time.Minute
}

// transition moves the session to target, recording when it happened.
func (s *Session) transition(target Status, now time.Time) error {
	if !s.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	s.Status = target
	s.StatusChangedAt = now
	s.UpdatedAt = now
	return nil
}

// Confirm moves a direct booking out of pending.
func (s *Session) Confirm(now time.Time) error {
	target := StatusWaiting
	if s.ScheduledStart != nil && s.ScheduledStart.After(now) {
		target = StatusScheduled
	}
	return s.transition(target, now)
}

// Start puts the session live.
func (s *Session) Start(now time.Time) error {
	if err := s.transition(StatusLive, now); err != nil {
		return err
	}
	s.StartedAt = &now
	s.LastActivityAt = &now
	return nil
}

// Complete ends a live session normally.
func (s *Session) Complete(now time.Time, reason string) error {
	if err := s.transition(StatusCompleted, now); err != nil {
		return err
	}
	s.finish(now, reason)
	return nil
}

// Cancel abandons the session from any non-terminal state.
func (s *Session) Cancel(now time.Time, reason string) error {
	if err := s.transition(StatusCancelled, now); err != nil {
		return err
	}
	s.finish(now, reason)
	return nil
}

func (s *Session) finish(now time.Time, reason string) {
	s.EndedAt = &now
	s.EndReason = reason
	s.DurationSeconds = int64(FinalDuration(s.StartedAt, now, s.Allowance()) / time.Second)
}

// FinalDuration is the elapsed live time clipped to the allowance. Sessions that
// never started have zero duration.
func FinalDuration(startedAt *time.Time, endedAt time.Time, allowance time.Duration) time.Duration {
	if startedAt == nil || endedAt.Before(*startedAt) {
		return 0
	}
	d := endedAt.Sub(*startedAt)
	if d > allowance {
		d = allowance
	}
	return d
}

// MarkJoined records participant presence.
func (s *Session) MarkJoined(userID uuid.UUID, now time.Time) error {
	switch {
	case s.CustomerID == userID:
		if s.CustomerJoinedAt == nil {
			s.CustomerJoinedAt = &now
		}
	case s.MechanicID != nil && *s.MechanicID == userID:
		if s.MechanicJoinedAt == nil {
			s.MechanicJoinedAt = &now
		}
	default:
		return ErrNotParticipant
	}
	s.LastActivityAt = &now
	s.UpdatedAt = now
	return nil
}
