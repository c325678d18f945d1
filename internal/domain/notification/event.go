package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_sink.go -package=mocks . Sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type names an outbound event.
type Type string

const (
	TypeRequestCreated   Type = "request.created"
	TypeRequestTaken     Type = "request.taken"
	TypeRequestExpired   Type = "request.expired"
	TypeRequestCancelled Type = "request.cancelled"

	TypeSessionCreated   Type = "session.created"
	TypeSessionConfirmed Type = "session.confirmed"
	TypeSessionStarted   Type = "session.started"
	TypeSessionExtended  Type = "session.extended"
	TypeSessionCompleted Type = "session.completed"
	TypeSessionCancelled Type = "session.cancelled"

	TypeRfqPosted       Type = "rfq.posted"
	TypeRfqBidSubmitted Type = "rfq.bid_submitted"
	TypeRfqAwarded      Type = "rfq.awarded"
	TypeRfqExpired      Type = "rfq.expired"
	TypeRfqCancelled    Type = "rfq.cancelled"
	TypeBidAccepted     Type = "bid.accepted"
	TypeBidRejected     Type = "bid.rejected"

	TypeReferralRecorded Type = "referral.recorded"

	TypeReaperPreview Type = "reaper.preview"
	TypeReaperSwept   Type = "reaper.swept"
)

// Well-known audience groups.
const (
	GroupMechanics = "role:MECHANIC"
	GroupWorkshops = "role:WORKSHOP"
	GroupAdmins    = "role:ADMIN"
)

var (
	ErrClientNotFound = errors.New("SSE client not found")
	ErrChannelFull    = errors.New("SSE message channel full")
)

// Audience selects who should hear about an event.
type Audience struct {
	UserIDs []uuid.UUID `json:"userIds,omitempty"`
	Groups  []string    `json:"groups,omitempty"`
}

// Event is an advisory state-change message. Delivery is best-effort.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       Type                   `json:"type"`
	EntityID   uuid.UUID              `json:"entityId"`
	OccurredAt time.Time              `json:"occurredAt"`
	Audience   Audience               `json:"audience"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent creates an event addressed to users.
func NewEvent(t Type, entityID uuid.UUID, users ...uuid.UUID) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Audience:   Audience{UserIDs: users},
		Payload:    map[string]interface{}{},
	}
}

// ToGroups adds audience groups.
func (e Event) ToGroups(groups ...string) Event {
	e.Audience.Groups = append(e.Audience.Groups, groups...)
	return e
}

// With sets a payload field.
func (e Event) With(key string, value interface{}) Event {
	if e.Payload == nil {
		e.Payload = map[string]interface{}{}
	}
	e.Payload[key] = value
	return e
}

// Marshal encodes the event for transport.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Dispatcher is the outbound event capability the engine calls. Implementations
// must not block the caller and must not report delivery failures back.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

// Sink delivers events to one transport.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}
