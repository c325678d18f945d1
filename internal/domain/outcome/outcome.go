package outcome

import "errors"

// Kind discriminates the result of an engine operation.
type Kind string

const (
	KindSuccess            Kind = "success"
	KindConflict           Kind = "conflict"
	KindPreconditionFailed Kind = "precondition_failed"
)

// Reason is a machine-readable code explaining a non-success outcome.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonRequestTaken        Reason = "request_taken"
	ReasonNotFound            Reason = "not_found"
	ReasonInvalidTransition   Reason = "invalid_transition"
	ReasonWaiverRequired      Reason = "waiver_required"
	ReasonParticipantsMissing Reason = "participants_missing"
	ReasonSessionNotLive      Reason = "session_not_live"
	ReasonClosed              Reason = "closed"
	ReasonExpired             Reason = "expired"
	ReasonCapReached          Reason = "cap_reached"
	ReasonAlreadyBid          Reason = "already_bid"
	ReasonBidNotAvailable     Reason = "bid_not_available"
	ReasonRfqNotOpen          Reason = "rfq_not_open"
)

var (
	// ErrInvalidInput marks input rejected at the boundary.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden marks a caller acting on an entity it does not own.
	ErrForbidden = errors.New("forbidden")
	// ErrInvariantViolation marks a request that can only come from a caller bug.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Result is the value returned by state-changing operations. Conflicts and
// precondition failures are ordinary results, not errors.
type Result struct {
	Kind    Kind   `json:"outcome"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func Success() Result {
	return Result{Kind: KindSuccess}
}

func Conflict(reason Reason, message string) Result {
	return Result{Kind: KindConflict, Reason: reason, Message: message}
}

func PreconditionFailed(reason Reason, message string) Result {
	return Result{Kind: KindPreconditionFailed, Reason: reason, Message: message}
}

func (r Result) OK() bool {
	return r.Kind == KindSuccess
}
