package rfq

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents RFQ status.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAwarded   Status = "awarded"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Urgency is how soon the customer needs the repair.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyNormal    Urgency = "normal"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyEmergency:
		return true
	}
	return false
}

var (
	ErrInvalidTransition = errors.New("invalid rfq status transition")
	ErrAlreadyBid        = errors.New("workshop already bid on this rfq")
)

// Vehicle describes the car the quote is for.
type Vehicle struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

// RFQ is a time-boxed, capped solicitation for repair quotes.
type RFQ struct {
	ID               uuid.UUID  `json:"id"`
	CustomerID       uuid.UUID  `json:"customerId"`
	OriginSessionID  *uuid.UUID `json:"originSessionId,omitempty"`
	OriginMechanicID *uuid.UUID `json:"originMechanicId,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Vehicle          Vehicle    `json:"vehicle"`
	Category         string     `json:"category"`
	Urgency          Urgency    `json:"urgency"`
	BudgetMinCents   int64      `json:"budgetMinCents"`
	BudgetMaxCents   int64      `json:"budgetMaxCents"`
	BidDeadline      time.Time  `json:"bidDeadline"`
	MaxBids          int        `json:"maxBids"`
	BidCount         int        `json:"bidCount"`
	Status           Status     `json:"status"`
	AcceptedBidID    *uuid.UUID `json:"acceptedBidId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ClosedAt         *time.Time `json:"closedAt,omitempty"`
}

// Details are the customer-supplied fields of a new RFQ.
type Details struct {
	Title           string
	Description     string
	Vehicle         Vehicle
	Category        string
	Urgency         Urgency
	BudgetMinCents  int64
	BudgetMaxCents  int64
	OriginSessionID *uuid.UUID
}

// Validate checks the details at the boundary.
func (d Details) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(d.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if !d.Urgency.Valid() {
		return fmt.Errorf("unknown urgency %q", d.Urgency)
	}
	if d.BudgetMinCents < 0 || d.BudgetMaxCents < 0 {
		return fmt.Errorf("budget must not be negative")
	}
	if d.BudgetMaxCents > 0 && d.BudgetMinCents > d.BudgetMaxCents {
		return fmt.Errorf("budget_min exceeds budget_max")
	}
	if d.Vehicle.Year != 0 && (d.Vehicle.Year < 1900 || d.Vehicle.Year > 2100) {
		return fmt.Errorf("vehicle year out of range")
	}
	return nil
}

// CanTransitionTo validates rfq status transition. Every non-open status is terminal.
func (r *RFQ) CanTransitionTo(target Status) bool {
	return r.Status == StatusOpen && target != StatusOpen
}

// SlotsLeft is the number of bids still accepted before the cap.
func (r *RFQ) SlotsLeft() int {
	if r.BidCount >= r.MaxBids {
		return 0
	}
	return r.MaxBids - r.BidCount
}

// AcceptingBids reports whether a bid submitted at now would pass all three gates.
func (r *RFQ) AcceptingBids(now time.Time) bool {
	return r.Status == StatusOpen && !now.After(r.BidDeadline) && r.BidCount < r.MaxBids
}

// HasReferral reports whether a mechanic earns a fee when this RFQ is awarded.
func (r *RFQ) HasReferral() bool {
	return r.OriginMechanicID != nil
}
