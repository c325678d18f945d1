package sweep

import (
	"time"

	"github.com/google/uuid"
)

// Mode distinguishes a read-only preview from a mutating run.
type Mode string

const (
	ModePreview Mode = "preview"
	ModeExecute Mode = "execute"
)

// Category names one detection rule.
type Category string

const (
	CategoryExpiredRequests Category = "expired_requests"
	CategoryStaleWaiting    Category = "stale_waiting_sessions"
	CategoryOrphanedLive    Category = "orphaned_live_sessions"
	CategoryExpiredRfqs     Category = "expired_rfqs"
)

// Categories lists every rule in evaluation order.
var Categories = []Category{
	CategoryExpiredRequests,
	CategoryStaleWaiting,
	CategoryOrphanedLive,
	CategoryExpiredRfqs,
}

// CategoryResult is the outcome of one rule.
type CategoryResult struct {
	Count int         `json:"count"`
	IDs   []uuid.UUID `json:"ids"`
	// Skipped counts items another actor moved between detection and write.
	Skipped int `json:"skipped,omitempty"`
}

// Summary is the structured result of a sweep. Now is when it was generated;
// two previews of unchanged state differ only in Now.
type Summary struct {
	Mode       Mode                         `json:"mode"`
	Now        time.Time                    `json:"now"`
	Categories map[Category]*CategoryResult `json:"categories"`
}

// NewSummary returns a summary with every category present.
func NewSummary(mode Mode, now time.Time) *Summary {
	s := &Summary{Mode: mode, Now: now, Categories: make(map[Category]*CategoryResult, len(Categories))}
	for _, c := range Categories {
		s.Categories[c] = &CategoryResult{IDs: []uuid.UUID{}}
	}
	return s
}

// Add records a detected item.
func (s *Summary) Add(c Category, id uuid.UUID) {
	r := s.Categories[c]
	r.Count++
	r.IDs = append(r.IDs, id)
}

// Total is the number of items across all categories.
func (s *Summary) Total() int {
	n := 0
	for _, r := range s.Categories {
		n += r.Count
	}
	return n
}

// Run is the persisted record of an executed sweep.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Mode       Mode      `json:"mode"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Summary    *Summary  `json:"summary"`
}
