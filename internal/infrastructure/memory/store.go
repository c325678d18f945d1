// Package memory provides process-local repositories for dev mode and tests.
// Every operation holds the store mutex for its whole read-check-write, which
// gives the same atomicity the Postgres adapter gets from conditional updates.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wrenchhub/wrenchhub/internal/domain/extension"
	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
	"github.com/wrenchhub/wrenchhub/internal/domain/sweep"
)

// Store holds all entities behind one mutex.
type Store struct {
	mu sync.Mutex

	requests   map[uuid.UUID]session.Request
	sessions   map[uuid.UUID]session.Session
	extensions map[string]extension.Extension
	rfqs       map[uuid.UUID]rfq.RFQ
	bids       map[uuid.UUID]rfq.Bid
	referrals  map[uuid.UUID]rfq.ReferralPayout
	runs       []sweep.Run
}

func NewStore() *Store {
	return &Store{
		requests:   make(map[uuid.UUID]session.Request),
		sessions:   make(map[uuid.UUID]session.Session),
		extensions: make(map[string]extension.Extension),
		rfqs:       make(map[uuid.UUID]rfq.RFQ),
		bids:       make(map[uuid.UUID]rfq.Bid),
		referrals:  make(map[uuid.UUID]rfq.ReferralPayout),
	}
}

func (s *Store) Requests() *RequestRepository     { return &RequestRepository{s} }
func (s *Store) Sessions() *SessionRepository     { return &SessionRepository{s} }
func (s *Store) Extensions() *ExtensionRepository { return &ExtensionRepository{s} }
func (s *Store) RFQs() *RFQRepository             { return &RFQRepository{s} }
func (s *Store) Referrals() *ReferralRepository   { return &ReferralRepository{s} }
func (s *Store) SweepRuns() *SweepRepository      { return &SweepRepository{s} }

func errExists(kind string, id interface{}) error {
	return fmt.Errorf("%s %v already exists", kind, id)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func sortByTime[T any](items []T, less func(a, b T) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

var (
	_ session.RequestRepository = (*RequestRepository)(nil)
	_ session.Repository        = (*SessionRepository)(nil)
	_ extension.Repository      = (*ExtensionRepository)(nil)
	_ rfq.Repository            = (*RFQRepository)(nil)
	_ rfq.ReferralRepository    = (*ReferralRepository)(nil)
	_ sweep.Repository          = (*SweepRepository)(nil)
)
