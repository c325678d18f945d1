package memory

import (
	"context"

	"github.com/wrenchhub/wrenchhub/internal/domain/sweep"
)

// SweepRepository implements sweep.Repository.
type SweepRepository struct {
	store *Store
}

func (r *SweepRepository) Create(_ context.Context, run *sweep.Run) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.runs = append(r.store.runs, *run)
	return nil
}

func (r *SweepRepository) ListRecent(_ context.Context, limit int) ([]*sweep.Run, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*sweep.Run, 0, len(r.store.runs))
	for i := len(r.store.runs) - 1; i >= 0; i-- {
		run := r.store.runs[i]
		out = append(out, &run)
	}
	return page(out, limit, 0), nil
}
