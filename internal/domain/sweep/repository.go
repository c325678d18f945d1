package sweep

import "context"

// Repository persists sweep runs for audit.
type Repository interface {
	Create(ctx context.Context, run *Run) error
	ListRecent(ctx context.Context, limit int) ([]*Run, error)
}
