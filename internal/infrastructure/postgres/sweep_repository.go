package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wrenchhub/wrenchhub/internal/domain/sweep"
)

// SweepRepository implements sweep.Repository. Summaries are stored as JSONB.
type SweepRepository struct {
	pool *pgxpool.Pool
}

func NewSweepRepository(pool *pgxpool.Pool) *SweepRepository {
	return &SweepRepository{pool: pool}
}

func (r *SweepRepository) Create(ctx context.Context, run *sweep.Run) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sweep_runs (id, mode, trigger, started_at, finished_at, summary)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, run.ID, run.Mode, run.Trigger, run.StartedAt, run.FinishedAt, summary)
	return err
}

func (r *SweepRepository) ListRecent(ctx context.Context, limit int) ([]*sweep.Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, mode, trigger, started_at, finished_at, summary
		FROM sweep_runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*sweep.Run{}
	for rows.Next() {
		var run sweep.Run
		var summary []byte
		if err := rows.Scan(&run.ID, &run.Mode, &run.Trigger, &run.StartedAt, &run.FinishedAt, &summary); err != nil {
			return nil, err
		}
		if len(summary) > 0 {
			if err := json.Unmarshal(summary, &run.Summary); err != nil {
				return nil, err
			}
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}
