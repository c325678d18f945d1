package marketplace

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Knetic/govaluate"

	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
)

// LeadFilter is a compiled boolean expression workshops use to narrow the RFQ
// board, e.g. `category == "brakes" && budget_max >= 30000 && hours_left < 6`.
type LeadFilter struct {
	expr *govaluate.EvaluableExpression
}

// CompileLeadFilter parses expression. An empty expression matches everything.
func CompileLeadFilter(expression string) (*LeadFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &LeadFilter{}, nil
	}
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid lead filter: %w", err)
	}
	return &LeadFilter{expr: expr}, nil
}

// Match evaluates the filter against one RFQ.
func (f *LeadFilter) Match(r *rfq.RFQ, now time.Time) (bool, error) {
	if f == nil || f.expr == nil {
		return true, nil
	}
	result, err := f.expr.Evaluate(leadParams(r, now))
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, errors.New("lead filter did not evaluate to boolean")
	}
	return v, nil
}

func leadParams(r *rfq.RFQ, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"category":     r.Category,
		"urgency":      string(r.Urgency),
		"budget_min":   float64(r.BudgetMinCents),
		"budget_max":   float64(r.BudgetMaxCents),
		"bid_count":    float64(r.BidCount),
		"max_bids":     float64(r.MaxBids),
		"slots_left":   float64(r.SlotsLeft()),
		"hours_left":   r.BidDeadline.Sub(now).Hours(),
		"vehicle_year": float64(r.Vehicle.Year),
		"vehicle_make": r.Vehicle.Make,
	}
}
