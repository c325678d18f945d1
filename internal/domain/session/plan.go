package session

import (
	"fmt"
	"time"
)

// Plan is the service tier a customer pays for.
type Plan string

const (
	PlanChat       Plan = "chat"
	PlanVideo      Plan = "video"
	PlanDiagnostic Plan = "diagnostic"
)

var planDurations = map[Plan]time.Duration{
	PlanChat:       30 * time.Minute,
	PlanVideo:      45 * time.Minute,
	PlanDiagnostic: 60 * time.Minute,
}

// BaseDuration returns the time included in the plan before extensions.
func (p Plan) BaseDuration() time.Duration {
	return planDurations[p]
}

func (p Plan) Valid() bool {
	_, ok := planDurations[p]
	return ok
}

// ParsePlan validates a plan name.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown plan %q", s)
	}
	return p, nil
}
