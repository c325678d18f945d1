package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
	"github.com/wrenchhub/wrenchhub/internal/domain/session"
	"github.com/wrenchhub/wrenchhub/internal/domain/sweep"
)

const (
	reasonNoMechanic = "no mechanic joined"
	reasonOrphaned   = "auto-completed: orphaned"
	maxWriteAttempts = 5
)

// Thresholds tune the detection rules. A zero duration disables its rule.
type Thresholds struct {
	RequestTTL    time.Duration
	WaitingTTL    time.Duration
	LiveTTL       time.Duration
	ActivityGrace time.Duration
	ExpireRfqs    bool
	BatchSize     int
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RequestTTL:    15 * time.Minute,
		WaitingTTL:    time.Hour,
		LiveTTL:       2 * time.Hour,
		ActivityGrace: 15 * time.Minute,
		ExpireRfqs:    true,
		BatchSize:     500,
	}
}

// RfqExpirer closes one RFQ whose deadline has passed.
type RfqExpirer interface {
	ExpireRfq(ctx context.Context, r *rfq.RFQ, now time.Time) (bool, error)
}

// Service finds and terminates abandoned work.
type Service struct {
	requests   session.RequestRepository
	sessions   session.Repository
	rfqs       rfq.Repository
	expirer    RfqExpirer
	runs       sweep.Repository
	dispatcher notification.Dispatcher
	thresholds Thresholds
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates a reaper service.
func NewService(
	requests session.RequestRepository,
	sessions session.Repository,
	rfqs rfq.Repository,
	expirer RfqExpirer,
	runs sweep.Repository,
	dispatcher notification.Dispatcher,
	thresholds Thresholds,
	logger zerolog.Logger,
) *Service {
	if thresholds.BatchSize <= 0 {
		thresholds.BatchSize = DefaultThresholds().BatchSize
	}
	return &Service{
		requests:   requests,
		sessions:   sessions,
		rfqs:       rfqs,
		expirer:    expirer,
		runs:       runs,
		dispatcher: dispatcher,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With().Str("service", "reaper").Logger(),
	}
}

// WithClock replaces the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// candidates holds what one detection pass found.
type candidates struct {
	requests []*session.Request
	waiting  []*session.Session
	orphaned []*session.Session
	rfqs     []*rfq.RFQ
}

func (s *Service) detect(ctx context.Context, now time.Time) (*candidates, error) {
	t := s.thresholds
	c := &candidates{}
	var err error
	if t.RequestTTL > 0 {
		if c.requests, err = s.requests.ListPendingRequestsCreatedBefore(ctx, now.Add(-t.RequestTTL), t.BatchSize); err != nil {
			return nil, fmt.Errorf("failed to list expired requests: %w", err)
		}
	}
	if t.WaitingTTL > 0 {
		if c.waiting, err = s.sessions.ListByStatusChangedBefore(ctx, session.StatusWaiting, now.Add(-t.WaitingTTL), t.BatchSize); err != nil {
			return nil, fmt.Errorf("failed to list stale waiting sessions: %w", err)
		}
	}
	if t.LiveTTL > 0 {
		if c.orphaned, err = s.sessions.ListOrphanedLive(ctx, now.Add(-t.LiveTTL), now.Add(-t.ActivityGrace), t.BatchSize); err != nil {
			return nil, fmt.Errorf("failed to list orphaned sessions: %w", err)
		}
	}
	if t.ExpireRfqs && s.rfqs != nil && s.expirer != nil {
		if c.rfqs, err = s.rfqs.ListOpenPastDeadline(ctx, now, t.BatchSize); err != nil {
			return nil, fmt.Errorf("failed to list expired rfqs: %w", err)
		}
	}
	return c, nil
}

// Detect reports what a sweep at now would terminate. It never writes.
func (s *Service) Detect(ctx context.Context, now time.Time) (*sweep.Summary, error) {
	c, err := s.detect(ctx, now)
	if err != nil {
		return nil, err
	}
	summary := sweep.NewSummary(sweep.ModePreview, now)
	for _, r := range c.requests {
		summary.Add(sweep.CategoryExpiredRequests, r.ID)
	}
	for _, ss := range c.waiting {
		summary.Add(sweep.CategoryStaleWaiting, ss.ID)
	}
	for _, ss := range c.orphaned {
		summary.Add(sweep.CategoryOrphanedLive, ss.ID)
	}
	for _, r := range c.rfqs {
		summary.Add(sweep.CategoryExpiredRfqs, r.ID)
	}
	return summary, nil
}

// Preview is Detect at the current time.
func (s *Service) Preview(ctx context.Context) (*sweep.Summary, error) {
	return s.Detect(ctx, s.now())
}

// Execute runs the same detection as Preview and terminates every item that is
// still in its detected state. Items moved by someone else are counted as skipped.
func (s *Service) Execute(ctx context.Context, trigger string) (*sweep.Summary, error) {
	started := s.now()
	c, err := s.detect(ctx, started)
	if err != nil {
		return nil, err
	}
	summary := sweep.NewSummary(sweep.ModeExecute, started)

	for _, r := range c.requests {
		ok, err := s.requests.TransitionRequest(ctx, r.ID, session.RequestPending, session.RequestExpired, started)
		if !s.record(summary, sweep.CategoryExpiredRequests, r.ID, ok, err) {
			continue
		}
		s.emit(ctx, notification.NewEvent(notification.TypeRequestExpired, r.ID, r.CustomerID).ToGroups(notification.GroupMechanics))
	}
	for _, ss := range c.waiting {
		ok, err := s.finish(ctx, ss, started, false)
		if !s.record(summary, sweep.CategoryStaleWaiting, ss.ID, ok, err) {
			continue
		}
		s.emit(ctx, notification.NewEvent(notification.TypeSessionCancelled, ss.ID, participants(ss)...).With("reason", reasonNoMechanic))
	}
	for _, ss := range c.orphaned {
		ok, err := s.finish(ctx, ss, started, true)
		if !s.record(summary, sweep.CategoryOrphanedLive, ss.ID, ok, err) {
			continue
		}
		s.emit(ctx, notification.NewEvent(notification.TypeSessionCompleted, ss.ID, participants(ss)...).
			With("reason", reasonOrphaned).
			With("durationSeconds", ss.DurationSeconds))
	}
	for _, r := range c.rfqs {
		ok, err := s.expirer.ExpireRfq(ctx, r, started)
		s.record(summary, sweep.CategoryExpiredRfqs, r.ID, ok, err)
	}

	run := &sweep.Run{
		ID:         uuid.New(),
		Mode:       sweep.ModeExecute,
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: s.now(),
		Summary:    summary,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("runId", run.ID.String()).Msg("failed to persist sweep run")
	}

	s.logger.Info().
		Str("runId", run.ID.String()).
		Str("trigger", trigger).
		Int("total", summary.Total()).
		Msg("sweep executed")
	s.emit(ctx, notification.NewEvent(notification.TypeReaperSwept, run.ID).
		ToGroups(notification.GroupAdmins).
		With("summary", summary))
	return summary, nil
}

// record tallies one write attempt and reports whether it took effect.
func (s *Service) record(summary *sweep.Summary, c sweep.Category, id uuid.UUID, ok bool, err error) bool {
	if err != nil {
		s.logger.Warn().Err(err).Str("category", string(c)).Str("id", id.String()).Msg("sweep write failed")
		summary.Categories[c].Skipped++
		return false
	}
	if !ok {
		summary.Categories[c].Skipped++
		return false
	}
	summary.Add(c, id)
	return true
}

// finish terminates a detected session. A same-status write that lands first (a
// join, an extension) is re-read so the recorded duration uses stored state.
func (s *Service) finish(ctx context.Context, ss *session.Session, now time.Time, completed bool) (bool, error) {
	expected := ss.Status
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			fresh, err := s.sessions.GetByID(ctx, ss.ID)
			if err != nil {
				return false, err
			}
			if fresh == nil || fresh.Status != expected || (completed && s.active(fresh, now)) {
				return false, nil
			}
			*ss = *fresh
		}
		var err error
		if completed {
			err = ss.Complete(now, reasonOrphaned)
		} else {
			err = ss.Cancel(now, reasonNoMechanic)
		}
		if err != nil {
			return false, nil
		}
		ok, err := s.sessions.UpdateIfStatus(ctx, ss, expected)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// active reports activity inside the grace window.
func (s *Service) active(ss *session.Session, now time.Time) bool {
	return ss.LastActivityAt != nil && ss.LastActivityAt.After(now.Add(-s.thresholds.ActivityGrace))
}

// ListRuns returns the most recent executed sweeps.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*sweep.Run, error) {
	return s.runs.ListRecent(ctx, limit)
}

// Run executes sweeps every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Execute(ctx, "schedule"); err != nil {
				s.logger.Error().Err(err).Msg("scheduled sweep failed")
			}
		}
	}
}

// RunPreview pushes a fresh preview to admin dashboards every interval.
func (s *Service) RunPreview(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := s.Preview(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("preview refresh failed")
				continue
			}
			s.emit(ctx, notification.NewEvent(notification.TypeReaperPreview, uuid.Nil).
				ToGroups(notification.GroupAdmins).
				With("summary", summary))
		}
	}
}

func participants(ss *session.Session) []uuid.UUID {
	out := []uuid.UUID{ss.CustomerID}
	if ss.MechanicID != nil {
		out = append(out, *ss.MechanicID)
	}
	return out
}

func (s *Service) emit(ctx context.Context, event notification.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(ctx, event)
}
