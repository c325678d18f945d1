package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
	deliveryTimeout    = 10 * time.Second
)

// Service fans events out to every configured sink. Delivery is asynchronous and
// best-effort: failures are retried, then logged and dropped.
type Service struct {
	sinks       []notification.Sink
	maxAttempts int
	backoff     time.Duration
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

// NewService creates a dispatcher over sinks.
func NewService(sinks []notification.Sink, maxAttempts int, logger zerolog.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		sinks:       sinks,
		maxAttempts: maxAttempts,
		backoff:     defaultBackoff,
		logger:      logger.With().Str("service", "notify").Logger(),
	}
}

// WithBackoff overrides the base retry delay.
func (s *Service) WithBackoff(d time.Duration) *Service {
	s.backoff = d
	return s
}

// Dispatch implements notification.Dispatcher. It never blocks on delivery.
func (s *Service) Dispatch(ctx context.Context, event notification.Event) {
	for _, sink := range s.sinks {
		s.wg.Add(1)
		go func(sink notification.Sink) {
			defer s.wg.Done()
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
			defer cancel()
			if err := s.deliver(dctx, sink, event); err != nil {
				s.logger.Warn().Err(err).
					Str("sink", sink.Name()).
					Str("eventId", event.ID.String()).
					Str("eventType", string(event.Type)).
					Msg("event delivery abandoned")
			}
		}(sink)
	}
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) deliver(ctx context.Context, sink notification.Sink, event notification.Event) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err = sink.Publish(ctx, event); err == nil {
			return nil
		}
		s.logger.Debug().Err(err).
			Str("sink", sink.Name()).
			Str("eventId", event.ID.String()).
			Int("attempt", attempt).
			Msg("event delivery failed")
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-time.After(s.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("delivery cancelled after %d attempts: %w", attempt, ctx.Err())
		}
	}
	return fmt.Errorf("delivery failed after %d attempts: %w", s.maxAttempts, err)
}

// LogSink writes every event to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("sink", "log").Logger()}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Publish(_ context.Context, event notification.Event) error {
	l.logger.Info().
		Str("eventId", event.ID.String()).
		Str("eventType", string(event.Type)).
		Str("entityId", event.EntityID.String()).
		Strs("groups", event.Audience.Groups).
		Int("users", len(event.Audience.UserIDs)).
		Msg("event")
	return nil
}
