package service

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"scorelink/internal/constants"
	"scorelink/internal/metrics"
	"scorelink/internal/models"
	"scorelink/internal/retry"
)

// Attempter runs one delivery attempt.
type Attempter interface {
	Attempt(ctx context.Context, entry models.PendingMessage) models.AttemptResult
}

// Scheduler drives delivery attempts for the pending slot. It wakes on a ticker and
// on explicit Wake calls, and keeps retrying with backoff until an ack clears the
// slot. There is no attempt limit.
type Scheduler struct {
	store        PendingStore
	attempter    Attempter
	backoff      *retry.Backoff
	status       *StatusBoard
	clock        clock.Clock
	tickInterval time.Duration
	metrics      *metrics.Metrics
	logger       *logrus.Logger

	// attemptMu keeps at most one attempt in flight
	attemptMu sync.Mutex

	wakeCh   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once

	// lifeMu guards stopped and the loops count so Stop cannot miss a loop that is
	// just starting
	lifeMu  sync.Mutex
	stopped bool
	loops   sync.WaitGroup
}

// SchedulerConfig carries the scheduler's collaborators and timing.
type SchedulerConfig struct {
	Store        PendingStore
	Attempter    Attempter
	Backoff      *retry.Backoff
	Status       *StatusBoard
	Clock        clock.Clock
	TickInterval time.Duration
	Metrics      *metrics.Metrics
	Logger       *logrus.Logger
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.NewBackoff(retry.DefaultBackoffConfig())
	}
	if cfg.Status == nil {
		cfg.Status = NewStatusBoard(cfg.Clock)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Duration(constants.DefaultTickIntervalSec) * time.Second
	}
	return &Scheduler{
		store:        cfg.Store,
		attempter:    cfg.Attempter,
		backoff:      cfg.Backoff,
		status:       cfg.Status,
		clock:        cfg.Clock,
		tickInterval: cfg.TickInterval,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		wakeCh:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// Start runs the scheduler loop until ctx is cancelled or Stop is called. A pending
// entry left over from a previous run is picked up by the first tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifeMu.Lock()
	if s.stopped {
		s.lifeMu.Unlock()
		return
	}
	s.loops.Add(1)
	s.lifeMu.Unlock()
	defer s.loops.Done()

	ticker := s.clock.Ticker(s.tickInterval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.tickInterval.String()).Info("Starting delivery scheduler")

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-s.wakeCh:
			s.Kick(ctx)
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop ends the loop and waits for it to return, including any attempt in flight.
// Callers can close the store once Stop returns.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	s.stopped = true
	s.lifeMu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	s.loops.Wait()
}

// Wake asks the loop for an immediate attempt. It never blocks; wakes that arrive
// while one is already queued collapse into it.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Tick attempts delivery if an entry exists and its retry time has come. It
// reports whether an attempt ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	return s.run(ctx, false)
}

// Kick attempts delivery of the current entry now, regardless of its retry time.
func (s *Scheduler) Kick(ctx context.Context) bool {
	return s.run(ctx, true)
}

// Status returns the transient status of the latest attempt.
func (s *Scheduler) Status() models.DeliveryStatus {
	return s.status.Current()
}

func (s *Scheduler) run(ctx context.Context, force bool) bool {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	logger := componentLogger(s.logger, "scheduler")

	entry, err := s.store.Read(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to read pending entry")
		return false
	}
	s.metrics.SetPending(entry)
	if entry == nil {
		return false
	}

	now := s.clock.Now()
	if !force && now.Before(entry.NextRetryAt) {
		return false
	}

	result := s.attempter.Attempt(ctx, *entry)

	attemptCount := entry.AttemptCount + 1
	nextRetryAt := s.clock.Now().Add(s.backoff.Delay(attemptCount))

	updated, err := s.store.RecordAttempt(ctx, entry.IdempotencyKey, attemptCount, nextRetryAt)
	if err != nil {
		logger.WithError(err).WithField(LogFieldKey, SanitizeKey(ctx, entry.IdempotencyKey)).
			Error("Failed to record delivery attempt")
		return true
	}
	if !updated {
		// acked or replaced while the attempt was in flight
		logger.WithField(LogFieldKey, SanitizeKey(ctx, entry.IdempotencyKey)).
			Debug("Pending entry changed during attempt")
		return true
	}

	entry.AttemptCount = attemptCount
	entry.NextRetryAt = nextRetryAt
	s.metrics.SetPending(entry)
	s.status.Set(entry.IdempotencyKey, result.Outcome, statusText(result.Outcome))

	logger.WithFields(logrus.Fields{
		LogFieldKey:         SanitizeKey(ctx, entry.IdempotencyKey),
		LogFieldAttempt:     attemptCount,
		LogFieldOutcome:     result.Outcome,
		LogFieldNextRetryAt: nextRetryAt.Format(time.RFC3339),
	}).Debug("Next delivery attempt scheduled")

	return true
}
