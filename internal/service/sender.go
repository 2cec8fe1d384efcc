package service

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scorelink/internal/errors"
	"scorelink/internal/metrics"
	"scorelink/internal/models"
	"scorelink/internal/wire"
)

// Waker is notified when there is something new to deliver.
type Waker interface {
	Wake()
}

// Sender is the producer's entry point on the sender node.
type Sender struct {
	store   PendingStore
	waker   Waker
	status  *StatusBoard
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *logrus.Logger
	newKey  func() string
}

func NewSender(store PendingStore, waker Waker, status *StatusBoard, clk clock.Clock, m *metrics.Metrics, logger *logrus.Logger) *Sender {
	if clk == nil {
		clk = clock.New()
	}
	return &Sender{
		store:   store,
		waker:   waker,
		status:  status,
		clock:   clk,
		metrics: m,
		logger:  logger,
		newKey:  uuid.NewString,
	}
}

// FinishMatch assigns a fresh idempotency key, persists the encoded result before
// any network I/O and asks the scheduler for an immediate attempt. A stored entry
// that was never acknowledged is replaced.
func (s *Sender) FinishMatch(ctx context.Context, result models.MatchResult) (*models.PendingMessage, error) {
	now := s.clock.Now()
	if result.CreatedAt == 0 {
		result.CreatedAt = now.UnixMilli()
	}
	result.IdempotencyKey = s.newKey()

	result, err := wire.ValidateResult(result)
	if err != nil {
		return nil, err
	}

	entry := models.PendingMessage{
		IdempotencyKey: result.IdempotencyKey,
		Payload:        wire.EncodeResult(result),
		CreatedAt:      now,
	}

	replaced, err := s.store.Save(ctx, entry)
	if err != nil {
		return nil, errors.NewDatabaseError("save pending result", err)
	}

	logger := componentLogger(s.logger, "sender").WithField(LogFieldKey, SanitizeKey(ctx, entry.IdempotencyKey))
	if replaced != "" {
		s.metrics.RecordSuperseded()
		logger.WithField(LogFieldReplacedKey, SanitizeKey(ctx, replaced)).
			Warn("Replaced an unacknowledged result")
	}
	logger.Info("Result saved for delivery")

	s.metrics.SetPending(&entry)
	s.status.Set(entry.IdempotencyKey, "", models.StatusTextSaved)
	s.waker.Wake()

	return &entry, nil
}

// Pending returns the stored entry, or nil.
func (s *Sender) Pending(ctx context.Context) (*models.PendingMessage, error) {
	entry, err := s.store.Read(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("read pending result", err)
	}
	return entry, nil
}

// Discard drops the stored entry without waiting for an ack.
func (s *Sender) Discard(ctx context.Context) (bool, error) {
	discarded, err := s.store.Discard(ctx)
	if err != nil {
		return false, errors.NewDatabaseError("discard pending result", err)
	}
	if discarded {
		s.metrics.SetPending(nil)
		s.status.Set("", "", models.StatusTextDiscarded)
		componentLogger(s.logger, "sender").Info("Pending result discarded")
	}
	return discarded, nil
}

func (s *Sender) Status() models.DeliveryStatus {
	return s.status.Current()
}
