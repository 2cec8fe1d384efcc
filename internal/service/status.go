package service

import (
	"sync"

	"github.com/benbjohnson/clock"

	"scorelink/internal/models"
)

// StatusBoard holds the transient, user-visible delivery status. It is not
// persisted; after a restart it reads "Idle" until the next attempt.
type StatusBoard struct {
	mu      sync.RWMutex
	clock   clock.Clock
	current models.DeliveryStatus
}

func NewStatusBoard(clk clock.Clock) *StatusBoard {
	return &StatusBoard{
		clock:   clk,
		current: models.DeliveryStatus{Message: models.StatusTextIdle, UpdatedAt: clk.Now()},
	}
}

// Set records the status for key. Once key is marked delivered, later updates for
// the same key are ignored so a late attempt result cannot hide the ack.
func (b *StatusBoard) Set(key string, outcome models.AttemptOutcome, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if key != "" && b.current.IdempotencyKey == key && b.current.Message == models.StatusTextDelivered {
		return
	}
	b.current = models.DeliveryStatus{
		IdempotencyKey: key,
		Outcome:        outcome,
		Message:        message,
		UpdatedAt:      b.clock.Now(),
	}
}

// MarkDelivered records that the entry for key was acknowledged.
func (b *StatusBoard) MarkDelivered(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = models.DeliveryStatus{
		IdempotencyKey: key,
		Outcome:        models.OutcomeSent,
		Message:        models.StatusTextDelivered,
		UpdatedAt:      b.clock.Now(),
	}
}

func (b *StatusBoard) Current() models.DeliveryStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

func statusText(outcome models.AttemptOutcome) string {
	switch outcome {
	case models.OutcomeSent:
		return models.StatusTextSent
	case models.OutcomeNoPeer:
		return models.StatusTextNoPeer
	default:
		return models.StatusTextFailed
	}
}
