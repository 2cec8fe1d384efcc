package models

import "time"

// PendingMessage is the single outbound result awaiting acknowledgment on the sender.
// IdempotencyKey is fixed for the life of the entry; attempt bookkeeping is updated in place.
type PendingMessage struct {
	IdempotencyKey string    `json:"idempotencyKey"`
	Payload        []byte    `json:"payload"`
	CreatedAt      time.Time `json:"createdAt"`
	AttemptCount   int       `json:"attemptCount"`
	NextRetryAt    time.Time `json:"nextRetryAt"`
	TargetNodeID   string    `json:"targetNodeId,omitempty"`
}

// AttemptOutcome is the result of one delivery attempt.
type AttemptOutcome string

const (
	OutcomeSent             AttemptOutcome = "sent"
	OutcomeNoPeer           AttemptOutcome = "no_peer"
	OutcomeTransportFailure AttemptOutcome = "transport_failure"
)

// AttemptResult describes a finished attempt for logging and status reporting.
type AttemptResult struct {
	Outcome  AttemptOutcome
	NodeID   string
	Err      error
	Duration time.Duration
}

// DeliveryStatus is the transient, user-visible text for the last attempt.
type DeliveryStatus struct {
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	Outcome        AttemptOutcome `json:"outcome,omitempty"`
	Message        string         `json:"message"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

const (
	StatusTextIdle      = "Idle"
	StatusTextSaved     = "Saved OK"
	StatusTextSent      = "Sent, awaiting confirmation"
	StatusTextNoPeer    = "Phone not connected"
	StatusTextFailed    = "Saved OK, send failed"
	StatusTextDelivered = "Delivered"
	StatusTextDiscarded = "Discarded"
)
