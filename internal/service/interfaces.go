package service

import (
	"context"
	"time"

	"scorelink/internal/models"
	"scorelink/internal/transport"
)

// Transport is the node-discovery and messaging capability the delivery
// components rely on.
type Transport interface {
	ConnectedNodes(ctx context.Context) ([]transport.Node, error)
	SendMessage(ctx context.Context, nodeID, path string, data []byte) error
}

// PendingStore is the sender's single durable slot.
type PendingStore interface {
	Save(ctx context.Context, entry models.PendingMessage) (string, error)
	Read(ctx context.Context) (*models.PendingMessage, error)
	ClearIfMatches(ctx context.Context, key string) (bool, error)
	RecordAttempt(ctx context.Context, key string, attemptCount int, nextRetryAt time.Time) (bool, error)
	UpdateTargetNode(ctx context.Context, key, nodeID string) (bool, error)
	Discard(ctx context.Context) (bool, error)
}

// MatchStore persists received results at most once per idempotency key.
type MatchStore interface {
	InsertIfNotExists(ctx context.Context, result models.MatchResult) (int64, bool, error)
}
