package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"scorelink/internal/metrics"
	"scorelink/internal/models"
	"scorelink/internal/transport"
	"scorelink/internal/wire"
)

// AckListener clears the pending slot when the peer confirms the stored key.
type AckListener struct {
	store   PendingStore
	status  *StatusBoard
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func NewAckListener(store PendingStore, status *StatusBoard, m *metrics.Metrics, logger *logrus.Logger) *AckListener {
	return &AckListener{
		store:   store,
		status:  status,
		metrics: m,
		logger:  logger,
	}
}

// HandleMessage processes one "/match_finished_ack" frame. Acks for keys that are
// no longer stored are expected after duplicates and are ignored.
func (a *AckListener) HandleMessage(ctx context.Context, msg transport.Message) {
	logger := componentLogger(a.logger, "ack_listener").WithField(LogFieldNodeID, SanitizeNodeID(ctx, msg.SourceNodeID))

	ack, err := wire.DecodeAck(msg.Data)
	if err != nil {
		a.metrics.RecordAck(metrics.AckInvalid)
		logger.WithError(err).Warn("Dropping undecodable acknowledgment")
		return
	}

	key := strings.TrimSpace(ack.IdempotencyKey)
	if key == "" {
		a.metrics.RecordAck(metrics.AckInvalid)
		logger.Warn("Dropping acknowledgment without idempotency key")
		return
	}
	logger = logger.WithField(LogFieldKey, SanitizeKey(ctx, key))

	if ack.Status != models.AckStatusOK {
		a.metrics.RecordAck(metrics.AckInvalid)
		logger.WithField("status", ack.Status).Warn("Dropping acknowledgment with unknown status")
		return
	}

	cleared, err := a.store.ClearIfMatches(ctx, key)
	if err != nil {
		logger.WithError(err).Error("Failed to clear pending entry")
		return
	}

	if !cleared {
		a.metrics.RecordAck(metrics.AckUnknownKey)
		logger.Info("Acknowledgment does not match pending entry, ignoring")
		return
	}

	a.metrics.RecordAck(metrics.AckCleared)
	a.metrics.SetPending(nil)
	a.status.MarkDelivered(key)
	logger.Info("Result delivered and acknowledged")
}
