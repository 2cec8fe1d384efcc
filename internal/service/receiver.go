package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"scorelink/internal/constants"
	"scorelink/internal/metrics"
	"scorelink/internal/models"
	"scorelink/internal/tracing"
	"scorelink/internal/transport"
	"scorelink/internal/wire"
)

// Receiver accepts results on the peer, stores each key at most once and
// acknowledges every valid receipt, duplicates included.
type Receiver struct {
	store      MatchStore
	transport  Transport
	ackTimeout time.Duration
	metrics    *metrics.Metrics
	logger     *logrus.Logger
}

func NewReceiver(store MatchStore, t Transport, ackTimeout time.Duration, m *metrics.Metrics, logger *logrus.Logger) *Receiver {
	if ackTimeout <= 0 {
		ackTimeout = time.Duration(constants.DefaultAckSendTimeoutSec) * time.Second
	}
	return &Receiver{
		store:      store,
		transport:  t,
		ackTimeout: ackTimeout,
		metrics:    m,
		logger:     logger,
	}
}

// HandleMessage processes one "/match_finished" frame.
func (r *Receiver) HandleMessage(ctx context.Context, msg transport.Message) {
	ctx, span := tracing.StartSpan(ctx, "delivery.receive",
		attribute.String(LogFieldNodeID, SanitizeNodeID(ctx, msg.SourceNodeID)),
	)
	defer span.End()

	logger := componentLogger(r.logger, "receiver").WithField(LogFieldNodeID, SanitizeNodeID(ctx, msg.SourceNodeID))

	result, err := wire.DecodeResult(msg.Data)
	if err == nil {
		result, err = wire.ValidateResult(result)
	}
	if err != nil {
		r.metrics.RecordReceipt(metrics.ReceiptMalformed)
		tracing.RecordError(ctx, err)
		logger.WithError(err).Warn("Dropping malformed result")
		return
	}

	logger = logger.WithField(LogFieldKey, SanitizeKey(ctx, result.IdempotencyKey))

	id, inserted, err := r.store.InsertIfNotExists(ctx, result)
	if err != nil {
		// no ack: the sender keeps the entry and retries
		r.metrics.RecordReceipt(metrics.ReceiptStoreError)
		tracing.RecordError(ctx, err)
		logger.WithError(err).Error("Failed to store result")
		return
	}

	tracing.AddSpanAttributes(ctx, attribute.Bool(LogFieldInserted, inserted))
	fields := logrus.Fields{LogFieldMatchID: id, LogFieldInserted: inserted}
	if inserted {
		r.metrics.RecordReceipt(metrics.ReceiptInserted)
		fields[LogFieldFinalScore] = result.FinalScoreText
		fields[LogFieldDurationSecs] = result.DurationSeconds
		logger.WithFields(fields).Info("Stored received result")
	} else {
		r.metrics.RecordReceipt(metrics.ReceiptDuplicate)
		logger.WithFields(fields).Info("Result already stored, acknowledging duplicate")
	}

	r.sendAck(ctx, logger, msg.SourceNodeID, result.IdempotencyKey)
}

func (r *Receiver) sendAck(ctx context.Context, logger *logrus.Entry, nodeID, key string) {
	ctx, cancel := context.WithTimeout(ctx, r.ackTimeout)
	defer cancel()

	data := wire.EncodeAck(models.AckMessage{IdempotencyKey: key, Status: models.AckStatusOK})
	if err := r.transport.SendMessage(ctx, nodeID, constants.PathMatchFinishedAck, data); err != nil {
		// the sender's next retry will draw another ack
		r.metrics.RecordAckSendFailure()
		logger.WithError(err).Warn("Failed to send acknowledgment")
		return
	}
	logger.Debug("Acknowledgment sent")
}
