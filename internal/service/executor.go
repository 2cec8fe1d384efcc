package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"scorelink/internal/constants"
	"scorelink/internal/errors"
	"scorelink/internal/metrics"
	"scorelink/internal/models"
	"scorelink/internal/tracing"
)

// Executor performs one delivery attempt for the pending entry. It never mutates
// the slot beyond the advisory target node id.
type Executor struct {
	transport Transport
	store     PendingStore
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

func NewExecutor(t Transport, store PendingStore, timeout time.Duration, m *metrics.Metrics, logger *logrus.Logger) *Executor {
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultAttemptTimeoutSec) * time.Second
	}
	return &Executor{
		transport: t,
		store:     store,
		timeout:   timeout,
		metrics:   m,
		logger:    logger,
	}
}

// Attempt discovers a node and sends the entry's payload to it. Every network call
// is bounded by the attempt timeout.
func (e *Executor) Attempt(ctx context.Context, entry models.PendingMessage) models.AttemptResult {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "delivery.attempt",
		attribute.String(LogFieldKey, SanitizeKey(ctx, entry.IdempotencyKey)),
		attribute.Int(LogFieldAttempt, entry.AttemptCount+1),
	)
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result := e.attempt(attemptCtx, entry)
	result.Duration = time.Since(start)

	e.metrics.RecordAttempt(result.Outcome, result.Duration)
	tracing.AddSpanAttributes(ctx,
		attribute.String(LogFieldOutcome, string(result.Outcome)),
		attribute.String(LogFieldNodeID, SanitizeNodeID(ctx, result.NodeID)),
	)

	fields := logrus.Fields{
		LogFieldComponent: "executor",
		LogFieldKey:       SanitizeKey(ctx, entry.IdempotencyKey),
		LogFieldAttempt:   entry.AttemptCount + 1,
		LogFieldOutcome:   result.Outcome,
		LogFieldDuration:  result.Duration.Milliseconds(),
	}
	if result.NodeID != "" {
		fields[LogFieldNodeID] = SanitizeNodeID(ctx, result.NodeID)
	}
	logger := e.logger.WithFields(fields)

	switch result.Outcome {
	case models.OutcomeSent:
		logger.Info("Result sent, awaiting acknowledgment")
	case models.OutcomeNoPeer:
		logger.Info("No connected node, result stays pending")
	default:
		tracing.RecordError(ctx, result.Err)
		errors.WrapLogger(e.logger).LogRetryableError(result.Err, "Delivery attempt failed", fields)
	}

	return result
}

func (e *Executor) attempt(ctx context.Context, entry models.PendingMessage) models.AttemptResult {
	nodes, err := e.transport.ConnectedNodes(ctx)
	if err != nil {
		return models.AttemptResult{
			Outcome: models.OutcomeTransportFailure,
			Err:     errors.NewTransportError("", constants.PathMatchFinished, err),
		}
	}
	if len(nodes) == 0 {
		return models.AttemptResult{
			Outcome: models.OutcomeNoPeer,
			Err:     errors.NewNoPeerError(constants.PathMatchFinished),
		}
	}

	node := nodes[0]
	if _, err := e.store.UpdateTargetNode(ctx, entry.IdempotencyKey, node.ID); err != nil {
		componentLogger(e.logger, "executor").WithError(err).Warn("Failed to record target node")
	}

	if err := e.transport.SendMessage(ctx, node.ID, constants.PathMatchFinished, entry.Payload); err != nil {
		return models.AttemptResult{
			Outcome: models.OutcomeTransportFailure,
			NodeID:  node.ID,
			Err:     errors.NewTransportError(node.ID, constants.PathMatchFinished, err),
		}
	}

	return models.AttemptResult{Outcome: models.OutcomeSent, NodeID: node.ID}
}
