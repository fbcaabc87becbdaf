package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/resilience"
)

// delivery describes one kind of traffic on the shared connection. A summarize
// request must arrive, so it is retried; a progress event is stale once a newer
// step exists, so it is sent once and dropped on failure.
type delivery struct {
	operation string
	action    string
	durable   bool
}

var (
	summaryDelivery  = delivery{operation: resilience.OpDispatch, action: "dispatch summarize", durable: true}
	progressDelivery = delivery{operation: resilience.OpProgress, action: "publish progress", durable: false}
)

func (d delivery) classify(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case isMalformedMessage(err):
		// Resending the same bytes fails the same way, and says nothing about the server.
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case resilience.IsCircuitOpen(err), isConnectionFailure(err):
		return resilience.ErrorClassification{Retryable: d.durable, RecordFailure: true}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

func (d delivery) publish(ctx context.Context, executor *resilience.Executor, call func(context.Context) error) error {
	var err error
	if executor != nil {
		err = executor.Execute(ctx, d.operation, call, d.classify)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return nil
	}
	switch {
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case resilience.IsCircuitOpen(err), isConnectionFailure(err):
		return domain.WrapError(domain.ErrTemporary, d.action, err)
	case isMalformedMessage(err):
		return domain.WrapError(domain.ErrInvalidInput, d.action, err)
	default:
		return err
	}
}

func isConnectionFailure(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionDraining) ||
		errors.Is(err, nats.ErrDisconnected)
}

func isMalformedMessage(err error) bool {
	return errors.Is(err, nats.ErrMaxPayload) ||
		errors.Is(err, nats.ErrBadSubject) ||
		errors.Is(err, nats.ErrInvalidMsg)
}
