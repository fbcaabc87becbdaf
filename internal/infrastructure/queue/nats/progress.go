package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/infrastructure/resilience"
)

const (
	ProgressEventType = "io.legallens.document.progress"
	progressSource    = "/legal-lens/pipeline"
)

// ProgressRelay carries progress events between processes as CloudEvents, so
// runs executed by a worker reach subscribers connected to the API.
type ProgressRelay struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

func NewProgressRelay(conn *nats.Conn, subject string, options Options) *ProgressRelay {
	return &ProgressRelay{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   loggerOrDefault(options.Logger),
	}
}

// Publish never fails the run; delivery problems are logged. While the
// progress breaker is open events are dropped without a publish attempt.
func (r *ProgressRelay) Publish(ctx context.Context, event domain.ProgressEvent) {
	payload, err := EncodeProgressEvent(event)
	if err != nil {
		r.logger.Warn("progress_encode_failed", "document_id", event.DocumentID, "error", err)
		return
	}
	err = progressDelivery.publish(ctx, r.executor, func(context.Context) error {
		return r.conn.Publish(r.subject, payload)
	})
	switch {
	case err == nil:
	case resilience.IsCircuitOpen(err):
		r.logger.Debug("progress_dropped", "document_id", event.DocumentID, "percent", event.Percent)
	default:
		r.logger.Warn("progress_publish_failed", "document_id", event.DocumentID, "error", err)
	}
}

// Forward relays every received event into the local publisher until ctx ends.
func (r *ProgressRelay) Forward(ctx context.Context, local ports.ProgressPublisher) error {
	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		event, err := DecodeProgressEvent(msg.Data)
		if err != nil {
			r.logger.Warn("progress_decode_failed", "error", err)
			return
		}
		local.Publish(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe progress: %w", err)
	}
	return drainOnDone(ctx, r.conn, sub)
}

func EncodeProgressEvent(event domain.ProgressEvent) ([]byte, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(fmt.Sprintf("%s-%s-%d", event.DocumentID, event.RunID, event.Percent))
	ce.SetType(ProgressEventType)
	ce.SetSource(progressSource)
	ce.SetSubject(event.DocumentID)
	if err := ce.SetData(cloudevents.ApplicationJSON, event); err != nil {
		return nil, fmt.Errorf("set cloudevent data: %w", err)
	}
	if err := ce.Validate(); err != nil {
		return nil, fmt.Errorf("validate cloudevent: %w", err)
	}
	return json.Marshal(ce)
}

func DecodeProgressEvent(raw []byte) (domain.ProgressEvent, error) {
	var ce cloudevents.Event
	if err := json.Unmarshal(raw, &ce); err != nil {
		return domain.ProgressEvent{}, fmt.Errorf("decode cloudevent: %w", err)
	}
	if ce.Type() != ProgressEventType {
		return domain.ProgressEvent{}, fmt.Errorf("unexpected cloudevent type %q", ce.Type())
	}
	var event domain.ProgressEvent
	if err := ce.DataAs(&event); err != nil {
		return domain.ProgressEvent{}, fmt.Errorf("decode progress payload: %w", err)
	}
	return event, nil
}
