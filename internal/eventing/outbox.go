package eventing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// OutboxStore provides access to pending outbox records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore records events that could not be delivered.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// Publisher writes events returned by domain operations to the outbox.
type Publisher struct {
	outbox   OutboxWriter
	tenantID string
	logger   *zap.Logger
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, tenantID string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{outbox: outbox, tenantID: tenantID, logger: logger}
}

// Publish writes one event to the outbox.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.outbox == nil {
		return nil
	}
	start := time.Now()
	env, err := BuildEnvelope(event, MetaFromContext(ctx, p.tenantID))
	if err != nil {
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		return fmt.Errorf("outbox insert %s: %w", env.EventType, err)
	}
	if d := time.Since(start); d > 50*time.Millisecond {
		p.logger.Warn("slow outbox publish",
			zap.String("event_type", env.EventType),
			zap.Duration("duration", d),
		)
	}
	return nil
}

// PublishAll writes events in order and stops at the first failure.
func (p *Publisher) PublishAll(ctx context.Context, events []any) error {
	for _, event := range events {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// EventBus is the minimal publish interface the dispatcher delivers to.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Claimed int
	Sent    int
	Failed  int
	DLQ     int
}

// Dispatcher delivers pending outbox records to the in-process bus.
type Dispatcher struct {
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
	logger   *zap.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq, logger: logger}
}

// Dispatch pulls up to limit pending records and delivers them.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	var result DispatchResult
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return result, nil
	}
	if limit <= 0 {
		limit = 50
	}
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		return result, err
	}
	result.Claimed = len(records)

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, record := range records {
		env := record.Envelope
		deliverErr := d.deliver(ctx, env)
		if deliverErr == nil {
			if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
				keep(err)
				result.Failed++
				continue
			}
			result.Sent++
			continue
		}

		d.logger.Warn("outbox delivery failed",
			zap.String("outbox_id", record.ID),
			zap.String("event_type", env.EventType),
			zap.Error(deliverErr),
		)
		keep(d.outbox.MarkFailed(ctx, record.ID))
		if d.dlq != nil {
			if err := d.dlq.RecordFailure(ctx, env, deliverErr); err == nil {
				result.DLQ++
			}
		}
		result.Failed++
	}
	return result, firstErr
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) error {
	event, err := d.registry.Decode(env)
	if err != nil {
		return err
	}
	return d.bus.Publish(WithEnvelope(ctx, env), event)
}
