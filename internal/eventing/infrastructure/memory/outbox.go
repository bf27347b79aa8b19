package memory

import (
	"context"
	"errors"
	"sync"

	"omc-erp/internal/eventing"
)

const (
	statusPending = "pending"
	statusSent    = "sent"
	statusFailed  = "failed"
)

type entry struct {
	record eventing.OutboxRecord
	status string
}

// Outbox is an in-memory outbox used by tests and dry runs.
type Outbox struct {
	mu      sync.Mutex
	entries []*entry
	dlq     []eventing.Envelope
}

// NewOutbox constructs an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Insert appends a pending record.
func (o *Outbox) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	if env.EventID == "" {
		return "", errors.New("memory outbox: empty event id")
	}
	id := eventing.NewEventID()
	o.mu.Lock()
	o.entries = append(o.entries, &entry{record: eventing.OutboxRecord{ID: id, Envelope: env}, status: statusPending})
	o.mu.Unlock()
	return id, nil
}

// ListPending returns pending records in insertion order.
func (o *Outbox) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []eventing.OutboxRecord
	for _, e := range o.entries {
		if e.status != statusPending {
			continue
		}
		out = append(out, e.record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkSent marks a record as delivered.
func (o *Outbox) MarkSent(_ context.Context, id string) error {
	return o.mark(id, statusSent)
}

// MarkFailed marks a record as failed.
func (o *Outbox) MarkFailed(_ context.Context, id string) error {
	return o.mark(id, statusFailed)
}

// RecordFailure keeps the envelope in the dead-letter list.
func (o *Outbox) RecordFailure(_ context.Context, env eventing.Envelope, _ error) error {
	o.mu.Lock()
	o.dlq = append(o.dlq, env)
	o.mu.Unlock()
	return nil
}

// Envelopes returns every envelope ever inserted.
func (o *Outbox) Envelopes() []eventing.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]eventing.Envelope, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e.record.Envelope)
	}
	return out
}

// DeadLetters returns envelopes recorded as failed deliveries.
func (o *Outbox) DeadLetters() []eventing.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]eventing.Envelope(nil), o.dlq...)
}

func (o *Outbox) mark(id, status string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.entries {
		if e.record.ID == id {
			e.status = status
			return nil
		}
	}
	return errors.New("memory outbox: record not found")
}
