// Package memory implements a publisher that records completion events
// in process, for worker tests and broker-less local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/macmap/instaingest/internal/ingest"
)

// Publisher records every publish call in order. Publish never fails,
// so callers that treat publish errors as non-fatal stay on the happy
// path here.
type Publisher struct {
	mu      sync.RWMutex
	records []Record
}

// Record is one captured publish call.
type Record struct {
	Topic   string
	Payload any
}

// New returns an empty recording Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload and returns a sequence-numbered pseudo
// message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, Record{Topic: topic, Payload: payload})
	return fmt.Sprintf("local-%d", len(p.records)), nil
}

// Records returns a copy of everything published so far.
func (p *Publisher) Records() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// CompletionEvents returns the recorded completion event payloads in
// publish order, skipping payloads of other types.
func (p *Publisher) CompletionEvents() []ingest.CompletionEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	events := make([]ingest.CompletionEvent, 0, len(p.records))
	for _, rec := range p.records {
		if event, ok := rec.Payload.(ingest.CompletionEvent); ok {
			events = append(events, event)
		}
	}
	return events
}
