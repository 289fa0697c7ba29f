package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/txapcd/deid-engine/internal/pipeline"
	"github.com/txapcd/deid-engine/internal/shared/types"
)

// EventSink forwards a finalized, hash-chained Entry to durable storage
// (internal/kurrentdb.Sink appends it to a KurrentDB stream). Recorder
// calls it synchronously so a forwarding failure surfaces as a pipeline
// error rather than a silently dropped audit record.
type EventSink interface {
	Append(ctx context.Context, entry *Entry) error
}

// NullSink discards every entry. It is the EventSink used when no
// durable event store is configured.
type NullSink struct{}

// Append implements EventSink by doing nothing.
func (NullSink) Append(context.Context, *Entry) error { return nil }

// Recorder builds the hash chain for a single pipeline run and forwards
// each entry to an EventSink. It implements pipeline.AuditRecorder.
type Recorder struct {
	RunID types.ID
	Sink  EventSink

	mu       sync.Mutex
	sequence int64
	lastHash string
}

// NewRecorder starts a fresh chain for runID. If sink is nil, entries
// are still hashed and chained but never forwarded (equivalent to
// NullSink).
func NewRecorder(runID types.ID, sink EventSink) *Recorder {
	if sink == nil {
		sink = NullSink{}
	}
	return &Recorder{RunID: runID, Sink: sink}
}

// RecordEvent appends the next entry in the chain and forwards it to
// the sink. relation and action match pipeline.Relation/the literal
// action strings pipeline.go passes (e.g. "chunk_written"); detail
// values are stringified counts, never row contents.
func (r *Recorder) RecordEvent(ctx context.Context, relation pipeline.Relation, action string, detail map[string]string) error {
	r.mu.Lock()
	r.sequence++
	seq := r.sequence
	prev := r.lastHash

	genericDetail := make(map[string]any, len(detail))
	for k, v := range detail {
		genericDetail[k] = v
	}

	entry := NewEntry(r.RunID, seq, Action("pipeline."+action), string(relation), genericDetail, prev)
	r.lastHash = entry.Hash
	r.mu.Unlock()

	if err := r.Sink.Append(ctx, entry); err != nil {
		return fmt.Errorf("forwarding audit entry %d: %w", seq, err)
	}
	return nil
}

// RecordLifecycle is a convenience for non-chunk lifecycle events
// (pipeline.started, pipeline.rarity_built, pipeline.completed,
// pipeline.validation_failed) that have no relation-scoped detail.
func (r *Recorder) RecordLifecycle(ctx context.Context, action Action, detail map[string]any) error {
	r.mu.Lock()
	r.sequence++
	seq := r.sequence
	prev := r.lastHash

	entry := NewEntry(r.RunID, seq, action, "", detail, prev)
	r.lastHash = entry.Hash
	r.mu.Unlock()

	if err := r.Sink.Append(ctx, entry); err != nil {
		return fmt.Errorf("forwarding audit entry %d: %w", seq, err)
	}
	return nil
}
