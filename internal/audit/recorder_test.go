package audit

import (
	"context"
	"testing"

	"github.com/txapcd/deid-engine/internal/pipeline"
	"github.com/txapcd/deid-engine/internal/shared/types"
)

type collectingSink struct {
	entries []*Entry
}

func (s *collectingSink) Append(_ context.Context, e *Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func TestRecorderChainsAcrossEvents(t *testing.T) {
	sink := &collectingSink{}
	rec := NewRecorder(types.NewID(), sink)

	if err := rec.RecordEvent(context.Background(), pipeline.RelationEligibility, "chunk_written", map[string]string{"rows": "100"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rec.RecordEvent(context.Background(), pipeline.RelationEligibility, "chunk_written", map[string]string{"rows": "50"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.entries) != 2 {
		t.Fatalf("expected 2 forwarded entries, got %d", len(sink.entries))
	}
	if sink.entries[1].PrevHash != sink.entries[0].Hash {
		t.Fatalf("expected second entry's PrevHash to equal first entry's Hash")
	}
	if !VerifyChain(sink.entries) {
		t.Fatalf("expected recorded entries to form a valid chain")
	}
}

func TestRecorderDefaultsToNullSink(t *testing.T) {
	rec := NewRecorder(types.NewID(), nil)
	if err := rec.RecordEvent(context.Background(), pipeline.RelationMedical, "chunk_written", nil); err != nil {
		t.Fatalf("expected nil sink to fall back to NullSink without error, got %v", err)
	}
}

func TestRecorderLifecycleEvents(t *testing.T) {
	sink := &collectingSink{}
	rec := NewRecorder(types.NewID(), sink)

	if err := rec.RecordLifecycle(context.Background(), ActionRunStarted, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rec.RecordLifecycle(context.Background(), ActionRarityBuilt, map[string]any{"rare_dx": 12}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.entries) != 2 {
		t.Fatalf("expected 2 lifecycle entries, got %d", len(sink.entries))
	}
	if sink.entries[0].Action != ActionRunStarted {
		t.Fatalf("expected first entry action %s, got %s", ActionRunStarted, sink.entries[0].Action)
	}
	if sink.entries[1].Detail["rare_dx"] != 12 {
		t.Fatalf("expected rare_dx detail to round-trip")
	}
}
