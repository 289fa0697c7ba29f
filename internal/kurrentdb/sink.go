package kurrentdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"

	"github.com/txapcd/deid-engine/internal/audit"
)

// Sink implements audit.EventSink by appending each hash-chained audit
// entry to a per-run KurrentDB stream. A pipeline run has exactly one
// stream (its run ID) and no subscriber — the stream exists purely as
// a durable, independently-verifiable copy of the chain.
type Sink struct {
	client *Client
}

// NewSink builds a Sink that appends to the stream named by each
// entry's RunID.
func NewSink(client *Client) *Sink {
	return &Sink{client: client}
}

// Append appends entry to its run's stream.
func (s *Sink) Append(ctx context.Context, entry *audit.Entry) error {
	stream := streamName(entry.RunID.String())

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	esdbEvent := esdb.EventData{
		EventType:   string(entry.Action),
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     toUUID(entry.ID),
	}

	_, err = s.client.DB().AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)
	if err != nil {
		return fmt.Errorf("failed to append audit entry %s: %w", entry.ID, err)
	}

	return nil
}

// Health checks the KurrentDB connection.
func (s *Sink) Health(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func streamName(runID string) string {
	return "deid-run-" + runID
}
