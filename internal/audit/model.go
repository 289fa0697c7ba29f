// Package audit implements the pipeline's tamper-evident audit trail:
// a hash-chained sequence of lifecycle events (run started, a chunk
// written, the rarity index built, the run completed or failed
// validation). Each entry carries a SHA-256 hash over its canonical
// JSON form plus the previous entry's hash.
//
// Entries never carry row contents — only counts and identifiers already
// public to the operator (relation name, row counts, run ID) — so the
// audit trail itself can never become a re-identification vector.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/txapcd/deid-engine/internal/shared/types"
)

// canonicalJSON produces deterministic JSON with sorted map keys, since
// Go map iteration order is randomized and would make the hash
// unreproducible across processes.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// Action names a pipeline lifecycle event.
type Action string

const (
	ActionRunStarted       Action = "pipeline.started"
	ActionPhaseCompleted   Action = "pipeline.phase_completed"
	ActionRarityBuilt      Action = "pipeline.rarity_built"
	ActionChunkWritten     Action = "pipeline.chunk_written"
	ActionRunCompleted     Action = "pipeline.completed"
	ActionValidationFailed Action = "pipeline.validation_failed"
)

// Entry is one immutable, hash-chained audit record.
type Entry struct {
	ID        types.ID       `json:"id"`
	RunID     types.ID       `json:"run_id"`
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Hash      string         `json:"hash"`
	PrevHash  string         `json:"prev_hash,omitempty"`
	Action    Action         `json:"action"`
	Relation  string         `json:"relation,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// NewEntry creates and hashes a new audit entry chained to prevHash.
func NewEntry(runID types.ID, sequence int64, action Action, relation string, detail map[string]any, prevHash string) *Entry {
	e := &Entry{
		ID:        types.NewID(),
		RunID:     runID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:  prevHash,
		Action:    action,
		Relation:  relation,
		Detail:    detail,
	}
	e.Hash = e.calculateHash()
	return e
}

func (e *Entry) calculateHash() string {
	data := map[string]any{
		"id":        e.ID,
		"run_id":    e.RunID,
		"sequence":  e.Sequence,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash": e.PrevHash,
		"action":    e.Action,
	}
	if e.Relation != "" {
		data["relation"] = e.Relation
	}
	if len(e.Detail) > 0 {
		data["detail"] = e.Detail
	}
	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash reports whether e.Hash matches its recomputed hash.
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// VerifyChain reports whether entries form a valid, unbroken hash
// chain in order: each entry's Hash must verify and each entry (after
// the first) must carry the previous entry's Hash as PrevHash.
func VerifyChain(entries []*Entry) bool {
	for i, e := range entries {
		if !e.VerifyHash() {
			return false
		}
		if i > 0 && e.PrevHash != entries[i-1].Hash {
			return false
		}
	}
	return true
}
