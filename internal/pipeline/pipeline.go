// Package pipeline orchestrates the streaming, chunked de-identification
// run: read a relation in bounded chunks, transform each chunk, write
// it to the output relation, and repeat until the source is exhausted.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/txapcd/deid-engine/internal/age"
	"github.com/txapcd/deid-engine/internal/classify"
	"github.com/txapcd/deid-engine/internal/geo"
	"github.com/txapcd/deid-engine/internal/pseudonym"
	"github.com/txapcd/deid-engine/internal/rarity"
	"github.com/txapcd/deid-engine/internal/schema"
	"github.com/txapcd/deid-engine/internal/shared/metrics"
	"github.com/txapcd/deid-engine/internal/transform"
	"github.com/txapcd/deid-engine/internal/validation"
)

// Relation names the three APCD relations, used as metric labels and
// audit-entry subjects.
type Relation string

const (
	RelationEligibility Relation = "eligibility"
	RelationProvider    Relation = "provider"
	RelationMedical     Relation = "medical"
)

// Source streams a relation's rows in bounded chunks. A concrete
// implementation backs onto Postgres (internal/storage) via a cursor
// or keyset-paginated query; tests use an in-memory slice source.
type Source interface {
	// Next returns up to chunkSize rows, or fewer at end of stream. It
	// returns (nil, nil) once exhausted.
	Next(ctx context.Context, chunkSize int) ([]schema.Row, error)
}

// Sink writes a transformed chunk to the output relation, transactionally
// per call so a resumed run can safely re-run a chunk that failed
// partway through.
type Sink interface {
	Write(ctx context.Context, rows []schema.Row) error
}

// AuditRecorder records pipeline lifecycle events to the hash-chained
// audit trail (internal/audit). Implementations may also forward to
// KurrentDB (internal/kurrentdb.Sink); a nil-safe no-op is used in tests.
type AuditRecorder interface {
	RecordEvent(ctx context.Context, relation Relation, action string, detail map[string]string) error
}

// Config bundles the knobs a Run needs beyond what's implicit in the
// transformers. ChunkSize mirrors config.DeidConfig.ChunkSize;
// RowsPerSecond has no counterpart in config.DeidConfig.
type Config struct {
	ChunkSize int
	// RowsPerSecond throttles chunk throughput against the destination
	// warehouse; 0 disables throttling.
	RowsPerSecond int
}

// Pipeline runs the three-relation de-identification pass.
// Eligibility must run before medical because medical reads the age
// lookup eligibility builds; provider has no dependency and may run
// before or after either.
type Pipeline struct {
	Keys       pseudonym.KeySet
	Geo        *geo.Generalizer
	Age        age.Bucketer
	Classifier classify.Classifier
	Submitter  string
	Config     Config
	Audit      AuditRecorder
	// Validation, if set, observes every transformed row so the run
	// produces a validation.Report at the end. Nil skips observation
	// entirely.
	Validation *validation.Validator
}

// RunEligibility streams, transforms, and writes the eligibility
// relation, populating lookup as it goes.
func (p *Pipeline) RunEligibility(ctx context.Context, src Source, sink Sink, lookup transform.AgeLookup) error {
	tr := transform.EligibilityTransformer{Keys: p.Keys, Geo: p.Geo, Age: p.Age, DefaultSubmitter: p.Submitter}
	return p.runChunks(ctx, RelationEligibility, src, sink, func(rows []schema.Row) []schema.Row {
		out := make([]schema.Row, len(rows))
		maskedCount := 0
		for i, row := range rows {
			result := tr.Transform(row, lookup)
			out[i] = result.Row
			if result.Masked {
				maskedCount++
			}
			if p.Validation != nil {
				p.Validation.ObserveEligibility(result.Row, result.Masked)
			}
		}
		metrics.RecordRowsMasked(string(RelationEligibility), maskedCount)
		metrics.SetAgeLookupSize(len(lookup))
		return out
	})
}

// RunProvider streams, transforms, and writes the provider relation.
// It has no cross-relation dependency.
func (p *Pipeline) RunProvider(ctx context.Context, src Source, sink Sink) error {
	tr := transform.ProviderTransformer{Keys: p.Keys, Geo: p.Geo}
	return p.runChunks(ctx, RelationProvider, src, sink, func(rows []schema.Row) []schema.Row {
		out := make([]schema.Row, len(rows))
		for i, row := range rows {
			result := tr.Transform(row)
			out[i] = result.Row
			if p.Validation != nil {
				p.Validation.ObserveProvider(result.Row)
			}
		}
		return out
	})
}

// RunMedical streams, transforms, and writes the medical relation. idx
// must be built over the whole relation before this call — the caller
// is responsible for the build pass.
func (p *Pipeline) RunMedical(ctx context.Context, src Source, sink Sink, idx *rarity.Index, lookup transform.AgeLookup) error {
	tr := transform.MedicalTransformer{
		Keys:             p.Keys,
		Geo:              p.Geo,
		Classifier:       p.Classifier,
		Rarity:           idx,
		DefaultSubmitter: p.Submitter,
		ReferenceDate:    p.Age.ReferenceDate,
		HIVDrugBucketing: p.Age.HIVDrugBucketing,
	}
	metrics.RecordRareCodes("dx", idx.RareCount(rarity.VocabularyDiagnosis))
	metrics.RecordRareCodes("cpt", idx.RareCount(rarity.VocabularyProcedure))
	metrics.RecordRareCodes("ndc", idx.RareCount(rarity.VocabularyDrug))

	return p.runChunks(ctx, RelationMedical, src, sink, func(rows []schema.Row) []schema.Row {
		out := make([]schema.Row, len(rows))
		maskedCount := 0
		for i, row := range rows {
			result := tr.Transform(row, lookup)
			out[i] = result.Row
			if result.Masked {
				maskedCount++
				for _, reason := range result.Reasons {
					metrics.RecordFlag(string(reason))
				}
			}
			if p.Validation != nil {
				p.Validation.ObserveMedical(result.Row, result.Masked)
			}
		}
		metrics.RecordRowsMasked(string(RelationMedical), maskedCount)
		return out
	})
}

// BuildRarityIndex performs the required single pass over the entire
// medical relation to accumulate diagnosis/procedure/drug code
// frequencies before any row is masked. src is read to
// exhaustion; the caller must supply a fresh Source for the subsequent
// transform pass (re-querying or rewinding, per the Source
// implementation).
func BuildRarityIndex(ctx context.Context, src Source, chunkSize, threshold int) (*rarity.Index, error) {
	builder := rarity.NewBuilder(threshold)
	for {
		rows, err := src.Next(ctx, chunkSize)
		if err != nil {
			return nil, fmt.Errorf("rarity build pass: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			for _, col := range schema.AllDiagnosisColumns() {
				builder.Add(rarity.VocabularyDiagnosis, row.GetString(col))
			}
			for _, col := range schema.AllProcedureColumns() {
				builder.Add(rarity.VocabularyProcedure, row.GetString(col))
			}
			builder.Add(rarity.VocabularyDrug, row.GetString(schema.ColDrugCode))
		}
	}
	return builder.Build(), nil
}

func (p *Pipeline) runChunks(ctx context.Context, relation Relation, src Source, sink Sink, transformChunk func([]schema.Row) []schema.Row) error {
	chunkSize := p.Config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 25000
	}

	var limiter *rate.Limiter
	if p.Config.RowsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.Config.RowsPerSecond), p.Config.RowsPerSecond)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		rows, err := src.Next(ctx, chunkSize)
		if err != nil {
			return fmt.Errorf("reading %s chunk: %w", relation, err)
		}
		if len(rows) == 0 {
			break
		}
		metrics.RecordRowsIn(string(relation), len(rows))
		metrics.RecordChunkDuration(string(relation), "read", time.Since(start))

		if limiter != nil {
			if err := limiter.WaitN(ctx, len(rows)); err != nil {
				return fmt.Errorf("rate limiting %s chunk: %w", relation, err)
			}
		}

		transformStart := time.Now()
		transformed := transformChunk(rows)
		metrics.RecordChunkDuration(string(relation), "transform", time.Since(transformStart))

		writeStart := time.Now()
		if err := sink.Write(ctx, transformed); err != nil {
			return fmt.Errorf("writing %s chunk: %w", relation, err)
		}
		metrics.RecordChunkDuration(string(relation), "write", time.Since(writeStart))

		if p.Audit != nil {
			if err := p.Audit.RecordEvent(ctx, relation, "chunk_written", map[string]string{
				"rows": fmt.Sprintf("%d", len(rows)),
			}); err != nil {
				return fmt.Errorf("recording audit event for %s chunk: %w", relation, err)
			}
		}
	}
	return nil
}
