package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/txapcd/deid-engine/internal/schema"
	"github.com/txapcd/deid-engine/internal/shared/metrics"
)

// RelationSource implements pipeline.Source over a Postgres table via
// keyset pagination on a surrogate cursor column, rather than an
// offset/limit scan or `ORDER BY ctid` — both of which break the
// resumability contract when rows are concurrently inserted elsewhere.
type RelationSource struct {
	pool       *pgxpool.Pool
	table      string
	cursorCol  string
	lastCursor int64
	queryName  string
}

// NewRelationSource builds a Source over table, paginated by cursorCol
// (expected to be a monotonically increasing bigint/serial column).
func NewRelationSource(pool *pgxpool.Pool, table, cursorCol string) *RelationSource {
	return &RelationSource{pool: pool, table: table, cursorCol: cursorCol, queryName: "read_" + table}
}

// Next returns up to chunkSize rows with cursorCol > the last cursor
// seen, ordered by cursorCol so successive calls never repeat or skip a
// row even if the pool's connections are interleaved.
func (s *RelationSource) Next(ctx context.Context, chunkSize int) ([]schema.Row, error) {
	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s > $1 ORDER BY %s LIMIT $2",
		pgx.Identifier{s.table}.Sanitize(), s.cursorCol, s.cursorCol,
	)

	rows, err := s.pool.Query(ctx, query, s.lastCursor, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []schema.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.table, err)
		}
		row := make(schema.Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
		switch cursor := row[s.cursorCol].(type) {
		case int64:
			if cursor > s.lastCursor {
				s.lastCursor = cursor
			}
		case int32:
			if int64(cursor) > s.lastCursor {
				s.lastCursor = int64(cursor)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", s.table, err)
	}
	return out, nil
}

// RelationSink implements pipeline.Sink, bulk-loading a transformed
// chunk into table via pgx.CopyFrom, one transaction per call — a
// cancelled run leaves only whole chunks committed.
type RelationSink struct {
	pool  *pgxpool.Pool
	table string
}

// NewRelationSink builds a Sink that writes into table's "row" jsonb
// column (the migrated schema in migrations/0001_init.sql).
func NewRelationSink(pool *pgxpool.Pool, table string) *RelationSink {
	return &RelationSink{pool: pool, table: table}
}

func (s *RelationSink) Write(ctx context.Context, rows []schema.Row) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning %s write transaction: %w", s.table, err)
	}

	source := make([][]any, len(rows))
	for i, row := range rows {
		source[i] = []any{row}
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{s.table}, []string{"row"}, pgx.CopyFromRows(source)); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("copying into %s: %w", s.table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s write: %w", s.table, err)
	}

	metrics.RecordDBQuery("copy_from_"+s.table, time.Since(start))
	return nil
}

// AgeLookupSink persists the eligibility-built age lookup into the
// age_lookup side table. The table is only written here; nothing in this
// package reads it back, so a medical pass always uses the in-memory
// lookup built by the eligibility pass of the same run.
type AgeLookupSink struct {
	pool *pgxpool.Pool
}

// NewAgeLookupSink builds a Sink for the age_lookup side table.
func NewAgeLookupSink(pool *pgxpool.Pool) *AgeLookupSink {
	return &AgeLookupSink{pool: pool}
}

// Persist upserts every entry in lookup into age_lookup.
func (s *AgeLookupSink) Persist(ctx context.Context, lookup map[string]int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning age_lookup write transaction: %w", err)
	}
	for deidMemberID, group := range lookup {
		if _, err := tx.Exec(ctx, `
			INSERT INTO age_lookup (deid_member_id, age_group) VALUES ($1, $2)
			ON CONFLICT (deid_member_id) DO UPDATE SET age_group = EXCLUDED.age_group
		`, deidMemberID, group); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("upserting age_lookup entry: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing age_lookup write: %w", err)
	}
	return nil
}
