package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps vectors in the rag_vectors table (see database.EnsureVectorSchema)
// and ranks them by pgvector cosine distance.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

func NewPostgresStore(pool *pgxpool.Pool, dimension int) *PostgresStore {
	return &PostgresStore{pool: pool, dimension: dimension}
}

func (s *PostgresStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		if err := checkDimension(s.dimension, rec.Vector); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		metadata, err := json.Marshal(nonNil(rec.Metadata))
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", rec.ID, err)
		}
		batch.Queue(`
            INSERT INTO rag_vectors (id, namespace, content, metadata, embedding, created_at)
            VALUES ($1::uuid, $2, $3, $4::jsonb, $5::vector, NOW())
            ON CONFLICT (id) DO UPDATE SET
                namespace = EXCLUDED.namespace,
                content = EXCLUDED.content,
                metadata = EXCLUDED.metadata,
                embedding = EXCLUDED.embedding
        `, rec.ID, namespace, rec.Text, string(metadata), pgvector.NewVector(rec.Vector))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit vectors: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Match, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if err := checkDimension(s.dimension, q.Vector); err != nil {
		return nil, err
	}
	limit := q.TopK
	if limit <= 0 {
		limit = 5
	}
	filter, err := json.Marshal(nonNil(q.Filter))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata filter: %w", err)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT
            id::text,
            content,
            metadata,
            (embedding <=> $1::vector) AS distance
        FROM rag_vectors
        WHERE namespace = $2 AND metadata @> $3::jsonb
        ORDER BY embedding <=> $1::vector
        LIMIT $4
    `, pgvector.NewVector(q.Vector), q.Namespace, string(filter), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, limit)
	for rows.Next() {
		var m Match
		var distance float64
		if err := rows.Scan(&m.ID, &m.Text, &m.Metadata, &distance); err != nil {
			return nil, fmt.Errorf("scan similar vector: %w", err)
		}
		m.Score = clampScore(1 - distance)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar vectors: %w", err)
	}
	return matches, nil
}

// Stats reports per-namespace counts. The table is unbounded, so fullness is always zero.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	if s.pool == nil {
		return Stats{}, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, "SELECT namespace, COUNT(*) FROM rag_vectors GROUP BY namespace")
	if err != nil {
		return Stats{}, fmt.Errorf("query vector stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{Dimension: s.dimension, Namespaces: map[string]int{}}
	for rows.Next() {
		var ns string
		var count int
		if err := rows.Scan(&ns, &count); err != nil {
			return Stats{}, fmt.Errorf("scan vector stats: %w", err)
		}
		stats.Namespaces[ns] = count
		stats.TotalVectors += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate vector stats: %w", err)
	}
	return stats, nil
}

// Clear removes every vector in every namespace.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM rag_vectors"); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	return nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ Store = (*PostgresStore)(nil)
