// Package pgstore persists tool description vectors in PostgreSQL using the
// pgvector extension, so restarts do not pay for re-embedding every tool.
//
// Only description vectors are stored. Rankings are always computed fresh.
//
//	store, err := pgstore.New(ctx, dsn)
//	if err != nil { … }
//	cache := embedding.NewCache(backend, embedding.WithStore(store))
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/toolhub/internal/embedding"
)

var _ embedding.Store = (*Store)(nil)

// Vectors of any length share the table; rows are namespaced by model.
const ddl = `
CREATE TABLE IF NOT EXISTS tool_embeddings (
    model       TEXT         NOT NULL,
    text_hash   TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    embedding   vector       NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (model, text_hash)
);
`

// Store implements embedding.Store on a pgx connection pool. It is safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, installs the vector extension and the
// tool_embeddings table if needed, and returns a ready store.
func New(ctx context.Context, dsn string) (*Store, error) {
	// The vector type must exist before pgvector types can be registered on
	// pooled connections.
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	_, err = conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	_ = conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create extension: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Lookup implements embedding.Store.
func (s *Store) Lookup(ctx context.Context, model, text string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT embedding FROM tool_embeddings WHERE model = $1 AND text_hash = $2 AND text = $3`,
		model, textHash(text), text,
	).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: lookup: %w", err)
	}
	return vec.Slice(), true, nil
}

// Save implements embedding.Store. An existing row for the same model and
// text is kept.
func (s *Store) Save(ctx context.Context, model, text string, vec []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tool_embeddings (model, text_hash, text, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (model, text_hash) DO NOTHING`,
		model, textHash(text), text, pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("pgstore: save: %w", err)
	}
	return nil
}

// Count returns the number of stored vectors for model.
func (s *Store) Count(ctx context.Context, model string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tool_embeddings WHERE model = $1`, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgstore: count: %w", err)
	}
	return n, nil
}

// Ping checks connectivity; it backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements embedding.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func textHash(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 16)
}
