package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"ragchat/types"
)

// PostgresStore keeps one collection in PostgreSQL with pgvector. Chunks of a
// collection go away through ON DELETE CASCADE when its row is dropped.
type PostgresStore struct {
	pool      *pgxpool.Pool
	name      string
	dimension int
	logger    *slog.Logger
}

// querier is the part of *pgxpool.Pool and pgx.Tx the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgresStore(ctx context.Context, connStr, collection string, dimension int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, types.E(types.KindStorage, "postgres connect", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, types.E(types.KindStorage, "postgres ping", err)
	}

	return &PostgresStore{
		pool:      pool,
		name:      collection,
		dimension: dimension,
		logger:    slog.Default(),
	}, nil
}

func (p *PostgresStore) Name() string { return p.name }

func (p *PostgresStore) createRagTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		dimension INT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chunks (
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		embedding vector(%d) NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);
	`, p.dimension)

	_, err := p.pool.Exec(ctx, query)
	return err
}

// Init creates the schema and the collection row. An existing collection
// with another dimension is an error.
func (p *PostgresStore) Init(ctx context.Context) error {
	if err := p.createRagTables(ctx); err != nil {
		return types.E(types.KindStorage, "postgres init", err)
	}
	if err := p.ensureCollection(ctx, p.pool); err != nil {
		return types.Wrap(types.KindStorage, "postgres init", err)
	}
	return nil
}

func (p *PostgresStore) ensureCollection(ctx context.Context, q querier) error {
	_, err := q.Exec(ctx,
		`INSERT INTO collections (name, description, dimension) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`,
		p.name, collectionDescription, p.dimension)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	var dim int
	if err := q.QueryRow(ctx, `SELECT dimension FROM collections WHERE name = $1`, p.name).Scan(&dim); err != nil {
		return fmt.Errorf("read collection: %w", err)
	}
	if dim != p.dimension {
		return types.Errorf(types.KindStorage, "collection "+p.name, "stored dimension %d, configured %d", dim, p.dimension)
	}
	return nil
}

// Add upserts all chunks in one transaction.
func (p *PostgresStore) Add(ctx context.Context, chunks []types.Chunk, embeddings [][]float32) error {
	if err := validateBatch("postgres add", chunks, embeddings, p.dimension); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if err := p.ensureCollection(ctx, tx); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, c := range chunks {
			batch.Queue(
				`INSERT INTO chunks (collection, id, content, metadata, embedding)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (collection, id) DO UPDATE SET
					content = EXCLUDED.content,
					metadata = EXCLUDED.metadata,
					embedding = EXCLUDED.embedding`,
				p.name, c.ID, c.Text, c.Metadata(), pgvector.NewVector(embeddings[i]),
			)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range chunks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert chunk %d: %w", i, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return types.Wrap(types.KindStorage, "postgres add", err)
	}

	p.logger.Debug("chunks stored", "collection", p.name, "count", len(chunks))
	return nil
}

func (p *PostgresStore) Query(ctx context.Context, embedding []float32, k int) ([]types.RetrievalResult, error) {
	if len(embedding) != p.dimension {
		return nil, types.Errorf(types.KindValidation, "postgres query", "query dimension %d, want %d", len(embedding), p.dimension)
	}
	if k <= 0 {
		return []types.RetrievalResult{}, nil
	}

	query := `
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM chunks
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(embedding), p.name, k)
	if err != nil {
		return nil, types.E(types.KindStorage, "postgres query", err)
	}
	defer rows.Close()

	results := make([]types.RetrievalResult, 0, k)
	for rows.Next() {
		var r types.RetrievalResult
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.Distance); err != nil {
			return nil, types.E(types.KindStorage, "postgres query", err)
		}
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.E(types.KindStorage, "postgres query", err)
	}
	return results, nil
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE collection = $1`, p.name).Scan(&n)
	if err != nil {
		return 0, types.E(types.KindStorage, "postgres count", err)
	}
	return n, nil
}

// Clear deletes the collection and recreates it in the same transaction, so
// a failure leaves either the old collection or the new empty one.
func (p *PostgresStore) Clear(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM collections WHERE name = $1`, p.name); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
		return p.ensureCollection(ctx, tx)
	})
	if err != nil {
		return types.Wrap(types.KindStorage, "postgres clear", err)
	}
	p.logger.Info("collection cleared", "collection", p.name)
	return nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("Postgres connection pool is closed")
	}
	return nil
}

var _ VectorStore = (*PostgresStore)(nil)
