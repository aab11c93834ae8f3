package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/joliv/mira/internal/models"
)

var (
	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("vector store unavailable")
	// ErrDuplicateID means the store rejected an id that already exists.
	ErrDuplicateID = errors.New("duplicate chunk id")
)

const uniqueViolation = "23505"

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	ConnTimeout time.Duration
}

// VectorStore persists fused chunk vectors in Postgres with pgvector and
// serves nearest-neighbour queries ordered by L2 distance.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 512
	}
	if config.ConnTimeout == 0 {
		config.ConnTimeout = 10 * time.Second
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.ConnTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_l2_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Add durably writes one chunk. Ids are caller-generated UUIDs, so a
// collision is a caller bug surfaced as ErrDuplicateID.
func (vs *VectorStore) Add(ctx context.Context, id string, vector []float32, document string, meta models.Metadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %v", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document, embedding, metadata)
		VALUES ($1, $2, $3, $4)`,
		vs.config.TableName)

	_, err = vs.pool.Exec(ctx, stmt,
		id,
		sanitizeUTF8(document),
		pgvector.NewVector(vector),
		metaJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Query returns up to k chunks nearest to the query vector by L2 distance,
// nearest first. An empty table yields an empty slice, not an error.
func (vs *VectorStore) Query(ctx context.Context, vector []float32, k int) ([]models.Match, error) {
	if k <= 0 {
		k = 3
	}

	query := fmt.Sprintf(`
		SELECT id, document, metadata, embedding <-> $1 AS distance
		FROM %s
		ORDER BY embedding <-> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	matches := make([]models.Match, 0, k)
	for rows.Next() {
		var (
			match    models.Match
			metaJSON []byte
			distance float64
		)
		if err := rows.Scan(&match.ID, &match.Document, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		if err := json.Unmarshal(metaJSON, &match.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %v", err)
		}
		match.Distance = float32(distance)
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return matches, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
