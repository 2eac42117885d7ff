package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// StoredEmbedding is one row of the shared embedding corpus.
type StoredEmbedding struct {
	Path      string
	Embedding feature.Vector
	Model     string
	Dim       int
	CreatedAt time.Time
}

// EmbeddingRepository stores image embeddings keyed by file path so that
// several machines can share one corpus.
type EmbeddingRepository struct {
	pool *Pool
}

func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// Get retrieves an embedding by file path, returns nil if not found.
func (r *EmbeddingRepository) Get(ctx context.Context, path string) (*StoredEmbedding, error) {
	query := `
		SELECT path, embedding, model, dim, created_at
		FROM embeddings
		WHERE path = $1
	`

	var emb StoredEmbedding
	var vec pgvector.Vector

	err := r.pool.QueryRow(ctx, query, path).Scan(
		&emb.Path,
		&vec,
		&emb.Model,
		&emb.Dim,
		&emb.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	emb.Embedding = feature.Vector(vec.Slice())
	return &emb, nil
}

// Has checks whether an embedding exists for the given path.
func (r *EmbeddingRepository) Has(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM embeddings WHERE path = $1)", path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embedding exists: %w", err)
	}
	return exists, nil
}

// Count returns the total number of embeddings stored.
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// CountByPaths returns how many of the given paths already have embeddings.
func (r *EmbeddingRepository) CountByPaths(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM embeddings WHERE path = ANY($1)", pq.Array(paths)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings by paths: %w", err)
	}
	return count, nil
}

// Save stores an embedding (upsert).
func (r *EmbeddingRepository) Save(ctx context.Context, path string, embedding feature.Vector, model string) error {
	query := `
		INSERT INTO embeddings (path, embedding, model, dim)
		VALUES ($1, $2::vector, $3, $4)
		ON CONFLICT (path) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			created_at = NOW()
	`

	vec := pgvector.NewVector(embedding)
	_, err := r.pool.Exec(ctx, query, path, vec, model, len(embedding))
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// SaveBatch saves multiple embeddings in a single transaction.
func (r *EmbeddingRepository) SaveBatch(ctx context.Context, embeddings []StoredEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (path, embedding, model, dim)
		VALUES ($1, $2::vector, $3, $4)
		ON CONFLICT (path) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			created_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, emb := range embeddings {
		vec := pgvector.NewVector(emb.Embedding)
		if _, err := stmt.ExecContext(ctx, emb.Path, vec, emb.Model, len(emb.Embedding)); err != nil {
			return fmt.Errorf("insert embedding %s: %w", emb.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Delete removes the embedding for a path. Deleting a missing path is not
// an error.
func (r *EmbeddingRepository) Delete(ctx context.Context, path string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM embeddings WHERE path = $1", path); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}

// Paths returns all stored file paths in lexicographic order.
func (r *EmbeddingRepository) Paths(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT path FROM embeddings ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("query embedding paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paths: %w", err)
	}
	return paths, nil
}

// All retrieves every stored embedding ordered by path. The fixed order
// keeps corpora built from the database deterministic.
func (r *EmbeddingRepository) All(ctx context.Context) ([]StoredEmbedding, error) {
	query := `
		SELECT path, embedding, model, dim, created_at
		FROM embeddings
		ORDER BY path
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all embeddings: %w", err)
	}
	defer rows.Close()

	return scanEmbeddings(rows)
}

// FindSimilar finds the most similar embeddings by cosine distance.
func (r *EmbeddingRepository) FindSimilar(ctx context.Context, embedding feature.Vector, limit int) ([]StoredEmbedding, error) {
	query := `
		SELECT path, embedding, model, dim, created_at
		FROM embeddings
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`

	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx, query, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar embeddings: %w", err)
	}
	defer rows.Close()

	return scanEmbeddings(rows)
}

// FindSimilarWithDistance finds similar embeddings within maxDistance and
// returns the cosine distances alongside, nearest first.
func (r *EmbeddingRepository) FindSimilarWithDistance(ctx context.Context, embedding feature.Vector, limit int, maxDistance float64) ([]StoredEmbedding, []float64, error) {
	query := `
		SELECT path, embedding, model, dim, created_at,
		       embedding <=> $1::vector AS distance
		FROM embeddings
		WHERE embedding <=> $1::vector < $2
		ORDER BY distance
		LIMIT $3
	`

	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx, query, vec, maxDistance, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []StoredEmbedding
	var distances []float64

	for rows.Next() {
		var emb StoredEmbedding
		var v pgvector.Vector
		var dist float64

		if err := rows.Scan(&emb.Path, &v, &emb.Model, &emb.Dim, &emb.CreatedAt, &dist); err != nil {
			return nil, nil, fmt.Errorf("scan embedding: %w", err)
		}

		emb.Embedding = feature.Vector(v.Slice())
		embeddings = append(embeddings, emb)
		distances = append(distances, dist)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	return embeddings, distances, nil
}

func scanEmbeddings(rows *sql.Rows) ([]StoredEmbedding, error) {
	var embeddings []StoredEmbedding

	for rows.Next() {
		var emb StoredEmbedding
		var vec pgvector.Vector

		if err := rows.Scan(&emb.Path, &vec, &emb.Model, &emb.Dim, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}

		emb.Embedding = feature.Vector(vec.Slice())
		embeddings = append(embeddings, emb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	return embeddings, nil
}
