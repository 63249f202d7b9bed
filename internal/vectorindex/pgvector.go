package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PGVectorConfig holds pgvector index configuration.
type PGVectorConfig struct {
	Table     string // Default: product_embeddings
	Dimension int
	IndexType string // ivfflat, hnsw or none
	Lists     int
}

// PGVectorIndex stores embeddings in Postgres with the pgvector extension.
type PGVectorIndex struct {
	db        *sql.DB
	table     string
	dimension int
	indexType string
	lists     int
}

// NewPGVectorIndex creates a pgvector-backed index over an open database.
func NewPGVectorIndex(db *sql.DB, cfg PGVectorConfig) (*PGVectorIndex, error) {
	if cfg.Table == "" {
		cfg.Table = "product_embeddings"
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", cfg.Table)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.IndexType == "" {
		cfg.IndexType = "ivfflat"
	}
	if cfg.Lists <= 0 {
		cfg.Lists = 100
	}
	return &PGVectorIndex{
		db:        db,
		table:     cfg.Table,
		dimension: cfg.Dimension,
		indexType: cfg.IndexType,
		lists:     cfg.Lists,
	}, nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// EnsureSchema creates the extension, table and ANN index, then verifies that an
// existing table was built for the configured dimension.
func (p *PGVectorIndex) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return errors.Wrap(err, "create vector extension")
	}

	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			product_id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			category_key TEXT NOT NULL,
			brand TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			tags TEXT[] NOT NULL DEFAULT '{}',
			source_text TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table, p.dimension)
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "create embeddings table")
	}

	stored, err := p.storedDimension(ctx)
	if err != nil {
		return err
	}
	if stored != p.dimension {
		return fmt.Errorf("%w: table %s stores %d-dimensional vectors, configured %d",
			ErrDimensionMismatch, p.table, stored, p.dimension)
	}

	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_category_idx ON %s (category_key)`, p.table, p.table)); err != nil {
		return errors.Wrap(err, "create category index")
	}

	switch p.indexType {
	case "ivfflat":
		_, err = p.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`,
			p.table, p.table, p.lists))
	case "hnsw":
		_, err = p.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
			p.table, p.table))
	}
	return errors.Wrap(err, "create embedding index")
}

// storedDimension reads the declared vector dimension from the catalog.
func (p *PGVectorIndex) storedDimension(ctx context.Context) (int, error) {
	var typmod int
	err := p.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'`, p.table).Scan(&typmod)
	if err != nil {
		return 0, errors.Wrap(err, "read embedding dimension")
	}
	return typmod, nil
}

// Upsert inserts or replaces the entry for a product.
func (p *PGVectorIndex) Upsert(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != p.dimension {
		return fmt.Errorf("%w: expected %d, got %d for product %s",
			ErrDimensionMismatch, p.dimension, len(entry.Vector), entry.ProductID)
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	tags := entry.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}

	stmt := `
		INSERT INTO ` + p.table + ` (product_id, embedding, name, description, category, category_key,
			brand, price, tags, source_text, content_hash, model, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (product_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			category_key = EXCLUDED.category_key,
			brand = EXCLUDED.brand,
			price = EXCLUDED.price,
			tags = EXCLUDED.tags,
			source_text = EXCLUDED.source_text,
			content_hash = EXCLUDED.content_hash,
			model = EXCLUDED.model,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(ctx, stmt,
		entry.ProductID,
		pgvector.NewVector(entry.Vector),
		entry.Metadata.Name,
		entry.Metadata.Description,
		entry.Metadata.Category,
		categoryKey(entry.Metadata.Category),
		entry.Metadata.Brand,
		entry.Metadata.Price,
		pq.Array(tags),
		entry.SourceText,
		entry.ContentHash,
		entry.Model,
		entry.UpdatedAt,
	)
	return errors.Wrapf(err, "failed to upsert embedding for product %s", entry.ProductID)
}

// Delete removes a product's entry.
func (p *PGVectorIndex) Delete(ctx context.Context, productID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE product_id = $1`, productID)
	return errors.Wrapf(err, "failed to delete embedding for product %s", productID)
}

// Get returns the stored entry for a product.
func (p *PGVectorIndex) Get(ctx context.Context, productID string) (*Entry, error) {
	query := `
		SELECT product_id, embedding, name, description, category, brand, price, tags,
			source_text, content_hash, model, updated_at
		FROM ` + p.table + ` WHERE product_id = $1`

	var entry Entry
	var vector pgvector.Vector
	var tags pq.StringArray
	err := p.db.QueryRowContext(ctx, query, productID).Scan(
		&entry.ProductID,
		&vector,
		&entry.Metadata.Name,
		&entry.Metadata.Description,
		&entry.Metadata.Category,
		&entry.Metadata.Brand,
		&entry.Metadata.Price,
		&tags,
		&entry.SourceText,
		&entry.ContentHash,
		&entry.Model,
		&entry.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get embedding")
	}
	entry.Vector = vector.Slice()
	entry.Metadata.Tags = []string(tags)
	return &entry, nil
}

// SearchByVector filters in SQL and ranks by cosine similarity. Zero-norm rows
// score 0 instead of the NaN pgvector would produce.
func (p *PGVectorIndex) SearchByVector(ctx context.Context, q Query) ([]Result, error) {
	if len(q.Vector) != p.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			ErrDimensionMismatch, len(q.Vector), p.dimension)
	}

	where, args := predicateClauses(q.Category, q.PriceRange, nil, q.ExcludeIDs)

	similarity := "0::double precision"
	if !isZeroNorm(q.Vector) {
		args = append(args, pgvector.NewVector(q.Vector))
		vecParam := placeholder(len(args))
		similarity = `CASE WHEN vector_norm(embedding) = 0 THEN 0
			ELSE 1 - (embedding <=> ` + vecParam + `) END`
	}

	args = append(args, q.MinSimilarity)
	minParam := placeholder(len(args))

	query := `
		SELECT product_id, name, description, category, brand, price, tags, similarity
		FROM (
			SELECT product_id, name, description, category, brand, price, tags,
				` + similarity + ` AS similarity
			FROM ` + p.table + `
			WHERE ` + strings.Join(where, " AND ") + `
		) scored
		WHERE similarity >= ` + minParam + `
		ORDER BY similarity DESC, product_id ASC`
	if q.K > 0 {
		args = append(args, q.K)
		query += ` LIMIT ` + placeholder(len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var r Result
		var tags pq.StringArray
		if err := rows.Scan(&r.ProductID, &r.Metadata.Name, &r.Metadata.Description,
			&r.Metadata.Category, &r.Metadata.Brand, &r.Metadata.Price, &tags, &r.Similarity); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		r.Metadata.Tags = []string(tags)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// SearchByMetadata runs an exact-match query.
func (p *PGVectorIndex) SearchByMetadata(ctx context.Context, f MetadataFilter) ([]catalog.Product, error) {
	where, args := predicateClauses(f.Category, f.PriceRange, f.ProductIDs, nil)
	if f.Brand != "" {
		args = append(args, strings.ToLower(f.Brand))
		where = append(where, "LOWER(brand) = "+placeholder(len(args)))
	}

	query := `
		SELECT product_id, name, description, category, brand, price, tags
		FROM ` + p.table + `
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY product_id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT ` + placeholder(len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to metadata search")
	}
	defer rows.Close()

	products := []catalog.Product{}
	for rows.Next() {
		var id string
		var m Metadata
		var tags pq.StringArray
		if err := rows.Scan(&id, &m.Name, &m.Description, &m.Category, &m.Brand, &m.Price, &tags); err != nil {
			return nil, errors.Wrap(err, "failed to scan metadata search result")
		}
		m.Tags = []string(tags)
		products = append(products, m.Product(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// IDs returns indexed product ids.
func (p *PGVectorIndex) IDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT product_id FROM `+p.table+` ORDER BY product_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list embedding ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of indexed products.
func (p *PGVectorIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+p.table).Scan(&n)
	return n, errors.Wrap(err, "failed to count embeddings")
}

// Dimension returns the index dimension.
func (p *PGVectorIndex) Dimension() int {
	return p.dimension
}

// Close closes the database connection.
func (p *PGVectorIndex) Close() error {
	return p.db.Close()
}

// predicateClauses builds the shared WHERE clauses; the returned slice is never empty.
func predicateClauses(category string, pr *catalog.PriceRange, include, exclude []string) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}
	if category != "" {
		args = append(args, categoryKey(category))
		where = append(where, "category_key = "+placeholder(len(args)))
	}
	if pr != nil {
		args = append(args, pr.Min, pr.Max)
		where = append(where, fmt.Sprintf("price BETWEEN %s AND %s", placeholder(len(args)-1), placeholder(len(args))))
	}
	if len(include) > 0 {
		args = append(args, pq.Array(include))
		where = append(where, "product_id = ANY("+placeholder(len(args))+")")
	}
	if len(exclude) > 0 {
		args = append(args, pq.Array(exclude))
		where = append(where, "NOT (product_id = ANY("+placeholder(len(args))+"))")
	}
	return where, args
}

func categoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func isZeroNorm(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum == 0 || math.IsNaN(sum)
}

var _ Index = (*PGVectorIndex)(nil)
