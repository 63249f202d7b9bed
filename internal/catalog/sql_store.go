package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Dialect selects SQL flavour differences between SQLite and Postgres.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore reads products from a relational products table.
type SQLStore struct {
	db      DB
	dialect Dialect
}

// NewSQLStore creates a SQL-backed product store.
func NewSQLStore(db DB, dialect Dialect) *SQLStore {
	if dialect == "" {
		dialect = DialectSQLite
	}
	return &SQLStore{db: db, dialect: dialect}
}

// EnsureSchema creates the products table when it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	tagsType := "TEXT NOT NULL DEFAULT '[]'"
	priceType := "REAL"
	if s.dialect == DialectPostgres {
		tagsType = "TEXT[] NOT NULL DEFAULT '{}'"
		priceType = "DOUBLE PRECISION"
	}

	query := `
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			brand TEXT NOT NULL DEFAULT '',
			price ` + priceType + ` NOT NULL DEFAULT 0,
			tags ` + tagsType + `,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "create products table")
	}

	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_products_active ON products (active)`); err != nil {
		return errors.Wrap(err, "create products index")
	}
	return nil
}

// Upsert inserts or replaces a product, keyed by id.
func (s *SQLStore) Upsert(ctx context.Context, p Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	tags, err := s.encodeTags(p.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, name, description, category, brand, price, tags, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			brand = excluded.brand,
			price = excluded.price,
			tags = excluded.tags,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Category, p.Brand, p.Price, tags, p.Active, p.UpdatedAt,
	)
	return errors.Wrapf(err, "upsert product %s", p.ID)
}

// ListActiveProducts returns active products ordered by id.
func (s *SQLStore) ListActiveProducts(ctx context.Context) ([]Product, error) {
	query := `
		SELECT id, name, description, category, brand, price, tags, active, updated_at
		FROM products
		WHERE active = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, errors.Wrap(err, "list active products")
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, errors.Wrap(rows.Err(), "iterate products")
}

// GetProduct returns a product by id.
func (s *SQLStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	query := `
		SELECT id, name, description, category, brand, price, tags, active, updated_at
		FROM products WHERE id = $1
	`
	p, err := s.scan(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scan(row rowScanner) (*Product, error) {
	p := &Product{}
	if s.dialect == DialectPostgres {
		var tags pq.StringArray
		if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand,
			&p.Price, &tags, &p.Active, &p.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		p.Tags = []string(tags)
		return p, nil
	}

	var tags string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand,
		&p.Price, &tags, &p.Active, &p.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "scan product")
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, errors.Wrapf(err, "decode tags for product %s", p.ID)
		}
	}
	return p, nil
}

func (s *SQLStore) encodeTags(tags []string) (interface{}, error) {
	if tags == nil {
		tags = []string{}
	}
	if s.dialect == DialectPostgres {
		return pq.Array(tags), nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, errors.Wrap(err, "encode tags")
	}
	return string(data), nil
}

var _ Store = (*SQLStore)(nil)
