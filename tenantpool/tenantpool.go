// Package tenantpool manages per-tenant SQLite shards for praxis.
//
// Each tenant (one clinic/practice) gets its own database file under the data
// directory. The catalog database lists tenants; shard handles are opened
// lazily and cached. Isolation is physical: a query can only ever touch the
// shard it resolved, so tenant scoping is not a WHERE clause anyone can forget.
package tenantpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hazyhaar/praxis/dbopen"
)

// ErrUnknownTenant is returned when resolving a tenant absent from the
// catalog or not in active status.
var ErrUnknownTenant = errors.New("tenantpool: unknown tenant")

// CatalogSchema is applied to the catalog database by InitCatalog.
const CatalogSchema = `
CREATE TABLE IF NOT EXISTS tenants (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    owner_id   TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
`

// InitCatalog creates the catalog tables.
func InitCatalog(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, CatalogSchema)
	if err != nil {
		return fmt.Errorf("tenantpool: init catalog: %w", err)
	}
	return nil
}

// SchemaFn is applied to every shard when it is first opened or created.
// It must be idempotent (CREATE IF NOT EXISTS).
type SchemaFn func(*sql.DB) error

// Pool resolves tenant IDs to open shard databases.
type Pool struct {
	dataDir string
	catalog *sql.DB
	schema  SchemaFn

	mu   sync.Mutex
	open map[string]*sql.DB
}

// Option configures a Pool.
type Option func(*Pool)

// WithShardSchema sets the schema function applied to each shard on open.
func WithShardSchema(fn SchemaFn) Option {
	return func(p *Pool) { p.schema = fn }
}

// New creates a Pool rooted at dataDir, backed by an initialised catalog.
func New(dataDir string, catalog *sql.DB, opts ...Option) (*Pool, error) {
	if catalog == nil {
		return nil, errors.New("tenantpool: catalog is required")
	}
	p := &Pool{
		dataDir: dataDir,
		catalog: catalog,
		open:    make(map[string]*sql.DB),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Resolve returns the shard database for an active tenant, opening and
// migrating it on first use.
func (p *Pool) Resolve(ctx context.Context, tenantID string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.open[tenantID]; ok {
		return db, nil
	}

	var status string
	err := p.catalog.QueryRowContext(ctx,
		`SELECT status FROM tenants WHERE id = ?`, tenantID).Scan(&status)
	if err == sql.ErrNoRows || (err == nil && status != "active") {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("tenantpool: lookup tenant: %w", err)
	}

	db, err := p.openShard(tenantID)
	if err != nil {
		return nil, err
	}
	p.open[tenantID] = db
	return db, nil
}

// CreateTenant registers a tenant in the catalog and provisions its shard.
func (p *Pool) CreateTenant(ctx context.Context, tenantID, ownerID, name string) error {
	_, err := p.catalog.ExecContext(ctx,
		`INSERT INTO tenants (id, name, owner_id, status, created_at) VALUES (?, ?, ?, 'active', ?)`,
		tenantID, name, ownerID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("tenantpool: create tenant: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	db, err := p.openShard(tenantID)
	if err != nil {
		return err
	}
	p.open[tenantID] = db
	return nil
}

// DeactivateTenant marks a tenant inactive and closes its shard handle.
// The shard file is kept: clinical history is never destroyed.
func (p *Pool) DeactivateTenant(ctx context.Context, tenantID string) error {
	if _, err := p.catalog.ExecContext(ctx,
		`UPDATE tenants SET status = 'inactive' WHERE id = ?`, tenantID); err != nil {
		return fmt.Errorf("tenantpool: deactivate tenant: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.open[tenantID]; ok {
		db.Close()
		delete(p.open, tenantID)
	}
	return nil
}

// ListActive returns the IDs of all active tenants.
func (p *Pool) ListActive(ctx context.Context) ([]string, error) {
	rows, err := p.catalog.QueryContext(ctx,
		`SELECT id FROM tenants WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes all cached shard handles. The catalog stays open — it belongs
// to the caller.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for id, db := range p.open {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.open, id)
	}
	return first
}

func (p *Pool) openShard(tenantID string) (*sql.DB, error) {
	path := filepath.Join(p.dataDir, tenantID, "praxis.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("tenantpool: open shard %s: %w", tenantID, err)
	}
	if p.schema != nil {
		if err := p.schema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("tenantpool: shard schema %s: %w", tenantID, err)
		}
	}
	return db, nil
}
