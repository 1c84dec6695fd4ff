package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	verrors "github.com/bpomverify/bpomverify/internal/errors"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// SQLiteRegistry is the reference Registry Port backed by SQLite. WAL mode
// is enabled so a long-running server process and an offline index-builder
// invocation can share the same file without lock contention.
type SQLiteRegistry struct {
	db     *sql.DB
	path   string
	closed bool
}

var _ Port = (*SQLiteRegistry)(nil)

// Open creates or opens the registry database at path. An empty path opens
// an in-memory database, used by tests.
func Open(path string) (*SQLiteRegistry, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, verrors.Wrap(verrors.ErrCodeRegistryUnavailable, fmt.Errorf("create registry dir: %w", err))
		}
		if err := validateIntegrity(path); err != nil {
			slog.Warn("registry_db_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("registry_db_cleared", slog.String("path", path), slog.String("reason", "corruption detected, rebuild from catalog crawl"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, verrors.Wrap(verrors.ErrCodeRegistryUnavailable, fmt.Errorf("set pragma %q: %w", p, err))
		}
	}

	r := &SQLiteRegistry{db: db, path: path}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (r *SQLiteRegistry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id            TEXT PRIMARY KEY,
		code          TEXT,
		name          TEXT,
		manufacturer  TEXT,
		dosage_form   TEXT,
		composition   TEXT,
		category      TEXT,
		status        TEXT,
		updated_at    TEXT,
		faiss_id      INTEGER,
		has_faiss_id  INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_code ON products(code) WHERE code IS NOT NULL AND code != '';
	CREATE INDEX IF NOT EXISTS idx_products_faiss_id ON products(faiss_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		code      TEXT NOT NULL,
		decision  TEXT NOT NULL,
		at        TEXT NOT NULL
	);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return verrors.Wrap(verrors.ErrCodeRegistryUnavailable, fmt.Errorf("init schema: %w", err))
	}
	return nil
}

func scanProduct(row interface {
	Scan(dest ...any) error
}) (Product, error) {
	var p Product
	var code, name, manufacturer, dosageForm, composition, category, status, updatedAt sql.NullString
	var faissID sql.NullInt64
	var hasFaissID int
	if err := row.Scan(&p.ID, &code, &name, &manufacturer, &dosageForm, &composition, &category, &status, &updatedAt, &faissID, &hasFaissID); err != nil {
		return Product{}, err
	}
	p.Code = code.String
	p.Name = name.String
	p.Manufacturer = manufacturer.String
	p.DosageForm = dosageForm.String
	p.Composition = composition.String
	p.Category = category.String
	p.Status = status.String
	if updatedAt.Valid && updatedAt.String != "" {
		if t, err := time.Parse(time.RFC3339, updatedAt.String); err == nil {
			p.UpdatedAt = t
		}
	}
	p.FaissID = faissID.Int64
	p.HasFaissID = hasFaissID != 0
	return p, nil
}

const productColumns = "id, code, name, manufacturer, dosage_form, composition, category, status, updated_at, faiss_id, has_faiss_id"

// FindByCode performs the exact tier lookup.
func (r *SQLiteRegistry) FindByCode(ctx context.Context, code string) (Product, bool, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE code = ? COLLATE NOCASE", code)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
	}
	return p, true, nil
}

// SearchLexical is not implemented by the raw SQLite store; the served
// lexical tier is backed by the bleve-based Lexical index in this package.
// SQLiteRegistry still satisfies Port for callers that disable the vector
// and lexical tiers (Router's disable-vector/registry-only test paths) by
// degrading to a simple LIKE scan.
func (r *SQLiteRegistry) SearchLexical(ctx context.Context, query string, limit int) ([]Hit, error) {
	if query == "" {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE name LIKE ? OR composition LIKE ? LIMIT ?",
		"%"+query+"%", "%"+query+"%", limit)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeLexicalIndexFailed, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, verrors.Wrap(verrors.ErrCodeLexicalIndexFailed, err)
		}
		hits = append(hits, Hit{Product: p, Score: 0.5, Src: SourceLex})
	}
	return hits, rows.Err()
}

// GetByIntIDs bulk-loads products by FaissID.
func (r *SQLiteRegistry) GetByIntIDs(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	query := "SELECT " + productColumns + " FROM products WHERE faiss_id IN (" + string(placeholders) + ")"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByIDs bulk-loads products by their catalog ID, used to hydrate
// lexical-tier hits (the bleve index stores only IDs and scores).
func (r *SQLiteRegistry) GetByIDs(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	query := "SELECT " + productColumns + " FROM products WHERE id IN (" + string(placeholders) + ")"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveAudit appends an audit log row.
func (r *SQLiteRegistry) SaveAudit(ctx context.Context, code string, decision string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "INSERT INTO audit_log(code, decision, at) VALUES (?, ?, ?)",
		code, decision, at.UTC().Format(time.RFC3339))
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeAuditWriteFailed, err)
	}
	return nil
}

// UpsertProduct inserts or replaces a catalog row.
func (r *SQLiteRegistry) UpsertProduct(ctx context.Context, p Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products(id, code, name, manufacturer, dosage_form, composition, category, status, updated_at, faiss_id, has_faiss_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code=excluded.code, name=excluded.name, manufacturer=excluded.manufacturer,
			dosage_form=excluded.dosage_form, composition=excluded.composition,
			category=excluded.category, status=excluded.status, updated_at=excluded.updated_at,
			faiss_id=excluded.faiss_id, has_faiss_id=excluded.has_faiss_id
	`, p.ID, nullable(p.Code), nullable(p.Name), nullable(p.Manufacturer), nullable(p.DosageForm),
		nullable(p.Composition), nullable(p.Category), nullable(p.Status), formatTime(p.UpdatedAt), p.FaissID, boolToInt(p.HasFaissID))
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
	}
	return nil
}

// SetFaissID patches a stable faiss_id onto a product lacking one.
func (r *SQLiteRegistry) SetFaissID(ctx context.Context, productID string, faissID int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE products SET faiss_id = ?, has_faiss_id = 1 WHERE id = ?", faissID, productID)
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
	}
	return nil
}

// AllProducts streams the full catalog in ID order.
func (r *SQLiteRegistry) AllProducts(ctx context.Context) (<-chan Product, <-chan error) {
	out := make(chan Product, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		rows, err := r.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
		if err != nil {
			errc <- verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				errc <- verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
				return
			}
			select {
			case out <- p:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errc <- verrors.Wrap(verrors.ErrCodeRegistryUnavailable, err)
		}
	}()

	return out, errc
}

// Close closes the underlying database handle.
func (r *SQLiteRegistry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
