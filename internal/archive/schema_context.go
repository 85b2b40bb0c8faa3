// Package archive implements per-tenant isolation: the Registry clones a
// canonical set of tables into a fresh PostgreSQL schema per archive, and
// SchemaContext scopes every subsequent operation to that schema via
// SET LOCAL search_path.
package archive

import (
	"context"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"matric/internal/matricerr"
)

var schemaNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const maxSchemaNameBytes = 63

// reservedSchemaNames are names that must never be used as an archive's
// schema, either because Postgres reserves them or because they already
// name a shared/internal concern in this database.
var reservedSchemaNames = map[string]bool{
	"pg_catalog":         true,
	"information_schema": true,
	"pg_toast":           true,
	"pg_temp":            true,
}

// ValidateSchemaName enforces the single validation point the rest of this
// package relies on: only `[A-Za-z_][A-Za-z0-9_]*`, at most 63 bytes, and
// not a Postgres-reserved or internal name. "public" is explicitly allowed
// since it is the home of shared tables.
func ValidateSchemaName(name string) error {
	if name == "" {
		return matricerr.Invalid("schema name must not be empty")
	}
	if len(name) > maxSchemaNameBytes {
		return matricerr.Invalid("schema name exceeds %d bytes", maxSchemaNameBytes)
	}
	if !schemaNamePattern.MatchString(name) {
		return matricerr.Invalid("schema name %q contains invalid characters", name)
	}
	if reservedSchemaNames[strings.ToLower(name)] {
		return matricerr.Invalid("schema name %q is reserved", name)
	}
	return nil
}

// SchemaContext scopes database operations to a single validated schema.
// Its name is validated exactly once, at construction, which is what makes
// the later use of string interpolation in `SET LOCAL search_path` safe.
type SchemaContext struct {
	pool   *pgxpool.Pool
	schema string
}

// NewSchemaContext validates schema and returns a context scoped to it.
func NewSchemaContext(pool *pgxpool.Pool, schema string) (*SchemaContext, error) {
	if err := ValidateSchemaName(schema); err != nil {
		return nil, err
	}
	return &SchemaContext{pool: pool, schema: schema}, nil
}

// Schema returns the validated schema name this context is scoped to.
func (c *SchemaContext) Schema() string { return c.schema }

// BeginTx returns a live transaction with search_path already scoped to
// this context's schema (plus public), for callers that must compose
// several repositories over one transaction.
func (c *SchemaContext) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, matricerr.Database(err, "failed to begin transaction")
	}
	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{c.schema}.Sanitize()+", public"); err != nil {
		_ = tx.Rollback(ctx)
		return nil, matricerr.Database(err, "failed to set search_path")
	}
	return tx, nil
}

// Execute runs op inside a transaction scoped to this schema, committing on
// success and rolling back on any error (including a panic, via defer).
func (c *SchemaContext) Execute(ctx context.Context, op func(tx pgx.Tx) error) (err error) {
	tx, err := c.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err = op(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return matricerr.Database(err, "failed to commit transaction")
	}
	return nil
}

// Query runs op (a read-only operation) inside a schema-scoped transaction
// and returns op's result.
func Query[T any](ctx context.Context, c *SchemaContext, op func(tx pgx.Tx) (T, error)) (T, error) {
	var zero T
	var result T
	err := c.Execute(ctx, func(tx pgx.Tx) error {
		var innerErr error
		result, innerErr = op(tx)
		return innerErr
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Exec runs a single statement in its own schema-scoped transaction,
// committing on success.
func (c *SchemaContext) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := c.Execute(ctx, func(tx pgx.Tx) error {
		var innerErr error
		tag, innerErr = tx.Exec(ctx, sql, args...)
		return innerErr
	})
	return tag, err
}

// txRow wraps a single-row query whose underlying transaction stays open
// until Scan is called, then commits (or rolls back on scan failure).
type txRow struct {
	ctx context.Context
	tx  pgx.Tx
	row pgx.Row
}

func (r *txRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		_ = r.tx.Rollback(r.ctx)
		return err
	}
	return r.tx.Commit(r.ctx)
}

// QueryRow runs a single-row query in its own schema-scoped transaction.
// The returned row's Scan call commits the transaction.
func (c *SchemaContext) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	tx, err := c.BeginTx(ctx)
	if err != nil {
		return errRow{err}
	}
	return &txRow{ctx: ctx, tx: tx, row: tx.QueryRow(ctx, sql, args...)}
}

// errRow is a pgx.Row that always fails to Scan, used when BeginTx itself
// fails (e.g. an invalid schema) so QueryRow can stay infallible.
type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// txRows wraps a multi-row query, finalizing the underlying transaction on
// Close the way database/sql and pgxpool callers already expect to use it.
type txRows struct {
	ctx context.Context
	tx  pgx.Tx
	pgx.Rows
}

func (r *txRows) Close() {
	r.Rows.Close()
	if err := r.Rows.Err(); err != nil {
		_ = r.tx.Rollback(r.ctx)
		return
	}
	_ = r.tx.Commit(r.ctx)
}

// Query runs a multi-row query in its own schema-scoped transaction. The
// returned rows finalize the transaction on Close.
func (c *SchemaContext) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	tx, err := c.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, matricerr.Database(err, "query failed")
	}
	return &txRows{ctx: ctx, tx: tx, Rows: rows}, nil
}
