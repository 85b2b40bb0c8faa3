package archive

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"matric/internal/matricerr"
)

// Info describes a registered archive (tenant).
type Info struct {
	ID          uuid.UUID
	Name        string
	SchemaName  string
	Description string
	IsDefault   bool
	NoteCount   int64
	SizeBytes   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Registry manages the lifecycle of archives: creation (with schema
// cloning), lookup, default selection, and drop.
type Registry struct {
	pool *pgxpool.Pool
}

// NewRegistry wires a Registry to an already-connected pool. InitSchema
// must be called once at boot before Create/Drop are used.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// InitSchema creates the shared `archive` registry table and its
// single-default unique index if absent; both statements are idempotent, so
// it is safe to run at every boot.
func (r *Registry) InitSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS public.archive (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			schema_name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT false,
			note_count BIGINT NOT NULL DEFAULT 0,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return matricerr.Database(err, "failed to initialize archive registry table")
	}
	_, err = r.pool.Exec(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS archive_single_default_idx
		ON public.archive ((is_default)) WHERE is_default
	`)
	if err != nil {
		return matricerr.Database(err, "failed to initialize archive default index")
	}
	return nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9_]+`)

// schemaNameFor sanitizes an archive's display name into a schema name:
// lowercase, non-alphanumeric runs collapsed to a single underscore,
// prefixed "archive_".
func schemaNameFor(name string) string {
	s := strings.ToLower(name)
	s = nonAlnum.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "a"
	}
	schema := "archive_" + s
	if len(schema) > maxSchemaNameBytes {
		schema = schema[:maxSchemaNameBytes]
	}
	return schema
}

// Create reserves the registry row, creates the schema, clones every
// per-tenant table into it, and rolls the whole thing back on any failure.
func (r *Registry) Create(ctx context.Context, name, description string) (Info, error) {
	schema := schemaNameFor(name)
	if err := ValidateSchemaName(schema); err != nil {
		return Info{}, err
	}

	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Info{}, matricerr.Database(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO public.archive (id, name, schema_name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, id, name, schema, description, now)
	if err != nil {
		if isUniqueViolation(err) {
			return Info{}, matricerr.Invalid("archive %q already exists", name)
		}
		return Info{}, matricerr.Database(err, "failed to reserve archive row")
	}

	if _, err := tx.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return Info{}, matricerr.Database(err, "failed to create schema")
	}
	for _, stmt := range cloneSchemaTables(schema) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return Info{}, matricerr.Database(err, "failed to clone per-tenant table")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Info{}, matricerr.Database(err, "failed to commit archive creation")
	}

	return Info{
		ID: id, Name: name, SchemaName: schema, Description: description,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Drop removes an archive's schema (cascading its tables) and registry row.
// Refuses to drop the current default archive; callers must reassign the
// default first.
func (r *Registry) Drop(ctx context.Context, name string) error {
	info, err := r.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if info.IsDefault {
		return matricerr.Conflict("cannot drop the default archive %q; set a new default first", name)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return matricerr.Database(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{info.SchemaName}.Sanitize()+" CASCADE"); err != nil {
		return matricerr.Database(err, "failed to drop schema")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM public.archive WHERE id = $1`, info.ID); err != nil {
		return matricerr.Database(err, "failed to delete archive row")
	}
	return mapCommit(tx.Commit(ctx))
}

// List returns every registered archive, ordered by name.
func (r *Registry) List(ctx context.Context) ([]Info, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, schema_name, description, is_default, note_count, size_bytes, created_at, updated_at
		FROM public.archive ORDER BY name
	`)
	if err != nil {
		return nil, matricerr.Database(err, "failed to list archives")
	}
	defer rows.Close()
	var out []Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// GetByName looks up an archive by its unique display name.
func (r *Registry) GetByName(ctx context.Context, name string) (Info, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, schema_name, description, is_default, note_count, size_bytes, created_at, updated_at
		FROM public.archive WHERE name = $1
	`, name)
	return scanInfoRow(row, name)
}

// GetByID looks up an archive by its id.
func (r *Registry) GetByID(ctx context.Context, id uuid.UUID) (Info, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, schema_name, description, is_default, note_count, size_bytes, created_at, updated_at
		FROM public.archive WHERE id = $1
	`, id)
	return scanInfoRow(row, id.String())
}

// SetDefault atomically clears any previous default and marks name as the
// new default, in one transaction (the unique partial index on is_default
// guarantees at most one default even under races).
func (r *Registry) SetDefault(ctx context.Context, name string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return matricerr.Database(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE public.archive SET is_default = false WHERE is_default`); err != nil {
		return matricerr.Database(err, "failed to clear previous default")
	}
	tag, err := tx.Exec(ctx, `UPDATE public.archive SET is_default = true, updated_at = now() WHERE name = $1`, name)
	if err != nil {
		return matricerr.Database(err, "failed to set default")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("archive %q not found", name)
	}
	return mapCommit(tx.Commit(ctx))
}

// UpdateMetadata updates an archive's description.
func (r *Registry) UpdateMetadata(ctx context.Context, name, description string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE public.archive SET description = $2, updated_at = now() WHERE name = $1
	`, name, description)
	if err != nil {
		return matricerr.Database(err, "failed to update archive metadata")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("archive %q not found", name)
	}
	return nil
}

// RefreshStats recomputes note_count and size_bytes for an archive from its
// own schema and persists them on the registry row.
func (r *Registry) RefreshStats(ctx context.Context, name string) (Info, error) {
	info, err := r.GetByName(ctx, name)
	if err != nil {
		return Info{}, err
	}

	var noteCount int64
	row := r.pool.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{info.SchemaName, "note"}.Sanitize())
	if err := row.Scan(&noteCount); err != nil {
		return Info{}, matricerr.Database(err, "failed to count notes")
	}

	var sizeBytes int64
	row = r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(pg_total_relation_size(c.oid)), 0)
		FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind = 'r'
	`, info.SchemaName)
	if err := row.Scan(&sizeBytes); err != nil {
		return Info{}, matricerr.Database(err, "failed to compute schema size")
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE public.archive SET note_count = $2, size_bytes = $3, updated_at = now() WHERE id = $1
	`, info.ID, noteCount, sizeBytes)
	if err != nil {
		return Info{}, matricerr.Database(err, "failed to persist refreshed stats")
	}

	info.NoteCount, info.SizeBytes = noteCount, sizeBytes
	return info, nil
}

// ForSchema builds a SchemaContext for an already-known, validated schema
// name (e.g. one returned by GetByName).
func (r *Registry) ForSchema(schema string) (*SchemaContext, error) {
	return NewSchemaContext(r.pool, schema)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfo(rows pgx.Rows) (Info, error) {
	return scanInfoRow(rows, "")
}

func scanInfoRow(row rowScanner, notFoundKey string) (Info, error) {
	var info Info
	err := row.Scan(&info.ID, &info.Name, &info.SchemaName, &info.Description,
		&info.IsDefault, &info.NoteCount, &info.SizeBytes, &info.CreatedAt, &info.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Info{}, matricerr.NotFound("archive %q not found", notFoundKey)
		}
		return Info{}, matricerr.Database(err, "failed to scan archive row")
	}
	return info, nil
}

func mapCommit(err error) error {
	if err != nil {
		return matricerr.Database(err, "failed to commit transaction")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// pgx surfaces unique violations as *pgconn.PgError with SQLSTATE 23505;
	// matched by substring to avoid importing pgconn just for the code.
	return err != nil && strings.Contains(err.Error(), "23505")
}
