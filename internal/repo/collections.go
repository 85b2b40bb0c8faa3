package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"matric/internal/archive"
	"matric/internal/matricerr"
)

// Collection is a hierarchical grouping of notes; a name is unique among
// siblings under the same parent.
type Collection struct {
	ID        uuid.UUID
	Name      string
	ParentID  *uuid.UUID
	CreatedAt time.Time
}

type CollectionRepo struct {
	sc *archive.SchemaContext
}

func NewCollectionRepo(sc *archive.SchemaContext) *CollectionRepo {
	return &CollectionRepo{sc: sc}
}

func (r *CollectionRepo) Create(ctx context.Context, name string, parentID *uuid.UUID) (Collection, error) {
	c := Collection{ID: uuid.Must(uuid.NewV7()), Name: name, ParentID: parentID, CreatedAt: time.Now().UTC()}
	row := r.sc.QueryRow(ctx, `
		INSERT INTO collection (id, name, parent_id, created_at) VALUES ($1,$2,$3,$4)
		RETURNING id, name, parent_id, created_at
	`, c.ID, c.Name, c.ParentID, c.CreatedAt)
	return scanCollection(row)
}

func (r *CollectionRepo) Get(ctx context.Context, id uuid.UUID) (Collection, error) {
	row := r.sc.QueryRow(ctx, `SELECT id, name, parent_id, created_at FROM collection WHERE id = $1`, id)
	return scanCollection(row)
}

// Children lists the immediate children of parentID, or top-level
// collections when parentID is nil.
func (r *CollectionRepo) Children(ctx context.Context, parentID *uuid.UUID) ([]Collection, error) {
	var rows pgx.Rows
	var err error
	if parentID == nil {
		rows, err = r.sc.Query(ctx, `SELECT id, name, parent_id, created_at FROM collection WHERE parent_id IS NULL ORDER BY name`)
	} else {
		rows, err = r.sc.Query(ctx, `SELECT id, name, parent_id, created_at FROM collection WHERE parent_id = $1 ORDER BY name`, *parentID)
	}
	if err != nil {
		return nil, err
	}
	return scanCollections(rows)
}

func (r *CollectionRepo) Rename(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.sc.Exec(ctx, `UPDATE collection SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return matricerr.Database(err, "failed to rename collection")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("collection %s not found", id)
	}
	return nil
}

// Delete removes a collection. Notes referencing it keep their row but
// collection_id is set null by the caller first if reassignment is needed;
// child collections block deletion via the FK unless moved or deleted too.
func (r *CollectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.sc.Exec(ctx, `DELETE FROM collection WHERE id = $1`, id)
	if err != nil {
		return matricerr.Database(err, "failed to delete collection")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("collection %s not found", id)
	}
	return nil
}

func scanCollection(row scannable) (Collection, error) {
	var c Collection
	if err := row.Scan(&c.ID, &c.Name, &c.ParentID, &c.CreatedAt); err != nil {
		return Collection{}, mapNotFound(err, "collection not found")
	}
	return c, nil
}

func scanCollections(rows pgx.Rows) ([]Collection, error) {
	defer rows.Close()
	var out []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.CreatedAt); err != nil {
			return nil, matricerr.Database(err, "failed to scan collection row")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
