package repo

import (
	"context"

	"github.com/google/uuid"

	"matric/internal/archive"
	"matric/internal/matricerr"
)

// Template is a reusable note scaffold: a title/body pattern (with
// placeholder substitution left to the caller) plus default tags and an
// optional default collection.
type Template struct {
	ID                  uuid.UUID
	Name                string
	TitlePattern        string
	BodyPattern         string
	DefaultTags         []string
	DefaultCollectionID *uuid.UUID
}

type TemplateRepo struct {
	sc *archive.SchemaContext
}

func NewTemplateRepo(sc *archive.SchemaContext) *TemplateRepo {
	return &TemplateRepo{sc: sc}
}

func (r *TemplateRepo) Create(ctx context.Context, t Template) (Template, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.Must(uuid.NewV7())
	}
	row := r.sc.QueryRow(ctx, `
		INSERT INTO template (id, name, title_pattern, body_pattern, default_tags, default_collection_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, name, title_pattern, body_pattern, default_tags, default_collection_id
	`, t.ID, t.Name, t.TitlePattern, t.BodyPattern, t.DefaultTags, t.DefaultCollectionID)
	return scanTemplate(row)
}

func (r *TemplateRepo) GetByName(ctx context.Context, name string) (Template, error) {
	row := r.sc.QueryRow(ctx, `
		SELECT id, name, title_pattern, body_pattern, default_tags, default_collection_id
		FROM template WHERE name = $1
	`, name)
	return scanTemplate(row)
}

func (r *TemplateRepo) List(ctx context.Context) ([]Template, error) {
	rows, err := r.sc.Query(ctx, `
		SELECT id, name, title_pattern, body_pattern, default_tags, default_collection_id FROM template ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.sc.Exec(ctx, `DELETE FROM template WHERE id = $1`, id)
	if err != nil {
		return matricerr.Database(err, "failed to delete template")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("template %s not found", id)
	}
	return nil
}

func scanTemplate(row scannable) (Template, error) {
	var t Template
	if err := row.Scan(&t.ID, &t.Name, &t.TitlePattern, &t.BodyPattern, &t.DefaultTags, &t.DefaultCollectionID); err != nil {
		return Template{}, mapNotFound(err, "template not found")
	}
	return t, nil
}
