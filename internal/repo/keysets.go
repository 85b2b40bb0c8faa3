package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"matric/internal/archive"
	"matric/internal/matricerr"
)

// PkeKeyset records an MMPKE01 key pair registered for an owner: the
// public key and derived address live here in the clear, while the
// wrapped private key material is held by the objectstore backup and
// only ever referenced by ref.
type PkeKeyset struct {
	ID                  uuid.UUID
	Owner               string
	PublicKey           string
	Address             string
	WrappedPrivateKeyRef *string
	CreatedAt           time.Time
}

type KeysetRepo struct {
	sc *archive.SchemaContext
}

func NewKeysetRepo(sc *archive.SchemaContext) *KeysetRepo {
	return &KeysetRepo{sc: sc}
}

func (r *KeysetRepo) Create(ctx context.Context, k PkeKeyset) (PkeKeyset, error) {
	if k.ID == uuid.Nil {
		k.ID = uuid.Must(uuid.NewV7())
	}
	k.CreatedAt = time.Now().UTC()
	row := r.sc.QueryRow(ctx, `
		INSERT INTO pke_keyset (id, owner, public_key, address, wrapped_private_key_ref, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, owner, public_key, address, wrapped_private_key_ref, created_at
	`, k.ID, k.Owner, k.PublicKey, k.Address, k.WrappedPrivateKeyRef, k.CreatedAt)
	return scanKeyset(row)
}

func (r *KeysetRepo) GetByAddress(ctx context.Context, address string) (PkeKeyset, error) {
	row := r.sc.QueryRow(ctx, `
		SELECT id, owner, public_key, address, wrapped_private_key_ref, created_at FROM pke_keyset WHERE address = $1
	`, address)
	return scanKeyset(row)
}

func (r *KeysetRepo) ForOwner(ctx context.Context, owner string) ([]PkeKeyset, error) {
	rows, err := r.sc.Query(ctx, `
		SELECT id, owner, public_key, address, wrapped_private_key_ref, created_at
		FROM pke_keyset WHERE owner = $1 ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PkeKeyset
	for rows.Next() {
		k, err := scanKeyset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *KeysetRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.sc.Exec(ctx, `DELETE FROM pke_keyset WHERE id = $1`, id)
	if err != nil {
		return matricerr.Database(err, "failed to delete keyset")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("keyset %s not found", id)
	}
	return nil
}

func scanKeyset(row scannable) (PkeKeyset, error) {
	var k PkeKeyset
	if err := row.Scan(&k.ID, &k.Owner, &k.PublicKey, &k.Address, &k.WrappedPrivateKeyRef, &k.CreatedAt); err != nil {
		return PkeKeyset{}, mapNotFound(err, "keyset not found")
	}
	return k, nil
}
