package archive

import (
	"fmt"
	"regexp"
)

// perTenantTableDDL lists the canonical per-tenant tables, each templated
// with %s for the schema-qualified table prefix. Every table named here is
// cloned into a fresh schema on archive creation; sharedTables below is the
// deny list of everything that is NOT cloned.
var perTenantTableDDL = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s.collection (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id UUID REFERENCES %[1]s.collection(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (parent_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.note (
		id UUID PRIMARY KEY,
		title TEXT,
		format TEXT NOT NULL DEFAULT 'markdown',
		source TEXT,
		collection_id UUID REFERENCES %[1]s.collection(id),
		document_type TEXT,
		metadata JSONB NOT NULL DEFAULT '{}',
		starred BOOLEAN NOT NULL DEFAULT false,
		archived BOOLEAN NOT NULL DEFAULT false,
		deleted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS note_chain_id_idx ON %[1]s.note ((metadata->>'chain_id'))`,
	`CREATE INDEX IF NOT EXISTS note_collection_idx ON %[1]s.note (collection_id)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.note_original (
		note_id UUID PRIMARY KEY REFERENCES %[1]s.note(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS note_original_hash_idx ON %[1]s.note_original (content_hash)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.note_revised (
		note_id UUID PRIMARY KEY REFERENCES %[1]s.note(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		revised_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		model TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.tag (
		id UUID PRIMARY KEY,
		scheme_id UUID,
		notation TEXT,
		pref_label JSONB NOT NULL DEFAULT '{}',
		alt_labels JSONB NOT NULL DEFAULT '[]',
		broader UUID[] NOT NULL DEFAULT '{}',
		related UUID[] NOT NULL DEFAULT '{}',
		scope_note TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.note_tag (
		note_id UUID NOT NULL REFERENCES %[1]s.note(id) ON DELETE CASCADE,
		tag TEXT NOT NULL,
		PRIMARY KEY (note_id, tag)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.embedding_set (
		id UUID PRIMARY KEY,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		dimension INT NOT NULL,
		content_types TEXT[] NOT NULL DEFAULT '{}',
		chunk_size INT NOT NULL,
		chunk_overlap INT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.embedding (
		id UUID PRIMARY KEY,
		note_id UUID NOT NULL REFERENCES %[1]s.note(id) ON DELETE CASCADE,
		embedding_set_id UUID NOT NULL REFERENCES %[1]s.embedding_set(id),
		chunk_index INT NOT NULL,
		text TEXT NOT NULL,
		vector vector,
		model TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS embedding_note_idx ON %[1]s.embedding (note_id)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.token_embedding (
		note_id UUID NOT NULL,
		chunk_id UUID NOT NULL,
		token_position INT NOT NULL,
		model TEXT NOT NULL,
		vector vector(128) NOT NULL,
		PRIMARY KEY (note_id, chunk_id, token_position, model)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.link (
		id UUID PRIMARY KEY,
		source_note_id UUID NOT NULL REFERENCES %[1]s.note(id) ON DELETE CASCADE,
		target_note_id UUID REFERENCES %[1]s.note(id) ON DELETE CASCADE,
		target_url TEXT,
		kind TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.template (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		title_pattern TEXT NOT NULL,
		body_pattern TEXT NOT NULL,
		default_tags TEXT[] NOT NULL DEFAULT '{}',
		default_collection_id UUID REFERENCES %[1]s.collection(id)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.pke_keyset (
		id UUID PRIMARY KEY,
		owner TEXT NOT NULL,
		public_key TEXT NOT NULL,
		address TEXT NOT NULL,
		wrapped_private_key_ref TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.provenance_edge (
		id UUID PRIMARY KEY,
		revision_id UUID NOT NULL,
		source_note_id UUID,
		source_url TEXT,
		relation TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.provenance_activity (
		id UUID PRIMARY KEY,
		revision_id UUID NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		model TEXT,
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.file_provenance (
		id UUID PRIMARY KEY,
		attachment_id UUID NOT NULL,
		lon DOUBLE PRECISION,
		lat DOUBLE PRECISION,
		location_confidence DOUBLE PRECISION,
		captured_from TIMESTAMPTZ,
		captured_to TIMESTAMPTZ,
		capture_device TEXT,
		event_class TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS file_provenance_time_idx ON %[1]s.file_provenance (captured_from, captured_to)`,
}

// sharedTables is the deny list: tables that live in `public` and are NOT
// cloned per archive, because they are shared across every tenant (the
// registry itself, OAuth state, the job queue).
var sharedTables = map[string]bool{
	"archive":      true,
	"oauth_client": true,
	"oauth_token":  true,
	"job":          true,
}

var perTenantTableNamePattern = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS %\[1\]s\.(\w+)`)

// validateTableOwnership fails if any table is declared both per-tenant
// (cloned into every archive schema) and shared (served once out of
// public); Create and the schema-scoped repos would otherwise disagree
// silently about which copy is authoritative.
func validateTableOwnership() error {
	for _, tmpl := range perTenantTableDDL {
		m := perTenantTableNamePattern.FindStringSubmatch(tmpl)
		if m == nil {
			continue
		}
		if sharedTables[m[1]] {
			return fmt.Errorf("archive: table %q is declared both per-tenant and shared", m[1])
		}
	}
	return nil
}

func init() {
	if err := validateTableOwnership(); err != nil {
		panic(err)
	}
}

// cloneSchemaTables creates every per-tenant table, in dependency order,
// inside the given already-validated schema name.
func cloneSchemaTables(schema string) []string {
	out := make([]string, len(perTenantTableDDL))
	for i, tmpl := range perTenantTableDDL {
		out[i] = fmt.Sprintf(tmpl, schema)
	}
	return out
}
