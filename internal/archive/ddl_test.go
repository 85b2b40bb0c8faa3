package archive

import "testing"

func TestValidateTableOwnershipPasses(t *testing.T) {
	if err := validateTableOwnership(); err != nil {
		t.Fatalf("current DDL lists must not overlap: %v", err)
	}
}

func TestValidateTableOwnershipCatchesOverlap(t *testing.T) {
	original := perTenantTableDDL
	defer func() { perTenantTableDDL = original }()

	perTenantTableDDL = append(append([]string{}, original...),
		`CREATE TABLE IF NOT EXISTS %[1]s.job (id UUID PRIMARY KEY)`)

	if err := validateTableOwnership(); err == nil {
		t.Fatal("expected an error for a table declared both per-tenant and shared")
	}
}

func TestCloneSchemaTablesTemplatesSchemaName(t *testing.T) {
	stmts := cloneSchemaTables("archive_test")
	if len(stmts) != len(perTenantTableDDL) {
		t.Fatalf("expected %d statements, got %d", len(perTenantTableDDL), len(stmts))
	}
	for _, s := range stmts {
		if containsPlaceholder(s) {
			t.Fatalf("unexpanded template placeholder in: %s", s)
		}
	}
}

func containsPlaceholder(s string) bool {
	for i := 0; i+len("%[1]s") <= len(s); i++ {
		if s[i:i+len("%[1]s")] == "%[1]s" {
			return true
		}
	}
	return false
}
