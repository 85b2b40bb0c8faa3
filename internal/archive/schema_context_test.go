package archive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSchemaNameAccepts(t *testing.T) {
	for _, name := range []string{"public", "archive_team_a", "_private", "a"} {
		require.NoError(t, ValidateSchemaName(name), name)
	}
}

func TestValidateSchemaNameRejects(t *testing.T) {
	cases := []string{
		"",
		"1archive",                // must not start with digit
		"archive-team",            // hyphen not allowed
		"pg_catalog",              // reserved
		"archive; DROP TABLE x;--", // injection attempt
		"archive table",           // whitespace
	}
	for _, name := range cases {
		require.Error(t, ValidateSchemaName(name), name)
	}
}

func TestValidateSchemaNameMaxLength(t *testing.T) {
	long := make([]byte, maxSchemaNameBytes+1)
	for i := range long {
		long[i] = 'a'
	}
	require.Error(t, ValidateSchemaName(string(long)))

	ok := long[:maxSchemaNameBytes]
	require.NoError(t, ValidateSchemaName(string(ok)))
}

func TestSchemaNameForSanitizes(t *testing.T) {
	require.Equal(t, "archive_my_team", schemaNameFor("My Team!!"))
	require.Equal(t, "archive_a", schemaNameFor("???"))
}

func TestNewSchemaContextRejectsInvalidName(t *testing.T) {
	_, err := NewSchemaContext(nil, "bad-name")
	require.Error(t, err)
}
