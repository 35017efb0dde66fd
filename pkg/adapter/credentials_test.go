package adapter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCredentials_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(dir, "caminho_falso.json")},
		{"directory", dir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCredentials(tt.path)
			var credErr *core.CredentialsError
			require.True(t, errors.As(err, &credErr), "expected CredentialsError, got %T", err)
			assert.Equal(t, tt.path, credErr.Path)
		})
	}
}

func TestLoadSQLCredentials(t *testing.T) {
	t.Setenv("LOOKPIPE_TEST_PG_PASSWORD", "s3cret")

	tests := []struct {
		name    string
		content string
		section string
		want    SQLCredentials
	}{
		{
			name: "flat document",
			content: `host: localhost
port: 5432
dbname: thelook
user: etl
password: ${LOOKPIPE_TEST_PG_PASSWORD}
`,
			section: "postgres",
			want:    SQLCredentials{Host: "localhost", Port: 5432, Database: "thelook", User: "etl", Password: "s3cret"},
		},
		{
			name: "nested section",
			content: `postgres:
  host: db
  port: 5433
  dbname: analytics
  user: reader
  password: pw
duckdb:
  path: other.duckdb
`,
			section: "postgres",
			want:    SQLCredentials{Host: "db", Port: 5433, Database: "analytics", User: "reader", Password: "pw"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "credentials.yml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			got, err := LoadSQLCredentials(path, tt.section)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestLoadSQLCredentials_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yml")
	require.NoError(t, os.WriteFile(path, []byte("host: [unclosed"), 0o600))

	_, err := LoadSQLCredentials(path, "postgres")
	var credErr *core.CredentialsError
	assert.True(t, errors.As(err, &credErr))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("LOOKPIPE_TEST_VAR", "value")
	assert.Equal(t, "a-value-b", ExpandEnv("a-${LOOKPIPE_TEST_VAR}-b"))
	assert.Equal(t, "${LOOKPIPE_TEST_UNSET_VAR}", ExpandEnv("${LOOKPIPE_TEST_UNSET_VAR}"))
}
