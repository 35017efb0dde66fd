// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ProjectConfig is the lookpipe.yaml written by SetupTestProject. It reads
// from a DuckDB warehouse seeded from the seeds directory.
const ProjectConfig = `warehouse:
  type: duckdb
  dataset: main
ingestion:
  credentials: warehouse.yml
  start_date: "2024-01-01"
  lookback_days: 2
  safety_limit: 100
  incremental_tables:
    - name: orders
      date_column: created_at
  snapshot_tables: [users]
processing:
  schemas:
    orders:
      id: UInt32
      user_id: UInt32
      status: Categorical
      amount: Decimal(10,2)
      created_at: Date
    users:
      id: UInt32
      email: String
sink:
  output_dir: out
state_path: .lookpipe/state.db
run:
  concurrency: 1
`

var seeds = map[string]string{
	"orders.csv": `id,user_id,status,amount,created_at
1,1, Complete ,10.50,2024-01-05
2,1,Shipped,20.00,2024-02-10
2,1,Shipped,20.00,2024-02-10
3,2,Cancelled,5.25,2023-12-31
`,
	"users.csv": `id,email
1,alice@example.com
2,bob@example.com
3,carol@example.com
`,
}

// SetupTestProject creates a temporary project: lookpipe.yaml, a DuckDB
// credentials file and CSV seeds under seeds/. Returns the project root.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "seeds"), 0o750); err != nil {
		t.Fatalf("failed to create seeds directory: %v", err)
	}

	files := map[string]string{
		"lookpipe.yaml": ProjectConfig,
		"warehouse.yml": "path: warehouse.duckdb\n",
	}
	for name, content := range seeds {
		files[filepath.Join("seeds", name)] = content
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	return dir
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}

// AssertNotContains checks that the string does not contain the substring.
func AssertNotContains(t *testing.T, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("string %q unexpectedly contains %q", s, unexpected)
	}
}
