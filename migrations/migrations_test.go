package migrations

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/market?sslmode=disable", DatabaseURL("postgres://u:p@db:5432/market?sslmode=disable"))
	require.Equal(t, "pgx5://db/market", DatabaseURL("postgresql://db/market"))
	require.Equal(t, "pgx5://db/market", DatabaseURL("pgx5://db/market"))
}

func TestEveryUpHasDown(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	sort.Strings(names)
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestLedgerSchemaCoversStoreTables(t *testing.T) {
	data, err := fs.ReadFile(FS, "000001_ledger.up.sql")
	require.NoError(t, err)
	schema := string(data)
	for _, table := range []string{"users", "products", "product_categories", "custody", "sales", "sale_lines", "returns", "shipments", "system_configuration", "audit_logs"} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestLedgerVersionColumnMigration(t *testing.T) {
	up, err := fs.ReadFile(FS, "000002_ledger_version.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(up), "ADD COLUMN IF NOT EXISTS ledger_version BIGINT NOT NULL DEFAULT 0")

	down, err := fs.ReadFile(FS, "000002_ledger_version.down.sql")
	require.NoError(t, err)
	require.Contains(t, string(down), "DROP COLUMN IF EXISTS ledger_version")
}
