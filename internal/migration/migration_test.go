package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrationsCoverEveryModelTable(t *testing.T) {
	var sql strings.Builder
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/"+entry.Name())
		require.NoError(t, err)
		sql.Write(body)
	}

	for _, model := range Models() {
		table := model.(interface{ TableName() string }).TableName()
		assert.Contains(t, sql.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestApplyAutoMigratesSQLite(t *testing.T) {
	conn := db.NewTest(t)

	require.NoError(t, Apply(conn, config.Config{DBType: "sqlite"}, zap.NewNop()))
	for _, table := range []string{"invoices", "time_entries", "sync_mappings", "certifications"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestNilHandle(t *testing.T) {
	assert.Error(t, Up(nil))
	assert.Error(t, Down(nil, 1))
}
