package db

import (
	"testing"

	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "fieldbooks.db?_pragma=busy_timeout(5000)", SQLiteDSN(""))
	assert.Equal(t, "file:e2e?mode=memory&_pragma=busy_timeout(5000)", SQLiteDSN("file:e2e?mode=memory"))
	assert.Equal(t, "x.db?_pragma=busy_timeout(100)", SQLiteDSN("x.db?_pragma=busy_timeout(100)"))
}

func TestDialectSelectsDriver(t *testing.T) {
	for _, dbType := range []string{"postgres", "PostgreSQL", "mysql", "sqlite"} {
		d, err := Dialect(config.Config{DBType: dbType, DBPath: ":memory:"})
		require.NoError(t, err, dbType)
		assert.NotNil(t, d)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.EqualError(t, err, `unsupported database type "oracle"`)
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.Config{DBHost: "db", DBUser: "fb", DBPassword: "pw", DBName: "fieldbooks", DBPort: "5432", DBSSLMode: "disable"})
	assert.Equal(t, "host=db user=fb password=pw dbname=fieldbooks port=5432 sslmode=disable TimeZone=UTC", dsn)
}
