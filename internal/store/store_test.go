package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	require.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", Rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	require.Equal(t, "SELECT '?' , $1", Rebind("SELECT '?' , ?"))
	require.Equal(t, "no params", Rebind("no params"))
}

func TestNormalizeMode(t *testing.T) {
	for raw, want := range map[string]string{
		"":           ModeMemory,
		"MEM":        ModeMemory,
		"local":      ModeSQLite,
		"postgresql": ModePostgres,
	} {
		got, err := NormalizeMode(raw)
		require.NoError(t, err)
		require.Equal(t, want, got, raw)
	}
	_, err := NormalizeMode("redis")
	require.Error(t, err)
}

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.Equal(t, SQLite, db.Dialect)
	require.Equal(t, "SELECT ?", db.Rebind("SELECT ?"))
	require.NoError(t, db.Migrate(context.Background(), []string{
		`CREATE TABLE t (id ` + db.AutoIncrement() + `, v TEXT)`,
	}))
	_, err = db.Exec(`INSERT INTO t (v) VALUES (?)`, "x")
	require.NoError(t, err)
}

func TestOpenMemoryModeHasNoDB(t *testing.T) {
	db, err := Open(context.Background(), "memory", "", "")
	require.NoError(t, err)
	require.Nil(t, db)
}
