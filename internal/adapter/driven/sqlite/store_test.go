package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore_PersistsAcrossSessions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	store, err := OpenStore(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "github", "ghp_abc"))
	require.NoError(t, store.Close())

	store, err = OpenStore(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	secret, err := store.Get(ctx, "github")
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc", secret.Value)
}

func TestOpenStore_LeavesSingleFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db")
	ctx := context.Background()

	store, err := OpenStore(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "github", "ghp_abc"))
	require.NoError(t, store.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"db"}, names, "only the database file may remain after close")
}

func TestOpenStore_MigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	for range 3 {
		store, err := OpenStore(ctx, dbPath)
		require.NoError(t, err)
		require.NoError(t, store.Close())
	}
}

func TestNewDB_Path(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")

	db, err := NewDB(context.Background(), dbPath)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dbPath, db.Path())
}

func TestOpenStore_MigrationErrorNamesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	db, err := NewDB(ctx, dbPath)
	require.NoError(t, err)
	// A dirty migration version makes golang-migrate refuse to run.
	_, err = db.Writer.ExecContext(ctx, `CREATE TABLE schema_migrations (version uint64, dirty bool)`)
	require.NoError(t, err)
	_, err = db.Writer.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (1, 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenStore(ctx, dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), dbPath)
}
