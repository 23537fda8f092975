package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeMigration(t *testing.T, dir, name, sql string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0644))
}

func TestMigrator_RunMigrations(t *testing.T) {
	logger := zap.NewNop()

	db, err := Open(Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	writeMigration(t, dir, "001_create_items.sql", `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT);`)
	writeMigration(t, dir, "002_add_index.sql", `CREATE INDEX idx_items_name ON items(name);`)

	migrator := NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations(dir))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.Exec(`INSERT INTO items (name) VALUES ('a')`)
	require.NoError(t, err)

	t.Run("rerun is a no-op", func(t *testing.T) {
		require.NoError(t, migrator.RunMigrations(dir))

		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
		assert.Equal(t, 2, count)

		// Table contents survive because nothing re-applied
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("new migration applies on top", func(t *testing.T) {
		writeMigration(t, dir, "003_create_tags.sql", `CREATE TABLE tags (id INTEGER PRIMARY KEY);`)

		require.NoError(t, migrator.RunMigrations(dir))

		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
		assert.Equal(t, 3, count)
	})
}

func TestMigrator_InvalidFilename(t *testing.T) {
	logger := zap.NewNop()

	db, err := Open(Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	writeMigration(t, dir, "not_versioned.sql", `CREATE TABLE x (id INTEGER);`)

	migrator := NewMigrator(db, logger)
	assert.Error(t, migrator.RunMigrations(dir))
}
