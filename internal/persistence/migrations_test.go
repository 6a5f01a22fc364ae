package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_sessions.sql", "001_users.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o700))

	files, err := MigrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_users.sql", "002_sessions.sql"}, files)
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	_, err := MigrationFiles(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestMigrationFiles_RepositoryMigrations(t *testing.T) {
	files, err := MigrationFiles(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	assert.Contains(t, files, "001_create_users.sql")
}
