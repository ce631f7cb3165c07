package sqlitedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesParentDirsAndEnablesForeignKeys(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "a", "b", "x.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var on int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&on))
	assert.Equal(t, 1, on)
}
