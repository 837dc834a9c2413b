package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	level, err := NewLevelDB(filepath.Join(t.TempDir(), "level"))
	require.NoError(t, err)
	bolt, err := NewBoltDB(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		level.Close()
		bolt.Close()
	})
	return map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": level,
		"bolt":    bolt,
	}
}

func TestDatabaseBatchAppliesAtomically(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("a/1"), []byte("old")))

			batch := db.NewBatch()
			batch.Put([]byte("a/2"), []byte("two"))
			batch.Delete([]byte("a/1"))
			require.Equal(t, 2, batch.Len())

			_, err := db.Get([]byte("a/2"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, batch.Write())
			_, err = db.Get([]byte("a/1"))
			require.ErrorIs(t, err, ErrNotFound)
			got, err := db.Get([]byte("a/2"))
			require.NoError(t, err)
			require.Equal(t, []byte("two"), got)
		})
	}
}

func TestDatabaseIterateByPrefix(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("role/b"), []byte("2")))
			require.NoError(t, db.Put([]byte("role/a"), []byte("1")))
			require.NoError(t, db.Put([]byte("vault/a"), []byte("x")))

			var keys []string
			require.NoError(t, db.Iterate([]byte("role/"), func(key, _ []byte) error {
				keys = append(keys, string(key))
				return nil
			}))
			require.Equal(t, []string{"role/a", "role/b"}, keys)
		})
	}
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("cassandra", t.TempDir())
	require.Error(t, err)

	db, err := Open("", "")
	require.NoError(t, err)
	require.IsType(t, &MemDB{}, db)
}
