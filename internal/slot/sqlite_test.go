package slot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteContract(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "slot.db"))
	require.NoError(t, err)
	defer s.Close()

	runSlotContract(t, s)
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("")
	require.Error(t, err)
}

func TestSQLitePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.db")

	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set("todos", `[1]`))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	value, found, err := s2.Get("todos")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `[1]`, value)
}
