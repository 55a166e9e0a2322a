package slot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileContract(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	defer f.Close()

	runSlotContract(t, f)
}

func TestFileRequiresDir(t *testing.T) {
	_, err := NewFile("  ")
	require.Error(t, err)
}

func TestFilePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	f1, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, f1.Set("todos", `[{"id":1}]`))
	require.NoError(t, f1.Close())

	f2, err := NewFile(dir)
	require.NoError(t, err)
	defer f2.Close()

	value, found, err := f2.Get("todos")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `[{"id":1}]`, value)
}

func TestFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Set("k", "v"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	key, ok := keyFromName(entries[0].Name())
	require.True(t, ok)
	require.Equal(t, "k", key)
}

func TestKeyFromNameRejectsForeignFiles(t *testing.T) {
	_, ok := keyFromName(".tmp-123")
	require.False(t, ok)
	_, ok = keyFromName("notes.txt")
	require.False(t, ok)
	_, ok = keyFromName("!!!.json")
	require.False(t, ok)
}

func TestFileQuota(t *testing.T) {
	f, err := NewFile(t.TempDir(), WithFileMaxValueBytes(4))
	require.NoError(t, err)
	defer f.Close()

	require.ErrorIs(t, f.Set("k", "12345"), ErrQuotaExceeded)
	_, found, err := f.Get("k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestFileClosed(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	require.ErrorIs(t, f.Set("k", "v"), ErrClosed)
	require.ErrorIs(t, f.Remove("k"), ErrClosed)
	_, _, err = f.Get("k")
	require.ErrorIs(t, err, ErrClosed)
}

func TestFileNotifiesOtherProcesses(t *testing.T) {
	dir := t.TempDir()

	watcherSide, err := NewFile(dir)
	require.NoError(t, err)
	defer watcherSide.Close()
	writerSide, err := NewFile(dir)
	require.NoError(t, err)
	defer writerSide.Close()

	changes := make(chan Change, 16)
	watcherSide.Subscribe(func(c Change) { changes <- c })

	require.NoError(t, writerSide.Set("todos", `[1,2]`))
	select {
	case c := <-changes:
		require.Equal(t, Change{Key: "todos", Value: `[1,2]`, Present: true}, c)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for external write")
	}

	require.NoError(t, writerSide.Remove("todos"))
	require.Eventually(t, func() bool {
		for {
			select {
			case c := <-changes:
				if c.Key == "todos" && !c.Present {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFileIgnoresOwnWrites(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	defer f.Close()

	changes := make(chan Change, 16)
	f.Subscribe(func(c Change) { changes <- c })

	require.NoError(t, f.Set("todos", `[1]`))
	require.NoError(t, f.Remove("todos"))

	// A foreign write still comes through, proving the watcher is live
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b3RoZXI.json"), []byte(`{}`), 0o644))

	select {
	case c := <-changes:
		require.Equal(t, "other", c.Key)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for foreign write")
	}
}

func TestFileFailedRemoveKeepsKnownState(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Set("todos", `[1]`))

	// A non-empty directory in place of the value file makes os.Remove fail
	path := f.path("todos")
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "child"), []byte("x"), 0644))

	require.Error(t, f.Remove("todos"))

	f.mu.Lock()
	state, seen := f.known["todos"]
	f.mu.Unlock()
	require.True(t, seen)
	require.Equal(t, fileState{value: `[1]`, present: true}, state)
}
