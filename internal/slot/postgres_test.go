package slot

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Postgres tests need a live database; point SLOTCACHE_TEST_POSTGRES_DSN at one.
func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("SLOTCACHE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SLOTCACHE_TEST_POSTGRES_DSN not set")
	}

	p, err := OpenPostgres(dsn)
	require.NoError(t, err)
	defer p.Close()

	for _, key := range []string{"missing", "key1", "empty", "a/b", "a:b"} {
		require.NoError(t, p.Remove(key))
	}
	runSlotContract(t, p)
}
