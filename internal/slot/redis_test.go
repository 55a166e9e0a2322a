package slot

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Redis tests need a live server; point SLOTCACHE_TEST_REDIS_ADDR at one.
func redisOptions(t *testing.T) RedisOptions {
	t.Helper()
	addr := os.Getenv("SLOTCACHE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SLOTCACHE_TEST_REDIS_ADDR not set")
	}
	return RedisOptions{Addr: addr, Prefix: "slotcache-test:" + t.Name() + ":"}
}

func TestRedisContract(t *testing.T) {
	r, err := NewRedis(redisOptions(t))
	require.NoError(t, err)
	defer r.Close()

	runSlotContract(t, r)
}

func TestRedisNotifiesOtherClients(t *testing.T) {
	opts := redisOptions(t)

	listener, err := NewRedis(opts)
	require.NoError(t, err)
	defer listener.Close()
	writer, err := NewRedis(opts)
	require.NoError(t, err)
	defer writer.Close()

	changes := make(chan Change, 4)
	own := make(chan Change, 4)
	listener.Subscribe(func(c Change) { changes <- c })
	writer.Subscribe(func(c Change) { own <- c })

	// Give the subscription time to reach the server
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, writer.Set("todos", `[1]`))
	select {
	case c := <-changes:
		require.Equal(t, Change{Key: "todos", Value: `[1]`, Present: true}, c)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	select {
	case c := <-own:
		t.Fatalf("writer heard its own change: %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisConnectFailure(t *testing.T) {
	_, err := NewRedis(RedisOptions{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
}
