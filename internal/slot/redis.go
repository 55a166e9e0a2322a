package slot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"slotcache/internal/logger"
)

const (
	defaultRedisPrefix  = "slotcache:"
	defaultRedisTimeout = 5 * time.Second
)

// RedisOptions configures a Redis slot
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key; the change channel is Prefix+"changes".
	Prefix  string
	Timeout time.Duration
}

// Redis is a Slot stored in a Redis server. Writes are announced on a
// pub/sub channel so every process using the same server and prefix hears
// about them.
type Redis struct {
	client  *redis.Client
	ctx     context.Context
	prefix  string
	timeout time.Duration
	origin  string

	subs fanout

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

var (
	_ Slot         = (*Redis)(nil)
	_ ChangeSource = (*Redis)(nil)
)

// redisChange is the pub/sub message body
type redisChange struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present"`
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRedisTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx := context.Background()
	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{
		client:  client,
		ctx:     ctx,
		prefix:  opts.Prefix,
		timeout: opts.Timeout,
		origin:  newOrigin(),
	}, nil
}

func newOrigin() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("origin-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func (r *Redis) channel() string { return r.prefix + "changes" }

func (r *Redis) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, r.timeout)
}

func (r *Redis) Get(key string) (string, bool, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) Set(key, value string) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return err
	}
	r.announce(ctx, redisChange{Key: key, Value: value, Present: true})
	return nil
}

func (r *Redis) Remove(key string) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return err
	}
	r.announce(ctx, redisChange{Key: key})
	return nil
}

// announce publishes a change. A failed publish only costs other processes a
// notification, so it is logged rather than failing the write.
func (r *Redis) announce(ctx context.Context, c redisChange) {
	c.Origin = r.origin
	payload, err := json.Marshal(c)
	if err != nil {
		logger.Errorf("redis slot: encode change: %v", err)
		return
	}
	if err := r.client.Publish(ctx, r.channel(), payload).Err(); err != nil {
		logger.Warnf("redis slot: publish change for %q: %v", c.Key, err)
	}
}

// Subscribe joins the change channel on first use
func (r *Redis) Subscribe(fn func(Change)) (cancel func()) {
	cancel = r.subs.add(fn)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return cancel
	}

	r.pubsub = r.client.Subscribe(r.ctx, r.channel())
	r.done = make(chan struct{})
	go r.listen(r.pubsub, r.done)

	return cancel
}

func (r *Redis) listen(ps *redis.PubSub, done chan struct{}) {
	defer close(done)

	for msg := range ps.Channel() {
		var c redisChange
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			logger.Warnf("redis slot: ignoring malformed change message: %v", err)
			continue
		}
		if c.Origin == r.origin {
			continue
		}
		r.subs.publish(Change{Key: c.Key, Value: c.Value, Present: c.Present})
	}
}

// Close leaves the change channel and closes the client
func (r *Redis) Close() error {
	r.mu.Lock()
	ps, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
		<-done
	}
	return r.client.Close()
}
