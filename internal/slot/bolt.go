package slot

import (
	"bytes"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var boltBucket = []byte("slotcache")

// Bolt is a Slot persisted in a BoltDB file. Bolt holds an exclusive file
// lock, so only one process can open the slot at a time.
type Bolt struct {
	db *bolt.DB
}

var _ Slot = (*Bolt)(nil)

// OpenBolt opens a Bolt slot, waiting up to a second for the file lock
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		// Seek rather than Get so an empty value still counts as present.
		// The slice is only valid inside the transaction, so copy it out.
		k, v := tx.Bucket(boltBucket).Cursor().Seek([]byte(key))
		if k != nil && bytes.Equal(k, []byte(key)) {
			value, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, found, nil
}

func (b *Bolt) Set(key, value string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (b *Bolt) Remove(key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Close releases the file lock
func (b *Bolt) Close() error {
	return b.db.Close()
}
