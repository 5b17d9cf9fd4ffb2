package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var auditBucket = []byte("audit")

// Bolt is a durable append-only sink backed by a bbolt database.
// Keys are monotonically increasing sequence numbers, so iteration
// order is append order.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) a bolt-backed sink at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(auditBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: init store: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Log appends the entry to the store.
func (b *Bolt) Log(_ context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: encode entry: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(auditBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bucket.Put(key[:], data)
	})
}

// Entries returns all recorded entries in append order.
func (b *Bolt) Entries() ([]Entry, error) {
	var entries []Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(auditBucket).ForEach(func(_, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("audit: read entries: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Ensure Bolt implements Service
var _ Service = (*Bolt)(nil)
