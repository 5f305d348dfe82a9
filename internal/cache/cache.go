// Package cache persists NVRAM snapshots and lightweight bring-up metadata
// to local disk in an embedded key-value store, so a driver restart can
// tell "resume the network this coprocessor already had" apart from
// "commission fresh" without re-reading NVRAM before it has even opened the
// serial port.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"tizigbee/internal/nvram"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

// ErrNotFound is returned when a requested entry does not exist.
var ErrNotFound = errors.New("cache: not found")

// Cache is the embedded local store this driver keeps beside NVRAM backups,
// keyed by an arbitrary caller-chosen name (typically the coprocessor's
// IEEE address as a hex string).
type Cache struct {
	db *bolt.DB
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create buckets: %w", err)
	}

	return &Cache{db: db}, nil
}

// snapshotRecord is the on-disk encoding of an nvram.Snapshot, plus the
// wall-clock time it was taken. Extended items are stored as a slice rather
// than a map since json.Marshal cannot use a struct as a map key.
type snapshotRecord struct {
	TakenAt  time.Time                     `json:"taken_at"`
	Items    map[nvram.LegacyID]nvram.Item `json:"items"`
	Extended []extendedItemRecord          `json:"extended,omitempty"`
}

type extendedItemRecord struct {
	Item  nvram.ExtendedItem `json:"item"`
	Value nvram.Item         `json:"value"`
}

// SaveSnapshot persists snap under name, overwriting any prior snapshot
// with the same name.
func (c *Cache) SaveSnapshot(name string, snap *nvram.Snapshot, takenAt time.Time) error {
	rec := snapshotRecord{TakenAt: takenAt, Items: snap.Items}
	for it, value := range snap.Extended {
		rec.Extended = append(rec.Extended, extendedItemRecord{Item: it, Value: value})
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(name), data)
	})
}

// LoadSnapshot retrieves a previously saved snapshot and the time it was
// taken.
func (c *Cache) LoadSnapshot(name string) (*nvram.Snapshot, time.Time, error) {
	var rec snapshotRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(name))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	snap := &nvram.Snapshot{Items: rec.Items, Extended: make(map[nvram.ExtendedItem]nvram.Item, len(rec.Extended))}
	for _, e := range rec.Extended {
		snap.Extended[e.Item] = e.Value
	}
	return snap, rec.TakenAt, nil
}

// DeleteSnapshot removes a saved snapshot, if any.
func (c *Cache) DeleteSnapshot(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(name))
	})
}

// ListSnapshots returns every saved snapshot's name.
func (c *Cache) ListSnapshots() ([]string, error) {
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// PutMeta stores an arbitrary small string value under key, used for
// bring-up bookkeeping like "last known Z-Stack version" or "last IEEE
// address seen on this serial device".
func (c *Cache) PutMeta(key, value string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), []byte(value))
	})
}

// GetMeta retrieves a value stored with PutMeta.
func (c *Cache) GetMeta(key string) (string, error) {
	var value string
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		value = string(data)
		return nil
	})
	return value, err
}

// Close releases the underlying database file.
func (c *Cache) Close() error {
	return c.db.Close()
}
