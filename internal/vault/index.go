package vault

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var bucketItems = []byte("items")

// Index records encrypted images in a bbolt database keyed by item ID.
type Index struct {
	db *bbolt.DB
}

// OpenIndex opens or creates the index database at path.
// Fails after one second if another process holds the database lock.
func OpenIndex(path string) (*Index, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cannot open index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketItems)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot create index bucket: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the underlying database.
func (x *Index) Close() error { return x.db.Close() }

// Put stores item under item.ID, replacing any previous record.
func (x *Index) Put(item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal index entry: %w", err)
	}

	return x.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).Put([]byte(item.ID), data)
	})
}

// Get returns the record for id, or ErrItemNotFound.
func (x *Index) Get(id string) (Item, error) {
	var item Item
	err := x.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketItems).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		if err := json.Unmarshal(data, &item); err != nil {
			return fmt.Errorf("failed to parse index entry %s: %w", id, err)
		}
		return nil
	})
	return item, err
}

// Delete removes the record for id, or returns ErrItemNotFound.
func (x *Index) Delete(id string) error {
	return x.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketItems)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}

// List returns all records sorted by creation time (oldest first).
// Records that fail to parse are skipped.
func (x *Index) List() ([]Item, error) {
	items := []Item{}
	err := x.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return nil
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cannot read index: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return items, nil
}
