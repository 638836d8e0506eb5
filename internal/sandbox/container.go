package sandbox

import (
	"github.com/dgraph-io/badger/v4"
)

// Container is a small transactional key-value store realized over an
// in-memory badger instance. Each sandbox owner gets two: one for bucket
// records, one for object records. The well-known process-wide pair used
// when sandboxing is disabled is just another Container.
type Container struct {
	db *badger.DB
}

// NewContainer opens a fresh, empty in-memory container.
func NewContainer() (*Container, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Container{db: db}, nil
}

// Close releases the container's resources. Data is not recoverable after.
func (c *Container) Close() error {
	return c.db.Close()
}

// Get returns the value stored at key, or ErrNotFound.
func (c *Container) Get(key string) ([]byte, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

// Put writes key unconditionally.
func (c *Container) Put(key string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Delete removes key, or returns ErrNotFound if it was never set.
func (c *Container) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	return err
}

// Scan returns every key/value pair whose key starts with prefix.
func (c *Container) Scan(prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.KeyCopy(nil))] = v
		}
		return nil
	})
	return out, err
}

// DeletePrefix removes every key under prefix, used when a bucket (and its
// objects) is dropped.
func (c *Container) DeletePrefix(prefix string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		var keys [][]byte
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
