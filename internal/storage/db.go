// Package storage provides the key-value backends the UTXO store persists to.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in ascending
	// key order. The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Writer is the write half shared by DB and Batch.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Batch buffers writes until Commit applies them all at once.
type Batch interface {
	Writer
	Commit() error
}

// Batcher is implemented by databases that can commit a Batch atomically.
type Batcher interface {
	NewBatch() Batch
}

// Open returns the backend named by kind ("badger" or "memory").
func Open(kind, path string) (DB, error) {
	switch kind {
	case "memory":
		return NewMemory(), nil
	case "badger":
		return NewBadger(path)
	default:
		return nil, errors.New("unknown storage backend: " + kind)
	}
}
