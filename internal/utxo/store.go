package utxo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/scrooge-ledger/internal/storage"
	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO  = []byte("u/") // u/<txid><index> -> output JSON
	prefixOwner = []byte("o/") // o/<ownertag><txid><index> -> empty (index)
)

// ownerTagSize is the length of the owner digest used in index keys.
// Owners are variable length, so the index keys on a fixed-size prefix
// of their BLAKE3 hash.
const ownerTagSize = 20

// Store persists a UTXO set in a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// utxoKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	return append(append([]byte{}, prefixUTXO...), op.Bytes()...)
}

func ownerPrefix(owner []byte) []byte {
	tag := crypto.Hash(owner)
	return append(append([]byte{}, prefixOwner...), tag[:ownerTagSize]...)
}

// ownerKey builds an owner index key: "o/" + tag(20) + txid(32) + index(4).
func ownerKey(owner []byte, op types.Outpoint) []byte {
	return append(ownerPrefix(owner), op.Bytes()...)
}

// Get retrieves the output for an outpoint.
func (s *Store) Get(op types.Outpoint) (tx.Output, error) {
	data, err := s.db.Get(utxoKey(op))
	if errors.Is(err, storage.ErrNotFound) {
		return tx.Output{}, fmt.Errorf("%w: %s", ErrNotFound, op)
	}
	if err != nil {
		return tx.Output{}, fmt.Errorf("utxo get: %w", err)
	}
	var out tx.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return tx.Output{}, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return out, nil
}

// Has checks if an output exists for the given outpoint.
func (s *Store) Has(op types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(op))
}

// Contains reports whether op is stored. Storage errors read as absent.
func (s *Store) Contains(op types.Outpoint) bool {
	ok, err := s.Has(op)
	return err == nil && ok
}

// ForEach iterates over all stored outputs in outpoint order.
func (s *Store) ForEach(fn func(UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		op, err := types.OutpointFromBytes(key[len(prefixUTXO):])
		if err != nil {
			return fmt.Errorf("utxo key: %w", err)
		}
		var out tx.Output
		if err := json.Unmarshal(value, &out); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(UTXO{Outpoint: op, Output: out})
	})
}

// GetByOwner returns all outputs owned by owner, in outpoint order.
// It scans the owner index and loads each referenced output.
func (s *Store) GetByOwner(owner []byte) ([]UTXO, error) {
	prefix := ownerPrefix(owner)

	var utxos []UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		op, err := types.OutpointFromBytes(key[len(prefix):])
		if err != nil {
			return nil // Malformed key, skip.
		}
		out, err := s.Get(op)
		if err != nil {
			return nil // Spent since indexed, skip.
		}
		if string(out.Owner) != string(owner) {
			return nil // Tag collision.
		}
		utxos = append(utxos, UTXO{Outpoint: op, Output: out})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan owner index: %w", err)
	}
	return utxos, nil
}

// LoadPool reads every stored output into a new Pool.
func (s *Store) LoadPool() (*Pool, error) {
	pool := NewPool()
	err := s.ForEach(func(u UTXO) error {
		pool.Add(u.Outpoint, u.Output)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	return pool, nil
}

// SavePool replaces the stored set with the contents of pool. When the
// database supports batches the replacement is committed atomically.
func (s *Store) SavePool(pool *Pool) error {
	b, ok := s.db.(storage.Batcher)
	if !ok {
		return s.WritePool(s.db, pool)
	}
	batch := b.NewBatch()
	if err := s.WritePool(batch, pool); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit pool: %w", err)
	}
	return nil
}

// WritePool stages in w the writes that turn the stored set into pool.
// Only changed outputs are touched. w must address the same keyspace as
// the store, e.g. a batch of its database or a PrefixDB view of one.
func (s *Store) WritePool(w storage.Writer, pool *Pool) error {
	stored := make(map[types.Outpoint]tx.Output)
	if err := s.ForEach(func(u UTXO) error {
		stored[u.Outpoint] = u.Output
		return nil
	}); err != nil {
		return fmt.Errorf("scan stored pool: %w", err)
	}

	for op, old := range stored {
		if out, err := pool.Get(op); err == nil && sameOutput(old, out) {
			continue
		}
		if err := deleteUTXO(w, op, old.Owner); err != nil {
			return err
		}
	}
	return pool.ForEach(func(u UTXO) error {
		if old, ok := stored[u.Outpoint]; ok && sameOutput(old, u.Output) {
			return nil
		}
		return putUTXO(w, u)
	})
}

func sameOutput(a, b tx.Output) bool {
	return a.Value.Equal(b.Value) && bytes.Equal(a.Owner, b.Owner)
}

// putUTXO writes an output and its owner index entry.
func putUTXO(w storage.Writer, u UTXO) error {
	data, err := json.Marshal(u.Output)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := w.Put(utxoKey(u.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	if err := w.Put(ownerKey(u.Output.Owner, u.Outpoint), []byte{}); err != nil {
		return fmt.Errorf("utxo index put: %w", err)
	}
	return nil
}

// deleteUTXO removes an output and its owner index entry.
func deleteUTXO(w storage.Writer, op types.Outpoint, owner []byte) error {
	if err := w.Delete(ownerKey(owner, op)); err != nil {
		return fmt.Errorf("utxo index delete: %w", err)
	}
	if err := w.Delete(utxoKey(op)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}
