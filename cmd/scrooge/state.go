package main

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/scrooge-ledger/config"
	"github.com/Klingon-tech/scrooge-ledger/internal/storage"
	"github.com/Klingon-tech/scrooge-ledger/internal/utxo"
)

var (
	poolPrefix = []byte("pool/")
	metaPrefix = []byte("meta/")

	keyEpoch = []byte("epoch")
)

// state is the persisted ledger: the UTXO pool plus the number of epochs
// applied to it, kept apart by key prefix in one database.
type state struct {
	db     storage.DB
	poolDB *storage.PrefixDB
	store  *utxo.Store
	meta   *storage.PrefixDB
}

func openState(cfg *config.Config) (*state, error) {
	db, err := storage.Open(string(cfg.Store.Backend), cfg.UTXODir())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return newState(db), nil
}

func newState(db storage.DB) *state {
	poolDB := storage.NewPrefixDB(db, poolPrefix)
	return &state{
		db:     db,
		poolDB: poolDB,
		store:  utxo.NewStore(poolDB),
		meta:   storage.NewPrefixDB(db, metaPrefix),
	}
}

func (s *state) Close() error {
	return s.db.Close()
}

// epoch returns how many batches have been applied.
func (s *state) epoch() (uint64, error) {
	v, err := s.meta.Get(keyEpoch)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt epoch counter (%d bytes)", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// commit replaces the stored pool and records the epoch counter in one
// batch: either both land or neither does.
func (s *state) commit(pool *utxo.Pool, epoch uint64) error {
	b, ok := s.db.(storage.Batcher)
	if !ok {
		return errors.New("storage backend does not support atomic batches")
	}
	batch := b.NewBatch()
	if err := s.store.WritePool(s.poolDB.Wrap(batch), pool); err != nil {
		return err
	}
	if err := s.meta.Wrap(batch).Put(keyEpoch, binary.BigEndian.AppendUint64(nil, epoch)); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit epoch %d: %w", epoch, err)
	}
	return nil
}
