package utxo

import (
	"fmt"

	"github.com/Klingon-tech/scrooge-ledger/config"
	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
)

// GenesisPool builds the initial pool from a genesis allocation. Entry i
// of g.Alloc becomes outpoint (g.Hash(), i).
func GenesisPool(g *config.Genesis) (*Pool, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	txid, err := g.Hash()
	if err != nil {
		return nil, fmt.Errorf("genesis hash: %w", err)
	}

	pool := NewPool()
	for i, a := range g.Alloc {
		owner, err := a.OwnerBytes()
		if err != nil {
			return nil, fmt.Errorf("genesis alloc %d: %w", i, err)
		}
		pool.Add(types.Outpoint{TxID: txid, Index: uint32(i)}, tx.Output{Value: a.Value, Owner: owner})
	}
	return pool, nil
}
