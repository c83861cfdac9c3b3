package utxo

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Pool is an in-memory mapping from outpoint to unspent output.
//
// Pool is not safe for concurrent use. Outputs are cloned on the way in
// and on the way out, so no caller can alias the pool's owner bytes.
type Pool struct {
	utxos map[types.Outpoint]tx.Output
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{utxos: make(map[types.Outpoint]tx.Output)}
}

// Copy returns a deep copy of the pool. Mutating either pool afterwards
// has no effect on the other.
func (p *Pool) Copy() *Pool {
	c := &Pool{utxos: make(map[types.Outpoint]tx.Output, len(p.utxos))}
	for op, out := range p.utxos {
		c.utxos[op] = out.Clone()
	}
	return c
}

// Contains reports whether op is unspent.
func (p *Pool) Contains(op types.Outpoint) bool {
	_, ok := p.utxos[op]
	return ok
}

// Get returns the output for op, or ErrNotFound.
func (p *Pool) Get(op types.Outpoint) (tx.Output, error) {
	out, ok := p.utxos[op]
	if !ok {
		return tx.Output{}, fmt.Errorf("%w: %s", ErrNotFound, op)
	}
	return out.Clone(), nil
}

// Add inserts out under op, replacing any existing entry.
func (p *Pool) Add(op types.Outpoint, out tx.Output) {
	p.utxos[op] = out.Clone()
}

// Remove deletes op. Removing an absent outpoint is a no-op.
func (p *Pool) Remove(op types.Outpoint) {
	delete(p.utxos, op)
}

// Len returns the number of unspent outputs.
func (p *Pool) Len() int {
	return len(p.utxos)
}

// Outpoints returns every outpoint in ascending order.
func (p *Pool) Outpoints() []types.Outpoint {
	ops := make([]types.Outpoint, 0, len(p.utxos))
	for op := range p.utxos {
		ops = append(ops, op)
	}
	slices.SortFunc(ops, types.Outpoint.Compare)
	return ops
}

// ForEach calls fn for every entry in outpoint order, stopping at the
// first error.
func (p *Pool) ForEach(fn func(UTXO) error) error {
	for _, op := range p.Outpoints() {
		if err := fn(UTXO{Outpoint: op, Output: p.utxos[op].Clone()}); err != nil {
			return err
		}
	}
	return nil
}

// TotalValue sums the value of every unspent output.
func (p *Pool) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, out := range p.utxos {
		total = total.Add(out.Value)
	}
	return total
}

// Commitment returns the merkle root over all entries. See Commitment.
func (p *Pool) Commitment() types.Hash {
	root, _ := Commitment(p) // ForEach on a Pool never fails.
	return root
}

// Equal reports whether both pools hold the same outpoints with equal
// values and owners.
func (p *Pool) Equal(other *Pool) bool {
	if len(p.utxos) != len(other.utxos) {
		return false
	}
	for op, a := range p.utxos {
		b, ok := other.utxos[op]
		if !ok || !a.Value.Equal(b.Value) || !bytes.Equal(a.Owner, b.Owner) {
			return false
		}
	}
	return true
}
