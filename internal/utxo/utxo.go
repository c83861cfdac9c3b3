// Package utxo holds the set of unspent outputs: the in-memory Pool the
// ledger mutates and the Store that persists it between runs.
package utxo

import (
	"errors"

	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
)

// ErrNotFound is returned when no output exists for an outpoint.
var ErrNotFound = errors.New("utxo not found")

// UTXO is an unspent output together with its identifier.
type UTXO struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Output   tx.Output      `json:"output"`
}

// Set is a read view over unspent outputs. ForEach visits entries in
// outpoint order.
type Set interface {
	Contains(op types.Outpoint) bool
	Get(op types.Outpoint) (tx.Output, error)
	ForEach(fn func(UTXO) error) error
}
