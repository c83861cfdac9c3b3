package tx

import (
	"fmt"

	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{tx: &Transaction{}}
}

// AddInput adds an input claiming a previous output.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut})
	return b
}

// AddOutput adds an output paying value to owner.
func (b *Builder) AddOutput(value decimal.Decimal, owner []byte) *Builder {
	o := make([]byte, len(owner))
	copy(o, owner)
	b.tx.Outputs = append(b.tx.Outputs, Output{Value: value, Owner: o})
	return b
}

// Sign authorizes input i with signer. Outputs must be final: the
// signature covers all of them.
func (b *Builder) Sign(i int, signer crypto.Signer) error {
	if i < 0 || i >= len(b.tx.Inputs) {
		return fmt.Errorf("sign input %d: out of range", i)
	}
	sig, err := signer.SignMessage(b.tx.AuthorizePayload(i))
	if err != nil {
		return fmt.Errorf("sign input %d: %w", i, err)
	}
	b.tx.Inputs[i].Signature = sig
	return nil
}

// SignAll authorizes every input with the same signer.
func (b *Builder) SignAll(signer crypto.Signer) error {
	for i := range b.tx.Inputs {
		if err := b.Sign(i, signer); err != nil {
			return err
		}
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate; that needs the ledger's pool.
func (b *Builder) Build() *Transaction {
	return b.tx
}
