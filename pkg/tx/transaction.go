// Package tx defines the transaction data model consumed by the ledger.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Transaction is an ordered list of claims against prior outputs and an
// ordered list of newly produced outputs. It must not be modified once
// handed to the ledger.
type Transaction struct {
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// Input claims a previous output. PrevOut, not the input's position in
// Inputs, identifies the claimed UTXO.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
}

// inputJSON is the JSON representation of Input with a hex-encoded signature.
type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature *string        `json:"signature,omitempty"`
}

// MarshalJSON encodes the input with a hex-encoded signature.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with a hex-encoded signature.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	in.Signature = nil
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return fmt.Errorf("signature: %w", err)
		}
		in.Signature = b
	}
	return nil
}

// Output is a spendable value bound to an owner. Owner is opaque to the
// ledger; with the Schnorr verifier it is a compressed public key.
type Output struct {
	Value decimal.Decimal `json:"value"`
	Owner []byte          `json:"owner"`
}

// outputJSON is the JSON representation of Output with a hex-encoded owner.
type outputJSON struct {
	Value decimal.Decimal `json:"value"`
	Owner string          `json:"owner"`
}

// MarshalJSON encodes the output with a hex-encoded owner.
func (out Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(outputJSON{Value: out.Value, Owner: hex.EncodeToString(out.Owner)})
}

// UnmarshalJSON decodes an output with a hex-encoded owner.
func (out *Output) UnmarshalJSON(data []byte) error {
	var j outputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	owner, err := hex.DecodeString(j.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	out.Value = j.Value
	out.Owner = owner
	return nil
}

// Clone returns a deep copy of the output.
func (out Output) Clone() Output {
	c := Output{Value: out.Value}
	if out.Owner != nil {
		c.Owner = make([]byte, len(out.Owner))
		copy(c.Owner, out.Owner)
	}
	return c
}

// Hash computes the transaction ID (BLAKE3 of SigningBytes). Signatures are
// excluded, so the ID is fixed before any input is signed.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// WitnessHash is BLAKE3 of SigningBytes followed by every input's
// signature. Unlike Hash it tells apart two copies of one transaction
// that carry different signatures.
// Format: signing_bytes | [sig_len(4) sig]...
func (tx *Transaction) WitnessHash() types.Hash {
	buf := tx.SigningBytes()
	for _, in := range tx.Inputs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Signature)))
		buf = append(buf, in.Signature...)
	}
	return crypto.Hash(buf)
}

// SigningBytes returns the canonical encoding of the transaction without
// signatures.
// Format: input_count(4) | [txid(32) index(4)]... | output_count(4) | [output]...
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = appendOutpoint(buf, in.PrevOut)
	}
	return tx.appendOutputs(buf)
}

// AuthorizePayload returns the bytes the signature of input i must cover:
// the claimed outpoint followed by every output of the transaction.
// Format: txid(32) | index(4) | output_count(4) | [output]...
//
// It panics if i is out of range.
func (tx *Transaction) AuthorizePayload(i int) []byte {
	if i < 0 || i >= len(tx.Inputs) {
		panic(fmt.Sprintf("tx: input index %d out of range [0, %d)", i, len(tx.Inputs)))
	}
	buf := make([]byte, 0, types.OutpointSize+4+len(tx.Outputs)*48)
	buf = appendOutpoint(buf, tx.Inputs[i].PrevOut)
	return tx.appendOutputs(buf)
}

// TotalOutputValue returns the sum of all output values.
func (tx *Transaction) TotalOutputValue() decimal.Decimal {
	total := decimal.Zero
	for _, out := range tx.Outputs {
		total = total.Add(out.Value)
	}
	return total
}

// Outpoint returns the identifier of output index of this transaction.
func (tx *Transaction) Outpoint(index uint32) types.Outpoint {
	return types.Outpoint{TxID: tx.Hash(), Index: index}
}

func appendOutpoint(buf []byte, op types.Outpoint) []byte {
	buf = append(buf, op.TxID[:]...)
	return binary.LittleEndian.AppendUint32(buf, op.Index)
}

// appendOutputs writes output_count(4) | [value_len(4) value owner_len(4) owner]...
// where value is the canonical decimal string.
func (tx *Transaction) appendOutputs(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		v := out.Value.String()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Owner)))
		buf = append(buf, out.Owner...)
	}
	return buf
}
