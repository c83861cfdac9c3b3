package types

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// OutpointSize is the length of an encoded outpoint: txid(32) | index(4).
const OutpointSize = HashSize + 4

// Outpoint identifies one output of one transaction. It is the only key
// space of the UTXO pool.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

// Compare orders outpoints by txid, then index.
func (o Outpoint) Compare(other Outpoint) int {
	if c := o.TxID.Compare(other.TxID); c != 0 {
		return c
	}
	switch {
	case o.Index < other.Index:
		return -1
	case o.Index > other.Index:
		return 1
	}
	return 0
}

// Bytes returns the canonical encoding txid(32) | index(4, big endian).
// Big endian keeps the byte order consistent with Compare.
func (o Outpoint) Bytes() []byte {
	b := make([]byte, OutpointSize)
	copy(b, o.TxID[:])
	binary.BigEndian.PutUint32(b[HashSize:], o.Index)
	return b
}

// OutpointFromBytes decodes the encoding produced by Bytes.
func OutpointFromBytes(b []byte) (Outpoint, error) {
	if len(b) != OutpointSize {
		return Outpoint{}, fmt.Errorf("outpoint must be %d bytes, got %d", OutpointSize, len(b))
	}
	var o Outpoint
	copy(o.TxID[:], b[:HashSize])
	o.Index = binary.BigEndian.Uint32(b[HashSize:])
	return o, nil
}

// ParseOutpoint parses the "txid:index" form returned by String.
func ParseOutpoint(s string) (Outpoint, error) {
	txid, idx, ok := strings.Cut(s, ":")
	if !ok {
		return Outpoint{}, fmt.Errorf("outpoint %q: expected txid:index", s)
	}
	h, err := HexToHash(txid)
	if err != nil {
		return Outpoint{}, fmt.Errorf("outpoint %q: %w", s, err)
	}
	n, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("outpoint %q: invalid index: %w", s, err)
	}
	return Outpoint{TxID: h, Index: uint32(n)}, nil
}
