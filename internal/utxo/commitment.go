package utxo

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
)

// Commitment computes a merkle root over all UTXOs in set.
// Each UTXO is hashed deterministically, the hashes are sorted, and
// a merkle tree is built from them. Returns a zero hash for an empty set.
//
// Two sets holding the same outputs commit to the same root regardless
// of how they were built, so the root can be compared across runs.
func Commitment(set Set) (types.Hash, error) {
	var hashes []types.Hash

	err := set.ForEach(func(u UTXO) error {
		hashes = append(hashes, hashUTXO(u))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("utxo commitment: %w", err)
	}

	if len(hashes) == 0 {
		return types.Hash{}, nil
	}

	slices.SortFunc(hashes, types.Hash.Compare)
	return crypto.ComputeMerkleRoot(hashes), nil
}

// hashUTXO produces a deterministic BLAKE3 hash of a UTXO.
// Format: txid(32) | index(4) | value_len(4) | value | owner_len(4) | owner
func hashUTXO(u UTXO) types.Hash {
	v := u.Output.Value.String()
	var buf []byte
	buf = append(buf, u.Outpoint.TxID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, u.Outpoint.Index)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
	buf = append(buf, v...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(u.Output.Owner)))
	buf = append(buf, u.Output.Owner...)
	return crypto.Hash(buf)
}
