package config

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Genesis describes the initial UTXO pool. Allocation i becomes the
// output (Hash(), i), so the order of Alloc is significant.
type Genesis struct {
	Name  string       `json:"name"`
	Alloc []Allocation `json:"alloc"`
}

// Allocation is one initial output: an owner (hex) and a value.
type Allocation struct {
	Owner string          `json:"owner"`
	Value decimal.Decimal `json:"value"`
}

// OwnerBytes decodes the hex owner.
func (a Allocation) OwnerBytes() ([]byte, error) {
	b, err := hex.DecodeString(a.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	return b, nil
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(g.Alloc) > MaxTxOutputs {
		return fmt.Errorf("alloc has %d entries, max %d", len(g.Alloc), MaxTxOutputs)
	}
	for i, a := range g.Alloc {
		owner, err := a.OwnerBytes()
		if err != nil {
			return fmt.Errorf("alloc %d: %w", i, err)
		}
		if len(owner) == 0 || len(owner) > MaxOwnerSize {
			return fmt.Errorf("alloc %d: owner must be 1..%d bytes", i, MaxOwnerSize)
		}
		if a.Value.IsNegative() {
			return fmt.Errorf("alloc %d: negative value %s", i, a.Value)
		}
	}
	return nil
}

// Hash returns the BLAKE3 hash of the genesis' canonical bytes. It is the
// transaction id of the genesis outputs.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := g.canonicalBytes()
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}

// canonicalBytes encodes the genesis independently of its file format.
// Owners are the decoded key bytes and values the canonical decimal
// string, so hex case and trailing zeros do not change the id.
// Format: name_len(4) | name | alloc_count(4) | [value_len(4) value owner_len(4) owner]...
func (g *Genesis) canonicalBytes() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(g.Name)))
	buf = append(buf, g.Name...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(g.Alloc)))
	for i, a := range g.Alloc {
		owner, err := a.OwnerBytes()
		if err != nil {
			return nil, fmt.Errorf("alloc %d: %w", i, err)
		}
		v := a.Value.String()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(owner)))
		buf = append(buf, owner...)
	}
	return buf, nil
}
