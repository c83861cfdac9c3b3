package tx

import (
	"encoding/json"
	"fmt"
	"io"
)

// DecodeBatch reads a JSON array of transactions and checks each one's
// structure. Order is preserved: it is the order the ledger will see.
func DecodeBatch(r io.Reader) ([]*Transaction, error) {
	var batch []*Transaction
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	for i, t := range batch {
		if t == nil {
			return nil, fmt.Errorf("transaction %d: null entry", i)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return batch, nil
}

// EncodeBatch writes transactions as an indented JSON array.
func EncodeBatch(w io.Writer, batch []*Transaction) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if batch == nil {
		batch = []*Transaction{}
	}
	return enc.Encode(batch)
}
