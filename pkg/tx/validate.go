package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/scrooge-ledger/config"
)

// Structural errors. These describe malformed transactions that are
// refused before they ever reach the ledger; ledger rules (double claims,
// negative values, conservation) are not checked here.
var (
	ErrTooManyInputs  = errors.New("too many inputs")
	ErrTooManyOutputs = errors.New("too many outputs")
	ErrOwnerTooLarge  = errors.New("owner too large")
	ErrSigTooLarge    = errors.New("signature too large")
)

// Validate checks structural limits only.
func (tx *Transaction) Validate() error {
	if len(tx.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(tx.Inputs), config.MaxTxInputs)
	}
	if len(tx.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(tx.Outputs), config.MaxTxOutputs)
	}
	for i, in := range tx.Inputs {
		if len(in.Signature) > config.MaxSignatureSize {
			return fmt.Errorf("input %d: %w: %d bytes, max %d", i, ErrSigTooLarge, len(in.Signature), config.MaxSignatureSize)
		}
	}
	for i, out := range tx.Outputs {
		if len(out.Owner) > config.MaxOwnerSize {
			return fmt.Errorf("output %d: %w: %d bytes, max %d", i, ErrOwnerTooLarge, len(out.Owner), config.MaxOwnerSize)
		}
	}
	return nil
}
