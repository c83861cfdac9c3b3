package ledger

import "errors"

// Rejection reasons returned (wrapped) by CheckTx.
var (
	ErrMalformed        = errors.New("malformed transaction")
	ErrDuplicateClaim   = errors.New("outpoint claimed more than once")
	ErrMissingUTXO      = errors.New("claimed output not in pool")
	ErrBadAuthorization = errors.New("claim not authorized by owner")
	ErrNegativeOutput   = errors.New("negative output value")
	ErrValueDeficit     = errors.New("outputs exceed claimed value")
)

// Reason classifies why a transaction was rejected.
type Reason int

// Reasons, in the order the checks run.
const (
	ReasonNone Reason = iota
	ReasonMalformed
	ReasonDuplicateClaim
	ReasonMissingUTXO
	ReasonBadAuthorization
	ReasonNegativeOutput
	ReasonValueDeficit
)

var reasonNames = [...]string{
	ReasonNone:             "none",
	ReasonMalformed:        "malformed",
	ReasonDuplicateClaim:   "duplicate_claim",
	ReasonMissingUTXO:      "missing_utxo",
	ReasonBadAuthorization: "bad_authorization",
	ReasonNegativeOutput:   "negative_output",
	ReasonValueDeficit:     "value_deficit",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// ReasonOf maps an error from CheckTx to its Reason. A nil error is
// ReasonNone; an error from elsewhere is ReasonMalformed.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrDuplicateClaim):
		return ReasonDuplicateClaim
	case errors.Is(err, ErrMissingUTXO):
		return ReasonMissingUTXO
	case errors.Is(err, ErrBadAuthorization):
		return ReasonBadAuthorization
	case errors.Is(err, ErrNegativeOutput):
		return ReasonNegativeOutput
	case errors.Is(err, ErrValueDeficit):
		return ReasonValueDeficit
	default:
		return ReasonMalformed
	}
}
