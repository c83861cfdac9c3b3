// Package ledger validates transactions against a UTXO pool and applies
// batches of them.
//
// A Handler exclusively owns its pool. It performs no locking; a host
// that calls into one Handler from several goroutines must serialize
// those calls (see package epoch).
package ledger

import (
	"fmt"

	"github.com/Klingon-tech/scrooge-ledger/internal/utxo"
	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler validates and applies transactions against its own pool.
type Handler struct {
	pool     *utxo.Pool
	verifier crypto.Verifier
	logger   zerolog.Logger
	metrics  bool
}

// Rejection records one candidate HandleTxsReport did not accept.
type Rejection struct {
	Index  int // position in the candidate slice
	TxID   types.Hash
	Reason Reason
	Err    error
}

// BatchReport is the outcome of one batch.
type BatchReport struct {
	Accepted []*tx.Transaction
	Rejected []Rejection
	// Fees is the claimed value accepted transactions did not re-assign.
	Fees decimal.Decimal
}

// New creates a Handler over a deep copy of pool. Later changes to pool
// do not affect the handler and vice versa. A nil pool starts empty; a
// nil verifier selects crypto.SchnorrVerifier.
func New(pool *utxo.Pool, verifier crypto.Verifier, opts ...Option) *Handler {
	o := ProcessOptions(opts...)
	if pool == nil {
		pool = utxo.NewPool()
	}
	if verifier == nil {
		verifier = crypto.SchnorrVerifier{}
	}
	if o.metrics {
		initPrometheusMetrics()
	}
	return &Handler{
		pool:     pool.Copy(),
		verifier: verifier,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// Pool returns a deep copy of the current pool.
func (h *Handler) Pool() *utxo.Pool {
	return h.pool.Copy()
}

// IsValidTx reports whether t can be applied to the current pool.
func (h *Handler) IsValidTx(t *tx.Transaction) bool {
	return h.CheckTx(t) == nil
}

// CheckTx returns nil if t can be applied to the current pool, or an
// error wrapping the first failed rule:
//
//  1. ErrDuplicateClaim: two inputs claim the same outpoint.
//  2. ErrMissingUTXO / ErrBadAuthorization: checked per input, in order.
//  3. ErrNegativeOutput: some output value is below zero.
//  4. ErrValueDeficit: outputs sum to more than the claimed outputs.
func (h *Handler) CheckTx(t *tx.Transaction) error {
	_, err := h.check(t)
	return err
}

// check runs the rules and returns the fee (claimed minus produced).
func (h *Handler) check(t *tx.Transaction) (decimal.Decimal, error) {
	if t == nil {
		return decimal.Zero, fmt.Errorf("%w: nil transaction", ErrMalformed)
	}

	seen := make(map[types.Outpoint]struct{}, len(t.Inputs))
	for i, in := range t.Inputs {
		if _, dup := seen[in.PrevOut]; dup {
			return decimal.Zero, fmt.Errorf("%w: input %d repeats %s", ErrDuplicateClaim, i, in.PrevOut)
		}
		seen[in.PrevOut] = struct{}{}
	}

	claimed := decimal.Zero
	for i, in := range t.Inputs {
		if !h.pool.Contains(in.PrevOut) {
			return decimal.Zero, fmt.Errorf("%w: input %d claims %s", ErrMissingUTXO, i, in.PrevOut)
		}
		out := h.mustGet(in.PrevOut)
		if !h.verifier.Verify(out.Owner, t.AuthorizePayload(i), in.Signature) {
			return decimal.Zero, fmt.Errorf("%w: input %d claims %s", ErrBadAuthorization, i, in.PrevOut)
		}
		claimed = claimed.Add(out.Value)
	}

	for j, out := range t.Outputs {
		if out.Value.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: output %d has value %s", ErrNegativeOutput, j, out.Value)
		}
	}

	produced := t.TotalOutputValue()
	if claimed.LessThan(produced) {
		return decimal.Zero, fmt.Errorf("%w: claimed %s, produced %s", ErrValueDeficit, claimed, produced)
	}
	return claimed.Sub(produced), nil
}

// mustGet looks up an outpoint already confirmed by Contains. A failure
// here is a broken pool, not bad input.
func (h *Handler) mustGet(op types.Outpoint) tx.Output {
	out, err := h.pool.Get(op)
	if err != nil {
		panic(fmt.Sprintf("ledger: pool lost %s between Contains and Get: %v", op, err))
	}
	return out
}

// apply removes every outpoint t claims and adds each of its outputs
// under (t.Hash(), index).
func (h *Handler) apply(t *tx.Transaction, txid types.Hash) {
	for _, in := range t.Inputs {
		h.pool.Remove(in.PrevOut)
	}
	for j, out := range t.Outputs {
		h.pool.Add(types.Outpoint{TxID: txid, Index: uint32(j)}, out)
	}
}

// HandleTxs applies candidates greedily in the given order and returns
// the accepted ones, in acceptance order. Each candidate is checked
// against the pool as left by every earlier acceptance in the same call,
// so a transaction may spend outputs of one accepted before it. Rejected
// candidates are skipped. Acceptance is final; nothing is rolled back.
//
// The result is never nil.
func (h *Handler) HandleTxs(candidates []*tx.Transaction) []*tx.Transaction {
	return h.HandleTxsReport(candidates).Accepted
}

// HandleTxsReport is HandleTxs that also reports why each rejected
// candidate failed and the total fee of the accepted set.
func (h *Handler) HandleTxsReport(candidates []*tx.Transaction) BatchReport {
	report := BatchReport{
		Accepted: make([]*tx.Transaction, 0, len(candidates)),
		Fees:     decimal.Zero,
	}

	for i, t := range candidates {
		var txid types.Hash
		if t != nil {
			txid = t.Hash()
		}

		fee, err := h.check(t)
		if err != nil {
			reason := ReasonOf(err)
			report.Rejected = append(report.Rejected, Rejection{
				Index:  i,
				TxID:   txid,
				Reason: reason,
				Err:    err,
			})
			h.logger.Debug().
				Int("index", i).
				Str("txid", txid.String()).
				Str("reason", reason.String()).
				Err(err).
				Msg("Transaction rejected")
			if h.metrics {
				prometheusRejectedTransactions.WithLabelValues(reason.String()).Inc()
			}
			continue
		}

		h.apply(t, txid)
		report.Accepted = append(report.Accepted, t)
		report.Fees = report.Fees.Add(fee)
	}

	if h.metrics {
		prometheusBatchSize.Observe(float64(len(candidates)))
		prometheusAcceptedTransactions.Add(float64(len(report.Accepted)))
		prometheusPoolSize.Set(float64(h.pool.Len()))
	}

	h.logger.Info().
		Int("candidates", len(candidates)).
		Int("accepted", len(report.Accepted)).
		Int("rejected", len(report.Rejected)).
		Str("fees", report.Fees.String()).
		Int("pool_size", h.pool.Len()).
		Msg("Batch processed")

	return report
}
