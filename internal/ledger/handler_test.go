package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Klingon-tech/scrooge-ledger/internal/utxo"
	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	acceptAll = crypto.VerifierFunc(func(_, _, _ []byte) bool { return true })
	rejectAll = crypto.VerifierFunc(func(_, _, _ []byte) bool { return false })

	ownerA = []byte{0x02, 0x0a}
	ownerB = []byte{0x02, 0x0b}
	ownerC = []byte{0x02, 0x0c}
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func op(name string, index uint32) types.Outpoint {
	return types.Outpoint{TxID: crypto.Hash([]byte(name)), Index: index}
}

func newHandler(t *testing.T, pool *utxo.Pool, v crypto.Verifier) *Handler {
	t.Helper()
	return New(pool, v, WithLogger(zerolog.Nop()), WithMetrics(false))
}

// poolWith builds a pool holding each (outpoint, value) pair owned by ownerA.
func poolWith(entries map[types.Outpoint]string) *utxo.Pool {
	p := utxo.NewPool()
	for o, v := range entries {
		p.Add(o, tx.Output{Value: d(v), Owner: ownerA})
	}
	return p
}

func spend(inputs []types.Outpoint, values ...string) *tx.Transaction {
	b := tx.NewBuilder()
	for _, in := range inputs {
		b.AddInput(in)
	}
	for _, v := range values {
		b.AddOutput(d(v), ownerB)
	}
	return b.Build()
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func signedSpend(t *testing.T, from *crypto.PrivateKey, in types.Outpoint, value string, to []byte) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder().AddInput(in).AddOutput(d(value), to)
	require.NoError(t, b.SignAll(from))
	return b.Build()
}

func TestIsValidTx_MissingUTXO(t *testing.T) {
	h := newHandler(t, poolWith(map[types.Outpoint]string{op("u", 0): "10"}), acceptAll)

	assert.True(t, h.IsValidTx(spend([]types.Outpoint{op("u", 0)}, "10")))
	assert.False(t, h.IsValidTx(spend([]types.Outpoint{op("u", 1)}, "1")))
	assert.False(t, h.IsValidTx(spend([]types.Outpoint{op("u", 0), op("other", 0)}, "1")))

	err := h.CheckTx(spend([]types.Outpoint{op("u", 1)}, "1"))
	assert.True(t, errors.Is(err, ErrMissingUTXO), "got %v", err)
}

func TestIsValidTx_DuplicateClaim(t *testing.T) {
	h := newHandler(t, poolWith(map[types.Outpoint]string{op("u", 0): "10"}), acceptAll)

	dup := spend([]types.Outpoint{op("u", 0), op("u", 0)}, "5")
	assert.False(t, h.IsValidTx(dup))
	assert.Equal(t, ReasonDuplicateClaim, ReasonOf(h.CheckTx(dup)))

	// Reported as a duplicate even when other rules fail too.
	worse := spend([]types.Outpoint{op("gone", 3), op("gone", 3)}, "-1")
	assert.Equal(t, ReasonDuplicateClaim, ReasonOf(h.CheckTx(worse)))
}

func TestIsValidTx_NegativeOutput(t *testing.T) {
	h := newHandler(t, poolWith(map[types.Outpoint]string{op("u", 0): "10"}), acceptAll)

	neg := spend([]types.Outpoint{op("u", 0)}, "5", "-1")
	assert.False(t, h.IsValidTx(neg), "negative output must fail even though the sum is covered")
	assert.True(t, errors.Is(h.CheckTx(neg), ErrNegativeOutput))

	assert.True(t, h.IsValidTx(spend([]types.Outpoint{op("u", 0)}, "0", "10")), "zero outputs are allowed")
}

func TestIsValidTx_ValueConservation(t *testing.T) {
	pool := poolWith(map[types.Outpoint]string{op("u", 0): "6", op("u", 1): "4"})
	inputs := []types.Outpoint{op("u", 0), op("u", 1)}

	tests := []struct {
		name    string
		outputs []string
		valid   bool
	}{
		{"deficit", []string{"10.0001"}, false},
		{"deficit split", []string{"5", "5", "1"}, false},
		{"equal", []string{"10"}, true},
		{"equal split", []string{"2.5", "7.5"}, true},
		{"surplus", []string{"9.99"}, true},
		{"no outputs", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, pool, acceptAll)
			err := h.CheckTx(spend(inputs, tt.outputs...))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrValueDeficit), "got %v", err)
			}
		})
	}
}

func TestIsValidTx_FeeScenario(t *testing.T) {
	h := newHandler(t, poolWith(map[types.Outpoint]string{op("u", 0): "10"}), acceptAll)

	assert.True(t, h.IsValidTx(spend([]types.Outpoint{op("u", 0)}, "7")))
	assert.False(t, h.IsValidTx(spend([]types.Outpoint{op("u", 0)}, "11")))

	report := h.HandleTxsReport([]*tx.Transaction{spend([]types.Outpoint{op("u", 0)}, "7")})
	require.Len(t, report.Accepted, 1)
	assert.Equal(t, "3", report.Fees.String())
}

func TestIsValidTx_VerifierArguments(t *testing.T) {
	pool := utxo.NewPool()
	pool.Add(op("u", 0), tx.Output{Value: d("3"), Owner: ownerA})
	pool.Add(op("u", 1), tx.Output{Value: d("4"), Owner: ownerC})

	transaction := spend([]types.Outpoint{op("u", 1), op("u", 0)}, "7")
	transaction.Inputs[0].Signature = []byte("sig0")
	transaction.Inputs[1].Signature = []byte("sig1")

	type call struct{ owner, payload, sig []byte }
	var calls []call
	rec := crypto.VerifierFunc(func(owner, payload, sig []byte) bool {
		calls = append(calls, call{owner, payload, sig})
		return true
	})

	h := newHandler(t, pool, rec)
	require.True(t, h.IsValidTx(transaction))
	require.Len(t, calls, 2)

	assert.Equal(t, ownerC, calls[0].owner)
	assert.Equal(t, transaction.AuthorizePayload(0), calls[0].payload)
	assert.Equal(t, []byte("sig0"), calls[0].sig)
	assert.Equal(t, ownerA, calls[1].owner)
	assert.Equal(t, transaction.AuthorizePayload(1), calls[1].payload)
	assert.Equal(t, []byte("sig1"), calls[1].sig)
}

func TestIsValidTx_BadAuthorization(t *testing.T) {
	h := newHandler(t, poolWith(map[types.Outpoint]string{op("u", 0): "10"}), rejectAll)
	err := h.CheckTx(spend([]types.Outpoint{op("u", 0)}, "1"))
	assert.True(t, errors.Is(err, ErrBadAuthorization), "got %v", err)
}

func TestIsValidTx_Schnorr(t *testing.T) {
	alice, mallory := newKey(t), newKey(t)
	u := op("u", 0)
	pool := utxo.NewPool()
	pool.Add(u, tx.Output{Value: d("10"), Owner: alice.PublicKey()})
	h := New(pool, crypto.SchnorrVerifier{}, WithLogger(zerolog.Nop()), WithMetrics(false))

	good := signedSpend(t, alice, u, "10", ownerB)
	assert.True(t, h.IsValidTx(good))

	forged := signedSpend(t, mallory, u, "10", ownerB)
	assert.Equal(t, ReasonBadAuthorization, ReasonOf(h.CheckTx(forged)))

	// The signature covers the outputs: redirecting them invalidates it.
	tampered := signedSpend(t, alice, u, "10", ownerB)
	tampered.Outputs[0].Owner = ownerC
	assert.False(t, h.IsValidTx(tampered))

	unsigned := tx.NewBuilder().AddInput(u).AddOutput(d("1"), ownerB).Build()
	assert.False(t, h.IsValidTx(unsigned))
}

func TestIsValidTx_NilTransaction(t *testing.T) {
	h := newHandler(t, nil, acceptAll)
	assert.False(t, h.IsValidTx(nil))
	assert.Equal(t, ReasonMalformed, ReasonOf(h.CheckTx(nil)))
}

func TestIsValidTx_DoesNotMutate(t *testing.T) {
	pool := poolWith(map[types.Outpoint]string{op("u", 0): "10"})
	h := newHandler(t, pool, acceptAll)

	require.True(t, h.IsValidTx(spend([]types.Outpoint{op("u", 0)}, "10")))
	assert.True(t, h.Pool().Equal(pool))
}

func TestNew_CopiesPool(t *testing.T) {
	pool := poolWith(map[types.Outpoint]string{op("u", 0): "5"})
	before := pool.Copy()

	h := newHandler(t, pool, acceptAll)
	accepted := h.HandleTxs([]*tx.Transaction{spend([]types.Outpoint{op("u", 0)}, "5")})
	require.Len(t, accepted, 1)

	assert.True(t, pool.Equal(before), "handler mutations leaked into caller's pool")

	// The other direction: caller mutations do not reach the handler.
	pool.Add(op("late", 0), tx.Output{Value: d("1"), Owner: ownerA})
	assert.False(t, h.IsValidTx(spend([]types.Outpoint{op("late", 0)}, "1")))

	// Pool() hands out a copy too.
	snap := h.Pool()
	snap.Remove(accepted[0].Outpoint(0))
	assert.True(t, h.Pool().Contains(accepted[0].Outpoint(0)))
}

func TestHandleTxs_OrderSensitivity(t *testing.T) {
	pool := poolWith(map[types.Outpoint]string{op("u", 0): "10"})
	t1 := spend([]types.Outpoint{op("u", 0)}, "10")
	t2 := spend([]types.Outpoint{op("u", 0)}, "9")
	require.NotEqual(t, t1.Hash(), t2.Hash())

	got := newHandler(t, pool, acceptAll).HandleTxs([]*tx.Transaction{t1, t2})
	assert.Equal(t, []*tx.Transaction{t1}, got)

	got = newHandler(t, pool, acceptAll).HandleTxs([]*tx.Transaction{t2, t1})
	assert.Equal(t, []*tx.Transaction{t2}, got)
}

func TestHandleTxs_Chaining(t *testing.T) {
	a, b := newKey(t), newKey(t)
	c := []byte{0x03, 0x0c}
	u := op("u", 0)
	pool := utxo.NewPool()
	pool.Add(u, tx.Output{Value: d("10"), Owner: a.PublicKey()})

	t1 := signedSpend(t, a, u, "10", b.PublicKey())
	t2 := signedSpend(t, b, t1.Outpoint(0), "10", c)

	h := New(pool, crypto.SchnorrVerifier{}, WithLogger(zerolog.Nop()), WithMetrics(false))
	got := h.HandleTxs([]*tx.Transaction{t1, t2})
	assert.Equal(t, []*tx.Transaction{t1, t2}, got)

	final := h.Pool()
	require.Equal(t, 1, final.Len())
	out, err := final.Get(t2.Outpoint(0))
	require.NoError(t, err)
	assert.Equal(t, c, out.Owner)
	assert.True(t, out.Value.Equal(d("10")))

	h = New(pool, crypto.SchnorrVerifier{}, WithLogger(zerolog.Nop()), WithMetrics(false))
	got = h.HandleTxs([]*tx.Transaction{t2, t1})
	// t2 fails because its claimed output does not exist yet. t1 is
	// valid on its own and is still accepted after it.
	assert.Equal(t, []*tx.Transaction{t1}, got)
	assert.True(t, h.IsValidTx(t2), "t2 becomes valid only once t1 is applied")
}

func TestHandleTxs_EndToEnd(t *testing.T) {
	a, b := newKey(t), newKey(t)
	u1 := op("u1", 0)
	pool := utxo.NewPool()
	pool.Add(u1, tx.Output{Value: d("5"), Owner: a.PublicKey()})

	spendAll := signedSpend(t, a, u1, "5", b.PublicKey())
	h := New(pool, crypto.SchnorrVerifier{}, WithLogger(zerolog.Nop()), WithMetrics(false))

	got := h.HandleTxs([]*tx.Transaction{spendAll})
	assert.Equal(t, []*tx.Transaction{spendAll}, got)

	want := utxo.NewPool()
	want.Add(types.Outpoint{TxID: spendAll.Hash(), Index: 0}, tx.Output{Value: d("5"), Owner: b.PublicKey()})
	assert.True(t, h.Pool().Equal(want))
	assert.False(t, h.Pool().Contains(u1))
}

// Applying a transaction removes exactly the outpoints its inputs name,
// not outpoints derived from each input's position.
func TestHandleTxs_RemovesClaimedOutpoints(t *testing.T) {
	x, y := "x", "y"
	pool := poolWith(map[types.Outpoint]string{
		op(x, 0): "1",
		op(x, 1): "1",
		op(x, 2): "1",
		op(y, 0): "1",
		op(y, 1): "1",
	})

	// Input 0 claims (x, 2); input 1 claims (y, 0).
	multi := spend([]types.Outpoint{op(x, 2), op(y, 0)}, "2")
	h := newHandler(t, pool, acceptAll)
	require.Len(t, h.HandleTxs([]*tx.Transaction{multi}), 1)

	after := h.Pool()
	assert.False(t, after.Contains(op(x, 2)))
	assert.False(t, after.Contains(op(y, 0)))
	assert.True(t, after.Contains(op(x, 0)), "position-derived (x, 0) must survive")
	assert.True(t, after.Contains(op(y, 1)), "position-derived (y, 1) must survive")
	assert.True(t, after.Contains(op(x, 1)))
	assert.True(t, after.Contains(multi.Outpoint(0)))
	assert.Equal(t, 4, after.Len())

	// The consumed outpoints cannot be claimed again.
	again := spend([]types.Outpoint{op(x, 2)}, "1")
	assert.Equal(t, ReasonMissingUTXO, ReasonOf(h.CheckTx(again)))
}

func TestHandleTxs_EmptyAndNil(t *testing.T) {
	h := newHandler(t, poolWith(map[types.Outpoint]string{op("u", 0): "1"}), acceptAll)

	got := h.HandleTxs(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)

	ok := spend([]types.Outpoint{op("u", 0)}, "1")
	got = h.HandleTxs([]*tx.Transaction{nil, ok, nil})
	assert.Equal(t, []*tx.Transaction{ok}, got)
}

func TestHandleTxs_PoolCarriesAcrossBatches(t *testing.T) {
	h := newHandler(t, poolWith(map[types.Outpoint]string{op("u", 0): "8"}), acceptAll)

	first := spend([]types.Outpoint{op("u", 0)}, "8")
	require.Len(t, h.HandleTxs([]*tx.Transaction{first}), 1)

	second := spend([]types.Outpoint{first.Outpoint(0)}, "3", "5")
	replay := spend([]types.Outpoint{op("u", 0)}, "8")
	got := h.HandleTxs([]*tx.Transaction{replay, second})
	assert.Equal(t, []*tx.Transaction{second}, got)
	assert.Equal(t, 2, h.Pool().Len())
}

func TestHandleTxsReport(t *testing.T) {
	pool := poolWith(map[types.Outpoint]string{op("u", 0): "10", op("u", 1): "4"})
	h := newHandler(t, pool, acceptAll)

	okTx := spend([]types.Outpoint{op("u", 0)}, "9")
	conflict := spend([]types.Outpoint{op("u", 0)}, "1")
	dup := spend([]types.Outpoint{op("u", 1), op("u", 1)}, "1")
	neg := spend([]types.Outpoint{op("u", 1)}, "-2")
	deficit := spend([]types.Outpoint{op("u", 1)}, "5")
	okTx2 := spend([]types.Outpoint{op("u", 1)}, "3.5")

	report := h.HandleTxsReport([]*tx.Transaction{okTx, conflict, dup, nil, neg, deficit, okTx2})

	assert.Equal(t, []*tx.Transaction{okTx, okTx2}, report.Accepted)
	assert.Equal(t, "1.5", report.Fees.String())

	want := []struct {
		index  int
		reason Reason
	}{
		{1, ReasonMissingUTXO},
		{2, ReasonDuplicateClaim},
		{3, ReasonMalformed},
		{4, ReasonNegativeOutput},
		{5, ReasonValueDeficit},
	}
	require.Len(t, report.Rejected, len(want))
	for i, w := range want {
		r := report.Rejected[i]
		assert.Equal(t, w.index, r.Index)
		assert.Equal(t, w.reason, r.Reason, "candidate %d", w.index)
		assert.Error(t, r.Err)
	}
	assert.Equal(t, conflict.Hash(), report.Rejected[0].TxID)
	assert.True(t, report.Rejected[2].TxID.IsZero())
}

func TestHandleTxs_ZeroValueChange(t *testing.T) {
	pool := poolWith(map[types.Outpoint]string{op("u", 0): "0"})
	h := newHandler(t, pool, acceptAll)

	t1 := spend([]types.Outpoint{op("u", 0)}, "0", "0")
	require.Len(t, h.HandleTxs([]*tx.Transaction{t1}), 1)
	assert.Equal(t, 2, h.Pool().Len())
	assert.True(t, h.Pool().TotalValue().IsZero())
}

func TestHandleTxs_LogsRejections(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	h := New(utxo.NewPool(), acceptAll, WithLogger(logger), WithMetrics(false))

	missing := spend([]types.Outpoint{op("nope", 0)}, "1")
	h.HandleTxs([]*tx.Transaction{missing})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var rejected map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rejected))
	assert.Equal(t, "missing_utxo", rejected["reason"])
	assert.Equal(t, missing.Hash().String(), rejected["txid"])

	var summary map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &summary))
	assert.EqualValues(t, 1, summary["rejected"])
}

func TestHandleTxs_Metrics(t *testing.T) {
	h := New(poolWith(map[types.Outpoint]string{op("m", 0): "1"}), acceptAll, WithLogger(zerolog.Nop()))

	accepted := testutil.ToFloat64(prometheusAcceptedTransactions)
	missing := testutil.ToFloat64(prometheusRejectedTransactions.WithLabelValues("missing_utxo"))

	h.HandleTxs([]*tx.Transaction{
		spend([]types.Outpoint{op("m", 0)}, "1"),
		spend([]types.Outpoint{op("m", 0)}, "1"),
	})

	assert.Equal(t, accepted+1, testutil.ToFloat64(prometheusAcceptedTransactions))
	assert.Equal(t, missing+1, testutil.ToFloat64(prometheusRejectedTransactions.WithLabelValues("missing_utxo")))
	assert.Equal(t, float64(1), testutil.ToFloat64(prometheusPoolSize))
}

func TestReason(t *testing.T) {
	assert.Equal(t, ReasonNone, ReasonOf(nil))
	assert.Equal(t, ReasonMalformed, ReasonOf(errors.New("other")))
	assert.Equal(t, ReasonValueDeficit, ReasonOf(ErrValueDeficit))
	assert.Equal(t, "bad_authorization", ReasonBadAuthorization.String())
	assert.Equal(t, "unknown", Reason(99).String())
}
