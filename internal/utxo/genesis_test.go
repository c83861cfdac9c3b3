package utxo

import (
	"testing"

	"github.com/Klingon-tech/scrooge-ledger/config"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisPool(t *testing.T) {
	g := &config.Genesis{
		Name: "test",
		Alloc: []config.Allocation{
			{Owner: "02aa", Value: decimal.NewFromInt(10)},
			{Owner: "02bb", Value: decimal.NewFromInt(0)},
		},
	}
	pool, err := GenesisPool(g)
	require.NoError(t, err)
	require.Equal(t, 2, pool.Len())

	txid, err := g.Hash()
	require.NoError(t, err)

	out, err := pool.Get(types.Outpoint{TxID: txid, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xbb}, out.Owner)
	assert.True(t, out.Value.IsZero())
	assert.Equal(t, "10", pool.TotalValue().String())
}

func TestGenesisPool_Invalid(t *testing.T) {
	_, err := GenesisPool(&config.Genesis{
		Name:  "bad",
		Alloc: []config.Allocation{{Owner: "02aa", Value: decimal.NewFromInt(-1)}},
	})
	assert.Error(t, err)
}
