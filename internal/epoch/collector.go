// Package epoch collects candidate transactions from concurrent callers
// and settles them against a single ledger.Handler one batch at a time.
package epoch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/scrooge-ledger/internal/ledger"
	"github.com/Klingon-tech/scrooge-ledger/internal/log"
	"github.com/Klingon-tech/scrooge-ledger/internal/utxo"
	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
)

// Collector errors.
var (
	ErrAlreadyQueued  = errors.New("transaction already queued for this epoch")
	ErrQueueFull      = errors.New("epoch queue is full")
	ErrNilTransaction = errors.New("nil transaction")
)

// Collector queues candidates in submission order. Candidates are not
// validated on submit; conflicts among them are settled by the handler
// when the epoch is sealed. Only exact resubmissions are refused: a copy
// of a queued transaction carrying different signatures is queued too,
// since the handler may accept it where the first copy fails.
//
// Every call into the handler happens under the collector's mutex.
type Collector struct {
	mu      sync.Mutex
	handler *ledger.Handler
	queue   []*tx.Transaction
	queued  map[types.Hash]struct{} // by WitnessHash
	maxSize int
	epoch   uint64
}

// New creates a collector feeding h. maxSize <= 0 selects 10000.
func New(h *ledger.Handler, maxSize int) *Collector {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &Collector{
		handler: h,
		queued:  make(map[types.Hash]struct{}),
		maxSize: maxSize,
	}
}

// Submit queues t for the current epoch and returns its id.
func (c *Collector) Submit(t *tx.Transaction) (types.Hash, error) {
	if t == nil {
		return types.Hash{}, ErrNilTransaction
	}
	txid := t.Hash()
	wid := t.WitnessHash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.queued[wid]; exists {
		return txid, fmt.Errorf("%w: %s", ErrAlreadyQueued, txid)
	}
	if len(c.queue) >= c.maxSize {
		return txid, ErrQueueFull
	}

	c.queue = append(c.queue, t)
	c.queued[wid] = struct{}{}
	return txid, nil
}

// Seal settles every queued candidate, in submission order, and starts
// the next epoch.
func (c *Collector) Seal() ledger.BatchReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.queue
	c.queue = nil
	c.queued = make(map[types.Hash]struct{})

	report := c.handler.HandleTxsReport(batch)
	log.Epoch.Info().
		Uint64("epoch", c.epoch).
		Int("accepted", len(report.Accepted)).
		Int("rejected", len(report.Rejected)).
		Msg("Epoch sealed")
	c.epoch++
	return report
}

// Pending returns the number of queued candidates.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Epoch returns the number of epochs sealed so far.
func (c *Collector) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Has reports whether a transaction with this id is queued, under any
// signatures.
func (c *Collector) Has(txid types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.queue {
		if t.Hash() == txid {
			return true
		}
	}
	return false
}

// IsValid checks t against the pool as of the last sealed epoch.
func (c *Collector) IsValid(t *tx.Transaction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.IsValidTx(t)
}

// Check is IsValid with the rejection reason.
func (c *Collector) Check(t *tx.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.CheckTx(t)
}

// Snapshot returns a copy of the handler's pool.
func (c *Collector) Snapshot() *utxo.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Pool()
}
