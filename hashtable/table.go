// Package hashtable implements the MPMC lock-free hash table backing
// an in-memory key-value store: concurrent Get/Set/Delete over opaque
// byte-string keys, live cooperative resizing, and epoch-based
// reclamation of retired records and data arrays. The protocol
// front-end, network/worker harness, and command dispatcher that
// would sit on top of it are out of this package's scope.
package hashtable

import (
	"errors"
	"hash/maphash"
	"sync/atomic"

	"github.com/cachegrand-io/lockfreekv/internal/epoch"
)

// Table is the MPMC hash table.
type Table struct {
	cur atomic.Pointer[data]

	maxBuckets      uint64
	upsizeBlockSize uint32
	seed            maphash.Seed

	upsize upsizeState

	gc        *epoch.Registry
	nextShard atomic.Int64

	sizeCounters [sizeShards]atomic.Int64

	logger Logger

	resizeCount   atomic.Uint64
	tryLaterCount atomic.Uint64

	closed atomic.Bool
}

// New constructs a Table per cfg.
func New(cfg Config) (*Table, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	blockSize := cfg.UpsizeBlockSize
	if blockSize == 0 {
		blockSize = defaultUpsizeBlockSize
	}
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}

	t := &Table{
		maxBuckets:      cfg.MaxBuckets,
		upsizeBlockSize: blockSize,
		seed:            maphash.MakeSeed(),
		logger:          lg,
	}
	t.cur.Store(newData(cfg.InitialBuckets))
	t.gc = epoch.NewRegistry(epoch.RealClock,
		func(o any) { _ = o.(*record) },
		func(o any) { _ = o.(*data) },
	)
	return t, nil
}

// Close requires no concurrent users: it retires the current data
// array and drains the GC queues. Go's garbage
// collector will in any case reclaim everything once the Table itself
// becomes unreachable; Close exists so deterministic retirement
// counters settle to zero for callers that check them (e.g. tests).
func (t *Table) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return errors.New("hashtable: already closed")
	}
	h := t.gc.Attach()
	h.Retire(epoch.Data, t.cur.Load())
	if from := t.upsize.from.Load(); from != nil {
		h.Retire(epoch.Data, from)
	}
	h.Advance()
	h.Advance() // second tick guarantees this thread's own min-epoch clears its own retirements
	h.Detach()
	return nil
}

// Size reports the number of committed records, the figure a DBSIZE
// command wants. It sums sharded counters rather than scanning
// buckets, so it stays O(1) in the table size.
func (t *Table) Size() uint64 {
	var total int64
	for i := range t.sizeCounters {
		total += t.sizeCounters[i].Load()
	}
	if total < 0 {
		return 0
	}
	return uint64(total)
}

func (t *Table) data() *data {
	return t.cur.Load()
}
