package epoch

import (
	"sync"
	"sync/atomic"
)

// Domain identifies one of the two independent reclamation classes the
// hashtable retires into: key-value records and data arrays. They are
// kept separate because data arrays are far larger than records, and
// mixing them would unnecessarily delay reclamation of either.
type Domain int

const (
	// Record is the key-value record object class.
	Record Domain = iota
	// Data is the table-data-array object class.
	Data
	numDomains
)

type retiredItem struct {
	epoch int64
	obj   any
}

type queue struct {
	items []retiredItem
}

func (q *queue) drainBelow(min int64, free func(any)) int {
	i := 0
	for i < len(q.items) && q.items[i].epoch < min {
		free(q.items[i].obj)
		i++
	}
	freed := i
	if i > 0 {
		q.items = append(q.items[:0], q.items[i:]...)
	}
	return freed
}

// threadSlot is the per-registered-thread bookkeeping: its current
// epoch (advanced at safe points) and its two domain retirement queues.
// Only the owning thread ever appends to or drains its own queues,
// which is what lets Retire/Advance stay lock-free on the hot path.
type threadSlot struct {
	epoch  atomic.Int64
	active atomic.Bool
	queues [numDomains]queue
}

// Stats reports point-in-time reclamation bookkeeping, exported for
// the hashtable's metrics.Collector.
type Stats struct {
	Pending [numDomains]int
	Retired [numDomains]uint64
	Freed   [numDomains]uint64
}

// Registry tracks the set of attached threads and the free functions
// for each object class. It is the collector: there is no dedicated
// collector goroutine, collection happens opportunistically inside
// ThreadHandle.Advance, called after every hashtable operation.
type Registry struct {
	clock    Clock
	freeFns  [numDomains]func(any)
	slots    atomic.Pointer[[]*threadSlot]
	attachMu sync.Mutex

	pendingMu sync.Mutex
	pending   [numDomains]queue

	retired [numDomains]atomic.Uint64
	freed   [numDomains]atomic.Uint64
}

// NewRegistry constructs a Registry. freeRecord and freeData are called
// (on an arbitrary attached thread) once an object of that domain's
// class is known to be unreachable by any registered thread.
func NewRegistry(clock Clock, freeRecord, freeData func(any)) *Registry {
	r := &Registry{clock: clock}
	r.freeFns[Record] = freeRecord
	r.freeFns[Data] = freeData
	empty := []*threadSlot{}
	r.slots.Store(&empty)
	return r
}

// ThreadHandle is a registered thread's handle into the collector.
type ThreadHandle struct {
	reg  *Registry
	slot *threadSlot
}

// Attach registers the calling thread (goroutine) with the registry.
func (r *Registry) Attach() *ThreadHandle {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()

	cur := *r.slots.Load()
	for _, s := range cur {
		if !s.active.Load() {
			s.active.Store(true)
			s.epoch.Store(r.clock())
			return &ThreadHandle{reg: r, slot: s}
		}
	}
	s := &threadSlot{}
	s.active.Store(true)
	s.epoch.Store(r.clock())
	next := make([]*threadSlot, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, s)
	r.slots.Store(&next)
	return &ThreadHandle{reg: r, slot: s}
}

// Detach unregisters the thread. Any retirements still held in its
// queues are handed off to the registry's shared pending queues so
// they are not lost; they are collected by whichever thread next
// advances past their epoch.
func (h *ThreadHandle) Detach() {
	h.reg.pendingMu.Lock()
	for d := Domain(0); d < numDomains; d++ {
		h.reg.pending[d].items = append(h.reg.pending[d].items, h.slot.queues[d].items...)
		h.slot.queues[d].items = nil
	}
	h.reg.pendingMu.Unlock()
	h.slot.active.Store(false)
}

// minEpoch returns the minimum epoch observed across every currently
// active registered thread, or the current clock tick if none are
// active (so a lone thread's own retirements still drain promptly).
func (r *Registry) minEpoch() int64 {
	slots := *r.slots.Load()
	min := int64(-1)
	for _, s := range slots {
		if !s.active.Load() {
			continue
		}
		e := s.epoch.Load()
		if min == -1 || e < min {
			min = e
		}
	}
	if min == -1 {
		return r.clock()
	}
	return min
}

// Retire hands obj of the given domain to the collector. It is not
// freed until every currently registered thread has advanced its
// epoch past this point.
//
// The item is stamped with the clock read now, not with the retiring
// thread's own (older) epoch: any thread that could still hold a
// reference obtained obj's pointer before this call, so its epoch —
// set at its last safe point, before that load — is necessarily at or
// below the current tick, and the strict drainBelow comparison keeps
// obj alive until that thread advances again.
func (h *ThreadHandle) Retire(domain Domain, obj any) {
	h.slot.queues[domain].items = append(h.slot.queues[domain].items, retiredItem{
		epoch: h.reg.clock(),
		obj:   obj,
	})
	h.reg.retired[domain].Add(1)
}

// Advance bumps this thread's epoch to the current tick and then
// opportunistically collects anything — in its own queues or in the
// shared pending queues left behind by detached threads — that is now
// provably unreachable. This is the safe point: called once after
// every hashtable operation.
func (h *ThreadHandle) Advance() {
	h.slot.epoch.Store(h.reg.clock())
	min := h.reg.minEpoch()
	for d := Domain(0); d < numDomains; d++ {
		freed := h.slot.queues[d].drainBelow(min, h.reg.freeFns[d])
		if freed > 0 {
			h.reg.freed[d].Add(uint64(freed))
		}
	}
	if h.reg.pendingMu.TryLock() {
		for d := Domain(0); d < numDomains; d++ {
			freed := h.reg.pending[d].drainBelow(min, h.reg.freeFns[d])
			if freed > 0 {
				h.reg.freed[d].Add(uint64(freed))
			}
		}
		h.reg.pendingMu.Unlock()
	}
}

// Stats reports current queue depths and lifetime retire/free counts,
// for diagnostics and the prometheus Collector.
func (r *Registry) Stats() Stats {
	var st Stats
	slots := *r.slots.Load()
	for _, s := range slots {
		if !s.active.Load() {
			continue
		}
		for d := Domain(0); d < numDomains; d++ {
			st.Pending[d] += len(s.queues[d].items)
		}
	}
	r.pendingMu.Lock()
	for d := Domain(0); d < numDomains; d++ {
		st.Pending[d] += len(r.pending[d].items)
	}
	r.pendingMu.Unlock()
	for d := Domain(0); d < numDomains; d++ {
		st.Retired[d] = r.retired[d].Load()
		st.Freed[d] = r.freed[d].Load()
	}
	return st
}
