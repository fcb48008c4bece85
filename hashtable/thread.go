// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import (
	"sync/atomic"

	"github.com/cachegrand-io/lockfreekv/internal/epoch"
)

// sizeShards is the number of independent counters Size() sums. One
// shard per attached thread would grow unboundedly with churn, so
// attachments are instead assigned round-robin onto a fixed, small set
// of shards,
// trading a little counting contention for O(1) space regardless of
// how many threads ever attach.
const sizeShards = 64

// Thread is a registered caller's handle. A goroutine must
// AttachThread before calling Get/Set/Delete and Detach when it is
// done; this is also where the affinity hookpoint and the epoch GC
// registration live.
type Thread struct {
	table *Table
	gc    *epoch.ThreadHandle
	shard *atomic.Int64
	opts  affinityState
}

// AttachThread registers the calling goroutine with t, returning a
// handle to use for subsequent operations.
func (t *Table) AttachThread() *Thread {
	idx := t.nextShard.Add(1) % sizeShards
	return &Thread{
		table: t,
		gc:    t.gc.Attach(),
		shard: &t.sizeCounters[idx],
	}
}

// Detach unregisters th. th must not be used again afterward.
func (th *Thread) Detach() {
	th.unpin()
	th.gc.Detach()
}

// Pin asks the OS to restrict the calling goroutine's underlying OS
// thread to cpu. It locks the goroutine to its OS thread for the
// lifetime of th (undone by Detach). Pinning is a hook for an
// external worker harness; the table never pins on its own.
func (th *Thread) Pin(cpu int) error {
	return th.pin(cpu)
}
