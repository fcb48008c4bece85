// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import (
	"runtime"
	"sync/atomic"

	"github.com/cachegrand-io/lockfreekv/internal/epoch"
)

// upsizeStatusValue tracks the resize state machine:
// notUpsizing -> prepareForUpsize -> upsizingNow -> notUpsizing.
type upsizeStatusValue int32

const (
	notUpsizing upsizeStatusValue = iota
	prepareForUpsize
	upsizingNow
)

// upsizeState is the shared bookkeeping for one in-flight resize.
type upsizeState struct {
	status          atomic.Int32
	from            atomic.Pointer[data]
	remainingBlocks atomic.Int64
	totalBlocks     atomic.Int64
	nextBlock       atomic.Int64
	blockSize       atomic.Int64
	threadsCount    atomic.Int64
}

func (t *Table) upsizeInProgress() bool {
	return upsizeStatusValue(t.upsize.status.Load()) == upsizingNow
}

// UpsizePrepare CASes the state machine out of notUpsizing, allocates
// a doubled data array, and installs it as current. Returns false if
// another thread is already upsizing, or the table is already at
// MaxBuckets.
func (t *Table) UpsizePrepare() bool {
	if !t.upsize.status.CompareAndSwap(int32(notUpsizing), int32(prepareForUpsize)) {
		return false
	}

	old := t.data()
	newCount := old.bucketsCount * 2
	if t.maxBuckets != 0 && newCount > t.maxBuckets {
		newCount = t.maxBuckets
	}
	if newCount <= old.bucketsCount {
		t.upsize.status.Store(int32(notUpsizing))
		return false
	}

	blockSize := int64(t.upsizeBlockSize)
	totalBlocks := (int64(old.bucketsCountReal) + blockSize - 1) / blockSize

	newD := newData(newCount)
	t.upsize.from.Store(old)
	t.upsize.blockSize.Store(blockSize)
	t.upsize.totalBlocks.Store(totalBlocks)
	t.upsize.remainingBlocks.Store(totalBlocks)
	t.upsize.nextBlock.Store(0)
	t.upsize.threadsCount.Store(0)

	t.cur.Store(newD)
	t.upsize.status.Store(int32(upsizingNow))
	t.resizeCount.Add(1)
	t.logger.Infof("hashtable: upsize started old_buckets=%d new_buckets=%d total_blocks=%d",
		old.bucketsCount, newD.bucketsCount, totalBlocks)
	return true
}

// UpsizeMigrateBlock claims one migration block and drains it into
// the current array. Any attached thread may
// call this to lend one block of migration work; there is no
// dedicated migrator thread. It returns the number of buckets the
// claimed block covered, so a drain loop keeps going until every
// block is claimed even when a block held no occupied slots; 0 means
// no upsize is in progress or all blocks are already claimed.
func (t *Table) UpsizeMigrateBlock(th *Thread) int {
	return t.upsizeMigrateBlock(th)
}

// upsizeMigrateBlock is also the opportunistic form Set/Delete call
// before proceeding with their own operation: any operation thread
// that notices an upsize in progress lends it one block of work.
func (t *Table) upsizeMigrateBlock(th *Thread) int {
	if upsizeStatusValue(t.upsize.status.Load()) != upsizingNow {
		return 0
	}
	total := t.upsize.totalBlocks.Load()
	claimed := t.upsize.nextBlock.Add(1) - 1
	if claimed >= total {
		return 0
	}

	t.upsize.threadsCount.Add(1)
	defer t.upsize.threadsCount.Add(-1)

	from := t.upsize.from.Load()
	to := t.cur.Load()
	blockSize := t.upsize.blockSize.Load()
	start := claimed * blockSize
	end := start + blockSize
	if end > int64(from.bucketsCountReal) {
		end = int64(from.bucketsCountReal)
	}

	for i := start; i < end; i++ {
		t.migrateBucket(th, from, to, int(i))
	}

	if remaining := t.upsize.remainingBlocks.Add(-1); remaining == 0 {
		th.gc.Retire(epoch.Data, from)
		t.upsize.from.Store(nil)
		t.upsize.status.Store(int32(notUpsizing))
		t.logger.Infof("hashtable: upsize complete, %d buckets in new array", to.bucketsCount)
	}
	return int(end - start)
}

// migrateBucket carries one source bucket over to the new array. It
// claims the source bucket exclusively before copying: the descriptor
// is CASed into the transient tagMigrating state (readers still
// resolve the record through it; writers back off), the record is
// published into `to`, and only then is the bucket marked migrated.
// That ordering is what op_get relies on — by the time a probe of
// `from` observes the migrated sentinel, the record is already
// visible in the current array.
//
// Empty and tombstoned buckets are marked migrated as well, so a
// writer still holding the old array pointer can never claim a slot
// in a block migration has already drained. Returns whether a record
// was carried over; a second call on the same index is always a
// no-op.
func (t *Table) migrateBucket(th *Thread, from, to *data, srcIndex int) bool {
	spins := 0
	for {
		word := from.descriptors[srcIndex].Load()
		tg, hh, txn := splitDescriptor(word)
		switch tg {
		case tagMigrated:
			return false
		case tagEmpty, tagTombstone:
			if from.descriptors[srcIndex].CompareAndSwap(word, descriptorWord(tagMigrated, 0, txn+1)) {
				return false
			}
			continue // lost to a racing claim of this slot; re-evaluate
		case tagTemporary, tagUpdating, tagMigrating:
			// A claim/validate/commit-or-abort cycle, an in-place
			// update, or another migrator's copy never blocks (pure
			// CPU between its steps), so the slot leaves the transient
			// state in bounded time.
			spins++
			if spins > 1<<16 {
				panic("hashtable: bucket stuck in a transient state during migration")
			}
			runtime.Gosched()
			continue
		case tagValid:
			// fall through
		default:
			panic("hashtable: impossible descriptor tag during migration")
		}

		rec := from.records[srcIndex].Load()
		if rec == nil {
			panic("hashtable: valid descriptor with nil record pointer during migration")
		}
		if !from.descriptors[srcIndex].CompareAndSwap(word, descriptorWord(tagMigrating, hh, txn+1)) {
			continue // a delete or update landed first; re-evaluate
		}

		t.migrateRecordInto(th, to, rec, hh)
		from.descriptors[srcIndex].Store(descriptorWord(tagMigrated, hh, txn+1))
		return true
	}
}

// migrateRecordInto re-publishes rec (unchanged, no new allocation)
// into to's probe window for its hash. If rec's key is already
// committed in `to` (a racing writer got there first), the old copy
// is dropped and retired, and the size count gives back the insertion
// the dropped copy once contributed.
//
// Like acquireEmptySlot, claiming a slot requires winning both the
// records CAS (nil -> rec) and the descriptor CAS; the records CAS
// goes first so a concurrent Set claiming the same empty slot in `to`
// for an unrelated key can never have its pointer overwritten by this
// migration, and vice versa.
func (t *Table) migrateRecordInto(th *Thread, to *data, rec *record, hh uint32) {
	if _, _, found, _ := to.findBucket(rec.hash, hh, rec.keyBytes(), false); found {
		th.gc.Retire(epoch.Record, rec)
		t.decSize(th)
		return
	}

	start := bucketIndex(rec.hash, to.bucketsCountMask)
	for i := uint64(0); i < linearSearchRange; i++ {
		pos := start + i
		for {
			old := to.descriptors[pos].Load()
			tg, _, txn := splitDescriptor(old)
			if tg != tagEmpty && tg != tagTombstone {
				break
			}
			if !to.records[pos].CompareAndSwap(nil, rec) {
				continue
			}
			newWord := descriptorWord(tagValid, hh, txn+1)
			if to.descriptors[pos].CompareAndSwap(old, newWord) {
				return
			}
			to.records[pos].Store(nil)
		}
	}
	panic("hashtable: `to` probe window exhausted while migrating (undersized target array)")
}
