// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import (
	"github.com/cachegrand-io/lockfreekv/internal/epoch"
)

// Set inserts or updates key: find-and-swap for an existing key, or
// claim-validate-commit for a new one, retrying under bounded
// contention.
func (t *Table) Set(th *Thread, key []byte, value uint64) (Result, SetOutcome) {
	defer th.gc.Advance()

	if t.upsizeInProgress() {
		t.upsizeMigrateBlock(th)
	}

	h := hashKey(t.seed, key)
	hh := halfHash(h)
	bo := newContentionBackoff()

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		d := t.data()

		if idx, _, found, _ := d.findBucket(h, hh, key, false); found {
			if outcome, ok := t.updateInPlace(th, d, idx, h, key, value); ok {
				return True, outcome
			}
			backoffWait(bo)
			continue
		}

		// Missed in the array this attempt is working against. If a
		// migration is draining an older array, the key may still live
		// there: lend a hand moving that one bucket to the current
		// array and retry, so the update path above finds it and the
		// outcome reflects the previous value. A migrated sentinel in
		// the old window means any copy the key ever had there is
		// already published in the current array — re-probe it before
		// trusting the miss.
		if from := t.upsize.from.Load(); from != nil && from != d {
			if t.data() != d {
				continue // raced an upsize swap mid-attempt
			}
			fidx, _, ffound, fsaw := from.findBucket(h, hh, key, true)
			if ffound {
				t.migrateBucket(th, from, d, fidx)
				continue
			}
			if fsaw {
				if _, _, refound, _ := d.findBucket(h, hh, key, false); refound {
					continue
				}
			}
		}

		idx, word, ok := d.acquireEmptySlot(h, hh, key, value)
		if !ok {
			if t.data() != d {
				continue // the window belonged to a replaced array
			}
			if t.atMaxCapacity(d) {
				t.logger.Errorf("hashtable: Full: buckets_count_max (%d) reached", t.maxBuckets)
				panic("hashtable: Full: buckets_count_max reached")
			}
			return NeedsResizing, SetOutcome{}
		}

		if !d.validateInsert(h, hh, key, idx) || !t.validateAcrossArrays(d, h, hh, key) {
			retired := d.abortInsert(idx, word)
			th.gc.Retire(epoch.Record, retired)
			backoffWait(bo)
			continue
		}

		d.commitInsert(idx, word)
		t.incSize(th)
		return True, SetOutcome{CreatedNew: true, Updated: true, PreviousValue: 0}
	}

	t.tryLaterCount.Add(1)
	return TryLater, SetOutcome{}
}

// updateInPlace swaps a new record into an occupied slot. The
// descriptor word and the record pointer are two separate atomics, so
// the swap cannot be one CAS: instead the updater CASes the descriptor
// into the transient tagUpdating state, which makes it the slot's sole
// mutator (a racing Set, Delete, or migration of the same slot sees a
// non-valid tag and retries) while readers continue to resolve the
// record as usual. The record checked against key under the loaded
// word is guaranteed still current once that same word wins the CAS,
// because every path that swaps a slot's record moves the descriptor
// off its old word first.
func (t *Table) updateInPlace(th *Thread, d *data, idx int, h uint64, key []byte, value uint64) (SetOutcome, bool) {
	old := d.descriptors[idx].Load()
	tg, oldHH, txn := splitDescriptor(old)
	if tg != tagValid {
		return SetOutcome{}, false
	}
	oldRec := d.records[idx].Load()
	if oldRec == nil || oldRec.hash != h || !keyEqual(oldRec.keyBytes(), key) {
		// The slot was deleted and re-claimed by a different key
		// between the probe and now; retry from the top.
		return SetOutcome{}, false
	}
	if !d.descriptors[idx].CompareAndSwap(old, descriptorWord(tagUpdating, oldHH, txn+1)) {
		return SetOutcome{}, false
	}

	d.records[idx].Store(newRecord(h, key, value))
	d.descriptors[idx].Store(descriptorWord(tagValid, oldHH, txn+1))
	th.gc.Retire(epoch.Record, oldRec)
	return SetOutcome{CreatedNew: false, Updated: true, PreviousValue: oldRec.value}, true
}

// validateAcrossArrays extends the validate step past the single
// array the claim lives in, closing the races resizing opens up. A
// claimed-but-unvalidated insert in d and a same-key entry elsewhere
// can otherwise commit independently: this insert's claim is in the
// old array while a racing Set targets the new one (or vice versa),
// or a migration publishes the key into d beyond the range
// validateInsert covered. Both racing inserters re-scan the opposite array
// after claiming; whichever claim the other side's re-scan observes
// loses, and the scans cannot both miss (each probe happens after its
// own claim, so one of the two claims is visible to the other's
// probe).
func (t *Table) validateAcrossArrays(d *data, h uint64, hh uint32, key []byte) bool {
	cur := t.data()
	if cur != d {
		// This claim went into a replaced array; any entry in the
		// current one, committed or claimed, wins.
		if _, _, found, _ := cur.findBucket(h, hh, key, true); found {
			return false
		}
	} else {
		// Re-scan the full window for a committed copy: migration may
		// have published one past the claimed slot, beyond the range
		// validateInsert checks. allowTemporary=false keeps this
		// insert's own claim out of the scan.
		if _, _, found, _ := cur.findBucket(h, hh, key, false); found {
			return false
		}
	}
	if from := t.upsize.from.Load(); from != nil && from != d {
		_, _, found, sawMigrated := from.findBucket(h, hh, key, true)
		if found {
			return false
		}
		if sawMigrated {
			// Anything migrated out of from's window is already
			// committed in the current array.
			if _, _, refound, _ := t.data().findBucket(h, hh, key, false); refound {
				return false
			}
		}
	}
	return true
}

func (t *Table) atMaxCapacity(d *data) bool {
	return t.maxBuckets != 0 && d.bucketsCount >= t.maxBuckets
}

func (t *Table) incSize(th *Thread) {
	th.shard.Add(1)
}

func (t *Table) decSize(th *Thread) {
	th.shard.Add(-1)
}
