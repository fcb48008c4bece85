// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import "github.com/cachegrand-io/lockfreekv/internal/epoch"

// Delete removes key: find the bucket, CAS it to a tombstone, retire
// the record. Tombstones (not a bare empty
// slot) preserve probe continuity so a later Get past a deleted slot
// still reaches entries further down the window.
func (t *Table) Delete(th *Thread, key []byte) Result {
	defer th.gc.Advance()

	if t.upsizeInProgress() {
		t.upsizeMigrateBlock(th)
	}

	h := hashKey(t.seed, key)
	hh := halfHash(h)
	bo := newContentionBackoff()

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		d := t.data()
		from := t.upsize.from.Load()
		idx, _, found, _ := d.findBucket(h, hh, key, false)
		if !found {
			// The key may still live in the array being drained: move
			// its bucket over and delete it from the current array on
			// the next attempt. A migrated sentinel there means any
			// copy is already in the current array; re-probe once
			// before trusting the miss.
			if from != nil && from != d {
				fidx, _, ffound, fsaw := from.findBucket(h, hh, key, false)
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
			if t.data() != d || t.upsize.from.Load() != from {
				continue // the upsize state moved under the probe; retry
			}
			return False
		}

		old := d.descriptors[idx].Load()
		tg, _, txn := splitDescriptor(old)
		if tg != tagValid {
			backoffWait(bo)
			continue
		}
		rec := d.records[idx].Load()
		if rec == nil || rec.hash != h || !keyEqual(rec.keyBytes(), key) {
			// Slot was deleted and re-claimed by a different key since
			// the probe; re-find from the top.
			continue
		}
		newWord := descriptorWord(tagTombstone, 0, txn+1)
		if !d.descriptors[idx].CompareAndSwap(old, newWord) {
			backoffWait(bo)
			continue
		}
		// Winning the descriptor CAS above makes this thread the sole
		// owner of the slot's record pointer: an updater or another
		// delete needed that same CAS, and an insert re-claiming the
		// tombstone cannot proceed until its records CAS sees nil —
		// which only the store below provides.
		if !d.records[idx].CompareAndSwap(rec, nil) {
			panic("hashtable: lost ownership of a tombstoned slot's record")
		}
		th.gc.Retire(epoch.Record, rec)
		t.decSize(th)
		return True
	}

	t.tryLaterCount.Add(1)
	return TryLater
}
