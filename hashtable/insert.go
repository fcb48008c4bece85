// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

// acquireEmptySlot linearly scans the probe window for an empty or
// tombstoned slot and CAS-claims it with a TEMPORARY descriptor
// pointing at a freshly published record. It
// returns the claimed index and the descriptor word now in place
// (needed by the caller to commit or abort), or ok=false if the
// window was exhausted.
//
// The record pointer and the descriptor word are two separate atomics
// (see data.go's layout note), so claiming a slot must win both: this
// thread first CASes records[pos] from nil to its own record, and only
// then attempts the descriptor CAS. Winning the records CAS first is
// what makes the claim single-threaded before either word is
// committed — a second thread racing for the same slot fails the
// records CAS immediately and moves on to re-read the descriptor,
// never overwriting a pointer another thread already planted. If the
// descriptor CAS then loses (someone else's claim landed first, on a
// different descriptor generation), this thread releases its record
// claim back to nil before retrying the slot.
func (d *data) acquireEmptySlot(h uint64, hh uint32, key []byte, value uint64) (idx int, word uint64, ok bool) {
	start := bucketIndex(h, d.bucketsCountMask)
	rec := newRecord(h, key, value)
	for i := uint64(0); i < linearSearchRange; i++ {
		pos := start + i
		for { // bounded re-evaluation of this one slot on CAS failure
			old := d.descriptors[pos].Load()
			t, _, txn := splitDescriptor(old)
			if t != tagEmpty && t != tagTombstone {
				// Occupied, or migrated. A migrated slot is never
				// claimable: it belongs to a drained `from` array, and
				// an insert landing there would be invisible to probes
				// of the current array and lost when `from` is retired.
				break
			}
			if !d.records[pos].CompareAndSwap(nil, rec) {
				// another thread is mid-claim on this exact slot; it
				// will either win or release, so just re-read and retry
				continue
			}
			newWord := descriptorWord(tagTemporary, hh, txn+1)
			if d.descriptors[pos].CompareAndSwap(old, newWord) {
				return int(pos), newWord, true
			}
			// won the record claim but lost the descriptor race; give
			// the record claim back before re-reading this slot
			d.records[pos].Store(nil)
		}
	}
	return 0, 0, false
}

// validateInsert re-scans the probe window up to (excluding) the
// claimed slot, with temporaries visible, looking for a same-key
// entry that beat this insert to the punch. Claim-then-validate is
// what serializes concurrent inserts of one key: every claimant
// re-scans the slots before its own, so at most one claim survives.
func (d *data) validateInsert(h uint64, hh uint32, key []byte, claimed int) bool {
	if idx, found := d.findBucketUpTo(h, hh, key, claimed); found && idx != claimed {
		return false
	}
	return true
}

// commitInsert clears the TEMPORARY tag, publishing the claimed slot
// as a valid, globally visible entry. oldWord must be the word
// returned by acquireEmptySlot (or re-read immediately before the
// call); a mismatch means something else touched this slot, which
// cannot happen for a still-TEMPORARY slot this thread alone owns, so
// failure here is an invariant violation.
func (d *data) commitInsert(idx int, oldWord uint64) {
	_, hh, txn := splitDescriptor(oldWord)
	newWord := descriptorWord(tagValid, hh, txn)
	if !d.descriptors[idx].CompareAndSwap(oldWord, newWord) {
		panic("hashtable: lost ownership of a TEMPORARY slot mid-commit")
	}
}

// abortInsert releases a claimed slot back to empty after a failed
// validate, returning the record that must be retired through epoch
// GC by the caller (who holds the thread handle). A plain Store (not
// a CAS) back to nil is safe here: this thread alone won the records
// CAS that claimed the slot in acquireEmptySlot, and no other path
// touches records[idx] while the descriptor still reads TEMPORARY.
func (d *data) abortInsert(idx int, oldWord uint64) *record {
	_, _, txn := splitDescriptor(oldWord)
	newWord := descriptorWord(tagEmpty, 0, txn+1)
	if !d.descriptors[idx].CompareAndSwap(oldWord, newWord) {
		panic("hashtable: lost ownership of a TEMPORARY slot mid-abort")
	}
	rec := d.records[idx].Load()
	d.records[idx].Store(nil)
	return rec
}
