// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import "sync/atomic"

// data is one generation of the bucket array. A table may have two
// live generations at once while an upsize is in progress (the
// current one, and the `from` array being drained).
type data struct {
	bucketsCount     uint64
	bucketsCountMask uint64
	bucketsCountReal uint64

	descriptors []atomic.Uint64
	records     []atomic.Pointer[record]
}

// roundUpPow2 rounds n up to the next power of two, minimum 16.
func roundUpPow2(n uint64) uint64 {
	if n < 16 {
		return 16
	}
	p := uint64(16)
	for p < n {
		p <<= 1
	}
	return p
}

func newData(bucketsCount uint64) *data {
	bucketsCount = roundUpPow2(bucketsCount)
	real := bucketsCount + linearSearchRange
	return &data{
		bucketsCount:     bucketsCount,
		bucketsCountMask: bucketsCount - 1,
		bucketsCountReal: real,
		descriptors:      make([]atomic.Uint64, real),
		records:          make([]atomic.Pointer[record], real),
	}
}

// findBucket scans the probe window starting at bucketIndex(h) for a
// descriptor matching (h, key). allowTemporary controls whether an
// in-flight (unvalidated) insert counts as a candidate match, needed
// by validateInsert but not by ordinary get/set/delete lookups.
//
// The scan always covers the full window: an empty slot does not
// terminate it, because an aborted insert releases its claimed slot
// back to empty while entries committed later in the same window stay
// put. sawMigrated reports whether any slot in the window carried the
// migrated sentinel; on a miss the caller uses it to decide whether
// the key may have just moved to the current array (see op_get.go).
func (d *data) findBucket(h uint64, hh uint32, key []byte, allowTemporary bool) (idx int, rec *record, found bool, sawMigrated bool) {
	start := bucketIndex(h, d.bucketsCountMask)
	for i := uint64(0); i < linearSearchRange; i++ {
		pos := start + i
		word := d.descriptors[pos].Load()
		t, wordHH, _ := splitDescriptor(word)
		switch t {
		case tagEmpty, tagTombstone:
			continue
		case tagMigrated:
			sawMigrated = true
			continue
		case tagTemporary:
			if !allowTemporary {
				continue
			}
		case tagValid, tagUpdating, tagMigrating:
			// readable states, fall through to comparison below
		default:
			continue
		}
		if wordHH != hh {
			continue
		}
		r := d.records[pos].Load()
		if r == nil {
			// Descriptor claimed but pointer publish not yet visible to
			// this reader (the records CAS lands before the descriptor
			// CAS, see acquireEmptySlot); cannot be our key, keep
			// scanning.
			continue
		}
		if r.hash == h && keyEqual(r.keyBytes(), key) {
			return int(pos), r, true, sawMigrated
		}
	}
	return 0, nil, false, sawMigrated
}

// findBucketUpTo scans only [start, until) of the probe window, the
// range validateInsert re-checks after claiming a slot.
func (d *data) findBucketUpTo(h uint64, hh uint32, key []byte, until int) (idx int, found bool) {
	start := bucketIndex(h, d.bucketsCountMask)
	for i := start; int(i) < until; i++ {
		word := d.descriptors[i].Load()
		t, wordHH, _ := splitDescriptor(word)
		if t != tagValid && t != tagTemporary && t != tagUpdating && t != tagMigrating {
			continue
		}
		if wordHH != hh {
			continue
		}
		r := d.records[i].Load()
		if r == nil {
			continue
		}
		if r.hash == h && keyEqual(r.keyBytes(), key) {
			return int(i), true
		}
	}
	return 0, false
}
