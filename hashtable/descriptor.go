// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

// tag is the low-cardinality state of a bucket descriptor. Go cannot
// steal state bits from a GC-tracked pointer (the runtime does not
// tolerate it), so the record pointer lives untagged in a parallel
// atomic.Pointer array (see data.go) and the tag, hash-half, and a
// transaction counter fold into a single atomic.Uint64 "descriptor"
// word instead — still one CAS-able word, just with the payload
// pointer alongside it rather than inside it.
//
// tagMigrated marks a bucket in an array being drained once migration
// is done with it: a second migrateBucket call on the same index is a
// no-op, and a concurrent reader knows the record, if there ever was
// one, already lives in the current array. Every slot a migration
// block touches ends up tagMigrated, including slots that were empty
// or tombstoned — that is what stops a writer still holding the old
// array pointer from claiming a slot migration has already passed
// over. It is distinct from tagTombstone so migration state never
// conflates with ordinary deletion state.
//
// tagUpdating and tagMigrating are transient claims on an occupied
// slot. Because the descriptor word and the record pointer are two
// separate atomics, replacing a slot's record cannot be a single CAS:
// the mutator first CASes the descriptor into the transient tag
// (winning sole ownership of the slot's record pointer), swaps the
// record, and only then publishes the final tag. Readers treat both
// transient tags exactly like tagValid — the record pointer stays
// live and consistent throughout — while writers treat them as
// "busy, retry".
type tag uint8

const (
	tagEmpty tag = iota
	tagValid
	tagTemporary
	tagTombstone
	tagMigrated
	tagUpdating
	tagMigrating
)

const (
	hashHalfMask = uint64(1)<<hashHalfBits - 1
	txnMask      = uint64(1)<<txnBits - 1

	hashHalfShift = txnBits
	tagShift      = txnBits + hashHalfBits
)

// descriptorWord packs (tag, hashHalf, txn) into one uint64.
func descriptorWord(t tag, hh uint32, txn uint32) uint64 {
	return uint64(t)<<tagShift | uint64(hh)&hashHalfMask<<hashHalfShift | uint64(txn)&txnMask
}

// splitDescriptor unpacks a descriptor word.
func splitDescriptor(w uint64) (t tag, hh uint32, txn uint32) {
	t = tag(w >> tagShift)
	hh = uint32(w>>hashHalfShift) & uint32(hashHalfMask)
	txn = uint32(w & txnMask)
	return
}
