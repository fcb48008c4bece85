// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import "hash/maphash"

// linearSearchRange is the fixed length of the probe window scanned by
// linear probing, chosen to stay within a couple of L1 cache line
// neighborhoods of the starting bucket.
const linearSearchRange = 16

// tagBits/hashHalfBits/txnBits partition a single 64-bit
// descriptor word. See descriptor.go for the full packing scheme.
const (
	tagBits      = 3
	hashHalfBits = 31
	txnBits      = 64 - tagBits - hashHalfBits // 30
)

// hashKey folds an arbitrary byte-string key down to a full 64-bit
// hash using a per-table seeded hash/maphash. Keys are opaque byte
// spans, so no richer key typing is needed here.
func hashKey(seed maphash.Seed, key []byte) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.Write(key)
	return h.Sum64()
}

// halfHash folds the full 64-bit hash down to the hashHalfBits stored
// inline in the bucket descriptor, used as a cheap prefilter before
// dereferencing the record to compare the full hash and key bytes.
//
// There is no need to force the result nonzero to disambiguate
// "empty": the descriptor's tag field already carries that
// distinction explicitly (see descriptor.go), so a folded hash of
// exactly zero is a perfectly ordinary value here.
func halfHash(h uint64) uint32 {
	return uint32(h>>32) & ((1 << hashHalfBits) - 1)
}

// bucketIndex derives the starting slot of the probe window for a
// given full hash and bucket-count mask.
func bucketIndex(h uint64, mask uint64) uint64 {
	return (h >> 32) & mask
}
