// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

// embeddedKeyCap is the largest key length stored inline in a record
// rather than in a separately owned byte slice.
const embeddedKeyCap = 23

// record is a key-value record: immutable from the moment it is
// published into a bucket until it is retired. It is never mutated in
// place; an update allocates a brand new record and swaps the
// bucket's pointer.
type record struct {
	hash          uint64
	value         uint64
	keyLen        uint8
	keyIsEmbedded bool
	keyEmbedded   [embeddedKeyCap]byte
	keyExternal   []byte
}

// newRecord allocates and populates a record for key/value under the
// full hash h. The caller still owns key's backing array; newRecord
// copies it so the record remains valid independent of the caller's
// buffer.
func newRecord(h uint64, key []byte, value uint64) *record {
	r := &record{hash: h, value: value}
	if len(key) <= embeddedKeyCap {
		r.keyIsEmbedded = true
		r.keyLen = uint8(len(key))
		copy(r.keyEmbedded[:], key)
	} else {
		r.keyExternal = append([]byte(nil), key...)
	}
	return r
}

// keyBytes returns the record's key, embedded or external.
func (r *record) keyBytes() []byte {
	if r.keyIsEmbedded {
		return r.keyEmbedded[:r.keyLen]
	}
	return r.keyExternal
}

func keyEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
