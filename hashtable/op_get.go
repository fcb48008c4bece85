// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

// Get looks key up. On a hit it returns the record's value and true;
// on a miss, false. While an upsize is in progress, a miss against
// the current array also probes the `from` array being drained
// before concluding false.
//
// A migrated sentinel in `from`'s probe window needs one more look at
// the current array: migration publishes a record there before
// marking its old bucket migrated, so a key this probe just missed in
// both arrays may have been in flight between them — the re-probe
// happens after the sentinel was observed and therefore after the
// publish. The outer loop repeats only when the upsize state itself
// moved under the probe (the current array was swapped, or a
// migration started or finished), so a stable miss is definitive.
func (t *Table) Get(th *Thread, key []byte) (value uint64, ok bool) {
	defer th.gc.Advance()

	h := hashKey(t.seed, key)
	hh := halfHash(h)

	for {
		d := t.data()
		from := t.upsize.from.Load()

		if _, rec, found, _ := d.findBucket(h, hh, key, false); found {
			return rec.value, true
		}

		if from != nil && from != d {
			_, rec, found, sawMigrated := from.findBucket(h, hh, key, false)
			if found {
				return rec.value, true
			}
			if sawMigrated {
				if _, rec, found, _ := t.data().findBucket(h, hh, key, false); found {
					return rec.value, true
				}
			}
		}

		if t.data() == d && t.upsize.from.Load() == from {
			return 0, false
		}
	}
}
