// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import (
	"fmt"
	"testing"
)

func TestUpsizeMigratesAllEntries(t *testing.T) {
	tbl := newTestTable(t, Config{InitialBuckets: 16, MaxBuckets: 4096})
	th := tbl.AttachThread()
	defer th.Detach()

	const n = 272 // comfortably past a 16-bucket table's probe capacity
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		for {
			res, _ := tbl.Set(th, k, uint64(i))
			if res == True {
				break
			}
			if res != NeedsResizing {
				t.Fatalf("Set(%s)=%v, want True or NeedsResizing", k, res)
			}
			// A doubled table can, rarely, still have this key's window
			// full; keep growing until the insert lands.
			if !tbl.UpsizePrepare() {
				t.Fatalf("UpsizePrepare() = false while NeedsResizing was reported")
			}
			for tbl.UpsizeMigrateBlock(th) > 0 {
			}
		}
	}

	if upsizeStatusValue(tbl.upsize.status.Load()) != notUpsizing {
		t.Fatalf("upsize status=%v after draining, want notUpsizing", tbl.upsize.status.Load())
	}

	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		if v, ok := tbl.Get(th, k); !ok || v != uint64(i) {
			t.Fatalf("Get(%s)=%d,%v, want %d,true", k, v, ok, i)
		}
	}

	if got := tbl.Size(); got != n {
		t.Fatalf("Size()=%d, want %d", got, n)
	}
}

func TestUpsizePrepareRejectsConcurrentCall(t *testing.T) {
	tbl := newTestTable(t, Config{InitialBuckets: 16, MaxBuckets: 4096})
	if !tbl.UpsizePrepare() {
		t.Fatalf("first UpsizePrepare() = false")
	}
	if tbl.UpsizePrepare() {
		t.Fatalf("second UpsizePrepare() = true while an upsize is already in progress")
	}
}

func TestUpsizePrepareRefusesPastMaxBuckets(t *testing.T) {
	tbl := newTestTable(t, Config{InitialBuckets: 16, MaxBuckets: 16})
	if tbl.UpsizePrepare() {
		t.Fatalf("UpsizePrepare() = true, want false (already at MaxBuckets)")
	}
}

func TestGetDuringUpsizeStillFindsUnmigratedKeys(t *testing.T) {
	tbl := newTestTable(t, Config{InitialBuckets: 16, MaxBuckets: 4096})
	th := tbl.AttachThread()
	defer th.Detach()

	tbl.Set(th, []byte("a"), 1)
	tbl.Set(th, []byte("b"), 2)

	if !tbl.UpsizePrepare() {
		t.Fatalf("UpsizePrepare() = false")
	}

	// Before any block is migrated, both keys still live only in `from`.
	if v, ok := tbl.Get(th, []byte("a")); !ok || v != 1 {
		t.Fatalf("Get(a) during upsize, before migration = %d,%v, want 1,true", v, ok)
	}
	if v, ok := tbl.Get(th, []byte("b")); !ok || v != 2 {
		t.Fatalf("Get(b) during upsize, before migration = %d,%v, want 2,true", v, ok)
	}

	for tbl.UpsizeMigrateBlock(th) > 0 {
	}

	if v, ok := tbl.Get(th, []byte("a")); !ok || v != 1 {
		t.Fatalf("Get(a) after migration = %d,%v, want 1,true", v, ok)
	}
}
