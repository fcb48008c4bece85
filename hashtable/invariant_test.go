package hashtable

import (
	"fmt"
	"testing"

	"github.com/cachegrand-io/lockfreekv/test"
)

// TestSetPanicsWhenFullAtMaxCapacity: once MaxBuckets is reached and
// a probe window is exhausted, Set has nowhere left to retry and must
// surface this as a fatal condition rather than loop or silently drop
// the write.
func TestSetPanicsWhenFullAtMaxCapacity(t *testing.T) {
	tbl := newTestTable(t, Config{InitialBuckets: 16, MaxBuckets: 16})
	th := tbl.AttachThread()
	defer th.Detach()

	d := tbl.data()
	target := bucketIndex(hashKey(tbl.seed, []byte("seed")), d.bucketsCountMask)

	var keys [][]byte
	for i := 0; len(keys) <= int(linearSearchRange); i++ {
		k := []byte(fmt.Sprintf("full-%d", i))
		if bucketIndex(hashKey(tbl.seed, k), d.bucketsCountMask) == target {
			keys = append(keys, k)
		}
		if i > 1<<20 {
			t.Fatalf("could not find %d keys colliding on bucket %d", linearSearchRange+1, target)
		}
	}

	for _, k := range keys[:linearSearchRange] {
		if res, _ := tbl.Set(th, k, 1); res != True {
			t.Fatalf("Set(%s)=%v, want True while filling the probe window", k, res)
		}
	}

	last := keys[linearSearchRange]
	test.ShouldPanicWithStr(t, "hashtable: Full: buckets_count_max reached", func() {
		tbl.Set(th, last, 1)
	})
}
