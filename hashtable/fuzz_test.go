// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import (
	"hash/maphash"
	"runtime"
	"sync"
	"testing"
	"time"

	"golang.org/x/exp/rand"

	"github.com/cachegrand-io/lockfreekv/hashmap"
)

// keyStatus is the fuzz oracle's entry: the value believed to be live
// for a key, or its absence. hashmap.Hashmap is a sequential Robin
// Hood map serving as the single-threaded authority here: it is never
// exercised concurrently itself, only guarded per-shard by
// oracleShard.mu.
type keyStatus struct {
	value   uint64
	present bool
}

// oracleShard serializes every operation (table op + oracle update)
// against a single key under one lock, so concurrent Get/Set/Delete
// racing on the *same* key are still checkable against a sequential
// reference; distinct keys in distinct shards run fully in parallel.
type oracleShard struct {
	mu sync.Mutex
	m  *hashmap.Hashmap[string, keyStatus]
}

const oracleShardCount = 64

func newOracle() []*oracleShard {
	seed := maphash.MakeSeed()
	shards := make([]*oracleShard, oracleShardCount)
	for i := range shards {
		shards[i] = &oracleShard{
			m: hashmap.New[string, keyStatus](0,
				func(k string) uint64 {
					var h maphash.Hash
					h.SetSeed(seed)
					_, _ = h.WriteString(k)
					return h.Sum64()
				},
				func(a, b string) bool { return a == b },
			),
		}
	}
	return shards
}

// shardSeed is shared by every shardFor call so a key always maps to
// the same shard.
var shardSeed = maphash.MakeSeed()

func shardFor(shards []*oracleShard, key string) *oracleShard {
	var h maphash.Hash
	h.SetSeed(shardSeed)
	_, _ = h.WriteString(key)
	return shards[h.Sum64()%uint64(len(shards))]
}

// TestFuzzConcurrentGetSetDeleteMatchesOracle stresses many
// goroutines hammering Get/Set/Delete over a shared key space while
// resizing is disabled (table pre-sized well past the key count),
// checked continuously against a sequential oracle. The key count and
// duration are sized so a unit test suite can run it on every CI
// invocation; TestFuzzConcurrentWithResizing below exercises the same
// loop with resizing forced on instead of pre-sized away.
func TestFuzzConcurrentGetSetDeleteMatchesOracle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fuzz test in -short mode")
	}
	runFuzz(t, fuzzParams{
		keyCount:      4096,
		initialBucket: 1 << 14, // pre-sized well past keyCount: resizing should not trigger
		maxBuckets:    1 << 14,
		duration:      300 * time.Millisecond,
		workers:       2 * runtime.GOMAXPROCS(0),
	})
}

func TestFuzzConcurrentWithResizing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fuzz test in -short mode")
	}
	runFuzz(t, fuzzParams{
		keyCount:      4096,
		initialBucket: 16,
		maxBuckets:    1 << 16,
		duration:      300 * time.Millisecond,
		workers:       2 * runtime.GOMAXPROCS(0),
		allowUpsize:   true,
	})
}

type fuzzParams struct {
	keyCount      int
	initialBucket uint64
	maxBuckets    uint64
	duration      time.Duration
	workers       int
	allowUpsize   bool
}

func runFuzz(t *testing.T, p fuzzParams) {
	t.Helper()

	tbl := newTestTable(t, Config{InitialBuckets: p.initialBucket, MaxBuckets: p.maxBuckets})

	src := rand.NewSource(1)
	rng := rand.New(src)
	keys := make([]string, p.keyCount)
	for i := range keys {
		n := 8 + rng.Intn(5) // length 8..12
		b := make([]byte, n)
		for j := range b {
			b[j] = byte('a' + rng.Intn(26))
		}
		keys[i] = string(b)
	}

	oracle := newOracle()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			th := tbl.AttachThread()
			defer th.Detach()

			r := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
				}

				key := keys[r.Intn(len(keys))]
				shard := shardFor(oracle, key)
				op := r.Intn(3)

				shard.mu.Lock()
				switch op {
				case 0: // Set
					v := r.Uint64()
					switch res, _ := tbl.Set(th, []byte(key), v); res {
					case True:
						shard.m.Set(key, keyStatus{value: v, present: true})
					case NeedsResizing:
						if p.allowUpsize && tbl.UpsizePrepare() {
							tbl.UpsizeMigrateBlock(th)
						}
					case TryLater:
						// transient contention, no oracle update
					}
				case 1: // Delete
					res := tbl.Delete(th, []byte(key))
					if res == True {
						shard.m.Set(key, keyStatus{present: false})
					}
				default: // Get
					want, haveOracle := shard.m.Get(key)
					v, ok := tbl.Get(th, []byte(key))
					if haveOracle && want.present {
						if !ok {
							t.Errorf("Get(%q) miss, oracle has value %d", key, want.value)
						} else if v != want.value {
							t.Errorf("Get(%q)=%d, oracle has %d", key, v, want.value)
						}
					}
				}
				shard.mu.Unlock()

				if p.allowUpsize && tbl.upsizeInProgress() {
					tbl.UpsizeMigrateBlock(th)
				}
			}
		}(uint64(w) + 2)
	}

	time.Sleep(p.duration)
	close(stop)
	wg.Wait()

	// Drain any upsize left mid-flight so a final full scan is valid.
	if p.allowUpsize {
		assistTh := tbl.AttachThread()
		for tbl.upsizeInProgress() {
			tbl.UpsizeMigrateBlock(assistTh)
		}
		assistTh.Detach()
	}

	verifyTh := tbl.AttachThread()
	defer verifyTh.Detach()
	mismatches := 0
	for _, k := range keys {
		shard := shardFor(oracle, k)
		want, ok := shard.m.Get(k)
		if !ok || !want.present {
			continue
		}
		if v, found := tbl.Get(verifyTh, []byte(k)); !found || v != want.value {
			mismatches++
		}
	}
	if mismatches > 0 {
		t.Fatalf("%d/%d keys mismatched the oracle after the run", mismatches, len(keys))
	}
}
