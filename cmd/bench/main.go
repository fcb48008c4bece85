// The bench command drives a hashtable.Table with concurrent
// load-generating goroutines, bounded by a weighted semaphore, and
// exposes its prometheus metrics and debug endpoints over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/aristanetworks/glog"

	ourglog "github.com/cachegrand-io/lockfreekv/glog"
	"github.com/cachegrand-io/lockfreekv/hashtable"
	"github.com/cachegrand-io/lockfreekv/monitor"
	"github.com/cachegrand-io/lockfreekv/sync/semaphore"
)

func main() {
	configFlag := flag.String("config", "", "Path to the YAML config file (optional; defaults apply)")
	flag.Parse()

	var raw []byte
	if *configFlag != "" {
		var err error
		raw, err = os.ReadFile(*configFlag)
		if err != nil {
			glog.Fatalf("Can't read config file %q: %v", *configFlag, err)
		}
	}
	cfg, err := parseConfig(raw)
	if err != nil {
		glog.Fatalf("Can't parse config: %v", err)
	}

	logger := &ourglog.Glog{InfoLevel: glog.Level(cfg.GlogVerbosity)}

	tbl, err := hashtable.New(hashtable.Config{
		InitialBuckets:  cfg.InitialBuckets,
		MaxBuckets:      cfg.MaxBuckets,
		UpsizeBlockSize: cfg.UpsizeBlockSize,
		Logger:          logger,
	})
	if err != nil {
		glog.Fatalf("Can't create table: %v", err)
	}
	defer tbl.Close()

	mon := monitor.NewMonitorServer(cfg.ListenAddress, hashtable.NewCollector(tbl))
	go mon.Run()
	glog.Infof("monitor server listening on %s", cfg.ListenAddress)

	sem := semaphore.NewWeighted(cfg.MaxConcurrentOps)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DurationSeconds)*time.Second)
	defer cancel()

	keys := make([][]byte, 8192)
	seedRng := rand.New(rand.NewSource(1))
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("bench-key-%d", seedRng.Intn(1<<30)))
	}

	var wg sync.WaitGroup
	ncpu := runtime.NumCPU()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			th := tbl.AttachThread()
			defer th.Detach()
			if err := th.Pin(id % ncpu); err != nil {
				glog.Infof("worker %d: CPU pinning unavailable: %v", id, err)
			}

			r := rand.New(rand.NewSource(int64(id) + 2))
			for {
				if ctx.Err() != nil {
					return // context expired
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					return // context expired
				}
				k := keys[r.Intn(len(keys))]
				switch r.Intn(3) {
				case 0:
					tbl.Set(th, k, r.Uint64())
				case 1:
					tbl.Get(th, k)
				default:
					tbl.Delete(th, k)
				}
				sem.Release(1)
			}
		}(w)
	}

	wg.Wait()
	glog.Infof("bench run complete: final table size = %d", tbl.Size())
}
