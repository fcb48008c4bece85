// Package epoch implements quiescent-state epoch reclamation for the
// hashtable package: two independent object classes (key-value records
// and table-data arrays) are retired into per-thread queues and only
// recycled once every registered thread has advanced its epoch past
// the retirement point.
package epoch

import (
	_ "unsafe" // for go:linkname
)

//go:linkname nanotime runtime.nanotime
func nanotime() int64

// Clock is a monotonic tick source used to timestamp retirements and to
// advance each thread's epoch at safe points in the hot path. It is a
// distinct type (rather than a bare function) so tests can substitute a
// deterministic source.
type Clock func() int64

// RealClock returns the runtime's monotonic nanosecond counter, the
// fastest tick source available without a syscall.
func RealClock() int64 { return nanotime() }
