// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

//go:build linux

package hashtable

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// affinityState tracks whether this thread locked itself to an OS
// thread, so Detach can undo it.
type affinityState struct {
	locked bool
}

func (th *Thread) pin(cpu int) error {
	if !th.opts.locked {
		runtime.LockOSThread()
		th.opts.locked = true
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

func (th *Thread) unpin() {
	if th.opts.locked {
		runtime.UnlockOSThread()
		th.opts.locked = false
	}
}
