// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

//go:build !linux

package hashtable

import "errors"

// affinityState is a no-op placeholder on platforms without CPU
// affinity syscalls.
type affinityState struct{}

func (th *Thread) pin(cpu int) error {
	return errors.New("hashtable: CPU affinity is not supported on this platform")
}

func (th *Thread) unpin() {}
