// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package epoch

import (
	"testing"
)

func TestRetireNotFreedUntilEpochAdvances(t *testing.T) {
	tick := int64(0)
	clock := func() int64 { return tick }

	var freed []any
	reg := NewRegistry(clock,
		func(o any) { freed = append(freed, o) },
		func(o any) { freed = append(freed, o) },
	)

	a := reg.Attach()
	b := reg.Attach()

	a.Retire(Record, "obj1")
	a.Advance() // min epoch is still 0 (b hasn't moved); nothing eligible
	if len(freed) != 0 {
		t.Fatalf("expected nothing freed yet, got %v", freed)
	}

	tick = 1
	b.Advance() // a is still at epoch 0, so min(epoch) stays 0
	a.Advance() // now min(epoch) == 1 > 0, obj1 is eligible
	if len(freed) != 1 || freed[0] != "obj1" {
		t.Fatalf("expected obj1 freed, got %v", freed)
	}
}

func TestDetachHandsOffPendingRetirements(t *testing.T) {
	tick := int64(0)
	clock := func() int64 { return tick }

	var freed []any
	reg := NewRegistry(clock,
		func(o any) { freed = append(freed, o) },
		func(o any) { freed = append(freed, o) },
	)

	a := reg.Attach()
	a.Retire(Data, "array1")
	a.Detach() // a no longer counts toward minEpoch

	b := reg.Attach()
	tick = 5
	b.Advance()
	if len(freed) != 1 || freed[0] != "array1" {
		t.Fatalf("expected array1 freed after detach handoff, got %v", freed)
	}
}

func TestStatsReportsPendingDepth(t *testing.T) {
	tick := int64(0)
	clock := func() int64 { return tick }
	reg := NewRegistry(clock, func(any) {}, func(any) {})

	a := reg.Attach()
	a.Retire(Record, 1)
	a.Retire(Record, 2)
	st := reg.Stats()
	if st.Pending[Record] != 2 {
		t.Fatalf("expected 2 pending records, got %d", st.Pending[Record])
	}
	if st.Retired[Record] != 2 {
		t.Fatalf("expected 2 retired records, got %d", st.Retired[Record])
	}
}

func TestSlotReuseAfterDetach(t *testing.T) {
	tick := int64(0)
	clock := func() int64 { return tick }
	reg := NewRegistry(clock, func(any) {}, func(any) {})

	a := reg.Attach()
	a.Detach()
	b := reg.Attach()
	if a.slot != b.slot {
		t.Fatalf("expected detached slot to be reused on next attach")
	}
}
