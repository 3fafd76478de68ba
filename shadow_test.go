package srng

import (
	"testing"

	"github.com/pkg/errors"
)

func TestShadowAllocate(t *testing.T) {
	st := NewShadowTable(0x8fc, 3)
	for i, rt := range []RingType{RingCeSrc, RingReoDst, RingTclData} {
		slot, err := st.Allocate(rt, 0, uint32(0x1000+i))
		if err != nil {
			t.Fatal(err)
		}
		if slot != i {
			t.Errorf("%v: slot %d, want %d", rt, slot, i)
		}
	}
	if got := st.AddressOf(2); got != 0x8fc+8 {
		t.Errorf("AddressOf(2) = 0x%x", got)
	}

	_, err := st.Allocate(RingWbm2SwRelease, 0, 0x2000)
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("allocate on full table: %v", err)
	}
	if st.Len() != 3 {
		t.Errorf("failed allocation changed table: %d slots", st.Len())
	}
	for i, s := range st.Slots() {
		if s.Index != i || s.RingNum != 0 || s.Target != uint32(0x1000+i) {
			t.Errorf("slot %d changed: %+v", i, s)
		}
	}
	if _, ok := st.Lookup(RingWbm2SwRelease, 0); ok {
		t.Error("failed allocation is visible")
	}
}

func TestShadowDuplicate(t *testing.T) {
	st := NewShadowTable(0, 4)
	if _, err := st.Allocate(RingReoDst, 1, 0x10); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Allocate(RingReoDst, 1, 0x10); !errors.Is(err, ErrConfig) {
		t.Errorf("duplicate allocation: %v", err)
	}
	if _, err := st.Allocate(RingReoDst, 2, 0x18); err != nil {
		t.Errorf("second instance: %v", err)
	}
}

func TestShadowAddressOfPanics(t *testing.T) {
	st := NewShadowTable(0x8fc, 2)
	defer func() {
		if recover() == nil {
			t.Error("no panic for slot beyond capacity")
		}
	}()
	st.AddressOf(2)
}

func TestShadowConfig(t *testing.T) {
	st := NewShadowTable(0x8fc, 4)
	st.Allocate(RingCeSrc, 0, 0x1b80400)
	st.Allocate(RingReoDst, 0, 0xa3b03c)
	c := st.Config()
	if len(c) != 2 || c[0] != 0x1b80400 || c[1] != 0xa3b03c {
		t.Errorf("config %x", c)
	}
}

func TestShadowFitsGenerations(t *testing.T) {
	for _, id := range []SiliconID{SiliconQCA6390, SiliconWCN6855} {
		g, _ := Lookup(id)
		base, n, rings := g.Shadow()
		if len(rings) > n {
			t.Errorf("%v: %d shadowed rings, %d registers", id, len(rings), n)
		}
		if base+4*uint32(n) > WindowStart {
			t.Errorf("%v: shadow registers outside the direct region", id)
		}
	}
}
