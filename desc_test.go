package srng

import (
	"encoding/binary"
	"testing"
)

func TestFieldRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name  string
		f     Field
		v     uint32
		other Field
	}{
		{"low", Field{Word: 0, Shift: 0, Width: 8}, 0xab, Field{Word: 0, Shift: 8, Width: 24}},
		{"mid", Field{Word: 1, Shift: 11, Width: 21}, 0x1fffff, Field{Word: 1, Shift: 0, Width: 11}},
		{"full", Field{Word: 2, Shift: 0, Width: 32}, 0xdeadbeef, Field{Word: 3, Shift: 0, Width: 32}},
		{"last", Field{Word: -1, Shift: 16, Width: 16}, 0xffff, Field{Word: -1, Shift: 0, Width: 16}},
	} {
		e := Entry{b: make([]byte, 16)}
		tc.other.Set(e, 0x5)
		tc.f.Set(e, tc.v)
		if got := tc.f.Get(e); got != tc.v {
			t.Errorf("%s: got 0x%x, want 0x%x", tc.name, got, tc.v)
		}
		if got := tc.other.Get(e); got != 0x5 {
			t.Errorf("%s: neighbouring field clobbered: 0x%x", tc.name, got)
		}
		tc.f.Set(e, tc.v+1)
		if got := tc.other.Get(e); got != 0x5 {
			t.Errorf("%s: overflowing value clobbered neighbour: 0x%x", tc.name, got)
		}
	}
}

func TestEntryByteOrder(t *testing.T) {
	b := make([]byte, 8)
	le := Entry{b: b}
	le.SetWord(0, 0x11223344)
	if got := binary.LittleEndian.Uint32(b); got != 0x11223344 {
		t.Errorf("little endian entry stored 0x%x", got)
	}
	be := Entry{b: b, swap: true}
	be.SetWord(1, 0x11223344)
	if got := binary.BigEndian.Uint32(b[4:]); got != 0x11223344 {
		t.Errorf("swapped entry stored 0x%x", got)
	}
	if got := be.Word(-1); got != 0x11223344 {
		t.Errorf("swapped entry read 0x%x", got)
	}
}

func TestEntryWordOutOfRange(t *testing.T) {
	e := Entry{b: make([]byte, 8)}
	defer func() {
		if recover() == nil {
			t.Error("no panic reading past the entry")
		}
	}()
	e.Word(2)
}

func TestGenerationDescriptors(t *testing.T) {
	for _, id := range knownGenerations() {
		g, _ := Lookup(id)
		for _, swap := range []bool{false, true} {
			e := Entry{b: make([]byte, 32), swap: swap}
			ba := BufferAddr{Addr: 0xab_1234_5678, Cookie: 0x1abcde, Manager: 5}
			if err := g.SetBufferAddr(e, ba); err != nil {
				t.Fatal(err)
			}
			if err := g.SetMSDULength(e, 1500); err != nil {
				t.Fatal(err)
			}
			if err := g.SetLoopCount(e, 0xbeef); err != nil {
				t.Fatal(err)
			}
			if got, _ := g.BufferAddr(e); got != ba {
				t.Errorf("%v swap=%v: buffer addr %+v, want %+v", id, swap, got, ba)
			}
			if got, _ := g.MSDULength(e); got != 1500 {
				t.Errorf("%v swap=%v: msdu length %d", id, swap, got)
			}
			if got, _ := g.LoopCount(e); got != 0xbeef {
				t.Errorf("%v swap=%v: loop count 0x%x", id, swap, got)
			}
		}
	}
}

func TestLoopCountPlacement(t *testing.T) {
	for _, tc := range []struct {
		id   SiliconID
		want uint32
	}{
		{SiliconIPQ8074, 0x00070000},
		{SiliconQCN9074, 0x00000007},
	} {
		g, _ := Lookup(tc.id)
		e := Entry{b: make([]byte, 32)}
		g.SetLoopCount(e, 7)
		if got := e.Word(7); got != tc.want {
			t.Errorf("%v: last word 0x%08x, want 0x%08x", tc.id, got, tc.want)
		}
	}
}
