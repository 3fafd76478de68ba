package srng

import (
	"fmt"

	"github.com/pkg/errors"
)

// ShadowSlot records which ring pointer register a shadow register stands in for.
type ShadowSlot struct {
	Index   int
	Type    RingType
	RingNum int
	// Register the slot mirrors: the ring's head register for source rings,
	// its tail register for destination rings.
	Target uint32
}

// ShadowRing names a ring a generation wants shadowed at bring-up.
type ShadowRing struct {
	Type    RingType
	RingNum int
}

// ShadowTable is a fixed capacity pool of shadow registers. Slots are handed
// out in order and never freed.
type ShadowTable struct {
	base     uint32
	capacity int
	slots    []ShadowSlot
}

func NewShadowTable(base uint32, capacity int) *ShadowTable {
	return &ShadowTable{
		base:     base,
		capacity: capacity,
		slots:    make([]ShadowSlot, 0, capacity),
	}
}

// Allocate assigns the next free slot to ring (t, ringNum) mirroring register
// target. A full table fails with ErrResourceExhausted and changes nothing.
func (st *ShadowTable) Allocate(t RingType, ringNum int, target uint32) (int, error) {
	if _, ok := st.Lookup(t, ringNum); ok {
		return -1, errors.WithMessagef(ErrConfig, "shadow register already allocated for %s ring %d", t, ringNum)
	}
	if len(st.slots) >= st.capacity {
		return -1, errors.WithMessagef(ErrResourceExhausted, "shadow table full (%d slots) at %s ring %d",
			st.capacity, t, ringNum)
	}
	i := len(st.slots)
	st.slots = append(st.slots, ShadowSlot{Index: i, Type: t, RingNum: ringNum, Target: target})
	return i, nil
}

// AddressOf returns the register offset of shadow slot i.
func (st *ShadowTable) AddressOf(i int) uint32 {
	if i < 0 || i >= st.capacity {
		panic(fmt.Errorf("srng: shadow slot %d out of range [0,%d)", i, st.capacity))
	}
	return st.base + 4*uint32(i)
}

func (st *ShadowTable) Lookup(t RingType, ringNum int) (ShadowSlot, bool) {
	for _, s := range st.slots {
		if s.Type == t && s.RingNum == ringNum {
			return s, true
		}
	}
	return ShadowSlot{}, false
}

func (st *ShadowTable) Slots() []ShadowSlot { return st.slots }
func (st *ShadowTable) Len() int            { return len(st.slots) }
func (st *ShadowTable) Cap() int            { return st.capacity }

// Config returns the mirrored register offsets in slot order, the form the
// platform announces to firmware.
func (st *ShadowTable) Config() []uint32 {
	c := make([]uint32, len(st.slots))
	for i := range st.slots {
		c[i] = st.slots[i].Target
	}
	return c
}
