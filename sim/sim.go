// Package sim models the hardware side of SRNG rings: it consumes what the
// host posts on source rings and produces entries on destination rings, over
// plain memory standing in for the register BAR and the pointer area.
package sim

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/lixiangzhong/srng"
)

var (
	// ErrRingFull is returned by Produce when the host has not freed the
	// next entry of a destination ring.
	ErrRingFull = errors.New("sim: destination ring full")
	// ErrNoBuffer is returned by Receive when no buffer is posted.
	ErrNoBuffer = errors.New("sim: no rx buffer posted")
)

// PointerAreaAddr is the fake device address of the pointer area.
const PointerAreaAddr = 0x1000_0000

type hwRing struct {
	head uint32
	loop uint16
}

// Device is a simulated device of one silicon generation.
type Device struct {
	id   srng.SiliconID
	gen  srng.Generation
	regs *srng.MMIO
	ptrs *srng.DMA

	mu    sync.Mutex
	rings map[int]*hwRing
}

// New returns a device with a register file sized for id.
func New(id srng.SiliconID) *Device {
	gen, _ := srng.Lookup(id)
	size := srng.WindowedRegSize
	if gen.Window() == nil {
		size = srng.IPQ8074RegSize
	}
	return &Device{
		id:    id,
		gen:   gen,
		regs:  srng.NewMMIO(make([]byte, size)),
		ptrs:  srng.NewDMA(make([]byte, srng.PointerAreaSize), PointerAreaAddr),
		rings: make(map[int]*hwRing),
	}
}

// Config returns an attach configuration for the device.
func (d *Device) Config() *srng.Config {
	return &srng.Config{
		SiliconID:   d.id,
		Regs:        d.regs,
		PointerArea: d.ptrs,
	}
}

func (d *Device) Registers() *srng.MMIO { return d.regs }

func word(b []byte, off uint32) *uint32 { return (*uint32)(unsafe.Pointer(&b[off])) }

func swap(r *srng.Ring, v uint32) uint32 {
	if r.Flags()&srng.FlagRingPtrSwap != 0 {
		return bits.ReverseBytes32(v)
	}
	return v
}

// HostPointer returns the pointer the host last published for r.
func (d *Device) HostPointer(r *srng.Ring) uint32 {
	kind, off := r.HostPointer()
	var v uint32
	if kind == srng.PointerMemory {
		v = atomic.LoadUint32(word(d.ptrs.Mem, off))
	} else {
		v = d.regs.Read32(off)
	}
	return swap(r, v)
}

// HWPointer returns the pointer hardware last wrote for r.
func (d *Device) HWPointer(r *srng.Ring) uint32 {
	return swap(r, atomic.LoadUint32(word(d.ptrs.Mem, r.HWPointerOffset())))
}

// SetHWPointer writes the hardware pointer of r without any checks.
func (d *Device) SetHWPointer(r *srng.Ring, v uint32) {
	atomic.StoreUint32(word(d.ptrs.Mem, r.HWPointerOffset()), swap(r, v))
}

// Reset forgets hardware state of r, as after the ring is set up again.
func (d *Device) Reset(r *srng.Ring) {
	d.mu.Lock()
	delete(d.rings, r.ID())
	d.mu.Unlock()
}

func (d *Device) state(r *srng.Ring) *hwRing {
	h, ok := d.rings[r.ID()]
	if !ok {
		h = &hwRing{loop: 1}
		d.rings[r.ID()] = h
	}
	return h
}

// Consume takes up to n entries the host committed on source ring r,
// passes each to fn if not nil, and advances the hardware tail. It returns
// the number of entries consumed.
func (d *Device) Consume(r *srng.Ring, n int, fn func(srng.Entry)) int {
	tail := d.HWPointer(r)
	head := d.HostPointer(r)
	mask := r.Entries() - 1
	avail := int((head - tail) & mask)
	if n > avail {
		n = avail
	}
	for i := 0; i < n; i++ {
		if fn != nil {
			fn(r.EntryAt(tail + uint32(i)))
		}
	}
	d.SetHWPointer(r, (tail+uint32(n))&mask)
	return n
}

// Produce writes the next entry of destination ring r. fill sets the
// descriptor fields; the loop count is stamped last.
func (d *Device) Produce(r *srng.Ring, fill func(srng.Entry) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.state(r)
	mask := r.Entries() - 1
	if (h.head+1)&mask == d.HostPointer(r) {
		return ErrRingFull
	}
	if err := d.stamp(r, h.head, h.loop, fill); err != nil {
		return err
	}
	h.head = (h.head + 1) & mask
	if h.head == 0 {
		h.loop++
	}
	d.SetHWPointer(r, h.head)
	return nil
}

// Stamp writes entry idx of destination ring r with loop count loop,
// bypassing flow control.
func (d *Device) Stamp(r *srng.Ring, idx uint32, loop uint16, fill func(srng.Entry) error) error {
	return d.stamp(r, idx, loop, fill)
}

func (d *Device) stamp(r *srng.Ring, idx uint32, loop uint16, fill func(srng.Entry) error) error {
	e := r.EntryAt(idx)
	if fill != nil {
		if err := fill(e); err != nil {
			return err
		}
	}
	return d.gen.SetLoopCount(e, loop)
}

// Receive delivers frame: it takes the next buffer posted on source ring
// bufs, copies frame into it through mem and posts the buffer on
// destination ring dst.
func (d *Device) Receive(bufs, dst *srng.Ring, frame []byte, mem func(addr uint64, n int) []byte) error {
	d.mu.Lock()
	full := (d.state(dst).head+1)&(dst.Entries()-1) == d.HostPointer(dst)
	d.mu.Unlock()
	if full {
		return ErrRingFull
	}

	var (
		ba  srng.BufferAddr
		err error
	)
	if d.Consume(bufs, 1, func(e srng.Entry) { ba, err = d.gen.BufferAddr(e) }) == 0 {
		return ErrNoBuffer
	}
	if err != nil {
		return err
	}
	copy(mem(ba.Addr, len(frame)), frame)

	return d.Produce(dst, func(e srng.Entry) error {
		if err := d.gen.SetBufferAddr(e, ba); err != nil {
			return err
		}
		return d.gen.SetMSDULength(e, uint16(len(frame)))
	})
}
