package srng

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync/atomic"
)

var hostBigEndian = binary.NativeEndian.Uint16([]byte{0, 1}) == 1

// Entry is one ring descriptor. Words are little endian unless the ring was
// set up with FlagDataTLVSwap. Word access is atomic since hardware reads and
// writes the same memory.
type Entry struct {
	b    []byte
	swap bool
}

func (e Entry) Bytes() []byte { return e.b }
func (e Entry) Len() int      { return len(e.b) }
func (e Entry) Words() int    { return len(e.b) / 4 }
func (e Entry) IsZero() bool  { return e.b == nil }

func (e Entry) wordIndex(i int) uint32 {
	n := e.Words()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		panic(fmt.Errorf("srng: descriptor word %d out of range [0,%d)", i, n))
	}
	return uint32(i) * 4
}

func (e Entry) order(v uint32) uint32 {
	if hostBigEndian != e.swap {
		return bits.ReverseBytes32(v)
	}
	return v
}

// Word returns 32-bit word i. Negative i counts from the end of the entry.
func (e Entry) Word(i int) uint32 {
	return e.order(atomic.LoadUint32(word32(e.b, e.wordIndex(i))))
}

func (e Entry) SetWord(i int, v uint32) {
	atomic.StoreUint32(word32(e.b, e.wordIndex(i)), e.order(v))
}

// Field is a bit field of a descriptor word.
type Field struct {
	// Word index; negative counts from the end of the entry.
	Word  int
	Shift uint
	Width uint
}

func (f Field) mask() uint32 { return uint32(1)<<f.Width - 1 }

func (f Field) Get(e Entry) uint32 { return e.Word(f.Word) >> f.Shift & f.mask() }

func (f Field) Set(e Entry, v uint32) {
	m := f.mask() << f.Shift
	w := e.Word(f.Word)
	e.SetWord(f.Word, w&^m|v<<f.Shift&m)
}

// DescLayout is a generation's descriptor bit packing for the fields the
// ring engine and its consumers share.
type DescLayout struct {
	// Written by hardware into the last word of destination entries.
	LoopCount Field

	// Buffer address info: 40-bit device address, software cookie and the
	// return buffer manager.
	AddrLo  Field
	AddrHi  Field
	Cookie  Field
	Manager Field

	MSDULength Field
}

// BufferAddr is a decoded buffer address info.
type BufferAddr struct {
	Addr    uint64
	Cookie  uint32
	Manager uint8
}

func (l *DescLayout) bufferAddr(e Entry) BufferAddr {
	return BufferAddr{
		Addr:    uint64(l.AddrLo.Get(e)) | uint64(l.AddrHi.Get(e))<<32,
		Cookie:  l.Cookie.Get(e),
		Manager: uint8(l.Manager.Get(e)),
	}
}

func (l *DescLayout) setBufferAddr(e Entry, a BufferAddr) {
	l.AddrLo.Set(e, uint32(a.Addr))
	l.AddrHi.Set(e, uint32(a.Addr>>32))
	l.Cookie.Set(e, a.Cookie)
	l.Manager.Set(e, uint32(a.Manager))
}
