package srng

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// RegisterSpace is a device's 32-bit register file addressed by byte offset.
type RegisterSpace interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// MMIO is a RegisterSpace over memory: an mmapped PCI BAR or, for
// simulation, a plain byte slice. Accesses are atomic 32-bit loads and stores.
type MMIO struct {
	mem []byte
}

func NewMMIO(b []byte) *MMIO {
	if len(b) > 0 && sliceAddr(b)&3 != 0 {
		panic("srng: register memory not 32-bit aligned")
	}
	return &MMIO{mem: b}
}

func (m *MMIO) Len() int { return len(m.mem) }

func (m *MMIO) addr(off uint32) *uint32 {
	if off&3 != 0 || uint64(off)+4 > uint64(len(m.mem)) {
		panic(fmt.Errorf("srng: register offset 0x%x outside %d byte register space", off, len(m.mem)))
	}
	return (*uint32)(unsafe.Pointer(&m.mem[off]))
}

func (m *MMIO) Read32(off uint32) uint32     { return atomic.LoadUint32(m.addr(off)) }
func (m *MMIO) Write32(off uint32, v uint32) { atomic.StoreUint32(m.addr(off), v) }

func regAndNot(r RegisterSpace, off, v uint32) (x uint32) {
	x = r.Read32(off) &^ v
	r.Write32(off, x)
	return
}

// word32 returns a pointer to the aligned 32-bit word at off in b.
func word32(b []byte, off uint32) *uint32 {
	if off&3 != 0 || uint64(off)+4 > uint64(len(b)) {
		panic(fmt.Errorf("srng: word offset 0x%x outside %d byte area", off, len(b)))
	}
	return (*uint32)(unsafe.Pointer(&b[off]))
}

func sliceAddr(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }
