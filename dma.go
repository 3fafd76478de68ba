package srng

import (
	"encoding/binary"
	"math"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	hugePageSize = 2 << 20
	pagemapPath  = "/proc/self/pagemap"
)

// DMA is host memory visible to the device at Addr.
type DMA struct {
	Mem  []byte
	Addr uint64

	mapped bool
}

// NewDMA wraps memory whose device address is already known.
func NewDMA(mem []byte, addr uint64) *DMA {
	return &DMA{Mem: mem, Addr: addr}
}

// AllocDMA maps size bytes of locked anonymous memory and resolves its
// physical address. With hugePages the size is rounded to 2MB huge pages;
// without, allocations larger than one page are rarely contiguous and fail.
// Resolving physical addresses needs CAP_SYS_ADMIN.
func AllocDMA(size int, hugePages bool) (*DMA, error) {
	if size <= 0 {
		return nil, errors.WithMessagef(ErrConfig, "dma: size %d", size)
	}
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | unix.MAP_LOCKED | unix.MAP_POPULATE
	page := os.Getpagesize()
	if hugePages {
		flags |= unix.MAP_HUGETLB
		page = hugePageSize
	}
	size = (size + page - 1) &^ (page - 1)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, errors.WithMessage(err, "dma: mmap")
	}
	d := &DMA{Mem: mem, mapped: true}
	if d.Addr, err = physAddr(mem, page); err != nil {
		d.Free()
		return nil, err
	}
	return d, nil
}

// physAddr returns the physical address of mem, which must be contiguous in
// chunks of page bytes.
func physAddr(mem []byte, page int) (uint64, error) {
	f, err := os.Open(pagemapPath)
	if err != nil {
		return 0, errors.WithMessage(err, "dma: pagemap")
	}
	defer f.Close()

	sysPage := uint64(os.Getpagesize())
	pfn := func(va uintptr) (uint64, error) {
		var b [8]byte
		if _, err := f.ReadAt(b[:], int64(uint64(va)/sysPage*8)); err != nil {
			return 0, errors.WithMessage(err, "dma: pagemap read")
		}
		e := binary.LittleEndian.Uint64(b[:])
		if e&(1<<63) == 0 {
			return 0, errors.Errorf("dma: page at 0x%x not present", va)
		}
		p := e & (1<<55 - 1)
		if p == 0 {
			return 0, errors.New("dma: pagemap hides frame numbers, need CAP_SYS_ADMIN")
		}
		return p * sysPage, nil
	}

	base := sliceAddr(mem)
	first, err := pfn(base)
	if err != nil {
		return 0, err
	}
	for o := page; o < len(mem); o += page {
		pa, err := pfn(base + uintptr(o))
		if err != nil {
			return 0, err
		}
		if pa != first+uint64(o) {
			return 0, errors.Errorf("dma: %d bytes not physically contiguous at offset 0x%x", len(mem), o)
		}
	}
	return first, nil
}

// Free unmaps memory from AllocDMA. Wrapped memory is left alone.
func (d *DMA) Free() error {
	if !d.mapped {
		return nil
	}
	d.mapped = false
	m := d.Mem
	d.Mem = nil
	return unix.Munmap(m)
}

// Slice returns n bytes at byte offset off as a DMA region.
func (d *DMA) Slice(off, n int) *DMA {
	return &DMA{Mem: d.Mem[off : off+n : off+n], Addr: d.Addr + uint64(off)}
}

// BufferPool hands out fixed size buffers carved from one DMA region.
// Buffers are named by device address.
type BufferPool struct {
	mem     *DMA
	bufSize uint32

	lock  sync.Mutex
	free  uint32
	addrs []uint64
}

// NewBufferPool carves mem into buffers of bufSize bytes. A zero bufSize or
// one larger than mem panics.
func NewBufferPool(mem *DMA, bufSize uint32) *BufferPool {
	if bufSize == 0 || uint64(bufSize) > uint64(len(mem.Mem)) {
		panic(errors.Errorf("srng: buffer size %d for pool of %d bytes", bufSize, len(mem.Mem)))
	}
	n := uint32(len(mem.Mem)) / bufSize
	p := &BufferPool{mem: mem, bufSize: bufSize, addrs: make([]uint64, n)}
	for i := uint32(0); i < n; i++ {
		p.Put(mem.Addr + uint64(i)*uint64(bufSize))
	}
	return p
}

func (p *BufferPool) Get() (uint64, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.free == 0 {
		return math.MaxUint64, false
	}
	p.free--
	addr := p.addrs[p.free]
	p.addrs[p.free] = math.MaxUint64
	return addr, true
}

// Put returns a buffer. Returning more buffers than the pool holds panics.
func (p *BufferPool) Put(addr uint64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.free == uint32(len(p.addrs)) {
		panic(errors.Errorf("srng: buffer 0x%x returned to full pool", addr))
	}
	p.addrs[p.free] = addr
	p.free++
}

func (p *BufferPool) Available() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return int(p.free)
}

func (p *BufferPool) Len() int        { return len(p.addrs) }
func (p *BufferPool) BufSize() uint32 { return p.bufSize }

// Cookie returns the buffer index of addr, used as descriptor cookie.
func (p *BufferPool) Cookie(addr uint64) uint32 {
	return uint32((addr - p.mem.Addr) / uint64(p.bufSize))
}

// AddrOf is the inverse of Cookie.
func (p *BufferPool) AddrOf(cookie uint32) uint64 {
	return p.mem.Addr + uint64(cookie)*uint64(p.bufSize)
}

// Data returns the first n bytes of the buffer at addr.
func (p *BufferPool) Data(addr uint64, n int) []byte {
	off := addr - p.mem.Addr
	if n < 0 || uint64(n) > uint64(p.bufSize) || off >= uint64(len(p.mem.Mem)) {
		panic(errors.Errorf("srng: buffer 0x%x length %d outside pool", addr, n))
	}
	return p.mem.Mem[off : off+uint64(n)]
}
