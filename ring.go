package srng

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Destination loop counts wrap at 16 bits.
const loopCountMask = 0xffff

// PointerKind says where the host publishes a ring's pointer.
type PointerKind uint8

const (
	PointerRegister PointerKind = iota
	PointerShadow
	// Host memory word read by firmware; LMAC rings.
	PointerMemory
)

func (k PointerKind) String() string {
	switch k {
	case PointerRegister:
		return "register"
	case PointerShadow:
		return "shadow"
	default:
		return "memory"
	}
}

// Ring is one SRNG instance. Pointer values exchanged with hardware are
// entry indices in [0, Entries()).
//
// Source and destination operations follow a single producer, single
// consumer discipline; mu only covers pointer read-modify-write.
type Ring struct {
	mu  sync.Mutex
	soc *Soc
	cfg *RingTypeConfig

	id, num, mac int
	initialized  bool

	buf    []byte
	addr   uint64
	stride uint32
	size   uint32
	mask   uint32
	flags  Flags

	// Where the host publishes its pointer: a register offset, or a byte
	// offset into the pointer area for PointerMemory.
	hostKind PointerKind
	hostOff  uint32
	// Byte offset into the pointer area where hardware writes its pointer.
	hwOff uint32

	// Source ring state. head is published, next is reserved.
	head, next   uint32
	reapHead     uint32
	cachedTail   uint32
	lowThreshold uint32

	// Destination ring state.
	tail    uint32
	loopCnt uint32

	stats ringStats
}

func (r *Ring) ID() int                 { return r.id }
func (r *Ring) Type() RingType          { return r.cfg.Type }
func (r *Ring) RingNum() int            { return r.num }
func (r *Ring) MacID() int              { return r.mac }
func (r *Ring) Direction() Direction    { return r.cfg.Dir }
func (r *Ring) Entries() uint32         { return r.size }
func (r *Ring) Stride() uint32          { return r.stride }
func (r *Ring) DeviceAddr() uint64      { return r.addr }
func (r *Ring) Flags() Flags            { return r.flags }
func (r *Ring) Stats() RingStats        { return r.stats.snapshot() }
func (r *Ring) HWPointerOffset() uint32 { return r.hwOff }

// HostPointer reports where the host publishes: for registers and shadow
// registers the offset in the device aperture, for PointerMemory the byte
// offset in the pointer area.
func (r *Ring) HostPointer() (PointerKind, uint32) { return r.hostKind, r.hostOff }

func (r *Ring) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// EntryAt returns the descriptor at index i & mask.
func (r *Ring) EntryAt(i uint32) Entry {
	o := (i & r.mask) * r.stride
	return Entry{b: r.buf[o : o+r.stride : o+r.stride], swap: r.flags&FlagDataTLVSwap != 0}
}

// notInit reports a ring used outside Setup and Cleanup. Called with r.mu
// held.
func (r *Ring) notInit() error {
	if r.initialized {
		return nil
	}
	return errors.WithMessagef(ErrConfig, "ring %d not initialized", r.id)
}

func (r *Ring) wrongDir(op string) error {
	return errors.WithMessagef(ErrConfig, "ring %d (%s %s): %s", r.id, r.cfg.Type, r.cfg.Dir, op)
}

func (r *Ring) swapPtr(v uint32) uint32 {
	if r.flags&FlagRingPtrSwap != 0 {
		return bits.ReverseBytes32(v)
	}
	return v
}

// publish makes v visible to hardware. Called without r.mu held. hostOff
// is an aperture offset, already translated.
func (r *Ring) publish(v uint32) {
	v = r.swapPtr(v)
	if r.hostKind == PointerMemory {
		atomic.StoreUint32(word32(r.soc.ptrs, r.hostOff), v)
		return
	}
	r.soc.raw.Write32(r.hostOff, v)
}

// loadHW reads the pointer hardware last wrote to the pointer area.
func (r *Ring) loadHW() (uint32, error) {
	v := r.swapPtr(atomic.LoadUint32(word32(r.soc.ptrs, r.hwOff)))
	if v >= r.size {
		return 0, errors.WithMessagef(ErrCorruption, "ring %d: hardware pointer %d outside ring of %d", r.id, v, r.size)
	}
	return v, nil
}

// loadTail reads the hardware tail of a source ring. It must lie between
// reapHead and head. Called with r.mu held.
func (r *Ring) loadTail() (uint32, error) {
	tail, err := r.loadHW()
	if err != nil {
		return 0, err
	}
	if (tail-r.reapHead)&r.mask > (r.head-r.reapHead)&r.mask {
		return 0, errors.WithMessagef(ErrCorruption, "ring %d: hardware tail %d beyond head %d", r.id, tail, r.head)
	}
	return tail, nil
}

// Source ring.

// free returns the number of entries that may still be reserved.
func (r *Ring) free() uint32 {
	used := (r.next - r.cachedTail) & r.mask
	free := r.size - 1 - used
	if free <= r.lowThreshold {
		return 0
	}
	return free - r.lowThreshold
}

// NumFree is the number of entries Reserve can currently hand out without
// refreshing the hardware tail.
func (r *Ring) NumFree() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.free())
}

// Reserve returns the next n entries in ring order. The cached hardware tail
// is refreshed only when it does not show enough room. Fails with
// ErrBackpressure, reserving nothing, when n entries would leave fewer than
// the low threshold free.
func (r *Ring) Reserve(n int) ([]Entry, error) {
	if r.cfg.Dir != Source {
		return nil, r.wrongDir("reserve")
	}
	if n <= 0 {
		return nil, errors.WithMessagef(ErrConfig, "ring %d: reserve %d entries", r.id, n)
	}
	r.mu.Lock()
	if err := r.notInit(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if uint32(n) > r.free() {
		tail, err := r.loadTail()
		if err != nil {
			r.mu.Unlock()
			return nil, r.soc.corrupt(err)
		}
		r.cachedTail = tail
	}
	if uint64(n) > uint64(r.free()) {
		r.mu.Unlock()
		r.stats.backpressure.Inc(1)
		return nil, ErrBackpressure
	}
	es := make([]Entry, n)
	for i := range es {
		es[i] = r.EntryAt(r.next + uint32(i))
	}
	r.next = (r.next + uint32(n)) & r.mask
	r.mu.Unlock()
	return es, nil
}

// Commit publishes newHead, which must lie within the reserved span.
func (r *Ring) Commit(newHead uint32) error {
	if r.cfg.Dir != Source {
		return r.wrongDir("commit")
	}
	r.mu.Lock()
	if err := r.notInit(); err != nil {
		r.mu.Unlock()
		return err
	}
	pending := (r.next - r.head) & r.mask
	n := (newHead - r.head) & r.mask
	if newHead >= r.size || n > pending {
		h, nx := r.head, r.next
		r.mu.Unlock()
		return errors.WithMessagef(ErrConfig, "ring %d: commit head %d outside reserved span [%d,%d]", r.id, newHead, h, nx)
	}
	r.head = newHead
	r.mu.Unlock()

	r.publish(newHead)
	r.stats.committed.Inc(int64(n))
	return nil
}

// CommitAll publishes every reserved entry.
func (r *Ring) CommitAll() error {
	r.mu.Lock()
	next := r.next
	r.mu.Unlock()
	return r.Commit(next)
}

// Reclaim reads the hardware tail and returns how many entries hardware
// consumed since the previous Reclaim. Those entries are between the old and
// new ReapHead.
func (r *Ring) Reclaim() (int, error) {
	if r.cfg.Dir != Source {
		return 0, r.wrongDir("reclaim")
	}
	r.mu.Lock()
	if err := r.notInit(); err != nil {
		r.mu.Unlock()
		return 0, err
	}
	tail, err := r.loadTail()
	if err != nil {
		r.mu.Unlock()
		return 0, r.soc.corrupt(err)
	}
	n := (tail - r.reapHead) & r.mask
	r.reapHead = tail
	r.cachedTail = tail
	r.mu.Unlock()

	r.stats.reclaimed.Inc(int64(n))
	return int(n), nil
}

func (r *Ring) Head() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

func (r *Ring) ReapHead() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reapHead
}

// Destination ring.

// PeekNext returns the entry at the tail if hardware has written it during
// the current traversal, judged by its loop count. An entry still carrying
// the previous loop count yields ErrNotReady.
func (r *Ring) PeekNext() (Entry, error) {
	if r.cfg.Dir != Destination {
		return Entry{}, r.wrongDir("peek")
	}
	r.mu.Lock()
	if err := r.notInit(); err != nil {
		r.mu.Unlock()
		return Entry{}, err
	}
	e := r.EntryAt(r.tail)
	want := r.loopCnt
	r.mu.Unlock()

	lc, err := r.soc.gen.LoopCount(e)
	if err != nil {
		return Entry{}, err
	}
	if uint32(lc) != want {
		r.stats.notReady.Inc(1)
		return Entry{}, ErrNotReady
	}
	return e, nil
}

// Advance moves the tail past the current entry. The loop count advances
// exactly when the tail wraps to 0.
func (r *Ring) Advance() error {
	if r.cfg.Dir != Destination {
		return r.wrongDir("advance")
	}
	r.mu.Lock()
	if err := r.notInit(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.tail = (r.tail + 1) & r.mask
	if r.tail == 0 {
		r.loopCnt = (r.loopCnt + 1) & loopCountMask
	}
	r.mu.Unlock()
	r.stats.consumed.Inc(1)
	return nil
}

// PublishReplenishment hands the entries consumed so far back to hardware.
func (r *Ring) PublishReplenishment() error {
	if r.cfg.Dir != Destination {
		return r.wrongDir("publish")
	}
	r.mu.Lock()
	if err := r.notInit(); err != nil {
		r.mu.Unlock()
		return err
	}
	tail := r.tail
	r.mu.Unlock()
	r.publish(tail)
	return nil
}

func (r *Ring) Tail() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail
}

func (r *Ring) LoopCount() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint16(r.loopCnt)
}
