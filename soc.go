package srng

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
)

// Pointer area layout: one word per ring id written by hardware, followed by
// one word per LMAC ring written by the host.
const (
	wrpOffset       = MaxRingID * 4
	PointerAreaSize = (MaxRingID + numLMACRings) * 4
)

// Flags are per ring byte order options. They are configuration, never
// detected.
type Flags uint32

const (
	FlagMSISwap Flags = 1 << iota
	// Descriptor words are big endian.
	FlagDataTLVSwap
	// Pointer values are byte swapped.
	FlagRingPtrSwap
)

// MISC register bits.
const (
	miscMSISwap     = 1 << 3
	miscRingPtrSwap = 1 << 4
	miscDataTLVSwap = 1 << 5
	miscEnable      = 1 << 6
)

// RingParams describes the memory and options of one ring.
type RingParams struct {
	// Physically contiguous, device visible memory of at least
	// NumEntries*stride bytes. Owned by the caller.
	Buffer     []byte
	DeviceAddr uint64
	// Power of two.
	NumEntries uint32
	Flags      Flags
	// Source rings: entries Reserve keeps free.
	LowThreshold uint32
	// Interrupt moderation, programmed on rings with registers.
	IntrBatchEntries uint32
	IntrTimerUs      uint32
}

// Config configures Attach.
type Config struct {
	SiliconID SiliconID
	// Full register aperture of the device.
	Regs RegisterSpace
	// DMA memory of PointerAreaSize bytes shared with hardware for ring
	// pointers. Allocated from the heap when nil.
	PointerArea *DMA
	Logger      *slog.Logger
	Metrics     metrics.Registry
	// Called on a failed corruption check. Defaults to panic.
	OnCorruption CorruptionHandler
}

// Soc is one attached device: its bound generation, register access and the
// ring arena indexed by ring id.
type Soc struct {
	id     SiliconID
	gen    Generation
	layout *LayoutTable
	raw    RegisterSpace
	regs   RegisterSpace
	window *Window
	shadow *ShadowTable

	ptrs     []byte
	ptrsAddr uint64

	setupMu sync.Mutex
	rings   [MaxRingID]Ring

	base         *slog.Logger
	log          *slog.Logger
	metrics      metrics.Registry
	onCorruption CorruptionHandler
}

// Attach binds the generation of cfg.SiliconID. Unknown silicon attaches
// with the generic table; its generation specific operations then fail with
// ErrUnsupported when first used.
func Attach(cfg *Config) (*Soc, error) {
	if cfg == nil || cfg.Regs == nil {
		return nil, errors.WithMessage(ErrConfig, "attach: no register space")
	}
	s := &Soc{
		id:           cfg.SiliconID,
		raw:          cfg.Regs,
		regs:         cfg.Regs,
		base:         cfg.Logger,
		log:          componentLogger(cfg.Logger, ComponentSoc),
		metrics:      cfg.Metrics,
		onCorruption: cfg.OnCorruption,
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	if s.onCorruption == nil {
		s.onCorruption = panicOnCorruption
	}

	g, ok := Lookup(cfg.SiliconID)
	if !ok {
		s.log.Warn("unknown silicon, using generic operations", "silicon", cfg.SiliconID)
	}
	s.gen = g
	if l, err := g.Layout(); err == nil {
		s.layout = l
	}
	if w := g.Window(); w != nil {
		w.Program(s.raw)
		s.window = w
		s.regs = Windowed(s.raw, w)
		componentLogger(s.base, ComponentWindow).Debug("register window programmed",
			"select", w.SelectValue(), "ranges", len(w.Ranges()))
	}
	if base, n, _ := g.Shadow(); n > 0 {
		s.shadow = NewShadowTable(base, n)
	}

	pa := cfg.PointerArea
	if pa == nil {
		pa = NewDMA(make([]byte, PointerAreaSize), 0)
	}
	if len(pa.Mem) < PointerAreaSize {
		return nil, errors.WithMessagef(ErrConfig, "attach: pointer area %d bytes, need %d", len(pa.Mem), PointerAreaSize)
	}
	s.ptrs, s.ptrsAddr = pa.Mem[:PointerAreaSize], pa.Addr
	for i := range s.ptrs {
		s.ptrs[i] = 0
	}

	s.log.Info("attached", "silicon", cfg.SiliconID, "generation", g.Name(),
		"windowed", s.window != nil, "shadow_regs", s.shadowCap())
	return s, nil
}

func (s *Soc) shadowCap() int {
	if s.shadow == nil {
		return 0
	}
	return s.shadow.Cap()
}

func (s *Soc) SiliconID() SiliconID      { return s.id }
func (s *Soc) Generation() Generation    { return s.gen }
func (s *Soc) Metrics() metrics.Registry { return s.metrics }
func (s *Soc) Shadow() *ShadowTable      { return s.shadow }
func (s *Soc) Registers() RegisterSpace  { return s.regs }
func (s *Soc) PointerArea() []byte       { return s.ptrs }
func (s *Soc) PointerAreaAddr() uint64   { return s.ptrsAddr }

// Layout returns the bound ring geometry.
func (s *Soc) Layout() (*LayoutTable, error) {
	if s.layout == nil {
		return nil, errors.WithMessagef(ErrUnsupported, "%s: ring layout", s.gen.Name())
	}
	return s.layout, nil
}

// Translate maps a register address to its aperture offset.
func (s *Soc) Translate(addr uint32) uint32 {
	if s.window == nil {
		return addr
	}
	return s.window.Translate(addr)
}

// AllocateShadow assigns a shadow register to ring (t, ringNum).
func (s *Soc) AllocateShadow(t RingType, ringNum int) (int, error) {
	if s.shadow == nil {
		return -1, errors.WithMessagef(ErrUnsupported, "%s: shadow registers", s.gen.Name())
	}
	l, err := s.Layout()
	if err != nil {
		return -1, err
	}
	c := l.Config(t)
	if c.LMAC || ringNum < 0 || ringNum >= c.MaxRings {
		return -1, errors.WithMessagef(ErrConfig, "no shadow register for %s ring %d", t, ringNum)
	}
	i, err := s.shadow.Allocate(t, ringNum, l.HostPointerReg(t, ringNum))
	if err == nil {
		componentLogger(s.base, ComponentShadow).Debug("shadow register allocated",
			"ring_type", t, "ring_num", ringNum, "slot", i, "addr", s.shadow.AddressOf(i))
	}
	return i, err
}

// ConfigureShadow allocates shadow registers for the generation's ring list
// in order. Must run before the listed rings are set up.
func (s *Soc) ConfigureShadow() error {
	_, _, rings := s.gen.Shadow()
	if s.shadow == nil {
		return nil
	}
	for _, sr := range rings {
		if _, err := s.AllocateShadow(sr.Type, sr.RingNum); err != nil {
			return err
		}
	}
	return nil
}

// ShadowConfig returns the register offsets mirrored by shadow registers, in
// slot order, for announcement to firmware.
func (s *Soc) ShadowConfig() []uint32 {
	if s.shadow == nil {
		return nil
	}
	return s.shadow.Config()
}

// Ring returns the initialized ring with id, or nil.
func (s *Soc) Ring(id int) *Ring {
	if id < 0 || id >= MaxRingID {
		return nil
	}
	r := &s.rings[id]
	if !r.Initialized() {
		return nil
	}
	return r
}

// Setup brings up instance ringNum of type t on mac macID over p.Buffer.
func (s *Soc) Setup(t RingType, ringNum, macID int, p *RingParams) (*Ring, error) {
	l, err := s.Layout()
	if err != nil {
		return nil, err
	}
	if t < 0 || t >= NumRingTypes {
		return nil, errors.WithMessagef(ErrConfig, "ring type %d out of range", int(t))
	}
	c := l.Config(t)
	if ringNum < 0 || ringNum >= c.MaxRings {
		return nil, errors.WithMessagef(ErrConfig, "%s: ring number %d, max %d", t, ringNum, c.MaxRings)
	}
	if c.LMAC && (macID < 0 || macID >= MaxLMACs) {
		return nil, errors.WithMessagef(ErrConfig, "%s: mac id %d, max %d", t, macID, MaxLMACs)
	}
	if !c.LMAC {
		macID = 0
	}
	if p == nil {
		return nil, errors.WithMessagef(ErrConfig, "%s ring %d: no ring parameters", t, ringNum)
	}
	n := p.NumEntries
	if !isPow2(n) || n < 2 || n > c.MaxEntries {
		return nil, errors.WithMessagef(ErrConfig, "%s ring %d: %d entries, want power of two in [2,%d]", t, ringNum, n, c.MaxEntries)
	}
	bytes := uint64(n) * uint64(c.EntryStride)
	if uint64(len(p.Buffer)) < bytes {
		return nil, errors.WithMessagef(ErrConfig, "%s ring %d: buffer %d bytes, need %d", t, ringNum, len(p.Buffer), bytes)
	}
	if p.LowThreshold >= n {
		return nil, errors.WithMessagef(ErrConfig, "%s ring %d: low threshold %d >= %d entries", t, ringNum, p.LowThreshold, n)
	}

	s.setupMu.Lock()
	defer s.setupMu.Unlock()
	id := c.RingID(ringNum, macID)
	r := &s.rings[id]
	if r.Initialized() {
		return nil, errors.WithMessagef(ErrConfig, "%s ring %d: ring id %d already initialized", t, ringNum, id)
	}

	hostKind, hostOff, err := s.hostPointer(c, l, ringNum, id)
	if err != nil {
		return nil, err
	}

	buf := p.Buffer[:bytes:bytes]
	for i := range buf {
		buf[i] = 0
	}
	hwOff := uint32(id) * 4
	*word32(s.ptrs, hwOff) = 0
	if hostKind == PointerMemory {
		*word32(s.ptrs, hostOff) = 0
	}
	if !c.LMAC {
		s.programRing(c, l, ringProgram{
			id: id, num: ringNum, hwOff: hwOff,
			hostKind: hostKind, hostOff: hostOff,
		}, p)
	}

	r.mu.Lock()
	r.soc, r.cfg = s, c
	r.id, r.num, r.mac = id, ringNum, macID
	r.buf, r.addr = buf, p.DeviceAddr
	r.stride, r.size, r.mask = c.EntryStride, n, n-1
	r.flags = p.Flags
	r.hostKind, r.hostOff, r.hwOff = hostKind, hostOff, hwOff
	r.head, r.next, r.reapHead, r.cachedTail, r.lowThreshold = 0, 0, 0, 0, 0
	r.tail, r.loopCnt = 0, 0
	r.stats = newRingStats(s.metrics, id)
	if c.Dir == Source {
		r.lowThreshold = p.LowThreshold
	} else {
		r.loopCnt = 1
	}
	r.initialized = true
	r.mu.Unlock()

	componentLogger(s.base, ComponentRing).Debug("ring setup", "ring_id", id, "type", t, "ring_num", ringNum,
		"mac_id", macID, "entries", n, "stride", c.EntryStride, "pointer", hostKind, "pointer_offset", hostOff)
	return r, nil
}

// hostPointer decides where the host publishes the ring's pointer.
func (s *Soc) hostPointer(c *RingTypeConfig, l *LayoutTable, ringNum, id int) (PointerKind, uint32, error) {
	if c.LMAC {
		return PointerMemory, wrpOffset + uint32(id-LMACStart)*4, nil
	}
	target := l.HostPointerReg(c.Type, ringNum)
	if s.shadow == nil {
		return PointerRegister, s.Translate(target), nil
	}
	slot, ok := s.shadow.Lookup(c.Type, ringNum)
	if !ok {
		componentLogger(s.base, ComponentShadow).Warn("no shadow register configured, using direct register",
			"ring_type", c.Type, "ring_num", ringNum, "register", target)
		return PointerRegister, s.Translate(target), nil
	}
	if slot.Target != target {
		err := errors.WithMessagef(ErrCorruption, "%s ring %d: shadow slot %d mirrors 0x%x, ring register is 0x%x",
			c.Type, ringNum, slot.Index, slot.Target, target)
		return 0, 0, s.corrupt(err)
	}
	return PointerShadow, s.Translate(s.shadow.AddressOf(slot.Index)), nil
}

// ringProgram is what programRing needs besides the ring parameters.
type ringProgram struct {
	id, num  int
	hwOff    uint32
	hostKind PointerKind
	hostOff  uint32
}

// programRing writes base, size, pointer address, interrupt moderation and
// misc registers, then resets head and tail. Misc goes last since it enables
// the ring. Runs before the ring lock is taken.
func (s *Soc) programRing(c *RingTypeConfig, l *LayoutTable, r ringProgram, p *RingParams) {
	regs, rr := s.regs, &l.Regs
	r0 := c.RegBase(RegGroupR0, r.num)
	r2 := c.RegBase(RegGroupR2, r.num)

	regAndNot(regs, r0+rr.Misc, miscEnable)

	ringWords := p.NumEntries * c.EntryStride / 4
	regs.Write32(r0+rr.BaseLSB, uint32(p.DeviceAddr))
	regs.Write32(r0+rr.BaseMSB, uint32(p.DeviceAddr>>32)&0xff|ringWords<<8)
	regs.Write32(r0+rr.ID, uint32(r.id)<<8|c.EntryStride/4)

	ptr := s.ptrsAddr + uint64(r.hwOff)
	regs.Write32(r0+rr.PtrAddrLSB, uint32(ptr))
	regs.Write32(r0+rr.PtrAddrMSB, uint32(ptr>>32)&0xff)

	regs.Write32(r0+rr.IntSetup0, (p.IntrTimerUs>>3)<<16|p.IntrBatchEntries&0x7fff)
	if c.Dir == Source {
		regs.Write32(r0+rr.IntSetup1, p.LowThreshold&0xffff)
	}

	regs.Write32(r2+rr.HP, 0)
	regs.Write32(r2+rr.TP, 0)
	if r.hostKind == PointerShadow {
		s.raw.Write32(r.hostOff, 0)
	}

	misc := uint32(miscEnable)
	if p.Flags&FlagMSISwap != 0 {
		misc |= miscMSISwap
	}
	if p.Flags&FlagRingPtrSwap != 0 {
		misc |= miscRingPtrSwap
	}
	if p.Flags&FlagDataTLVSwap != 0 {
		misc |= miscDataTLVSwap
	}
	regs.Write32(r0+rr.Misc, misc)
}

// Cleanup marks r uninitialized so its ring id can be set up again. The
// buffer stays with the caller. Cleaning up twice is a no-op.
func (s *Soc) Cleanup(r *Ring) {
	if r == nil {
		return
	}
	s.setupMu.Lock()
	defer s.setupMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return
	}
	componentLogger(s.base, ComponentRing).Debug("ring cleanup", "ring_id", r.id, "type", r.cfg.Type)
	r.initialized = false
	r.buf = nil
	r.head, r.next, r.reapHead, r.cachedTail = 0, 0, 0, 0
	r.tail, r.loopCnt = 0, 0
}
