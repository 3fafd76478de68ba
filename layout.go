package srng

import "fmt"

// RingType identifies a class of hardware ring.
type RingType int

const (
	RingReoDst RingType = iota
	RingReoException
	RingReoReinject
	RingReoCmd
	RingReoStatus
	RingTclData
	RingTclCmd
	RingTclStatus
	RingCeSrc
	RingCeDst
	RingCeDstStatus
	RingWbmIdleLink
	RingSw2WbmRelease
	RingWbm2SwRelease
	RingRxdmaBuf
	RingRxdmaDst
	RingRxdmaMonitorBuf
	RingRxdmaMonitorStatus
	RingRxdmaMonitorDst
	RingRxdmaMonitorDesc
	RingRxdmaDirBuf
	NumRingTypes
)

var ringTypeNames = [...]string{
	RingReoDst:             "reo-dst",
	RingReoException:       "reo-exception",
	RingReoReinject:        "reo-reinject",
	RingReoCmd:             "reo-cmd",
	RingReoStatus:          "reo-status",
	RingTclData:            "tcl-data",
	RingTclCmd:             "tcl-cmd",
	RingTclStatus:          "tcl-status",
	RingCeSrc:              "ce-src",
	RingCeDst:              "ce-dst",
	RingCeDstStatus:        "ce-dst-status",
	RingWbmIdleLink:        "wbm-idle-link",
	RingSw2WbmRelease:      "sw2wbm-release",
	RingWbm2SwRelease:      "wbm2sw-release",
	RingRxdmaBuf:           "rxdma-buf",
	RingRxdmaDst:           "rxdma-dst",
	RingRxdmaMonitorBuf:    "rxdma-monitor-buf",
	RingRxdmaMonitorStatus: "rxdma-monitor-status",
	RingRxdmaMonitorDst:    "rxdma-monitor-dst",
	RingRxdmaMonitorDesc:   "rxdma-monitor-desc",
	RingRxdmaDirBuf:        "rxdma-dir-buf",
}

func (t RingType) String() string {
	if t >= 0 && t < NumRingTypes {
		return ringTypeNames[t]
	}
	return fmt.Sprintf("unknown-ring-type-%d", int(t))
}

// Direction says which side produces entries.
type Direction uint8

const (
	// Source rings are produced by the host and consumed by hardware.
	Source Direction = iota
	// Destination rings are produced by hardware and consumed by the host.
	Destination
)

func (d Direction) String() string {
	if d == Source {
		return "src"
	}
	return "dst"
}

// Register groups of a ring instance.
const (
	// RegGroupR0 holds base address, size, id and misc configuration.
	RegGroupR0 = iota
	// RegGroupR2 holds the head and tail pointer registers.
	RegGroupR2
	numRegGroups
)

// Ring id space. Rings on the UMAC occupy [0, LMACStart); rings local to a
// LMAC are numbered LMACStart + mac*RingsPerLMAC + offset.
const (
	LMACStart    = 128
	RingsPerLMAC = 16
	MaxLMACs     = 3
	MaxRingID    = LMACStart + RingsPerLMAC*MaxLMACs
	numLMACRings = RingsPerLMAC * MaxLMACs
)

// RingTypeConfig is the static geometry of one ring type.
type RingTypeConfig struct {
	Type        RingType
	StartRingID int
	Dir         Direction
	// Bytes per entry; a power of two.
	EntryStride uint32
	MaxRings    int
	// Register block of instance 0 for each group and the distance between
	// consecutive instances.
	RegStart  [numRegGroups]uint32
	RegStride [numRegGroups]uint32
	// Largest supported entry count; a power of two.
	MaxEntries uint32
	// Device local ring: pointers are exchanged through host memory, the
	// ring has no host visible registers.
	LMAC bool
}

// RingID returns the global ring id of instance ringNum on mac macID.
// macID is ignored for rings outside the LMAC.
func (c *RingTypeConfig) RingID(ringNum, macID int) int {
	id := c.StartRingID + ringNum
	if c.LMAC {
		id += macID * RingsPerLMAC
	}
	return id
}

// RegBase returns the register base of group for instance ringNum.
func (c *RingTypeConfig) RegBase(group, ringNum int) uint32 {
	return c.RegStart[group] + uint32(ringNum)*c.RegStride[group]
}

// RingRegs are register offsets relative to a ring's group base.
type RingRegs struct {
	// R0 group.
	BaseLSB    uint32
	BaseMSB    uint32
	ID         uint32
	Misc       uint32
	PtrAddrLSB uint32
	PtrAddrMSB uint32
	IntSetup0  uint32
	IntSetup1  uint32

	// R2 group.
	HP uint32
	TP uint32
}

var defaultRingRegs = RingRegs{
	BaseLSB:    0x00,
	BaseMSB:    0x04,
	ID:         0x08,
	Misc:       0x10,
	PtrAddrLSB: 0x14,
	PtrAddrMSB: 0x18,
	IntSetup0:  0x1c,
	IntSetup1:  0x20,
	HP:         0x0,
	TP:         0x4,
}

// LayoutTable is the complete ring geometry of one silicon generation.
type LayoutTable struct {
	configs [NumRingTypes]RingTypeConfig
	Regs    RingRegs
}

// Config returns the geometry of ring type t. An out of range type is a
// programming error and panics.
func (l *LayoutTable) Config(t RingType) *RingTypeConfig {
	if t < 0 || t >= NumRingTypes {
		panic(fmt.Errorf("srng: ring type %d out of range", int(t)))
	}
	return &l.configs[t]
}

// HostPointerReg returns the register a host writes to publish its pointer
// for instance ringNum of type t: the head for source rings, the tail for
// destination rings.
func (l *LayoutTable) HostPointerReg(t RingType, ringNum int) uint32 {
	c := l.Config(t)
	r := c.RegBase(RegGroupR2, ringNum)
	if c.Dir == Destination {
		return r + l.Regs.TP
	}
	return r + l.Regs.HP
}

func isPow2(x uint32) bool { return x != 0 && x&(x-1) == 0 }

// Register block bases that vary between generations.
type blockBases struct {
	reo, tcl, wbm uint32
	ceSrc, ceDst  uint32
	ceStride      uint32
}

type ringTemplate struct {
	t          RingType
	start      int
	dir        Direction
	stride     uint32
	max        int
	block      func(b *blockBases) uint32
	r0, r2     uint32
	s0, s2     uint32
	maxEntries uint32
	lmac       bool
}

func reoBlock(b *blockBases) uint32   { return b.reo }
func tclBlock(b *blockBases) uint32   { return b.tcl }
func wbmBlock(b *blockBases) uint32   { return b.wbm }
func ceSrcBlock(b *blockBases) uint32 { return b.ceSrc }
func ceDstBlock(b *blockBases) uint32 { return b.ceDst }

// Offsets of LMAC rings inside one LMAC's id range.
const (
	lmacRxdmaBuf           = 0 // two rings
	lmacRxdmaMonitorStatus = 2
	lmacRxdmaDst           = 3
	lmacRxdmaMonitorBuf    = 4
	lmacRxdmaMonitorDst    = 5
	lmacRxdmaMonitorDesc   = 6
	lmacRxdmaDirBuf        = 7 // two rings
)

var ringTemplates = [...]ringTemplate{
	{t: RingReoDst, start: 0, dir: Destination, stride: 32, max: 4, block: reoBlock, r0: 0x1e4, s0: 0x4c, r2: 0x3038, s2: 0x8, maxEntries: 8192},
	{t: RingReoException, start: 4, dir: Destination, stride: 32, max: 1, block: reoBlock, r0: 0x314, r2: 0x3058, maxEntries: 8192},
	{t: RingReoReinject, start: 5, dir: Source, stride: 32, max: 1, block: reoBlock, r0: 0x360, r2: 0x3060, maxEntries: 8192},
	{t: RingReoCmd, start: 6, dir: Source, stride: 64, max: 1, block: reoBlock, r0: 0x3ac, r2: 0x3068, maxEntries: 4096},
	{t: RingReoStatus, start: 7, dir: Destination, stride: 64, max: 1, block: reoBlock, r0: 0x3f8, r2: 0x3070, maxEntries: 4096},
	{t: RingTclData, start: 8, dir: Source, stride: 32, max: 3, block: tclBlock, r0: 0x510, s0: 0x58, r2: 0x2000, s2: 0x8, maxEntries: 16384},
	{t: RingTclCmd, start: 11, dir: Source, stride: 64, max: 1, block: tclBlock, r0: 0x618, r2: 0x2018, maxEntries: 4096},
	{t: RingTclStatus, start: 12, dir: Destination, stride: 32, max: 1, block: tclBlock, r0: 0x670, r2: 0x2030, maxEntries: 4096},
	{t: RingCeSrc, start: 13, dir: Source, stride: 16, max: 12, block: ceSrcBlock, r0: 0x0, r2: 0x400, maxEntries: 4096},
	{t: RingCeDst, start: 25, dir: Source, stride: 8, max: 12, block: ceDstBlock, r0: 0x0, r2: 0x400, maxEntries: 4096},
	{t: RingCeDstStatus, start: 37, dir: Destination, stride: 16, max: 12, block: ceDstBlock, r0: 0x58, r2: 0x408, maxEntries: 4096},
	{t: RingWbmIdleLink, start: 49, dir: Source, stride: 8, max: 1, block: wbmBlock, r0: 0x860, r2: 0x3010, maxEntries: 65536},
	{t: RingSw2WbmRelease, start: 50, dir: Source, stride: 32, max: 1, block: wbmBlock, r0: 0x8b8, r2: 0x3018, maxEntries: 8192},
	{t: RingWbm2SwRelease, start: 51, dir: Destination, stride: 32, max: 5, block: wbmBlock, r0: 0x910, s0: 0x58, r2: 0x3028, s2: 0x8, maxEntries: 8192},
	{t: RingRxdmaBuf, start: LMACStart + lmacRxdmaBuf, dir: Source, stride: 8, max: 2, maxEntries: 8192, lmac: true},
	{t: RingRxdmaDst, start: LMACStart + lmacRxdmaDst, dir: Destination, stride: 32, max: 1, maxEntries: 8192, lmac: true},
	{t: RingRxdmaMonitorBuf, start: LMACStart + lmacRxdmaMonitorBuf, dir: Source, stride: 8, max: 1, maxEntries: 8192, lmac: true},
	{t: RingRxdmaMonitorStatus, start: LMACStart + lmacRxdmaMonitorStatus, dir: Source, stride: 8, max: 1, maxEntries: 8192, lmac: true},
	{t: RingRxdmaMonitorDst, start: LMACStart + lmacRxdmaMonitorDst, dir: Destination, stride: 32, max: 1, maxEntries: 8192, lmac: true},
	{t: RingRxdmaMonitorDesc, start: LMACStart + lmacRxdmaMonitorDesc, dir: Source, stride: 8, max: 1, maxEntries: 8192, lmac: true},
	{t: RingRxdmaDirBuf, start: LMACStart + lmacRxdmaDirBuf, dir: Source, stride: 8, max: 2, maxEntries: 8192, lmac: true},
}

// newLayoutTable builds a generation's table from the shared ring templates
// and the generation's register block bases. Panics on inconsistent data.
func newLayoutTable(b blockBases) *LayoutTable {
	l := &LayoutTable{Regs: defaultRingRegs}
	for i := range ringTemplates {
		tp := &ringTemplates[i]
		c := RingTypeConfig{
			Type:        tp.t,
			StartRingID: tp.start,
			Dir:         tp.dir,
			EntryStride: tp.stride,
			MaxRings:    tp.max,
			MaxEntries:  tp.maxEntries,
			LMAC:        tp.lmac,
		}
		if tp.block != nil {
			base := tp.block(&b)
			c.RegStart[RegGroupR0] = base + tp.r0
			c.RegStart[RegGroupR2] = base + tp.r2
			c.RegStride[RegGroupR0] = tp.s0
			c.RegStride[RegGroupR2] = tp.s2
			if tp.t == RingCeSrc || tp.t == RingCeDst || tp.t == RingCeDstStatus {
				c.RegStride[RegGroupR0] = b.ceStride
				c.RegStride[RegGroupR2] = b.ceStride
			}
		}
		if !isPow2(c.EntryStride) || c.EntryStride < 8 {
			panic(fmt.Errorf("srng: %s: entry stride %d not a power of two >= 8", c.Type, c.EntryStride))
		}
		if !isPow2(c.MaxEntries) {
			panic(fmt.Errorf("srng: %s: max entries %d not a power of two", c.Type, c.MaxEntries))
		}
		if c.LMAC && c.StartRingID+c.MaxRings > LMACStart+RingsPerLMAC {
			panic(fmt.Errorf("srng: %s: overflows lmac ring range", c.Type))
		}
		if !c.LMAC && c.StartRingID+c.MaxRings > LMACStart {
			panic(fmt.Errorf("srng: %s: overflows umac ring range", c.Type))
		}
		l.configs[tp.t] = c
	}
	return l
}
