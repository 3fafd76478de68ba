package srng

import (
	"fmt"

	"github.com/pkg/errors"
)

// SiliconID identifies a chip. PCI parts use their PCI device id.
type SiliconID uint32

const (
	SiliconIPQ8074 SiliconID = 0x8074
	SiliconQCA6390 SiliconID = 0x1101
	SiliconWCN6855 SiliconID = 0x1103
	SiliconQCN9074 SiliconID = 0x1104
)

var siliconNames = map[SiliconID]string{
	SiliconIPQ8074: "ipq8074",
	SiliconQCA6390: "qca6390",
	SiliconWCN6855: "wcn6855",
	SiliconQCN9074: "qcn9074",
}

func (id SiliconID) String() (v string) {
	var ok bool
	if v, ok = siliconNames[id]; !ok {
		v = fmt.Sprintf("unknown %04x", uint32(id))
	}
	return
}

// Generation is everything that differs between silicon generations. One
// implementation is bound per device at attach.
type Generation interface {
	Name() string
	Layout() (*LayoutTable, error)
	// Register window; nil when the whole register space is mapped.
	Window() *Window
	// Shadow register base, capacity and the rings shadowed at bring-up.
	// Zero capacity means the generation has no shadow registers.
	Shadow() (base uint32, capacity int, rings []ShadowRing)

	LoopCount(e Entry) (uint16, error)
	SetLoopCount(e Entry, v uint16) error
	BufferAddr(e Entry) (BufferAddr, error)
	SetBufferAddr(e Entry, a BufferAddr) error
	MSDULength(e Entry) (uint16, error)
	SetMSDULength(e Entry, n uint16) error
}

// generic is bound for unrecognized silicon. Every generation specific
// operation fails with ErrUnsupported.
type generic struct{}

func unsupported(op string) error { return errors.WithMessage(ErrUnsupported, op) }

func (generic) Name() string                          { return "generic" }
func (generic) Layout() (*LayoutTable, error)         { return nil, unsupported("ring layout") }
func (generic) Window() *Window                       { return nil }
func (generic) Shadow() (uint32, int, []ShadowRing)   { return 0, 0, nil }
func (generic) LoopCount(Entry) (uint16, error)       { return 0, unsupported("loop count") }
func (generic) SetLoopCount(Entry, uint16) error      { return unsupported("set loop count") }
func (generic) BufferAddr(Entry) (BufferAddr, error)  { return BufferAddr{}, unsupported("buffer address") }
func (generic) SetBufferAddr(Entry, BufferAddr) error { return unsupported("set buffer address") }
func (generic) MSDULength(Entry) (uint16, error)      { return 0, unsupported("msdu length") }
func (generic) SetMSDULength(Entry, uint16) error     { return unsupported("set msdu length") }

// gen is the table driven part shared by all known generations.
type gen struct {
	generic
	name   string
	layout *LayoutTable
	window *Window
	desc   DescLayout

	shadowBase  uint32
	shadowCap   int
	shadowRings []ShadowRing
}

func (g *gen) Name() string                  { return g.name }
func (g *gen) Layout() (*LayoutTable, error) { return g.layout, nil }
func (g *gen) Window() *Window               { return g.window }

func (g *gen) Shadow() (uint32, int, []ShadowRing) {
	return g.shadowBase, g.shadowCap, g.shadowRings
}

func (g *gen) LoopCount(e Entry) (uint16, error) { return uint16(g.desc.LoopCount.Get(e)), nil }

func (g *gen) SetLoopCount(e Entry, v uint16) error {
	g.desc.LoopCount.Set(e, uint32(v))
	return nil
}

func (g *gen) BufferAddr(e Entry) (BufferAddr, error) { return g.desc.bufferAddr(e), nil }

func (g *gen) SetBufferAddr(e Entry, a BufferAddr) error {
	g.desc.setBufferAddr(e, a)
	return nil
}

func (g *gen) MSDULength(e Entry) (uint16, error) { return uint16(g.desc.MSDULength.Get(e)), nil }

func (g *gen) SetMSDULength(e Entry, n uint16) error {
	g.desc.MSDULength.Set(e, uint32(n))
	return nil
}

var generations = map[SiliconID]func() Generation{
	SiliconIPQ8074: newIPQ8074,
	SiliconQCA6390: newQCA6390,
	SiliconWCN6855: newWCN6855,
	SiliconQCN9074: newQCN9074,
}

// Lookup returns the generation of id. Unknown silicon gets the generic
// table and ok false.
func Lookup(id SiliconID) (g Generation, ok bool) {
	f, ok := generations[id]
	if !ok {
		return generic{}, false
	}
	return f(), true
}

// shadowAll lists every UMAC ring instance of the given types, in order.
func shadowAll(types ...RingType) (rings []ShadowRing) {
	for _, t := range types {
		for i := range ringTemplates {
			if ringTemplates[i].t == t {
				for n := 0; n < ringTemplates[i].max; n++ {
					rings = append(rings, ShadowRing{Type: t, RingNum: n})
				}
			}
		}
	}
	return
}
