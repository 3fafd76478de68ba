package srng

import (
	"fmt"

	"github.com/pkg/errors"
)

// Register windowing. The device exposes a 2MB aperture: the low WindowStart
// bytes are always mapped, and each following WindowStart sized slot maps
// one WindowRange sized region of the full register space selected through
// the window select register.
const (
	WindowStart     = 0x80000
	WindowShift     = 19
	WindowRangeMask = 0x7ffff
	WindowValueMask = 0x3f
	WindowEnable    = 0x40000000
	WindowSelectReg = 0x310c
	MaxWindows      = 3

	// Size of the BAR a windowed generation needs.
	WindowedRegSize = WindowStart * (MaxWindows + 1)
)

// WindowRange is one statically mapped register region.
type WindowRange struct {
	Name string
	Base uint32
}

// Window maps full register space addresses onto the aperture.
type Window struct {
	ranges []WindowRange
}

// NewWindow returns a window mapping ranges onto consecutive aperture slots.
// Bases must be WindowStart aligned, above the direct region and distinct.
func NewWindow(ranges ...WindowRange) *Window {
	if len(ranges) == 0 || len(ranges) > MaxWindows {
		panic(fmt.Errorf("srng: %d register windows, want 1..%d", len(ranges), MaxWindows))
	}
	for i, r := range ranges {
		if r.Base&WindowRangeMask != 0 || r.Base < WindowStart {
			panic(fmt.Errorf("srng: window %s base 0x%x not aligned", r.Name, r.Base))
		}
		for _, o := range ranges[:i] {
			if o.Base>>WindowShift == r.Base>>WindowShift {
				panic(fmt.Errorf("srng: windows %s and %s overlap", o.Name, r.Name))
			}
		}
	}
	return &Window{ranges: append([]WindowRange(nil), ranges...)}
}

func (w *Window) Ranges() []WindowRange { return w.ranges }

// Translate returns the aperture offset of addr. Addresses in the direct
// region map to themselves. An address no window covers panics: writing it
// anywhere would hit an unrelated register.
func (w *Window) Translate(addr uint32) uint32 {
	if addr < WindowStart {
		return addr
	}
	for i := range w.ranges {
		if (addr^w.ranges[i].Base)&^WindowRangeMask == 0 {
			return WindowStart*uint32(i+1) + addr&WindowRangeMask
		}
	}
	panic(errors.WithMessagef(ErrCorruption, "register address 0x%x outside all register windows", addr))
}

// SelectValue is the window select register value mapping every range.
func (w *Window) SelectValue() (v uint32) {
	v = WindowEnable
	for i := range w.ranges {
		v |= (w.ranges[i].Base >> WindowShift & WindowValueMask) << (6 * uint(i))
	}
	return
}

// Program writes the window select register. Called once at attach, before
// any windowed access.
func (w *Window) Program(regs RegisterSpace) {
	regs.Write32(WindowSelectReg, w.SelectValue())
}

type windowedRegs struct {
	RegisterSpace
	w *Window
}

// Windowed returns regs with every access translated through w.
func Windowed(regs RegisterSpace, w *Window) RegisterSpace {
	if w == nil {
		return regs
	}
	return &windowedRegs{RegisterSpace: regs, w: w}
}

func (r *windowedRegs) Read32(off uint32) uint32 {
	return r.RegisterSpace.Read32(r.w.Translate(off))
}

func (r *windowedRegs) Write32(off uint32, v uint32) {
	r.RegisterSpace.Write32(r.w.Translate(off), v)
}
