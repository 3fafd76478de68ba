package srng

import "testing"

func TestWindowTranslate(t *testing.T) {
	w := NewWindow(umacWindow, ceWindow, memWindow)
	for _, tc := range []struct {
		addr, want uint32
	}{
		{0x0, 0x0},
		{WindowSelectReg, WindowSelectReg},
		{0x7fffc, 0x7fffc},
		{0xa00000, 0x80000},
		{0xa3b044, 0x80000 + 0x3b044},
		{0x1b80000, 0x100000},
		{0x1b81400, 0x101400},
		{0x1e00010, 0x180010},
		{0x1e7fffc, 0x1ffffc},
	} {
		if got := w.Translate(tc.addr); got != tc.want {
			t.Errorf("Translate(0x%x) = 0x%x, want 0x%x", tc.addr, got, tc.want)
		}
	}
}

func TestWindowRangesDistinct(t *testing.T) {
	w := NewWindow(umacWindow, ceWindow, memWindow)
	seen := make(map[uint32]string)
	for _, r := range w.Ranges() {
		for _, off := range []uint32{0, 4, WindowRangeMask &^ 3} {
			a := w.Translate(r.Base + off)
			if a < WindowStart || a >= WindowedRegSize {
				t.Errorf("%s+0x%x: aperture offset 0x%x outside windows", r.Name, off, a)
			}
			if prev, ok := seen[a]; ok {
				t.Errorf("%s+0x%x and %s map to 0x%x", r.Name, off, prev, a)
			}
			seen[a] = r.Name
		}
	}
}

func TestWindowTranslateMissPanics(t *testing.T) {
	w := NewWindow(umacWindow, ceWindow)
	defer func() {
		if recover() == nil {
			t.Error("no panic for unmapped address")
		}
	}()
	w.Translate(memWindow.Base)
}

func TestWindowSelectValue(t *testing.T) {
	w := NewWindow(umacWindow, ceWindow, memWindow)
	want := uint32(WindowEnable) | 0x14 | 0x37<<6 | 0x3c<<12
	if got := w.SelectValue(); got != want {
		t.Errorf("got 0x%x, want 0x%x", got, want)
	}

	regs := NewMMIO(make([]byte, WindowedRegSize))
	w.Program(regs)
	if got := regs.Read32(WindowSelectReg); got != want {
		t.Errorf("select register 0x%x, want 0x%x", got, want)
	}
}

func TestWindowedRegs(t *testing.T) {
	raw := NewMMIO(make([]byte, WindowedRegSize))
	w := NewWindow(umacWindow, ceWindow)
	regs := Windowed(raw, w)
	regs.Write32(0xa3b044, 0x1234)
	if got := raw.Read32(0x80000 + 0x3b044); got != 0x1234 {
		t.Errorf("raw aperture read 0x%x", got)
	}
	if got := regs.Read32(0xa3b044); got != 0x1234 {
		t.Errorf("windowed read 0x%x", got)
	}
	if Windowed(raw, nil) != RegisterSpace(raw) {
		t.Error("nil window wrapped the register space")
	}
}

func TestNewWindowValidation(t *testing.T) {
	for name, ranges := range map[string][]WindowRange{
		"none":      nil,
		"too many":  {umacWindow, ceWindow, memWindow, {Name: "x", Base: 0x2000000}},
		"unaligned": {{Name: "x", Base: 0xa00100}},
		"direct":    {{Name: "x", Base: 0}},
		"overlap":   {umacWindow, {Name: "x", Base: 0xa00000}},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: no panic", name)
				}
			}()
			NewWindow(ranges...)
		}()
	}
}
