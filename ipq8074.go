package srng

// IPQ8074 sits on the AHB with its whole register space mapped, so no
// windowing, and has no shadow registers.
type ipq8074 struct {
	gen
}

// Size of the directly mapped register space.
const IPQ8074RegSize = 0x00b00000

var ipq8074Bases = blockBases{
	reo:      0x00a38000,
	tcl:      0x00a44000,
	wbm:      0x00a34000,
	ceSrc:    0x00a00000,
	ceDst:    0x00a01000,
	ceStride: 0x2000,
}

// Descriptor packing shared by the first generation parts.
var hal1Desc = DescLayout{
	LoopCount:  Field{Word: -1, Shift: 16, Width: 16},
	AddrLo:     Field{Word: 0, Shift: 0, Width: 32},
	AddrHi:     Field{Word: 1, Shift: 0, Width: 8},
	Manager:    Field{Word: 1, Shift: 8, Width: 3},
	Cookie:     Field{Word: 1, Shift: 11, Width: 21},
	MSDULength: Field{Word: 2, Shift: 0, Width: 14},
}

func newIPQ8074() Generation {
	return &ipq8074{gen{
		name:   "ipq8074",
		layout: newLayoutTable(ipq8074Bases),
		desc:   hal1Desc,
	}}
}
