package srng

// QCN9074 maps a third window onto target memory, has no shadow registers
// and packs descriptors differently: the loop count moves to the low half of
// the last word and the cookie sits below the return buffer manager.
type qcn9074 struct {
	gen
}

var memWindow = WindowRange{Name: "mem", Base: 0x01e00000}

var qcn9074Desc = DescLayout{
	LoopCount:  Field{Word: -1, Shift: 0, Width: 16},
	AddrLo:     Field{Word: 0, Shift: 0, Width: 32},
	AddrHi:     Field{Word: 1, Shift: 0, Width: 8},
	Cookie:     Field{Word: 1, Shift: 8, Width: 21},
	Manager:    Field{Word: 1, Shift: 29, Width: 3},
	MSDULength: Field{Word: 2, Shift: 16, Width: 14},
}

func newQCN9074() Generation {
	return &qcn9074{gen{
		name:   "qcn9074",
		layout: newLayoutTable(qca6390Bases),
		window: NewWindow(umacWindow, ceWindow, memWindow),
		desc:   qcn9074Desc,
	}}
}
