package srng

// QCA6390 is a PCI part: registers are reached through the umac and ce
// windows and pointer updates go through shadow registers.
type qca6390 struct {
	gen
}

const (
	qca6390ShadowBase = 0x000008fc
	qca6390ShadowRegs = 36
)

var qca6390Bases = blockBases{
	reo:      0x00a38000,
	tcl:      0x00a44000,
	wbm:      0x00a34000,
	ceSrc:    0x01b80000,
	ceDst:    0x01b81000,
	ceStride: 0x2000,
}

var (
	umacWindow = WindowRange{Name: "umac", Base: 0x00a00000}
	ceWindow   = WindowRange{Name: "ce", Base: 0x01b80000}
)

func newQCA6390() Generation {
	return &qca6390{gen{
		name:       "qca6390",
		layout:     newLayoutTable(qca6390Bases),
		window:     NewWindow(umacWindow, ceWindow),
		desc:       hal1Desc,
		shadowBase: qca6390ShadowBase,
		shadowCap:  qca6390ShadowRegs,
		// CE rings first, then the data path rings. Fills all 36 slots.
		shadowRings: shadowAll(RingCeSrc, RingCeDst, RingReoDst, RingTclData, RingWbm2SwRelease),
	}}
}
