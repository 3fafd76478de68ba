package srng

// WCN6855 keeps the QCA6390 register map but has a larger shadow register
// file, enough to also shadow the REO command and status rings.
type wcn6855 struct {
	gen
}

const (
	wcn6855ShadowBase = 0x000008fc
	wcn6855ShadowRegs = 40
)

func newWCN6855() Generation {
	return &wcn6855{gen{
		name:       "wcn6855",
		layout:     newLayoutTable(qca6390Bases),
		window:     NewWindow(umacWindow, ceWindow),
		desc:       hal1Desc,
		shadowBase: wcn6855ShadowBase,
		shadowCap:  wcn6855ShadowRegs,
		shadowRings: shadowAll(RingCeSrc, RingCeDst, RingReoDst, RingTclData, RingWbm2SwRelease,
			RingReoCmd, RingReoStatus),
	}}
}
