package sim

import (
	"encoding/binary"
	"hash/crc32"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	// Addresses of simulated traffic.
	BSSID   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	Station = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Frame returns an 802.11 data frame from Station to BSSID with sequence
// number seq, carrying payload and a trailing FCS.
func Frame(seq uint16, payload []byte) ([]byte, error) {
	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeData,
		Flags:          layers.Dot11FlagsToDS,
		Address1:       BSSID,
		Address2:       Station,
		Address3:       BSSID,
		SequenceNumber: seq & 0xfff,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, dot11, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	fcs := make([]byte, 4)
	binary.LittleEndian.PutUint32(fcs, crc32.ChecksumIEEE(b))
	return append(b, fcs...), nil
}
