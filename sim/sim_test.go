package sim

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/lixiangzhong/srng"
)

func attach(t *testing.T, id srng.SiliconID) (*Device, *srng.Soc) {
	t.Helper()
	d := New(id)
	cfg := d.Config()
	cfg.Logger = srng.NewLogger(io.Discard, slog.LevelDebug)
	s, err := srng.Attach(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.ConfigureShadow(); err != nil {
		t.Fatal(err)
	}
	return d, s
}

func setup(t *testing.T, s *srng.Soc, rt srng.RingType, entries uint32, flags srng.Flags) *srng.Ring {
	t.Helper()
	l, err := s.Layout()
	if err != nil {
		t.Fatal(err)
	}
	r, err := s.Setup(rt, 0, 0, &srng.RingParams{
		Buffer:     make([]byte, entries*l.Config(rt).EntryStride),
		NumEntries: entries,
		Flags:      flags,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestConsume(t *testing.T) {
	for _, id := range []srng.SiliconID{srng.SiliconIPQ8074, srng.SiliconQCA6390} {
		d, s := attach(t, id)
		r := setup(t, s, srng.RingTclData, 8, 0)
		r.Reserve(3)
		r.CommitAll()

		var seen int
		if n := d.Consume(r, 10, func(srng.Entry) { seen++ }); n != 3 || seen != 3 {
			t.Errorf("%v: consumed %d, saw %d", id, n, seen)
		}
		if n, err := r.Reclaim(); err != nil || n != 3 {
			t.Errorf("%v: reclaim %d, %v", id, n, err)
		}
		if n := d.Consume(r, 10, nil); n != 0 {
			t.Errorf("%v: consumed %d from an idle ring", id, n)
		}
	}
}

func TestProduceFlowControl(t *testing.T) {
	d, s := attach(t, srng.SiliconWCN6855)
	r := setup(t, s, srng.RingReoDst, 4, srng.FlagRingPtrSwap)
	for i := 0; i < 3; i++ {
		if err := d.Produce(r, nil); err != nil {
			t.Fatalf("produce %d: %v", i, err)
		}
	}
	if err := d.Produce(r, nil); !errors.Is(err, ErrRingFull) {
		t.Fatalf("produce on full ring: %v", err)
	}
	if d.HWPointer(r) != 3 {
		t.Errorf("hardware head %d", d.HWPointer(r))
	}

	if _, err := r.PeekNext(); err != nil {
		t.Fatal(err)
	}
	r.Advance()
	r.PublishReplenishment()
	if d.HostPointer(r) != 1 {
		t.Fatalf("published tail %d", d.HostPointer(r))
	}
	if err := d.Produce(r, nil); err != nil {
		t.Fatalf("produce after replenishment: %v", err)
	}

	// The fourth entry wrapped: index 3 at loop 1.
	for i := 0; i < 3; i++ {
		if _, err := r.PeekNext(); err != nil {
			t.Fatalf("entry %d: %v", r.Tail(), err)
		}
		r.Advance()
	}
	if _, err := r.PeekNext(); !errors.Is(err, srng.ErrNotReady) {
		t.Errorf("entry 0 of the next loop: %v", err)
	}
}

func TestReceive(t *testing.T) {
	for _, id := range []srng.SiliconID{srng.SiliconIPQ8074, srng.SiliconQCA6390, srng.SiliconQCN9074} {
		d, s := attach(t, id)
		bufs := setup(t, s, srng.RingRxdmaBuf, 16, 0)
		dst := setup(t, s, srng.RingReoDst, 16, srng.FlagDataTLVSwap)
		pool := srng.NewBufferPool(srng.NewDMA(make([]byte, 8*2048), 0x2000_0000), 2048)
		g := s.Generation()

		frame, err := Frame(42, []byte("hello"))
		if err != nil {
			t.Fatal(err)
		}
		if err := d.Receive(bufs, dst, frame, pool.Data); !errors.Is(err, ErrNoBuffer) {
			t.Fatalf("%v: receive without buffers: %v", id, err)
		}

		es, err := bufs.Reserve(4)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range es {
			addr, _ := pool.Get()
			g.SetBufferAddr(e, srng.BufferAddr{Addr: addr, Cookie: pool.Cookie(addr)})
		}
		bufs.CommitAll()

		if err := d.Receive(bufs, dst, frame, pool.Data); err != nil {
			t.Fatalf("%v: %v", id, err)
		}
		e, err := dst.PeekNext()
		if err != nil {
			t.Fatalf("%v: %v", id, err)
		}
		ba, _ := g.BufferAddr(e)
		n, _ := g.MSDULength(e)
		if ba.Addr != pool.AddrOf(ba.Cookie) || int(n) != len(frame) {
			t.Fatalf("%v: buffer %+v length %d", id, ba, n)
		}
		data := pool.Data(ba.Addr, int(n))
		if !bytes.Equal(data, frame) {
			t.Fatalf("%v: frame not copied", id)
		}

		p := gopacket.NewPacket(data, layers.LayerTypeDot11, gopacket.Default)
		dot11, ok := p.Layer(layers.LayerTypeDot11).(*layers.Dot11)
		if !ok {
			t.Fatalf("%v: no 802.11 layer", id)
		}
		if dot11.SequenceNumber != 42 || !bytes.Equal(dot11.Address2, Station) || !dot11.ChecksumValid() {
			t.Errorf("%v: decoded seq %d from %v", id, dot11.SequenceNumber, dot11.Address2)
		}

		dst.Advance()
		if n, _ := bufs.Reclaim(); n != 1 {
			t.Errorf("%v: reclaimed %d buffers", id, n)
		}
	}
}
