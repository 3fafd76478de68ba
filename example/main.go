package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/lixiangzhong/srng"
	"github.com/lixiangzhong/srng/sim"

	"github.com/garyburd/redigo/redis"
	"github.com/jpillora/backoff"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/cilium/ebpf/rlimit"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const bufSize = 2048

var (
	pciAddr   string
	ifname    string
	silicon   uint
	frames    int
	ringSize  uint
	redisAddr string
	verbose   bool
	idle      time.Duration
)

func envUint(key string, def uint) uint {
	if v, err := strconv.ParseUint(os.Getenv(key), 0, 32); err == nil {
		return uint(v)
	}
	return def
}

func init() {
	// .env is optional.
	_ = godotenv.Load()

	flag.StringVar(&pciAddr, "pci", os.Getenv("SRNG_PCI"), "PCI address of the device, simulate when empty")
	flag.StringVar(&ifname, "i", os.Getenv("SRNG_IFACE"), "use the device behind this interface")
	flag.UintVar(&silicon, "silicon", envUint("SRNG_SILICON", uint(srng.SiliconQCA6390)), "silicon id to simulate")
	flag.IntVar(&frames, "n", 64, "frames to receive")
	flag.UintVar(&ringSize, "s", envUint("SRNG_RING_SIZE", 256), "entries per ring")
	flag.StringVar(&redisAddr, "redis", os.Getenv("SRNG_REDIS"), "publish ring counters to this redis server")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.DurationVar(&idle, "idle", 5*time.Second, "give up after this long without traffic")
	flag.Parse()
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	// Ring memory is locked.
	if err := rlimit.RemoveMemlock(); err != nil {
		log.Println("remove memlock:", err)
	}
}

// memory hands out DMA memory: real locked memory for a device, heap memory
// with made up device addresses for the simulator.
type memory struct {
	real   bool
	next   uint64
	chunks []*srng.DMA
}

func (m *memory) alloc(size int) *srng.DMA {
	if m.real {
		d, err := srng.AllocDMA(size, true)
		if err != nil {
			log.Fatal(err)
		}
		m.chunks = append(m.chunks, d)
		return d
	}
	d := srng.NewDMA(make([]byte, size), m.next)
	m.next += uint64(size+0xfff) &^ 0xfff
	return d
}

func (m *memory) free() {
	for _, d := range m.chunks {
		d.Free()
	}
}

func main() {
	var (
		cfg *srng.Config
		dev *sim.Device
		mem = &memory{next: 0x4000_0000}
	)
	if pciAddr == "" && ifname != "" {
		addr, err := srng.PCIAddrOf(ifname)
		if err != nil {
			log.Fatal(err)
		}
		pciAddr = addr
	}
	if pciAddr != "" {
		pci, err := srng.OpenPCI(pciAddr)
		if err != nil {
			log.Fatal(err)
		}
		defer pci.Close()
		if err := pci.EnableBusMaster(); err != nil {
			log.Fatal(err)
		}
		mem.real = true
		defer mem.free()
		cfg = &srng.Config{
			SiliconID:   pci.SiliconID(),
			Regs:        pci.Registers(),
			PointerArea: mem.alloc(srng.PointerAreaSize),
		}
		log.Printf("device %s vendor %04x silicon %v", pciAddr, pci.Vendor, pci.SiliconID())
	} else {
		dev = sim.New(srng.SiliconID(silicon))
		cfg = dev.Config()
		log.Printf("simulating %v", srng.SiliconID(silicon))
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = srng.NewLogger(os.Stderr, level)
	cfg.Metrics = metrics.NewRegistry()

	soc, err := srng.Attach(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := soc.ConfigureShadow(); err != nil {
		log.Fatal(err)
	}
	if sc := soc.ShadowConfig(); len(sc) > 0 {
		log.Printf("shadow registers: %d", len(sc))
	}

	bufs, err := setup(soc, mem, srng.RingRxdmaBuf)
	if err != nil {
		log.Fatal(err)
	}
	defer soc.Cleanup(bufs)
	dst, err := setup(soc, mem, srng.RingReoDst)
	if err != nil {
		log.Fatal(err)
	}
	defer soc.Cleanup(dst)

	pool := srng.NewBufferPool(mem.alloc(int(ringSize)*bufSize), bufSize)
	if err := replenish(soc, bufs, pool); err != nil {
		log.Fatal(err)
	}

	if dev != nil {
		go simulate(dev, bufs, dst, pool)
	}

	start := time.Now()
	n, bytesin := receive(soc, bufs, dst, pool)
	elapsed := time.Since(start)
	log.Printf("received %d frames, %d bytes in %v (%s)", n, bytesin, elapsed,
		FormatBps(uint64(float64(bytesin)/elapsed.Seconds())))

	metrics.WriteOnce(soc.Metrics(), os.Stdout)
	if redisAddr != "" {
		if err := publish(redisAddr, soc.Metrics()); err != nil {
			log.Println(err)
		}
	}
}

func setup(soc *srng.Soc, mem *memory, t srng.RingType) (*srng.Ring, error) {
	l, err := soc.Layout()
	if err != nil {
		return nil, err
	}
	m := mem.alloc(int(ringSize * uint(l.Config(t).EntryStride)))
	return soc.Setup(t, 0, 0, &srng.RingParams{
		Buffer:           m.Mem,
		DeviceAddr:       m.Addr,
		NumEntries:       uint32(ringSize),
		IntrBatchEntries: 1,
	})
}

// replenish posts free buffers on the buffer ring.
func replenish(soc *srng.Soc, bufs *srng.Ring, pool *srng.BufferPool) error {
	if _, err := bufs.Reclaim(); err != nil {
		return err
	}
	n := bufs.NumFree()
	if a := pool.Available(); a < n {
		n = a
	}
	if n == 0 {
		return nil
	}
	es, err := bufs.Reserve(n)
	if err != nil {
		return err
	}
	g := soc.Generation()
	for _, e := range es {
		addr, ok := pool.Get()
		if !ok {
			return errors.New("buffer pool drained")
		}
		if err := g.SetBufferAddr(e, srng.BufferAddr{Addr: addr, Cookie: pool.Cookie(addr)}); err != nil {
			return err
		}
	}
	return bufs.CommitAll()
}

func receive(soc *srng.Soc, bufs, dst *srng.Ring, pool *srng.BufferPool) (n int, bytesin uint64) {
	g := soc.Generation()
	b := &backoff.Backoff{Min: 50 * time.Microsecond, Max: 20 * time.Millisecond, Factor: 2}
	opt := gopacket.DecodeOptions{NoCopy: true, Lazy: true}
	last := time.Now()
	for n < frames {
		e, err := dst.PeekNext()
		if errors.Is(err, srng.ErrNotReady) {
			if time.Since(last) > idle {
				log.Printf("no traffic for %v", idle)
				return
			}
			time.Sleep(b.Duration())
			continue
		}
		if err != nil {
			log.Fatal(err)
		}
		b.Reset()
		last = time.Now()

		ba, err := g.BufferAddr(e)
		if err != nil {
			log.Fatal(err)
		}
		length, err := g.MSDULength(e)
		if err != nil {
			log.Fatal(err)
		}
		addr := pool.AddrOf(ba.Cookie)
		p := gopacket.NewPacket(pool.Data(addr, int(length)), layers.LayerTypeDot11, opt)
		if d, ok := p.Layer(layers.LayerTypeDot11).(*layers.Dot11); ok {
			fmt.Printf("%v -> %v seq %d len %d\n", d.Address2, d.Address1, d.SequenceNumber, length)
		}
		bytesin += uint64(length)
		n++

		pool.Put(addr)
		if err := dst.Advance(); err != nil {
			log.Fatal(err)
		}
		if err := dst.PublishReplenishment(); err != nil {
			log.Fatal(err)
		}
		if err := replenish(soc, bufs, pool); err != nil {
			log.Fatal(err)
		}
	}
	return
}

// simulate plays the hardware side: it delivers frames into posted buffers.
func simulate(dev *sim.Device, bufs, dst *srng.Ring, pool *srng.BufferPool) {
	b := &backoff.Backoff{Min: 10 * time.Microsecond, Max: 5 * time.Millisecond, Factor: 2, Jitter: true}
	for seq := 0; seq < frames; {
		f, err := sim.Frame(uint16(seq), []byte(fmt.Sprintf("frame %d", seq)))
		if err != nil {
			log.Fatal(err)
		}
		err = dev.Receive(bufs, dst, f, pool.Data)
		if errors.Is(err, sim.ErrRingFull) || errors.Is(err, sim.ErrNoBuffer) {
			time.Sleep(b.Duration())
			continue
		}
		if err != nil {
			log.Fatal(err)
		}
		b.Reset()
		seq++
	}
}

// publish stores every ring counter in the redis hash srng:<pid>.
func publish(addr string, reg metrics.Registry) error {
	c, err := redis.Dial("tcp", addr)
	if err != nil {
		return errors.WithMessage(err, "redis")
	}
	defer c.Close()
	args := redis.Args{}.Add(fmt.Sprintf("srng:%d", os.Getpid()))
	reg.Each(func(name string, i interface{}) {
		if m, ok := i.(metrics.Counter); ok {
			args = args.Add(name, m.Count())
		}
	})
	if len(args) == 1 {
		return nil
	}
	_, err = c.Do("HSET", args...)
	return errors.WithMessage(err, "redis HSET")
}

func FormatBps(bytes uint64) string {
	bps := bytes * 8
	if bps < 1<<10 {
		return fmt.Sprintf("%v bps", bps)
	}
	if bps < 1<<20 {
		return fmt.Sprintf("%v kbps", bps>>10)
	}
	if bps < 1<<30 {
		return fmt.Sprintf("%v mbps", bps>>20)
	}
	return fmt.Sprintf("%v gbps", bps>>30)
}
