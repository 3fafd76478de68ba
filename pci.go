package srng

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var sysfsPCI = "/sys/bus/pci/devices"

// VendorQualcomm is the PCI vendor id of supported PCI parts.
const VendorQualcomm = 0x17cb

// PCI command register and its bus master enable bit.
const (
	pciCommand          = 0x4
	pciCommandBusMaster = 1 << 2
)

// PCIDevice is a PCI attached device with BAR 0 mapped for register access.
type PCIDevice struct {
	Addr   string
	Vendor uint16
	Device uint16

	bar  []byte
	regs *MMIO
}

// OpenPCI maps BAR 0 of the device at PCI address addr, for example
// "0000:01:00.0". The device must not be bound to a kernel driver.
func OpenPCI(addr string) (d *PCIDevice, err error) {
	d = &PCIDevice{Addr: addr}
	var v uint
	if v, err = d.readHex("vendor"); err != nil {
		return nil, err
	}
	d.Vendor = uint16(v)
	if v, err = d.readHex("device"); err != nil {
		return nil, err
	}
	d.Device = uint16(v)

	f, err := os.OpenFile(d.path("resource0"), os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errors.WithMessage(err, "pci: open bar 0")
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.WithMessage(err, "pci: stat bar 0")
	}
	if fi.Size() == 0 {
		return nil, errors.Errorf("pci: %s: empty bar 0", addr)
	}
	d.bar, err = unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.WithMessage(err, "pci: mmap bar 0")
	}
	d.regs = NewMMIO(d.bar)
	return d, nil
}

func (d *PCIDevice) path(name string) string { return filepath.Join(sysfsPCI, d.Addr, name) }

func (d *PCIDevice) readHex(name string) (v uint, err error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		return 0, errors.WithMessage(err, "pci")
	}
	defer f.Close()
	if n, err := fmt.Fscanf(f, "0x%x", &v); n != 1 || err != nil {
		return 0, errors.Errorf("pci: %s: bad %s", d.Addr, name)
	}
	return v, nil
}

// SiliconID returns the silicon id of the device: its PCI device id.
func (d *PCIDevice) SiliconID() SiliconID { return SiliconID(d.Device) }

func (d *PCIDevice) Registers() RegisterSpace { return d.regs }

// EnableBusMaster sets bus master enable in the command register so the
// device can reach ring memory.
func (d *PCIDevice) EnableBusMaster() error {
	f, err := os.OpenFile(d.path("config"), os.O_RDWR, 0)
	if err != nil {
		return errors.WithMessage(err, "pci: config")
	}
	defer f.Close()
	var b [2]byte
	if _, err = f.ReadAt(b[:], pciCommand); err != nil {
		return errors.WithMessage(err, "pci: read command")
	}
	if b[0]&pciCommandBusMaster != 0 {
		return nil
	}
	b[0] |= pciCommandBusMaster
	_, err = f.WriteAt(b[:], pciCommand)
	return errors.WithMessage(err, "pci: write command")
}

func (d *PCIDevice) Close() error {
	if d.bar == nil {
		return nil
	}
	err := unix.Munmap(d.bar)
	d.bar, d.regs = nil, nil
	return errors.WithMessage(err, "pci: munmap bar 0")
}
