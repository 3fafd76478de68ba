package srng

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DriverInfo is what the kernel driver of a network interface reports.
type DriverInfo struct {
	Driver   string
	Version  string
	Firmware string
	// PCI address for PCI devices.
	BusInfo string
}

func driverInfo(di *unix.EthtoolDrvinfo) DriverInfo {
	return DriverInfo{
		Driver:   unix.ByteSliceToString(di.Driver[:]),
		Version:  unix.ByteSliceToString(di.Version[:]),
		Firmware: unix.ByteSliceToString(di.Fw_version[:]),
		BusInfo:  unix.ByteSliceToString(di.Bus_info[:]),
	}
}

func checkIfname(ifname string) error {
	if len(ifname) == 0 || len(ifname) >= unix.IFNAMSIZ {
		return errors.WithMessagef(unix.EINVAL, "interface name %q", ifname)
	}
	return nil
}

// GetDriverInfo queries the driver of interface ifname with ETHTOOL_GDRVINFO.
func GetDriverInfo(ifname string) (info DriverInfo, err error) {
	if err = checkIfname(ifname); err != nil {
		return info, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return info, errors.WithMessage(err, "GetDriverInfo.Socket")
	}
	defer unix.Close(fd)
	di, err := unix.IoctlGetEthtoolDrvinfo(fd, ifname)
	if err != nil {
		return info, errors.WithMessage(err, "GetDriverInfo.ioctl")
	}
	return driverInfo(di), nil
}

// PCIAddrOf returns the PCI address of the device behind interface ifname.
func PCIAddrOf(ifname string) (string, error) {
	info, err := GetDriverInfo(ifname)
	if err != nil {
		return "", err
	}
	return busAddr(ifname, info)
}

func busAddr(ifname string, info DriverInfo) (string, error) {
	if info.BusInfo == "" {
		return "", errors.Errorf("%s: driver %s reports no bus address", ifname, info.Driver)
	}
	return info.BusInfo, nil
}
