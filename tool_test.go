package srng

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func TestDriverInfo(t *testing.T) {
	var di unix.EthtoolDrvinfo
	copy(di.Driver[:], "ath11k_pci")
	copy(di.Version[:], "6.1")
	copy(di.Fw_version[:], "WLAN.HSP.1.1")
	copy(di.Bus_info[:], "0000:01:00.0\x00stale")

	info := driverInfo(&di)
	want := DriverInfo{Driver: "ath11k_pci", Version: "6.1", Firmware: "WLAN.HSP.1.1", BusInfo: "0000:01:00.0"}
	if info != want {
		t.Fatalf("got %+v", info)
	}
	if addr, err := busAddr("wlan0", info); err != nil || addr != "0000:01:00.0" {
		t.Errorf("bus address %q, %v", addr, err)
	}
	if _, err := busAddr("wlan0", DriverInfo{Driver: "mac80211_hwsim"}); err == nil {
		t.Error("empty bus info accepted")
	}
}

func TestGetDriverInfoBadName(t *testing.T) {
	for _, name := range []string{"", strings.Repeat("w", unix.IFNAMSIZ)} {
		if _, err := GetDriverInfo(name); !errors.Is(err, unix.EINVAL) {
			t.Errorf("%q: %v", name, err)
		}
	}
	if err := checkIfname(strings.Repeat("w", unix.IFNAMSIZ-1)); err != nil {
		t.Errorf("longest name rejected: %v", err)
	}
}
