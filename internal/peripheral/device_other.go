//go:build !linux && !darwin

package peripheral

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func newDevice() (ble.Device, error) {
	return nil, fmt.Errorf("BLE peripheral role is not supported on %s", runtime.GOOS)
}
