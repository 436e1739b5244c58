//go:build darwin

package peripheral

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newDevice() (ble.Device, error) {
	dev, err := darwin.NewDevice(ble.OptPeripheralRole())
	if err != nil {
		return nil, err
	}
	return dev, nil
}
