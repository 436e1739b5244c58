package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/peripheral"
)

// Command-level errors
var (
	// ErrScenario marks a scenario file that cannot be played.
	ErrScenario = errors.New("invalid scenario")
)

// FormatUserError turns an error chain into a single line for the terminal.
// Known failure classes get a hint; everything else is printed as is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())

	switch {
	case errors.Is(err, os.ErrNotExist):
		return msg + " (check the --config / sensor.path value)"
	case errors.Is(err, os.ErrPermission):
		return msg + " (the BLE adapter usually needs root or CAP_NET_ADMIN)"
	case errors.Is(err, peripheral.ErrDispatcherStopped):
		return "shutting down: " + msg
	case gatt.KindOf(err) == gatt.RegistrationFailed:
		return fmt.Sprintf("%s (the GATT table rejected the EDA service)", msg)
	}
	return msg
}
