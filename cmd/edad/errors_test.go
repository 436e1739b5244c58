package main

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/peripheral"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
		{
			name:     "plain error unchanged",
			err:      errors.New("boom"),
			expected: "boom",
		},
		{
			name:     "missing file gets a hint",
			err:      fmt.Errorf("failed to open config: %w", os.ErrNotExist),
			expected: "failed to open config: file does not exist (check the --config / sensor.path value)",
		},
		{
			name:     "permission gets a hint",
			err:      fmt.Errorf("hci0: %w", os.ErrPermission),
			expected: "hci0: permission denied (the BLE adapter usually needs root or CAP_NET_ADMIN)",
		},
		{
			name:     "stopped dispatcher",
			err:      fmt.Errorf("publish: %w", peripheral.ErrDispatcherStopped),
			expected: "shutting down: publish: " + peripheral.ErrDispatcherStopped.Error(),
		},
		{
			name:     "registration failure",
			err:      gatt.Wrap(gatt.RegistrationFailed, "eda init", errors.New("table full")),
			expected: "eda init: registration_failed: table full (the GATT table rejected the EDA service)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err))
		})
	}
}
