package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "EDA", cfg.DeviceName)
	assert.True(t, cfg.ReplayOnReconnect)
	assert.True(t, cfg.Service.SupportNotification)
	assert.Equal(t, uint8(0), cfg.Service.InitialLevel)
	assert.Nil(t, cfg.Service.ReportReference)
	assert.Equal(t, "open", cfg.Service.ReadAccess)
	assert.Equal(t, "open", cfg.Service.CCCDWriteAccess)
	assert.Equal(t, SensorSimulated, cfg.Sensor.Kind)
	assert.Equal(t, time.Second, cfg.Sensor.Interval)
	assert.Equal(t, int64(1), cfg.Sensor.Seed)
	assert.Equal(t, uint32(16), cfg.Sensor.BufferSize)
	assert.NoError(t, cfg.Validate())
}

func TestDecode(t *testing.T) {
	input := `
log_level: debug
device_name: Wristband
replay_on_reconnect: false
service:
  support_notification: true
  initial_level: 42
  report_reference:
    id: 3
  read_access: mitm
  cccd_write_access: just-works
sensor:
  kind: file
  path: levels.txt
  interval: 250ms
`
	cfg, err := Decode(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Wristband", cfg.DeviceName)
	assert.False(t, cfg.ReplayOnReconnect)
	assert.Equal(t, uint8(42), cfg.Service.InitialLevel)
	require.NotNil(t, cfg.Service.ReportReference)
	assert.Equal(t, "input", cfg.Service.ReportReference.Type, "missing type takes its default")
	assert.Equal(t, "open", cfg.Service.ReportReadAccess, "untouched keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Sensor.Interval)
	assert.Equal(t, uint32(16), cfg.Sensor.BufferSize)
}

func TestDecode_ExampleFile(t *testing.T) {
	// The shipped example documents the defaults, so decoding it must change nothing
	data, err := testutils.LoadFixture("examples/edad.yaml")
	require.NoError(t, err)

	cfg, err := Decode(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "unknown key", input: "colour: red\n", want: "colour"},
		{name: "bad log level", input: "log_level: loud\n", want: "log_level"},
		{name: "bad security", input: "service:\n  read_access: maybe\n", want: "service.read_access"},
		{name: "bad report type", input: "service:\n  report_reference:\n    type: sideways\n", want: "report_reference.type"},
		{name: "level out of range", input: "service:\n  initial_level: 300\n", want: "uint8"},
		{name: "unknown sensor", input: "sensor:\n  kind: laser\n", want: "sensor.kind"},
		{name: "file without path", input: "sensor:\n  kind: file\n", want: "sensor.path"},
		{name: "negative interval", input: "sensor:\n  interval: -1s\n", want: "sensor.interval"},
		{name: "empty name", input: "device_name: ' '\n", want: "device_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_name: Lab\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Lab", cfg.DeviceName)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_EDAConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Service.InitialLevel = 9
	cfg.Service.ReadAccess = "lesc_mitm"
	cfg.Service.ReportReadAccess = "no_access"
	cfg.Service.ReportReference = &ReportReferenceConfig{ID: 2, Type: "feature"}

	called := false
	out, err := cfg.EDAConfig(func(*eda.Service, eda.Event) { called = true })
	require.NoError(t, err)

	assert.True(t, out.SupportNotification)
	assert.Equal(t, eda.Level(9), out.InitialLevel)
	assert.Equal(t, gatt.SecLESCMITM, out.ReadAccess)
	assert.Equal(t, gatt.SecOpen, out.CCCDWriteAccess)
	assert.Equal(t, gatt.SecNoAccess, out.ReportReadAccess)
	assert.Equal(t, &gatt.ReportReference{ID: 2, Type: gatt.ReportTypeFeature}, out.ReportRef)

	out.EventHandler(nil, eda.Event{})
	assert.True(t, called)

	cfg.Service.CCCDWriteAccess = "bogus"
	_, err = cfg.EDAConfig(nil)
	assert.Error(t, err)
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Service.ReportReference = &ReportReferenceConfig{ID: 1, Type: "input"}

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "interval: 1s")

	back, err := Decode(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "creates logger with trace level", logLevel: "trace", want: logrus.TraceLevel},
		{name: "falls back to info", logLevel: "chatty", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
