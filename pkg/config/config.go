package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/gatt"
	"gopkg.in/yaml.v3"
)

// Sensor kinds
const (
	SensorSimulated = "simulated"
	SensorFile      = "file"
	SensorStdin     = "stdin"
)

// Config holds application configuration
type Config struct {
	LogLevel          string        `yaml:"log_level" default:"info"`
	DeviceName        string        `yaml:"device_name" default:"EDA"`
	ReplayOnReconnect bool          `yaml:"replay_on_reconnect" default:"true"`
	Service           ServiceConfig `yaml:"service"`
	Sensor            SensorConfig  `yaml:"sensor"`
}

// ServiceConfig mirrors eda.Config with security levels given by name
// ("no_access", "open", "just_works", "mitm", "lesc_mitm", "signed",
// "signed_mitm").
type ServiceConfig struct {
	SupportNotification bool                   `yaml:"support_notification" default:"true"`
	InitialLevel        uint8                  `yaml:"initial_level" default:"0"`
	ReportReference     *ReportReferenceConfig `yaml:"report_reference,omitempty"`
	ReadAccess          string                 `yaml:"read_access" default:"open"`
	CCCDWriteAccess     string                 `yaml:"cccd_write_access" default:"open"`
	ReportReadAccess    string                 `yaml:"report_read_access" default:"open"`
}

type ReportReferenceConfig struct {
	ID   uint8  `yaml:"id"`
	Type string `yaml:"type" default:"input"` // input, output, feature
}

// SensorConfig selects where levels come from.
type SensorConfig struct {
	Kind       string        `yaml:"kind" default:"simulated"` // simulated, file, stdin
	Interval   time.Duration `yaml:"interval" default:"1s"`
	Path       string        `yaml:"path,omitempty"`
	Seed       int64         `yaml:"seed" default:"1"`
	BufferSize uint32        `yaml:"buffer_size" default:"16"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML configuration from r over the defaults.
func Decode(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if rr := cfg.Service.ReportReference; rr != nil && rr.Type == "" {
		defaults.SetDefaults(rr)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field that is parsed later.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		errs = append(errs, errors.New("device_name: must not be empty"))
	}
	if _, err := c.Service.securityLevels(); err != nil {
		errs = append(errs, err)
	}
	if rr := c.Service.ReportReference; rr != nil {
		if _, err := gatt.ParseReportType(rr.Type); err != nil {
			errs = append(errs, fmt.Errorf("service.report_reference.type: %w", err))
		}
	}

	switch c.Sensor.Kind {
	case SensorSimulated, SensorStdin:
	case SensorFile:
		if c.Sensor.Path == "" {
			errs = append(errs, errors.New("sensor.path: required for file sensor"))
		}
	default:
		errs = append(errs, fmt.Errorf("sensor.kind: unknown kind %q", c.Sensor.Kind))
	}
	if c.Sensor.Interval < 0 {
		errs = append(errs, fmt.Errorf("sensor.interval: must not be negative, got %v", c.Sensor.Interval))
	}
	if c.Sensor.BufferSize == 0 {
		errs = append(errs, errors.New("sensor.buffer_size: must be > 0"))
	}

	return errors.Join(errs...)
}

type securityLevels struct {
	read, cccdWrite, reportRead gatt.SecurityReq
}

func (s ServiceConfig) securityLevels() (securityLevels, error) {
	var (
		levels securityLevels
		err    error
	)
	if levels.read, err = gatt.ParseSecurityReq(s.ReadAccess); err != nil {
		return levels, fmt.Errorf("service.read_access: %w", err)
	}
	if levels.cccdWrite, err = gatt.ParseSecurityReq(s.CCCDWriteAccess); err != nil {
		return levels, fmt.Errorf("service.cccd_write_access: %w", err)
	}
	if levels.reportRead, err = gatt.ParseSecurityReq(s.ReportReadAccess); err != nil {
		return levels, fmt.Errorf("service.report_read_access: %w", err)
	}
	return levels, nil
}

// EDAConfig converts the service section into an eda.Config.
func (c *Config) EDAConfig(handler eda.EventHandler) (eda.Config, error) {
	sec, err := c.Service.securityLevels()
	if err != nil {
		return eda.Config{}, err
	}

	out := eda.Config{
		EventHandler:        handler,
		SupportNotification: c.Service.SupportNotification,
		InitialLevel:        eda.Level(c.Service.InitialLevel),
		ReadAccess:          sec.read,
		CCCDWriteAccess:     sec.cccdWrite,
		ReportReadAccess:    sec.reportRead,
	}
	if rr := c.Service.ReportReference; rr != nil {
		typ, err := gatt.ParseReportType(rr.Type)
		if err != nil {
			return eda.Config{}, fmt.Errorf("service.report_reference.type: %w", err)
		}
		out.ReportRef = &gatt.ReportReference{ID: rr.ID, Type: typ}
	}
	return out, nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// NewLogger creates a configured logger instance. An unparsable level falls
// back to info.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
