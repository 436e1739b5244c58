// Package eda implements the EDA GATT service: one notifiable "EDA level"
// characteristic holding a 2-byte big-endian reading.
//
// A Service registers itself with a gatt.Registry on construction, turns CCCD
// writes into NotificationEnabled/NotificationDisabled events for the
// application, and pushes level updates to connected peers through a
// gatt.NotificationTransport.
//
// Service is not safe for concurrent use. All methods, including OnEvent, must
// be called from the single goroutine that dispatches stack events.
package eda

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/gatt"
)

// 16-bit identifiers of the service and its level characteristic
const (
	ServiceUUID16   = 0xFDB7
	LevelCharUUID16 = 0xFDB8
)

var (
	ServiceUUID   = ble.UUID16(ServiceUUID16)
	LevelCharUUID = ble.UUID16(LevelCharUUID16)
)

// EventType is the kind of event delivered to the application handler.
type EventType int

const (
	NotificationEnabled EventType = iota
	NotificationDisabled
)

func (t EventType) String() string {
	switch t {
	case NotificationEnabled:
		return "notification_enabled"
	case NotificationDisabled:
		return "notification_disabled"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event reports a CCCD change on one connection.
type Event struct {
	Type EventType
	Conn gatt.ConnHandle
}

// EventHandler receives service events synchronously on the dispatch goroutine.
type EventHandler func(s *Service, ev Event)

// Config holds everything needed to initialize a Service. It is not retained.
type Config struct {
	EventHandler        EventHandler
	SupportNotification bool
	// ReportRef adds a Report Reference descriptor when non-nil.
	ReportRef        *gatt.ReportReference
	InitialLevel     Level
	ReadAccess       gatt.SecurityReq
	CCCDWriteAccess  gatt.SecurityReq
	ReportReadAccess gatt.SecurityReq
}

// Stack bundles the collaborators a Service is built against.
type Stack struct {
	Registry  gatt.Registry
	Conns     gatt.ConnectionDirectory
	Transport gatt.NotificationTransport
	Logger    *logrus.Logger
}

// Service is one registered instance of the EDA service.
type Service struct {
	registry  gatt.Registry
	conns     gatt.ConnectionDirectory
	transport gatt.NotificationTransport
	logger    *logrus.Logger
	handler   EventHandler

	serviceHandle         gatt.ServiceHandle
	levelHandles          gatt.CharacteristicHandles
	reportRefHandle       gatt.AttrHandle
	notificationSupported bool

	initialLevel Level
	lastLevel    Level
	lastSet      bool
}

// New registers the service and its level characteristic. On failure no
// Service is returned; attributes already accepted by the registry stay there.
func New(cfg *Config, stack Stack) (*Service, error) {
	const op = "eda init"

	if cfg == nil {
		return nil, &gatt.Error{Kind: gatt.NullArgument, Op: op, Err: fmt.Errorf("config is nil")}
	}
	if stack.Registry == nil || stack.Conns == nil || stack.Transport == nil {
		return nil, &gatt.Error{Kind: gatt.NullArgument, Op: op, Err: fmt.Errorf("stack collaborator is nil")}
	}

	logger := stack.Logger
	if logger == nil {
		logger = logrus.New()
	}

	s := &Service{
		registry:              stack.Registry,
		conns:                 stack.Conns,
		transport:             stack.Transport,
		logger:                logger,
		handler:               cfg.EventHandler,
		reportRefHandle:       gatt.InvalidHandle,
		notificationSupported: cfg.SupportNotification,
		initialLevel:          cfg.InitialLevel,
	}

	var err error
	s.serviceHandle, err = s.registry.AddService(gatt.ServicePrimary, ServiceUUID)
	if err != nil {
		return nil, gatt.Wrap(gatt.RegistrationFailed, "add service", err)
	}

	if err := s.addLevelChar(cfg); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"service":    s.serviceHandle,
		"value":      s.levelHandles.Value,
		"cccd":       s.levelHandles.CCCD,
		"report_ref": s.reportRefHandle,
		"notify":     s.notificationSupported,
	}).Info("EDA service registered")

	return s, nil
}

func (s *Service) addLevelChar(cfg *Config) error {
	props := ble.CharRead
	if cfg.SupportNotification {
		props |= ble.CharNotify
	}
	initial := EncodeLevel(cfg.InitialLevel)

	handles, err := s.registry.AddCharacteristic(s.serviceHandle, gatt.CharacteristicParams{
		UUID:            LevelCharUUID,
		Props:           props,
		MaxLen:          LevelLen,
		InitValue:       initial[:],
		ReadAccess:      cfg.ReadAccess,
		CCCDWriteAccess: cfg.CCCDWriteAccess,
	})
	if err != nil {
		return gatt.Wrap(gatt.RegistrationFailed, "add level characteristic", err)
	}
	s.levelHandles = handles

	if cfg.ReportRef == nil {
		return nil
	}

	encoded := cfg.ReportRef.Encode()
	h, err := s.registry.AddDescriptor(handles.Value, gatt.DescriptorParams{
		UUID:       gatt.ReportReferenceUUID,
		MaxLen:     len(encoded),
		Value:      encoded,
		ReadAccess: cfg.ReportReadAccess,
	})
	if err != nil {
		return gatt.Wrap(gatt.RegistrationFailed, "add report reference", err)
	}
	s.reportRefHandle = h
	return nil
}

func (s *Service) ServiceHandle() gatt.ServiceHandle { return s.serviceHandle }

func (s *Service) LevelHandles() gatt.CharacteristicHandles { return s.levelHandles }

// ReportRefHandle is gatt.InvalidHandle when no Report Reference was requested.
func (s *Service) ReportRefHandle() gatt.AttrHandle { return s.reportRefHandle }

func (s *Service) NotificationSupported() bool { return s.notificationSupported }

// LastLevel returns the last level successfully stored, if any.
func (s *Service) LastLevel() (Level, bool) { return s.lastLevel, s.lastSet }
