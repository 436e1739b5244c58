package eda

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/gatt"
)

// OnEvent handles a stack event. Only peer writes are of interest; every
// other event class is ignored.
func (s *Service) OnEvent(ev gatt.Event) {
	if s == nil || ev == nil {
		return
	}

	switch e := ev.(type) {
	case gatt.WriteEvent:
		s.onWrite(e)
	default:
		// No implementation needed.
	}
}

func (s *Service) onWrite(e gatt.WriteEvent) {
	if !s.notificationSupported {
		return
	}
	if e.Handle != s.levelHandles.CCCD || len(e.Data) != gatt.CCCDLen {
		return
	}
	if s.handler == nil {
		return
	}

	ev := Event{Type: NotificationDisabled, Conn: e.ConnHandle}
	if gatt.IsNotificationEnabled(e.Data) {
		ev.Type = NotificationEnabled
	}

	s.logger.WithFields(logrus.Fields{
		"conn":  e.ConnHandle,
		"event": ev.Type,
	}).Debug("EDA CCCD written")

	s.handler(s, ev)
}

// UpdateLevel stores a new level and notifies conn, or every connected peer
// when conn is gatt.ConnHandleAll. Repeating the last stored level is a no-op.
//
// The stored level and cached value change only when the store succeeds. When
// notifications are not supported the level is still stored but
// gatt.ErrInvalidState is returned. For ConnHandleAll every connected peer
// gets one attempt and the first failure is returned.
func (s *Service) UpdateLevel(level Level, conn gatt.ConnHandle) error {
	if s == nil {
		return &gatt.Error{Kind: gatt.NullArgument, Op: "eda update", Err: fmt.Errorf("service is nil")}
	}

	if s.lastSet && level == s.lastLevel {
		return nil
	}

	value := EncodeLevel(level)
	if err := s.registry.SetValue(gatt.ConnHandleInvalid, s.levelHandles.Value, value[:]); err != nil {
		s.logger.WithError(err).WithField("level", level).Debug("Error during EDA level update")
		return gatt.Wrap(gatt.StoreFailed, "eda update", err)
	}

	s.lastLevel = level
	s.lastSet = true
	s.logger.WithField("level", level).Info("EDA level has been updated")

	if !s.notificationSupported {
		return &gatt.Error{Kind: gatt.InvalidState, Op: "eda update", Err: fmt.Errorf("notifications not supported")}
	}

	if conn != gatt.ConnHandleAll {
		return s.send(conn, value[:])
	}

	var first error
	for _, h := range s.conns.Handles() {
		if s.conns.Status(h) != gatt.ConnStatusConnected {
			continue
		}
		if err := s.send(h, value[:]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NotifyOnReconnect re-sends the cached level to one connection. It never
// touches the attribute store. Call it when a bonded peer reconnects and the
// level changed while it was away. Before the first update the configured
// initial level is sent, matching what the attribute holds.
func (s *Service) NotifyOnReconnect(conn gatt.ConnHandle) error {
	if s == nil {
		return &gatt.Error{Kind: gatt.NullArgument, Op: "eda reconnect", Err: fmt.Errorf("service is nil")}
	}
	if !s.notificationSupported {
		return &gatt.Error{Kind: gatt.InvalidState, Op: "eda reconnect", Err: fmt.Errorf("notifications not supported")}
	}

	level := s.initialLevel
	if s.lastSet {
		level = s.lastLevel
	}
	value := EncodeLevel(level)
	return s.send(conn, value[:])
}

func (s *Service) send(conn gatt.ConnHandle, data []byte) error {
	err := s.transport.Notify(conn, gatt.HVXParams{
		Handle: s.levelHandles.Value,
		Type:   gatt.HVXNotification,
		Data:   data,
	})
	if err != nil {
		s.logger.WithError(err).WithField("conn", conn).Debug("Error while sending EDA notification")
		return gatt.Wrap(gatt.TransportFailed, "eda notify", err)
	}
	s.logger.WithField("conn", conn).Info("EDA notification has been sent")
	return nil
}
