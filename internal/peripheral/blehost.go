package peripheral

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/gatt/attdb"
	"github.com/srg/edad/internal/groutine"
)

// DeviceFactory creates the go-ble device BLEHost serves on (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return newDevice()
}

// ErrIndicationUnsupported is returned for HVX indications; go-ble serves
// notifications and indications through separate subscriptions and only the
// former is wired.
var ErrIndicationUnsupported = errors.New("indications are not supported")

// peerLink is the part of ble.Conn the host needs.
type peerLink interface {
	RemoteAddr() ble.Addr
	Disconnected() <-chan struct{}
}

// notifySink is the part of ble.Notifier the host needs.
type notifySink interface {
	Context() context.Context
	Write(b []byte) (int, error)
	Cap() int
}

// BLEHost serves the attribute table over go-ble.
//
// go-ble owns the ATT bearer and the CCCDs, so the host translates its
// callbacks into stack events: the first request from an unknown peer becomes
// a ConnectedEvent, a notify subscription becomes a CCCD WriteEvent (enabled
// on start, disabled when the subscription ends) and a dropped link becomes a
// DisconnectedEvent.
type BLEHost struct {
	*attdb.DB

	conns  *attdb.ConnTable
	disp   *Dispatcher
	logger *logrus.Logger
	ctx    context.Context

	trackMu sync.Mutex
	peers   *hashmap.Map[string, gatt.ConnHandle]
	sinks   *hashmap.Map[uint32, notifySink]
}

func NewBLEHost(disp *Dispatcher, logger *logrus.Logger) *BLEHost {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLEHost{
		DB:     attdb.New(logger),
		conns:  attdb.NewConnTable(),
		disp:   disp,
		logger: logger,
		ctx:    context.Background(),
		peers:  hashmap.New[string, gatt.ConnHandle](),
		sinks:  hashmap.New[uint32, notifySink](),
	}
}

// Conns is the directory of links seen by the host.
func (h *BLEHost) Conns() *attdb.ConnTable { return h.conns }

func sinkKey(conn gatt.ConnHandle, valueHandle gatt.AttrHandle) uint32 {
	return attdb.ConnKey(conn, valueHandle)
}

// Serve publishes every registered service and advertises them under name
// until ctx is cancelled.
func (h *BLEHost) Serve(ctx context.Context, name string) error {
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	defer func() {
		if err := dev.Stop(); err != nil {
			h.logger.WithError(err).Warn("Failed to stop BLE device")
		}
	}()

	h.ctx = ctx

	var uuids []ble.UUID
	for _, svc := range h.Services() {
		if err := dev.AddService(h.bleService(svc)); err != nil {
			return fmt.Errorf("failed to add service %s: %w", svc.UUID, err)
		}
		uuids = append(uuids, svc.UUID)
	}

	h.logger.WithFields(logrus.Fields{
		"name":     name,
		"services": len(uuids),
	}).Info("Advertising")

	err = dev.AdvertiseNameAndServices(ctx, name, uuids...)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("advertising failed: %w", err)
	}
	return nil
}

func (h *BLEHost) bleService(svc *attdb.Service) *ble.Service {
	bs := ble.NewService(svc.UUID)

	for _, c := range svc.Characteristics {
		bc := bs.NewCharacteristic(c.UUID)
		valueHandle, access := c.Handles.Value, c.ReadAccess

		if c.Props&ble.CharRead != 0 {
			bc.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				h.respond(rsp, req.Conn(), valueHandle, access, req.Offset())
			}))
		}
		if c.Props&ble.CharNotify != 0 {
			bc.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
				h.serveNotify(req.Conn(), valueHandle, n)
			}))
		}
		h.warnSecurity(c.UUID, c.ReadAccess, c.CCCDWriteAccess)

		for _, d := range c.Descriptors {
			handle, daccess := d.Handle, d.ReadAccess
			bc.NewDescriptor(d.UUID).HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				h.respond(rsp, req.Conn(), handle, daccess, req.Offset())
			}))
			h.warnSecurity(d.UUID, d.ReadAccess)
		}
	}
	return bs
}

// warnSecurity flags requirements go-ble cannot enforce per attribute.
func (h *BLEHost) warnSecurity(uuid ble.UUID, reqs ...gatt.SecurityReq) {
	for _, r := range reqs {
		if r > gatt.SecOpen {
			h.logger.WithFields(logrus.Fields{
				"uuid":     uuid.String(),
				"required": r,
			}).Warn("Security requirement is not enforced by the BLE stack; link security is platform controlled")
			return
		}
	}
}

func (h *BLEHost) respond(rsp ble.ResponseWriter, link peerLink, handle gatt.AttrHandle, access gatt.SecurityReq, offset int) {
	data, status := h.serveRead(link, handle, access, offset)
	if status != ble.ErrSuccess {
		rsp.SetStatus(status)
		return
	}
	if _, err := rsp.Write(data); err != nil {
		h.logger.WithError(err).WithField("handle", handle).Debug("Read response truncated")
	}
}

func (h *BLEHost) serveRead(link peerLink, handle gatt.AttrHandle, access gatt.SecurityReq, offset int) ([]byte, ble.ATTError) {
	if _, err := h.track(link); err != nil {
		h.logger.WithError(err).Debug("Failed to track peer")
	}
	if access == gatt.SecNoAccess {
		return nil, ble.ErrReadNotPerm
	}

	v, ok := h.Value(handle)
	if !ok {
		return nil, ble.ErrInvalidHandle
	}
	if offset < 0 || offset > len(v) {
		return nil, ble.ErrInvalidOffset
	}
	return v[offset:], ble.ErrSuccess
}

// serveNotify runs for the lifetime of one notify subscription.
func (h *BLEHost) serveNotify(link peerLink, valueHandle gatt.AttrHandle, n notifySink) {
	conn, err := h.track(link)
	if err != nil {
		h.logger.WithError(err).Debug("Failed to track peer")
	}

	char, ok := h.Characteristic(valueHandle)
	if !ok || !char.Handles.CCCD.Valid() {
		h.logger.WithField("handle", valueHandle).Warn("Subscription to a characteristic without CCCD")
		return
	}
	cccd := char.Handles.CCCD
	if char.CCCDWriteAccess == gatt.SecNoAccess {
		h.logger.WithFields(logrus.Fields{
			"conn":   conn,
			"handle": cccd,
		}).Warn("Subscription refused: CCCD is not writable")
		return
	}

	key := sinkKey(conn, valueHandle)
	h.sinks.Set(key, n)
	h.cccdWritten(conn, cccd, true)

	<-n.Context().Done()

	h.sinks.Del(key)
	if h.conns.Status(conn) == gatt.ConnStatusConnected {
		h.cccdWritten(conn, cccd, false)
	}
}

func (h *BLEHost) cccdWritten(conn gatt.ConnHandle, cccd gatt.AttrHandle, enabled bool) {
	data := gatt.EncodeCCCD(enabled, false)
	if err := h.SetValue(conn, cccd, data); err != nil {
		h.logger.WithError(err).Debug("Failed to record CCCD value")
	}
	if err := h.disp.Deliver(h.ctx, gatt.WriteEvent{ConnHandle: conn, Handle: cccd, Data: data}); err != nil {
		h.logger.WithError(err).WithField("conn", conn).Debug("CCCD write was not delivered")
	}
}

// track returns the handle of the link to the peer behind link, opening one
// on first sight.
func (h *BLEHost) track(link peerLink) (gatt.ConnHandle, error) {
	addr := link.RemoteAddr().String()

	h.trackMu.Lock()
	if conn, ok := h.peers.Get(addr); ok && h.conns.Status(conn) == gatt.ConnStatusConnected {
		h.trackMu.Unlock()
		return conn, nil
	}
	conn := h.conns.Connect(addr)
	h.peers.Set(addr, conn)
	h.trackMu.Unlock()

	h.logger.WithFields(logrus.Fields{"peer": addr, "conn": conn}).Info("Peer connected")

	groutine.Go(h.ctx, "gatt-link-"+addr, func(ctx context.Context) {
		select {
		case <-link.Disconnected():
			h.drop(addr, conn)
		case <-ctx.Done():
		}
	})

	return conn, h.disp.Deliver(h.ctx, gatt.ConnectedEvent{ConnHandle: conn, Peer: addr})
}

func (h *BLEHost) drop(addr string, conn gatt.ConnHandle) {
	h.trackMu.Lock()
	h.conns.Disconnect(conn)
	if cur, ok := h.peers.Get(addr); ok && cur == conn {
		h.peers.Del(addr)
	}
	h.trackMu.Unlock()
	h.ForgetConn(conn)

	var stale []uint32
	h.sinks.Range(func(k uint32, _ notifySink) bool {
		if gatt.ConnHandle(k>>16) == conn {
			stale = append(stale, k)
		}
		return true
	})
	for _, k := range stale {
		h.sinks.Del(k)
	}

	h.logger.WithFields(logrus.Fields{"peer": addr, "conn": conn}).Info("Peer disconnected")
	if err := h.disp.Deliver(h.ctx, gatt.DisconnectedEvent{ConnHandle: conn, Peer: addr}); err != nil {
		h.logger.WithError(err).WithField("conn", conn).Debug("Disconnect was not delivered")
	}
}

// Notify implements gatt.NotificationTransport.
func (h *BLEHost) Notify(conn gatt.ConnHandle, p gatt.HVXParams) error {
	if p.Type == gatt.HVXIndication {
		return ErrIndicationUnsupported
	}

	n, ok := h.sinks.Get(sinkKey(conn, p.Handle))
	if !ok {
		if h.conns.Status(conn) != gatt.ConnStatusConnected {
			return fmt.Errorf("%w: %v", ErrNotConnected, conn)
		}
		return fmt.Errorf("%w: %v", ErrNotSubscribed, conn)
	}
	if c := n.Cap(); c > 0 && len(p.Data) > c {
		return fmt.Errorf("%w: %d > %d", ErrPayloadSize, len(p.Data), c)
	}
	if _, err := n.Write(p.Data); err != nil {
		return fmt.Errorf("notification write failed: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"conn":   conn,
		"handle": p.Handle,
		"len":    len(p.Data),
	}).Trace("Notification written")
	return nil
}
