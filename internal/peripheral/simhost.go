package peripheral

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/gatt/attdb"
)

// Host errors
var (
	ErrNotConnected  = errors.New("peer not connected")
	ErrNotSubscribed = errors.New("peer has not enabled notifications")
	ErrPayloadSize   = errors.New("notification payload exceeds attribute size")
	ErrWriteNotPerm  = errors.New("attribute write not permitted")
)

// Delivery is one notification accepted by a host for a peer.
type Delivery struct {
	Conn   gatt.ConnHandle
	Peer   string
	Handle gatt.AttrHandle
	Data   []byte
}

// SimHost is an in-memory stack with scripted peers. Peer actions are turned
// into stack events and delivered synchronously through the dispatcher, so a
// caller sees every observer's reaction before the action returns.
type SimHost struct {
	*attdb.DB

	conns  *attdb.ConnTable
	disp   *Dispatcher
	logger *logrus.Logger

	mu         sync.Mutex
	subscribed map[gatt.ConnHandle]map[gatt.AttrHandle]bool
	failNext   map[gatt.ConnHandle]error
	deliveries []Delivery

	// OnDelivery, when set, is called for every accepted notification.
	OnDelivery func(Delivery)
}

func NewSimHost(disp *Dispatcher, logger *logrus.Logger) *SimHost {
	if logger == nil {
		logger = logrus.New()
	}
	return &SimHost{
		DB:         attdb.New(logger),
		conns:      attdb.NewConnTable(),
		disp:       disp,
		logger:     logger,
		subscribed: make(map[gatt.ConnHandle]map[gatt.AttrHandle]bool),
		failNext:   make(map[gatt.ConnHandle]error),
	}
}

// Conns is the directory of simulated links.
func (h *SimHost) Conns() *attdb.ConnTable { return h.conns }

// Connect opens a link from peer and delivers a ConnectedEvent.
func (h *SimHost) Connect(ctx context.Context, peer string) (gatt.ConnHandle, error) {
	conn := h.conns.Connect(peer)
	h.logger.WithFields(logrus.Fields{"peer": peer, "conn": conn}).Debug("Simulated peer connected")
	return conn, h.disp.Deliver(ctx, gatt.ConnectedEvent{ConnHandle: conn, Peer: peer})
}

// WriteCCCD simulates the peer writing a CCCD and delivers the WriteEvent.
func (h *SimHost) WriteCCCD(ctx context.Context, conn gatt.ConnHandle, cccd gatt.AttrHandle, notify bool) error {
	if h.conns.Status(conn) != gatt.ConnStatusConnected {
		return fmt.Errorf("%w: %v", ErrNotConnected, conn)
	}
	if access, ok := h.WriteAccess(cccd); ok && access == gatt.SecNoAccess {
		return fmt.Errorf("%w: CCCD %v", ErrWriteNotPerm, cccd)
	}

	data := gatt.EncodeCCCD(notify, false)
	if err := h.SetValue(conn, cccd, data); err != nil {
		return fmt.Errorf("CCCD write rejected: %w", err)
	}

	h.mu.Lock()
	if h.subscribed[conn] == nil {
		h.subscribed[conn] = make(map[gatt.AttrHandle]bool)
	}
	h.subscribed[conn][cccd] = notify
	h.mu.Unlock()

	return h.disp.Deliver(ctx, gatt.WriteEvent{ConnHandle: conn, Handle: cccd, Data: data})
}

// Subscribe enables or disables notifications of the characteristic whose
// value handle is given.
func (h *SimHost) Subscribe(ctx context.Context, conn gatt.ConnHandle, valueHandle gatt.AttrHandle, enable bool) error {
	char, ok := h.Characteristic(valueHandle)
	if !ok || !char.Handles.CCCD.Valid() {
		return fmt.Errorf("%w: no CCCD for %v", attdb.ErrNotFound, valueHandle)
	}
	return h.WriteCCCD(ctx, conn, char.Handles.CCCD, enable)
}

// Disconnect drops a link, forgets its subscriptions and delivers a
// DisconnectedEvent.
func (h *SimHost) Disconnect(ctx context.Context, conn gatt.ConnHandle) error {
	peer, _ := h.conns.Peer(conn)
	if !h.conns.Disconnect(conn) {
		return fmt.Errorf("%w: %v", ErrNotConnected, conn)
	}

	h.mu.Lock()
	delete(h.subscribed, conn)
	delete(h.failNext, conn)
	h.mu.Unlock()
	h.ForgetConn(conn)

	h.logger.WithFields(logrus.Fields{"peer": peer, "conn": conn}).Debug("Simulated peer disconnected")
	return h.disp.Deliver(ctx, gatt.DisconnectedEvent{ConnHandle: conn, Peer: peer})
}

// FailNext makes the next notification to conn fail with err.
func (h *SimHost) FailNext(conn gatt.ConnHandle, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext[conn] = err
}

// Notify implements gatt.NotificationTransport.
func (h *SimHost) Notify(conn gatt.ConnHandle, p gatt.HVXParams) error {
	if h.conns.Status(conn) != gatt.ConnStatusConnected {
		return fmt.Errorf("%w: %v", ErrNotConnected, conn)
	}
	char, ok := h.Characteristic(p.Handle)
	if !ok {
		return fmt.Errorf("%w: %v", attdb.ErrNotFound, p.Handle)
	}
	if len(p.Data) > char.MaxLen {
		return fmt.Errorf("%w: %d > %d", ErrPayloadSize, len(p.Data), char.MaxLen)
	}

	h.mu.Lock()
	if err, ok := h.failNext[conn]; ok {
		delete(h.failNext, conn)
		h.mu.Unlock()
		return err
	}
	if !h.subscribed[conn][char.Handles.CCCD] {
		h.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotSubscribed, conn)
	}
	peer, _ := h.conns.Peer(conn)
	d := Delivery{Conn: conn, Peer: peer, Handle: p.Handle, Data: append([]byte(nil), p.Data...)}
	h.deliveries = append(h.deliveries, d)
	cb := h.OnDelivery
	h.mu.Unlock()

	if cb != nil {
		cb(d)
	}
	return nil
}

// Deliveries returns every accepted notification in delivery order.
func (h *SimHost) Deliveries() []Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Delivery(nil), h.deliveries...)
}

// Subscribed reports whether conn has notifications enabled on cccd.
func (h *SimHost) Subscribed(conn gatt.ConnHandle, cccd gatt.AttrHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribed[conn][cccd]
}
