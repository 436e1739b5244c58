// Package attdb is an in-memory GATT attribute table.
//
// DB implements gatt.Registry with sequential handle allocation: a service
// declaration takes one handle, a characteristic takes a declaration and a
// value handle plus a CCCD handle when it notifies or indicates, and each
// descriptor takes one handle. Attribute values may be read concurrently
// from stack goroutines while the owning service updates them.
package attdb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/gatt"
)

// Registration and value errors
var (
	ErrInvalidParam  = errors.New("invalid parameter")
	ErrNotFound      = errors.New("attribute not found")
	ErrInvalidLength = errors.New("invalid attribute value length")
	ErrNoResources   = errors.New("attribute table full")
)

const maxHandle = 0xFFFF

// Service is a registered service declaration.
type Service struct {
	Handle          gatt.ServiceHandle
	Kind            gatt.ServiceKind
	UUID            ble.UUID
	Characteristics []*Characteristic
}

// Characteristic is a registered characteristic and its descriptors.
type Characteristic struct {
	Service         gatt.ServiceHandle
	UUID            ble.UUID
	Props           ble.Property
	Handles         gatt.CharacteristicHandles
	MaxLen          int
	ReadAccess      gatt.SecurityReq
	WriteAccess     gatt.SecurityReq
	CCCDWriteAccess gatt.SecurityReq
	Descriptors     []*Descriptor
}

// Descriptor is a registered characteristic descriptor.
type Descriptor struct {
	UUID        ble.UUID
	Handle      gatt.AttrHandle
	MaxLen      int
	ReadAccess  gatt.SecurityReq
	WriteAccess gatt.SecurityReq
}

type valueAttr struct {
	maxLen int
	cccd   bool
	write  gatt.SecurityReq
}

// DB is an in-memory attribute table implementing gatt.Registry.
type DB struct {
	mu       sync.RWMutex
	next     int
	services []*Service
	byValue  map[gatt.AttrHandle]*Characteristic
	attrs    map[gatt.AttrHandle]valueAttr
	values   *hashmap.Map[gatt.AttrHandle, []byte]
	cccds    *hashmap.Map[uint32, []byte]
	logger   *logrus.Logger
}

// New creates an empty attribute table.
func New(logger *logrus.Logger) *DB {
	if logger == nil {
		logger = logrus.New()
	}
	return &DB{
		next:    1,
		byValue: make(map[gatt.AttrHandle]*Characteristic),
		attrs:   make(map[gatt.AttrHandle]valueAttr),
		values:  hashmap.New[gatt.AttrHandle, []byte](),
		cccds:   hashmap.New[uint32, []byte](),
		logger:  logger,
	}
}

// alloc reserves n consecutive handles; callers hold mu.
func (db *DB) alloc(n int) (gatt.AttrHandle, error) {
	if db.next+n-1 > maxHandle {
		return gatt.InvalidHandle, ErrNoResources
	}
	h := gatt.AttrHandle(db.next)
	db.next += n
	return h, nil
}

func validUUID(u ble.UUID) bool {
	return len(u) == 2 || len(u) == 4 || len(u) == 16
}

func (db *DB) AddService(kind gatt.ServiceKind, uuid ble.UUID) (gatt.ServiceHandle, error) {
	if kind != gatt.ServicePrimary && kind != gatt.ServiceSecondary {
		return gatt.InvalidHandle, fmt.Errorf("%w: service kind %v", ErrInvalidParam, kind)
	}
	if !validUUID(uuid) {
		return gatt.InvalidHandle, fmt.Errorf("%w: service UUID %q", ErrInvalidParam, uuid.String())
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	h, err := db.alloc(1)
	if err != nil {
		return gatt.InvalidHandle, err
	}
	svc := &Service{Handle: gatt.ServiceHandle(h), Kind: kind, UUID: uuid}
	db.services = append(db.services, svc)

	db.logger.WithFields(logrus.Fields{
		"uuid":   uuid.String(),
		"handle": svc.Handle,
	}).Debug("Service added")
	return svc.Handle, nil
}

func (db *DB) AddCharacteristic(svcHandle gatt.ServiceHandle, p gatt.CharacteristicParams) (gatt.CharacteristicHandles, error) {
	var handles gatt.CharacteristicHandles

	if !validUUID(p.UUID) {
		return handles, fmt.Errorf("%w: characteristic UUID %q", ErrInvalidParam, p.UUID.String())
	}
	if p.MaxLen <= 0 || len(p.InitValue) > p.MaxLen {
		return handles, fmt.Errorf("%w: init length %d, max length %d", ErrInvalidLength, len(p.InitValue), p.MaxLen)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	svc := db.service(svcHandle)
	if svc == nil {
		return handles, fmt.Errorf("%w: service %v", ErrNotFound, svcHandle)
	}

	hasCCCD := p.Props&(ble.CharNotify|ble.CharIndicate) != 0
	count := 2
	if hasCCCD {
		count++
	}
	first, err := db.alloc(count)
	if err != nil {
		return handles, err
	}

	handles.Decl = first
	handles.Value = first + 1
	if hasCCCD {
		handles.CCCD = first + 2
	}

	char := &Characteristic{
		Service:         svcHandle,
		UUID:            p.UUID,
		Props:           p.Props,
		Handles:         handles,
		MaxLen:          p.MaxLen,
		ReadAccess:      p.ReadAccess,
		WriteAccess:     p.WriteAccess,
		CCCDWriteAccess: p.CCCDWriteAccess,
	}
	svc.Characteristics = append(svc.Characteristics, char)
	db.byValue[handles.Value] = char
	db.attrs[handles.Value] = valueAttr{maxLen: p.MaxLen, write: p.WriteAccess}
	db.values.Set(handles.Value, clone(p.InitValue))
	if hasCCCD {
		db.attrs[handles.CCCD] = valueAttr{maxLen: gatt.CCCDLen, cccd: true, write: p.CCCDWriteAccess}
		db.values.Set(handles.CCCD, gatt.EncodeCCCD(false, false))
	}

	db.logger.WithFields(logrus.Fields{
		"uuid":   p.UUID.String(),
		"value":  handles.Value,
		"cccd":   handles.CCCD,
		"access": p.ReadAccess,
	}).Debug("Characteristic added")
	return handles, nil
}

func (db *DB) AddDescriptor(valueHandle gatt.AttrHandle, p gatt.DescriptorParams) (gatt.AttrHandle, error) {
	if !validUUID(p.UUID) {
		return gatt.InvalidHandle, fmt.Errorf("%w: descriptor UUID %q", ErrInvalidParam, p.UUID.String())
	}
	if p.MaxLen <= 0 || len(p.Value) > p.MaxLen {
		return gatt.InvalidHandle, fmt.Errorf("%w: init length %d, max length %d", ErrInvalidLength, len(p.Value), p.MaxLen)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	char, ok := db.byValue[valueHandle]
	if !ok {
		return gatt.InvalidHandle, fmt.Errorf("%w: characteristic value %v", ErrNotFound, valueHandle)
	}

	h, err := db.alloc(1)
	if err != nil {
		return gatt.InvalidHandle, err
	}
	char.Descriptors = append(char.Descriptors, &Descriptor{
		UUID:        p.UUID,
		Handle:      h,
		MaxLen:      p.MaxLen,
		ReadAccess:  p.ReadAccess,
		WriteAccess: p.WriteAccess,
	})
	db.attrs[h] = valueAttr{maxLen: p.MaxLen, write: p.WriteAccess}
	db.values.Set(h, clone(p.Value))

	db.logger.WithFields(logrus.Fields{
		"uuid":   p.UUID.String(),
		"handle": h,
	}).Debug("Descriptor added")
	return h, nil
}

// ConnKey packs a connection and an attribute handle into one map key.
func ConnKey(conn gatt.ConnHandle, h gatt.AttrHandle) uint32 {
	return uint32(conn)<<16 | uint32(h)
}

// SetValue stores an attribute value. With a valid conn the value belongs to
// that connection only, which is allowed for CCCDs alone; otherwise it is the
// system-wide value every connection starts from.
func (db *DB) SetValue(conn gatt.ConnHandle, h gatt.AttrHandle, value []byte) error {
	db.mu.RLock()
	attr, ok := db.attrs[h]
	db.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %v", ErrNotFound, h)
	}
	if conn != gatt.ConnHandleInvalid && !attr.cccd {
		return fmt.Errorf("%w: per-connection value on non-CCCD attribute %v", ErrInvalidParam, h)
	}
	if len(value) > attr.maxLen {
		return fmt.Errorf("%w: %d bytes exceeds max %d", ErrInvalidLength, len(value), attr.maxLen)
	}

	if attr.cccd && conn != gatt.ConnHandleInvalid {
		db.cccds.Set(ConnKey(conn, h), clone(value))
		return nil
	}
	db.values.Set(h, clone(value))
	return nil
}

// CCCDValue returns the CCCD value seen by conn, falling back to the
// system-wide value when conn never wrote it.
func (db *DB) CCCDValue(conn gatt.ConnHandle, h gatt.AttrHandle) ([]byte, bool) {
	if v, ok := db.cccds.Get(ConnKey(conn, h)); ok {
		return clone(v), true
	}
	db.mu.RLock()
	attr, ok := db.attrs[h]
	db.mu.RUnlock()
	if !ok || !attr.cccd {
		return nil, false
	}
	return db.Value(h)
}

// ForgetConn drops every per-connection value stored for conn.
func (db *DB) ForgetConn(conn gatt.ConnHandle) {
	var stale []uint32
	db.cccds.Range(func(k uint32, _ []byte) bool {
		if gatt.ConnHandle(k>>16) == conn {
			stale = append(stale, k)
		}
		return true
	})
	for _, k := range stale {
		db.cccds.Del(k)
	}
}

// WriteAccess returns the security requirement for peer writes to h.
func (db *DB) WriteAccess(h gatt.AttrHandle) (gatt.SecurityReq, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	attr, ok := db.attrs[h]
	return attr.write, ok
}

// Value returns a copy of the stored value of an attribute.
func (db *DB) Value(h gatt.AttrHandle) ([]byte, bool) {
	v, ok := db.values.Get(h)
	if !ok {
		return nil, false
	}
	return clone(v), true
}

// Services returns the registered services in registration order.
func (db *DB) Services() []*Service {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]*Service(nil), db.services...)
}

// Characteristic returns the characteristic owning the given value handle.
func (db *DB) Characteristic(valueHandle gatt.AttrHandle) (*Characteristic, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.byValue[valueHandle]
	return c, ok
}

// FindCharacteristic returns the first characteristic with the given UUID.
func (db *DB) FindCharacteristic(uuid ble.UUID) (*Characteristic, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, svc := range db.services {
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(uuid) {
				return c, true
			}
		}
	}
	return nil, false
}

func (db *DB) service(h gatt.ServiceHandle) *Service {
	for _, svc := range db.services {
		if svc.Handle == h {
			return svc
		}
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
