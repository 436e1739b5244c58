package testutils

import (
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/gatt/attdb"
)

// RecordingRegistry is an attdb.DB that counts value writes and can be told
// to reject any registration step.
type RecordingRegistry struct {
	*attdb.DB

	SetValueCalls int
	Stored        [][]byte

	FailAddService        error
	FailAddCharacteristic error
	FailAddDescriptor     error
	FailSetValue          error
}

func NewRecordingRegistry(logger *logrus.Logger) *RecordingRegistry {
	return &RecordingRegistry{DB: attdb.New(logger)}
}

func (r *RecordingRegistry) AddService(kind gatt.ServiceKind, uuid ble.UUID) (gatt.ServiceHandle, error) {
	if r.FailAddService != nil {
		return gatt.InvalidHandle, r.FailAddService
	}
	return r.DB.AddService(kind, uuid)
}

func (r *RecordingRegistry) AddCharacteristic(svc gatt.ServiceHandle, p gatt.CharacteristicParams) (gatt.CharacteristicHandles, error) {
	if r.FailAddCharacteristic != nil {
		return gatt.CharacteristicHandles{}, r.FailAddCharacteristic
	}
	return r.DB.AddCharacteristic(svc, p)
}

func (r *RecordingRegistry) AddDescriptor(valueHandle gatt.AttrHandle, p gatt.DescriptorParams) (gatt.AttrHandle, error) {
	if r.FailAddDescriptor != nil {
		return gatt.InvalidHandle, r.FailAddDescriptor
	}
	return r.DB.AddDescriptor(valueHandle, p)
}

func (r *RecordingRegistry) SetValue(conn gatt.ConnHandle, h gatt.AttrHandle, value []byte) error {
	r.SetValueCalls++
	if r.FailSetValue != nil {
		return r.FailSetValue
	}
	if err := r.DB.SetValue(conn, h, value); err != nil {
		return err
	}
	r.Stored = append(r.Stored, append([]byte(nil), value...))
	return nil
}

// Delivery is one notification attempt seen by RecordingTransport.
type Delivery struct {
	Conn   gatt.ConnHandle
	Handle gatt.AttrHandle
	Data   []byte
}

// RecordingTransport records every notification attempt. Attempts to a
// connection listed in Failures are recorded and then fail.
type RecordingTransport struct {
	Deliveries []Delivery
	Failures   map[gatt.ConnHandle]error
}

func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{Failures: make(map[gatt.ConnHandle]error)}
}

func (t *RecordingTransport) Notify(conn gatt.ConnHandle, p gatt.HVXParams) error {
	t.Deliveries = append(t.Deliveries, Delivery{
		Conn:   conn,
		Handle: p.Handle,
		Data:   append([]byte(nil), p.Data...),
	})
	return t.Failures[conn]
}

// Conns returns the connection handle of every recorded attempt, in order.
func (t *RecordingTransport) Conns() []gatt.ConnHandle {
	conns := make([]gatt.ConnHandle, 0, len(t.Deliveries))
	for _, d := range t.Deliveries {
		conns = append(conns, d.Conn)
	}
	return conns
}
