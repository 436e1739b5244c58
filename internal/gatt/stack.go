package gatt

import "github.com/go-ble/ble"

// Registry owns the attribute table.
type Registry interface {
	// AddService declares a service and returns its handle.
	AddService(kind ServiceKind, uuid ble.UUID) (ServiceHandle, error)

	// AddCharacteristic adds a characteristic to a previously declared service.
	AddCharacteristic(svc ServiceHandle, params CharacteristicParams) (CharacteristicHandles, error)

	// AddDescriptor adds a descriptor to the characteristic owning valueHandle.
	AddDescriptor(valueHandle AttrHandle, params DescriptorParams) (AttrHandle, error)

	// SetValue stores an attribute value. conn is ConnHandleInvalid for system-wide values.
	SetValue(conn ConnHandle, handle AttrHandle, value []byte) error
}

// ConnectionDirectory enumerates links known to the stack.
type ConnectionDirectory interface {
	// Handles returns every known link, in stack enumeration order.
	Handles() []ConnHandle

	// Status reports the current status of a link.
	Status(conn ConnHandle) ConnStatus
}

// NotificationTransport delivers a value to one peer.
type NotificationTransport interface {
	Notify(conn ConnHandle, params HVXParams) error
}
