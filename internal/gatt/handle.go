package gatt

import "fmt"

// InvalidHandle marks an attribute or service handle that was never assigned.
const InvalidHandle = 0

// ServiceHandle identifies a registered service in the attribute table.
type ServiceHandle uint16

// AttrHandle identifies a single attribute (value, declaration or descriptor).
type AttrHandle uint16

// ConnHandle identifies a link to a remote peer.
type ConnHandle uint16

const (
	// ConnHandleAll addresses every connected peer.
	ConnHandleAll ConnHandle = 0xFFFE
	// ConnHandleInvalid is used for system-wide (not per-connection) operations.
	ConnHandleInvalid ConnHandle = 0xFFFF
)

func (h ServiceHandle) Valid() bool { return h != InvalidHandle }

func (h ServiceHandle) String() string { return fmt.Sprintf("0x%04X", uint16(h)) }

func (h AttrHandle) Valid() bool { return h != InvalidHandle }

func (h AttrHandle) String() string { return fmt.Sprintf("0x%04X", uint16(h)) }

func (c ConnHandle) String() string {
	switch c {
	case ConnHandleAll:
		return "all"
	case ConnHandleInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("0x%04X", uint16(c))
	}
}

// CharacteristicHandles groups the attribute handles created for one characteristic.
// CCCD is InvalidHandle when the characteristic neither notifies nor indicates.
type CharacteristicHandles struct {
	Decl  AttrHandle
	Value AttrHandle
	CCCD  AttrHandle
}

// ConnStatus is the link status reported by a ConnectionDirectory.
type ConnStatus int

const (
	ConnStatusInvalid ConnStatus = iota
	ConnStatusDisconnected
	ConnStatusConnected
)

func (s ConnStatus) String() string {
	switch s {
	case ConnStatusConnected:
		return "connected"
	case ConnStatusDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}
