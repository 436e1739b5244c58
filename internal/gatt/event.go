package gatt

// Event is a stack event delivered to registered observers.
// Concrete events are passed by value.
type Event interface {
	Conn() ConnHandle
}

// WriteEvent reports that a peer wrote an attribute.
type WriteEvent struct {
	ConnHandle ConnHandle
	Handle     AttrHandle
	Data       []byte
}

func (e WriteEvent) Conn() ConnHandle { return e.ConnHandle }

// ConnectedEvent reports a new link. Peer is the stack-specific peer address.
type ConnectedEvent struct {
	ConnHandle ConnHandle
	Peer       string
}

func (e ConnectedEvent) Conn() ConnHandle { return e.ConnHandle }

// DisconnectedEvent reports that a link went down.
type DisconnectedEvent struct {
	ConnHandle ConnHandle
	Peer       string
}

func (e DisconnectedEvent) Conn() ConnHandle { return e.ConnHandle }

// TimeoutEvent reports a GATT transaction timeout on a link.
type TimeoutEvent struct {
	ConnHandle ConnHandle
}

func (e TimeoutEvent) Conn() ConnHandle { return e.ConnHandle }
