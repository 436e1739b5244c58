package attdb

import (
	"sync"

	"github.com/srg/edad/internal/gatt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type connEntry struct {
	peer   string
	status gatt.ConnStatus
}

// ConnTable tracks links and implements gatt.ConnectionDirectory.
// Handles enumerate in the order their links were established. A
// disconnected link keeps its record until the next Connect reclaims it.
type ConnTable struct {
	mu    sync.RWMutex
	next  uint16
	conns *orderedmap.OrderedMap[gatt.ConnHandle, *connEntry]
}

// NewConnTable creates an empty connection table.
func NewConnTable() *ConnTable {
	return &ConnTable{
		conns: orderedmap.New[gatt.ConnHandle, *connEntry](),
	}
}

// Connect records a new link to peer and returns its handle.
func (t *ConnTable) Connect(peer string) gatt.ConnHandle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reclaimLocked()

	for {
		h := gatt.ConnHandle(t.next)
		t.next++
		if t.next >= uint16(gatt.ConnHandleAll) {
			t.next = 0
		}
		if _, taken := t.conns.Get(h); !taken {
			t.conns.Set(h, &connEntry{peer: peer, status: gatt.ConnStatusConnected})
			return h
		}
	}
}

// Disconnect marks a link as disconnected. It reports false for unknown handles.
func (t *ConnTable) Disconnect(h gatt.ConnHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.conns.Get(h)
	if !ok {
		return false
	}
	e.status = gatt.ConnStatusDisconnected
	return true
}

func (t *ConnTable) reclaimLocked() {
	var stale []gatt.ConnHandle
	for pair := t.conns.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.status != gatt.ConnStatusConnected {
			stale = append(stale, pair.Key)
		}
	}
	for _, h := range stale {
		t.conns.Delete(h)
	}
}

func (t *ConnTable) Handles() []gatt.ConnHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	handles := make([]gatt.ConnHandle, 0, t.conns.Len())
	for pair := t.conns.Oldest(); pair != nil; pair = pair.Next() {
		handles = append(handles, pair.Key)
	}
	return handles
}

func (t *ConnTable) Status(h gatt.ConnHandle) gatt.ConnStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.conns.Get(h)
	if !ok {
		return gatt.ConnStatusInvalid
	}
	return e.status
}

// Peer returns the peer address recorded for a link.
func (t *ConnTable) Peer(h gatt.ConnHandle) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.conns.Get(h)
	if !ok {
		return "", false
	}
	return e.peer, true
}

// Lookup returns the handle of the connected link to peer.
func (t *ConnTable) Lookup(peer string) (gatt.ConnHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for pair := t.conns.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.peer == peer && pair.Value.status == gatt.ConnStatusConnected {
			return pair.Key, true
		}
	}
	return gatt.ConnHandleInvalid, false
}
