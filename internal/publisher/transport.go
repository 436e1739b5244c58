package publisher

import (
	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/gatt"
)

type trackingTransport struct {
	next gatt.NotificationTransport
	p    *Publisher
}

// Transport wraps next so every level it delivers is remembered per peer.
// Build the service with the returned transport to enable reconnect replay.
func (p *Publisher) Transport(next gatt.NotificationTransport) gatt.NotificationTransport {
	return &trackingTransport{next: next, p: p}
}

func (t *trackingTransport) Notify(conn gatt.ConnHandle, params gatt.HVXParams) error {
	if err := t.next.Notify(conn, params); err != nil {
		return err
	}

	level, err := eda.DecodeLevel(params.Data)
	if err != nil {
		return nil
	}
	if peer, ok := t.p.peers.Peer(conn); ok {
		t.p.markSeen(peer, level)
	}
	return nil
}
