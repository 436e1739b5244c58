// Package publisher connects a level source to an EDA service.
//
// It keeps the bookkeeping the service leaves to the application: which links
// have notifications enabled and which level each peer last received. When a
// returning peer re-enables notifications after the level moved on, the
// publisher replays the current level to it.
package publisher

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/sensor"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Executor runs fn on the goroutine that owns the service.
type Executor interface {
	Do(ctx context.Context, fn func() error) error
}

// PeerDirectory resolves a link to the peer behind it.
type PeerDirectory interface {
	Peer(conn gatt.ConnHandle) (string, bool)
}

// Options configures a Publisher.
type Options struct {
	ReplayOnReconnect bool
	Logger            *logrus.Logger
}

// Stats counts publisher activity.
type Stats struct {
	Published int64
	Failed    int64
	Replayed  int64
}

// Publisher drives an eda.Service. Its event handling runs on the dispatch
// goroutine; Publish and Run may be called from anywhere.
type Publisher struct {
	exec   Executor
	peers  PeerDirectory
	logger *logrus.Logger
	replay bool

	svc *eda.Service

	// dispatch goroutine only
	subscribers *orderedmap.OrderedMap[gatt.ConnHandle, string]

	seenMu sync.Mutex
	seen   map[string]eda.Level

	published atomic.Int64
	failed    atomic.Int64
	replayed  atomic.Int64
}

func New(exec Executor, peers PeerDirectory, opts Options) *Publisher {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Publisher{
		exec:        exec,
		peers:       peers,
		logger:      logger,
		replay:      opts.ReplayOnReconnect,
		subscribers: orderedmap.New[gatt.ConnHandle, string](),
		seen:        make(map[string]eda.Level),
	}
}

// Bind attaches the service to publish to. It must be called before Publish.
func (p *Publisher) Bind(svc *eda.Service) { p.svc = svc }

// HandleServiceEvent is the eda.EventHandler of the bound service.
func (p *Publisher) HandleServiceEvent(s *eda.Service, ev eda.Event) {
	peer, _ := p.peers.Peer(ev.Conn)
	entry := p.logger.WithFields(logrus.Fields{
		"conn": ev.Conn,
		"peer": peer,
	})

	switch ev.Type {
	case eda.NotificationEnabled:
		p.subscribers.Set(ev.Conn, peer)
		entry.Info("Peer subscribed to EDA level")
		p.maybeReplay(s, ev.Conn, peer, entry)
	case eda.NotificationDisabled:
		p.subscribers.Delete(ev.Conn)
		entry.Info("Peer unsubscribed from EDA level")
	}
}

func (p *Publisher) maybeReplay(s *eda.Service, conn gatt.ConnHandle, peer string, entry *logrus.Entry) {
	if !p.replay || peer == "" {
		return
	}
	current, ok := s.LastLevel()
	if !ok {
		return
	}
	seen, known := p.lastSeen(peer)
	if !known || seen == current {
		return
	}

	if err := s.NotifyOnReconnect(conn); err != nil {
		entry.WithError(err).Warn("Failed to replay EDA level to returning peer")
		return
	}
	p.replayed.Add(1)
	entry.WithFields(logrus.Fields{
		"missed": seen,
		"level":  current,
	}).Info("Replayed EDA level to returning peer")
}

// OnEvent observes stack events; a dropped link loses its subscription.
func (p *Publisher) OnEvent(ev gatt.Event) {
	if e, ok := ev.(gatt.DisconnectedEvent); ok {
		p.subscribers.Delete(e.ConnHandle)
	}
}

// Subscribers lists subscribed links in subscription order. Call it on the
// dispatch goroutine.
func (p *Publisher) Subscribers() []gatt.ConnHandle {
	out := make([]gatt.ConnHandle, 0, p.subscribers.Len())
	for pair := p.subscribers.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Publish stores level and notifies every connected peer. A partially
// delivered update is reported as an error; it is not retried.
func (p *Publisher) Publish(ctx context.Context, level eda.Level) error {
	if p.svc == nil {
		return &gatt.Error{Kind: gatt.NullArgument, Op: "publish", Err: errors.New("no service bound")}
	}

	err := p.exec.Do(ctx, func() error {
		return p.svc.UpdateLevel(level, gatt.ConnHandleAll)
	})
	if err != nil {
		p.failed.Add(1)
		return err
	}
	p.published.Add(1)
	return nil
}

// Run publishes every level from src until it is exhausted or ctx is done.
// Failed updates are logged and counted; bad samples are skipped.
func (p *Publisher) Run(ctx context.Context, src sensor.Source) error {
	for {
		level, err := src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, sensor.ErrBadSample):
			p.logger.WithError(err).Warn("Skipping sensor sample")
			continue
		case errors.Is(err, io.EOF):
			p.logger.Info("Level source exhausted")
			return nil
		default:
			return err
		}

		if err := p.Publish(ctx, level); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.WithFields(logrus.Fields{
				"level": level,
				"kind":  gatt.KindOf(err),
			}).WithError(err).Warn("EDA level update failed")
		}
	}
}

// Stats returns a snapshot of the counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Replayed:  p.replayed.Load(),
	}
}

func (p *Publisher) lastSeen(peer string) (eda.Level, bool) {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	l, ok := p.seen[peer]
	return l, ok
}

func (p *Publisher) markSeen(peer string, level eda.Level) {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	p.seen[peer] = level
}
