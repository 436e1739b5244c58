// Package peripheral hosts GATT services on a real (go-ble) or simulated
// stack.
//
// Everything that touches service state runs on one Dispatcher goroutine:
// stack events are queued to it and fanned out to observers in registration
// order, and application calls are funnelled through Do. Services therefore
// never need their own locking.
package peripheral

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/groutine"
)

// DefaultQueueSize is the number of pending jobs a Dispatcher buffers.
const DefaultQueueSize = 64

// ErrDispatcherStopped is returned for work submitted after the loop exited.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Observer receives every stack event on the dispatch goroutine.
type Observer interface {
	OnEvent(ev gatt.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev gatt.Event)

func (f ObserverFunc) OnEvent(ev gatt.Event) { f(ev) }

type job struct {
	ev    gatt.Event
	fn    func() error
	reply chan error
}

// Dispatcher serializes stack events and application calls on one goroutine.
type Dispatcher struct {
	logger *logrus.Logger
	queue  chan job

	mu        sync.RWMutex
	observers []Observer

	gid     atomic.Uint64
	started atomic.Bool
	stopped chan struct{}
}

func NewDispatcher(logger *logrus.Logger, queueSize int) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		logger:  logger,
		queue:   make(chan job, queueSize),
		stopped: make(chan struct{}),
	}
}

// Observe registers an observer. Observers are called in registration order.
func (d *Dispatcher) Observe(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Start launches the dispatch loop. It runs until ctx is cancelled. Calling
// Start more than once has no effect.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	groutine.Go(ctx, "gatt-dispatch", d.loop)
}

// Done is closed once the loop has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.stopped)
	d.gid.Store(groutine.GetGID())
	d.logger.WithField("goroutine", groutine.GetName(ctx)).Debug("Dispatch loop started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("Dispatch loop stopped")
			return
		case j := <-d.queue:
			d.run(j)
		}
	}
}

func (d *Dispatcher) run(j job) {
	var err error
	if j.fn != nil {
		err = j.fn()
	} else {
		d.dispatch(j.ev)
	}
	if j.reply != nil {
		j.reply <- err
	}
}

func (d *Dispatcher) dispatch(ev gatt.Event) {
	d.mu.RLock()
	observers := append([]Observer(nil), d.observers...)
	d.mu.RUnlock()

	d.logger.WithFields(logrus.Fields{
		"conn":  ev.Conn(),
		"event": eventName(ev),
	}).Trace("Dispatching stack event")

	for _, o := range observers {
		o.OnEvent(ev)
	}
}

// onLoop reports whether the caller is the dispatch goroutine.
func (d *Dispatcher) onLoop() bool {
	gid := d.gid.Load()
	return gid != 0 && gid == groutine.GetGID()
}

func (d *Dispatcher) enqueue(ctx context.Context, j job) error {
	select {
	case d.queue <- j:
		return nil
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues an event without waiting for observers to run.
func (d *Dispatcher) Post(ctx context.Context, ev gatt.Event) error {
	if ev == nil {
		return nil
	}
	return d.enqueue(ctx, job{ev: ev})
}

// Deliver queues an event and waits until every observer has seen it.
// Called from the dispatch goroutine it runs the observers inline.
func (d *Dispatcher) Deliver(ctx context.Context, ev gatt.Event) error {
	if ev == nil {
		return nil
	}
	if d.onLoop() {
		d.dispatch(ev)
		return nil
	}
	_, err := d.call(ctx, job{ev: ev})
	return err
}

// Do runs fn on the dispatch goroutine and returns its error. Called from
// the dispatch goroutine it runs fn inline.
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	if d.onLoop() {
		return fn()
	}
	res, err := d.call(ctx, job{fn: fn})
	if err != nil {
		return err
	}
	return res
}

func (d *Dispatcher) call(ctx context.Context, j job) (error, error) {
	j.reply = make(chan error, 1)
	if err := d.enqueue(ctx, j); err != nil {
		return nil, err
	}
	select {
	case res := <-j.reply:
		return res, nil
	case <-d.stopped:
		// The loop may have taken the job right before exiting.
		select {
		case res := <-j.reply:
			return res, nil
		default:
			return nil, ErrDispatcherStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func eventName(ev gatt.Event) string {
	switch ev.(type) {
	case gatt.WriteEvent:
		return "write"
	case gatt.ConnectedEvent:
		return "connected"
	case gatt.DisconnectedEvent:
		return "disconnected"
	case gatt.TimeoutEvent:
		return "timeout"
	default:
		return "other"
	}
}
