package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/groutine"
)

// MaxBufferSize guards against accidental misconfiguration.
const MaxBufferSize uint32 = 64 * 1024

// Buffered decouples a Source from its consumer through an overwrite-oldest
// ring buffer. A pump goroutine reads the inner source as fast as it
// produces; a slow consumer only ever sees the newest readings.
//
// All methods are thread-safe.
type Buffered struct {
	buf    mpmc.RichOverlappedRingBuffer[eda.Level]
	ready  chan struct{}
	done   chan struct{}
	err    error // set before done is closed
	logger *logrus.Logger

	produced    atomic.Int64
	skipped     atomic.Int64
	overwritten atomic.Int64
}

// NewBuffered starts pumping src into a ring buffer of the given size. The
// pump stops when ctx is done or src returns a terminal error.
func NewBuffered(ctx context.Context, src Source, size uint32, logger *logrus.Logger) (*Buffered, error) {
	if src == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if size == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if size > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", size, MaxBufferSize)
	}
	if logger == nil {
		logger = logrus.New()
	}

	b := &Buffered{
		buf:    mpmc.NewOverlappedRingBuffer[eda.Level](size),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	groutine.Go(ctx, "sensor-pump", func(ctx context.Context) { b.pump(ctx, src) })
	return b, nil
}

func (b *Buffered) pump(ctx context.Context, src Source) {
	defer close(b.done)

	for {
		level, err := src.Next(ctx)
		if errors.Is(err, ErrBadSample) {
			b.skipped.Add(1)
			b.logger.WithError(err).Warn("Skipping sensor sample")
			continue
		}
		if err != nil {
			b.err = err
			return
		}

		overwrites, err := b.buf.EnqueueM(level)
		if err != nil {
			b.err = fmt.Errorf("unexpected buffer enqueue error: %w", err)
			return
		}
		b.produced.Add(1)
		if overwrites > 0 {
			b.overwritten.Add(int64(overwrites))
			b.logger.WithField("dropped", overwrites).Trace("Sensor buffer overwrote oldest samples")
		}

		select {
		case b.ready <- struct{}{}:
		default:
		}
	}
}

func (b *Buffered) take() (eda.Level, bool) {
	if b.buf.IsEmpty() {
		return 0, false
	}
	level, err := b.buf.Dequeue()
	if err != nil {
		return 0, false
	}
	return level, true
}

// Next returns the oldest buffered level. Once the pump has stopped and the
// buffer is drained it returns the error that stopped the pump.
func (b *Buffered) Next(ctx context.Context) (eda.Level, error) {
	for {
		if level, ok := b.take(); ok {
			return level, nil
		}
		select {
		case <-b.ready:
		case <-b.done:
			if level, ok := b.take(); ok {
				return level, nil
			}
			return 0, b.err
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Done is closed once the pump has stopped.
func (b *Buffered) Done() <-chan struct{} { return b.done }

// Stats reports how many samples were produced, skipped as bad and lost to
// overwriting.
func (b *Buffered) Stats() (produced, skipped, overwritten int64) {
	return b.produced.Load(), b.skipped.Load(), b.overwritten.Load()
}
