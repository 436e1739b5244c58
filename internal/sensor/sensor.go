// Package sensor provides EDA level sources for the publisher.
package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/srg/edad/internal/eda"
)

// ErrBadSample marks a single unusable reading. The source stays usable and
// the caller may ask for the next one.
var ErrBadSample = errors.New("bad sample")

// Source produces EDA levels. Next blocks until a level is available, the
// source is exhausted (io.EOF) or ctx is done.
type Source interface {
	Next(ctx context.Context) (eda.Level, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (eda.Level, error)

func (f SourceFunc) Next(ctx context.Context) (eda.Level, error) { return f(ctx) }

// pacer spaces readings interval apart. A zero interval never waits.
type pacer struct {
	interval time.Duration
	ticker   *time.Ticker
}

func (p *pacer) wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	if p.ticker == nil {
		p.ticker = time.NewTicker(p.interval)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *pacer) stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}

func clamp(v float64) eda.Level {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return eda.Level(v + 0.5)
	}
}
