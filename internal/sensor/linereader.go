package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/srg/edad/internal/eda"
)

// LineReader reads one decimal level per line. Blank lines and lines
// starting with '#' are skipped. Values outside 0..255 or unparsable lines
// are reported as ErrBadSample without ending the stream.
type LineReader struct {
	sc   *bufio.Scanner
	line int
	pace pacer
}

// NewLineReader reads levels from r. With a non-zero interval, levels are
// released no faster than one per interval.
func NewLineReader(r io.Reader, interval time.Duration) *LineReader {
	return &LineReader{
		sc:   bufio.NewScanner(r),
		pace: pacer{interval: interval},
	}
}

func (r *LineReader) Next(ctx context.Context) (eda.Level, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(r.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: line %d: %q is not a number", ErrBadSample, r.line, text)
		}
		if v < 0 || v > 255 {
			return 0, fmt.Errorf("%w: line %d: level %d out of range 0..255", ErrBadSample, r.line, v)
		}

		if err := r.pace.wait(ctx); err != nil {
			return 0, err
		}
		return eda.Level(v), nil
	}

	if err := r.sc.Err(); err != nil {
		return 0, fmt.Errorf("failed to read levels: %w", err)
	}
	return 0, io.EOF
}

// Close stops the pacing ticker. It does not close the underlying reader.
func (r *LineReader) Close() error {
	r.pace.stop()
	return nil
}
