// Package groutine starts named goroutines. The name is attached as a pprof
// label so the dispatch loop and sensor pumps are identifiable in profiles
// and goroutine dumps, and is retrievable from the goroutine's context.
package groutine

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

type nameKey struct{}

const labelName = "goroutine_name"

// Go runs fn on a new goroutine labelled with name and returns a channel
// that is closed once fn returns. A nil parent means context.Background().
//
//	done := groutine.Go(ctx, "gatt-dispatch", loop)
//	<-done
func Go(parent context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parent == nil {
		parent = context.Background()
	}

	done := make(chan struct{})
	go pprof.Do(parent, pprof.Labels(labelName, name), func(ctx context.Context) {
		defer close(done)
		fn(context.WithValue(ctx, nameKey{}, name))
	})
	return done
}

// GetName returns the name given to Go, or "" outside a named goroutine.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(nameKey{}).(string)
	return name
}

// GetGID returns the runtime id of the calling goroutine, parsed from the
// header line of its stack trace. It is used to detect re-entrant calls into
// a loop goroutine; never for scheduling decisions.
func GetGID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		gid, err := strconv.ParseUint(string(b[:i]), 10, 64)
		if err == nil {
			return gid
		}
	}
	return 0
}
