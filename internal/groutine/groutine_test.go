package groutine_test

import (
	"context"
	"testing"
	"time"

	"github.com/srg/edad/internal/groutine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo(t *testing.T) {
	var (
		name string
		gid  uint64
	)
	done := groutine.Go(context.Background(), "worker-1", func(ctx context.Context) {
		name = groutine.GetName(ctx)
		gid = groutine.GetGID()
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "goroutine did not finish")
	}

	assert.Equal(t, "worker-1", name)
	assert.NotZero(t, gid)
	assert.NotEqual(t, groutine.GetGID(), gid, "fn MUST run on its own goroutine")
}

func TestGo_NilParent(t *testing.T) {
	//nolint:staticcheck // nil parent is part of the contract
	done := groutine.Go(nil, "nil-parent", func(ctx context.Context) {
		assert.NotNil(t, ctx)
	})
	<-done
}

func TestGetName_Unnamed(t *testing.T) {
	assert.Empty(t, groutine.GetName(context.Background()))
	//nolint:staticcheck
	assert.Empty(t, groutine.GetName(nil))
}
