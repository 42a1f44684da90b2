package history

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// callCounter counts fetch cycles through the mocked signature listing.
type callCounter struct {
	n atomic.Int32
}

func (c *callCounter) count() int { return int(c.n.Load()) }

func newRefreshReconstructor(t *testing.T, interval time.Duration) (*Reconstructor, *callCounter) {
	t.Helper()

	calls := &callCounter{}
	rpc := &MockChainReader{}
	rpc.On("SignaturesForAddress", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { calls.n.Add(1) }).
		Return([]chain.SignatureInfo{}, nil)

	r, err := NewReconstructor(Config{ProgramID: testProgramID, RefreshInterval: interval}, rpc)
	require.NoError(t, err)
	return r, calls
}

func TestReconstructor_StartAutoRefresh(t *testing.T) {
	r, calls := newRefreshReconstructor(t, 20*time.Millisecond)

	r.StartAutoRefresh(context.Background())
	defer r.StopAutoRefresh()

	assert.True(t, r.AutoRefreshing())

	// Immediate fetch plus at least two ticks.
	assert.Eventually(t, func() bool {
		return calls.count() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestReconstructor_StartAutoRefresh_Idempotent(t *testing.T) {
	r, _ := newRefreshReconstructor(t, time.Hour)

	r.StartAutoRefresh(context.Background())
	first := r.refresh
	r.StartAutoRefresh(context.Background())
	r.StartAutoRefresh(context.Background())

	assert.Same(t, first, r.refresh, "Should keep a single refresh loop")

	r.StopAutoRefresh()
	assert.False(t, r.AutoRefreshing())
}

func TestReconstructor_StopAutoRefresh(t *testing.T) {
	t.Run("stop without start", func(t *testing.T) {
		r, _ := newRefreshReconstructor(t, time.Hour)

		assert.NotPanics(t, func() {
			r.StopAutoRefresh()
			r.StopAutoRefresh()
		})
		assert.False(t, r.AutoRefreshing())
	})

	t.Run("no fetches after stop", func(t *testing.T) {
		r, calls := newRefreshReconstructor(t, 10*time.Millisecond)

		r.StartAutoRefresh(context.Background())
		require.Eventually(t, func() bool { return calls.count() >= 1 }, time.Second, 5*time.Millisecond)

		r.StopAutoRefresh()
		time.Sleep(30 * time.Millisecond) // let a tick that raced with stop finish
		after := calls.count()

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, after, calls.count())
	})

	t.Run("restart after stop", func(t *testing.T) {
		r, calls := newRefreshReconstructor(t, time.Hour)

		r.StartAutoRefresh(context.Background())
		require.Eventually(t, func() bool { return calls.count() == 1 }, time.Second, 5*time.Millisecond)
		r.StopAutoRefresh()

		r.StartAutoRefresh(context.Background())
		defer r.StopAutoRefresh()
		assert.Eventually(t, func() bool { return calls.count() == 2 }, time.Second, 5*time.Millisecond)
	})
}

func TestReconstructor_AutoRefresh_ParentCancel(t *testing.T) {
	r, _ := newRefreshReconstructor(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	r.StartAutoRefresh(ctx)
	cancel()

	assert.Eventually(t, func() bool { return !r.AutoRefreshing() }, time.Second, 5*time.Millisecond,
		"A loop ended by its parent context should be forgotten")
}
