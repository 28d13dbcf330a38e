package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	during  func(ctx context.Context)
	err     error
}

func (s *countingSource) Status(ctx context.Context) (map[string]InterfaceStatus, error) {
	s.calls.Add(1)
	if s.during != nil {
		s.during(ctx)
	}
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return map[string]InterfaceStatus{"eth0": {Status: DeviceStatus{StateText: "Activated"}}}, nil
}

func TestStatusCacheSingleFlight(t *testing.T) {
	src := &countingSource{entered: make(chan struct{}, 8), release: make(chan struct{})}
	c := NewStatusCache(src, time.Minute, quietLogger())

	var wg sync.WaitGroup
	results := make([]map[string]InterfaceStatus, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Refresh(context.Background())
	}()
	<-src.entered

	for i := 1; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Refresh(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, r := range results {
		assert.Contains(t, r, "eth0")
	}
}

func TestStatusCacheServesSnapshot(t *testing.T) {
	src := &countingSource{}
	c := NewStatusCache(src, time.Minute, quietLogger())
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, now, c.Taken())

	// Callers get a copy.
	delete(snap, "eth0")
	snap, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap, "eth0")

	c.Invalidate()
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestStatusCacheKeepsSnapshotOnError(t *testing.T) {
	src := &countingSource{}
	c := NewStatusCache(src, time.Minute, quietLogger())
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	src.err = errors.New("backend gone")
	_, err = c.Refresh(context.Background())
	require.Error(t, err)

	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap, "eth0")
}

func TestStatusCacheStartClose(t *testing.T) {
	src := &countingSource{}
	c := NewStatusCache(src, 10*time.Millisecond, quietLogger())
	c.Start(context.Background())

	assert.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	c.Close()
	after := src.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, src.calls.Load())
	c.Close()
}

func TestStatusCacheInvalidateDuringRefresh(t *testing.T) {
	src := &countingSource{}
	c := NewStatusCache(src, time.Minute, quietLogger())
	src.during = func(context.Context) {
		if src.calls.Load() == 1 {
			c.Invalidate()
		}
	}

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	// The first walk raced a mutation, so its snapshot must not be served as fresh.
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestStatusCacheRefreshOutlivesCancelledCaller(t *testing.T) {
	var walkErr error
	src := &countingSource{during: func(ctx context.Context) { walkErr = ctx.Err() }}
	c := NewStatusCache(src, time.Minute, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Contains(t, snap, "eth0")
	assert.NoError(t, walkErr)
}

func TestStatusCacheRefreshIsBounded(t *testing.T) {
	var deadline time.Time
	src := &countingSource{during: func(ctx context.Context) { deadline, _ = ctx.Deadline() }}
	c := NewStatusCache(src, time.Minute, quietLogger())
	c.timeout = time.Second

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.False(t, deadline.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}
