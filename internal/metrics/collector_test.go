package metrics

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/logging"
)

type fakeSource struct {
	calls atomic.Int32
	stats map[string]InterfaceStats
	err   error
}

func (f *fakeSource) AllInterfaceStats(context.Context) (map[string]InterfaceStats, error) {
	f.calls.Add(1)
	return f.stats, f.err
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Output = io.Discard
	return logging.New(cfg)
}

func TestCollector_Collect(t *testing.T) {
	src := &fakeSource{stats: map[string]InterfaceStats{
		"wlan0": {Name: "wlan0", RxBytes: 1000, TxBytes: 500, RxPackets: 10, TxPackets: 5, RxErrors: 1},
		"eth0":  UnknownInterfaceStats("eth0"),
	}}
	c := NewCollector(testLogger(), src, time.Minute)
	assert.True(t, c.Taken().IsZero())

	c.Collect(context.Background())

	assert.False(t, c.Taken().IsZero())
	assert.Equal(t, 500.0, testutil.ToFloat64(Get().InterfaceTxBytes.WithLabelValues("wlan0")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(Get().InterfaceRxBytes.WithLabelValues("wlan0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Get().InterfaceErrors.WithLabelValues("wlan0", "rx")))
}

func TestCollector_CollectFailureKeepsLastSample(t *testing.T) {
	src := &fakeSource{err: errors.New("netlink unavailable")}
	c := NewCollector(testLogger(), src, time.Minute)

	c.Collect(context.Background())
	assert.True(t, c.Taken().IsZero())
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCollector_Lifecycle(t *testing.T) {
	src := &fakeSource{stats: map[string]InterfaceStats{}}
	c := NewCollector(testLogger(), src, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestCollector_StopsOnContext(t *testing.T) {
	src := &fakeSource{stats: map[string]InterfaceStats{}}
	c := NewCollector(testLogger(), src, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector ignored context cancellation")
	}
}

func TestRecordProfileOp(t *testing.T) {
	r := Get()
	okBefore := testutil.ToFloat64(r.ProfileOperations.WithLabelValues("delete", "ok"))
	nfBefore := testutil.ToFloat64(r.ProfileOperations.WithLabelValues("delete", "not_found"))

	r.RecordProfileOp("delete", nil)
	r.RecordProfileOp("delete", fault.New(fault.NotFound, "delete", "ghost", "no such profile"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(r.ProfileOperations.WithLabelValues("delete", "ok")))
	assert.Equal(t, nfBefore+1, testutil.ToFloat64(r.ProfileOperations.WithLabelValues("delete", "not_found")))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "internal", Outcome(errors.New("boom")))
	assert.Equal(t, "compensation_failure", Outcome(&fault.CompensationFailure{Identity: "office"}))
}

func TestSetAccessPoints(t *testing.T) {
	r := Get()
	r.SetAccessPoints(map[string]int{"wpa-psk": 3, "none": 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(r.AccessPoints.WithLabelValues("wpa-psk")))

	r.SetAccessPoints(map[string]int{"none": 2})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.AccessPoints.WithLabelValues("none")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.AccessPoints.WithLabelValues("wpa-psk")))
}

func TestRecordRollback(t *testing.T) {
	r := Get()
	before := testutil.ToFloat64(r.ReplaceRollbacks.WithLabelValues("failed"))
	r.RecordRollback(false)
	assert.Equal(t, before+1, testutil.ToFloat64(r.ReplaceRollbacks.WithLabelValues("failed")))
}
