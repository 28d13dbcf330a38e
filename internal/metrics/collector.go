package metrics

import (
	"context"
	"sync"
	"time"

	"grimm.is/halyard/internal/logging"
)

// InterfaceStats holds traffic counters for a network interface. A counter
// that could not be read is -1.
type InterfaceStats struct {
	Name      string `json:"-"`
	RxBytes   int64  `json:"rxBytes"`
	RxPackets int64  `json:"rxPackets"`
	RxErrors  int64  `json:"rxErrors"`
	RxDropped int64  `json:"rxDropped"`
	Multicast int64  `json:"multicast"`
	TxBytes   int64  `json:"txBytes"`
	TxPackets int64  `json:"txPackets"`
	TxErrors  int64  `json:"txErrors"`
	TxDropped int64  `json:"txDropped"`
}

// UnknownInterfaceStats is returned when counters cannot be read.
func UnknownInterfaceStats(name string) InterfaceStats {
	return InterfaceStats{
		Name: name, RxBytes: -1, RxPackets: -1, RxErrors: -1, RxDropped: -1,
		Multicast: -1, TxBytes: -1, TxPackets: -1, TxErrors: -1, TxDropped: -1,
	}
}

// StatsSource supplies per-interface counters for managed interfaces.
type StatsSource interface {
	AllInterfaceStats(ctx context.Context) (map[string]InterfaceStats, error)
}

// Collector periodically samples interface counters into the registry.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	source   StatsSource
	interval time.Duration
	started  time.Time
	stopCh   chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	lastUpdate time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(logger *logging.Logger, source StatsSource, interval time.Duration) *Collector {
	return &Collector{
		registry: Get(),
		logger:   logger,
		source:   source,
		interval: interval,
		started:  time.Now(),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-ctx.Done():
			c.logger.Info("Stopping metrics collector")
			return
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect takes one sample.
func (c *Collector) Collect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c.UpdateSystemMetrics(time.Since(c.started))

	stats, err := c.source.AllInterfaceStats(ctx)
	if err != nil {
		c.logger.Warn("Failed to collect interface stats", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for name, s := range stats {
		if s.RxBytes < 0 {
			continue
		}
		c.registry.InterfaceRxBytes.WithLabelValues(name).Set(float64(s.RxBytes))
		c.registry.InterfaceTxBytes.WithLabelValues(name).Set(float64(s.TxBytes))
		c.registry.InterfaceRxPackets.WithLabelValues(name).Set(float64(s.RxPackets))
		c.registry.InterfaceTxPackets.WithLabelValues(name).Set(float64(s.TxPackets))
		c.registry.InterfaceErrors.WithLabelValues(name, "rx").Set(float64(s.RxErrors))
		c.registry.InterfaceErrors.WithLabelValues(name, "tx").Set(float64(s.TxErrors))
	}
	c.lastUpdate = time.Now()
}

// UpdateSystemMetrics updates the uptime gauge.
func (c *Collector) UpdateSystemMetrics(uptime time.Duration) {
	c.registry.Uptime.Set(uptime.Seconds())
}

// Taken returns when the last successful sample was taken.
func (c *Collector) Taken() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
