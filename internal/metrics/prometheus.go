package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grimm.is/halyard/internal/fault"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all daemon metrics.
type Registry struct {
	// Profile lifecycle
	ProfileOperations *prometheus.CounterVec
	ReplaceRollbacks  *prometheus.CounterVec
	BackendErrors     *prometheus.CounterVec

	// Inventory
	StatusRefresh prometheus.Histogram
	AccessPoints  *prometheus.GaugeVec

	// Interface metrics
	InterfaceRxBytes   *prometheus.GaugeVec
	InterfaceTxBytes   *prometheus.GaugeVec
	InterfaceRxPackets *prometheus.GaugeVec
	InterfaceTxPackets *prometheus.GaugeVec
	InterfaceErrors    *prometheus.GaugeVec

	// System metrics
	Uptime      prometheus.Gauge
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.ProfileOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "halyard_profile_operations_total",
		Help: "Profile lifecycle operations by outcome",
	}, []string{"op", "outcome"})

	r.ReplaceRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "halyard_replace_rollbacks_total",
		Help: "Replace rollbacks by outcome (restored or failed)",
	}, []string{"outcome"})

	r.BackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "halyard_backend_errors_total",
		Help: "Failed NetworkManager calls",
	}, []string{"call"})

	r.StatusRefresh = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "halyard_status_refresh_seconds",
		Help:    "Time taken to rebuild the network status snapshot",
		Buckets: prometheus.DefBuckets,
	})

	r.AccessPoints = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "halyard_access_points",
		Help: "Visible access points by key management",
	}, []string{"security"})

	r.InterfaceRxBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "halyard_interface_rx_bytes",
		Help: "Bytes received per interface",
	}, []string{"interface"})

	r.InterfaceTxBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "halyard_interface_tx_bytes",
		Help: "Bytes transmitted per interface",
	}, []string{"interface"})

	r.InterfaceRxPackets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "halyard_interface_rx_packets",
		Help: "Packets received per interface",
	}, []string{"interface"})

	r.InterfaceTxPackets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "halyard_interface_tx_packets",
		Help: "Packets transmitted per interface",
	}, []string{"interface"})

	r.InterfaceErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "halyard_interface_errors",
		Help: "Interface errors by direction",
	}, []string{"interface", "direction"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "halyard_uptime_seconds",
		Help: "Daemon uptime in seconds",
	})

	r.APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "halyard_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "halyard_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// Outcome labels a finished operation: "ok", or the fault kind of err.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return fault.KindOf(err).String()
}

// RecordProfileOp records a lifecycle operation.
func (r *Registry) RecordProfileOp(op string, err error) {
	r.ProfileOperations.WithLabelValues(op, Outcome(err)).Inc()
}

// RecordRollback records the outcome of a replace rollback.
func (r *Registry) RecordRollback(restored bool) {
	outcome := "restored"
	if !restored {
		outcome = "failed"
	}
	r.ReplaceRollbacks.WithLabelValues(outcome).Inc()
}

// RecordBackendError records a failed backend call.
func (r *Registry) RecordBackendError(call string) {
	r.BackendErrors.WithLabelValues(call).Inc()
}

// ObserveStatusRefresh records how long a status rebuild took.
func (r *Registry) ObserveStatusRefresh(d time.Duration) {
	r.StatusRefresh.Observe(d.Seconds())
}

// SetAccessPoints replaces the access point gauge with counts per key management.
func (r *Registry) SetAccessPoints(counts map[string]int) {
	r.AccessPoints.Reset()
	for security, n := range counts {
		r.AccessPoints.WithLabelValues(security).Set(float64(n))
	}
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, statusString(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return fmt.Sprintf("%d", status)
}
