//go:build !linux

package inventory

import (
	"errors"

	"grimm.is/halyard/internal/metrics"
)

var errNoLinks = errors.New("link inspection requires linux")

// SystemLinks inspects interfaces (Stub).
type SystemLinks struct{}

// NewSystemLinks creates a SystemLinks (Stub).
func NewSystemLinks() *SystemLinks { return &SystemLinks{} }

// Close is a no-op (Stub).
func (s *SystemLinks) Close() {}

// DriverInfo implements LinkInspector (Stub).
func (s *SystemLinks) DriverInfo(name string) (DriverInfo, error) {
	return DriverInfo{}, errNoLinks
}

// LinkFlags implements LinkInspector (Stub).
func (s *SystemLinks) LinkFlags(name string) ([]string, error) {
	return nil, errNoLinks
}

// Stats implements LinkInspector (Stub).
func (s *SystemLinks) Stats(name string) (metrics.InterfaceStats, error) {
	return metrics.UnknownInterfaceStats(name), errNoLinks
}

var _ LinkInspector = (*SystemLinks)(nil)
