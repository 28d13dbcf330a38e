// Package nm is the boundary to the connection-management backend
// (NetworkManager over D-Bus).
//
// Backend is the raw object/property contract: every value crossing it is a
// type-tagged Variant. Client layers typed accessors on top of a Backend and
// returns plain structs (Device, ActiveConnection, AccessPoint, IPConfig,
// DHCPConfig) so that nothing above this package handles Variants except the
// settings codec.
//
// Two Backend implementations are provided:
//   - DBusBackend talks to the system bus.
//   - MemoryBackend is an in-process model used by tests and by the
//     daemon's memory mode for development without NetworkManager.
package nm
