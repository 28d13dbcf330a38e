// Package inventory reports the devices, interfaces and access points the
// connection manager knows about.
//
// The Aggregator walks the backend on every call. StatusCache keeps the
// network status snapshot the API serves and rebuilds it on a timer or on
// demand. Facts the backend does not report come from the kernel: driver
// details from ethtool, link flags and counters from netlink, and the
// regulatory domain, link signal and AP frequency from iw.
//
// Devices named in the unmanaged set never appear in any listing.
package inventory
