// Package config handles daemon configuration: HCL (or JSON) parsing,
// environment overrides and validation.
//
// # Overview
//
// Halyard reads a single file, by default /etc/halyard/halyard.hcl:
//
//	schema_version = "1.0"
//	listen         = "127.0.0.1:8742"
//	backend        = "dbus"
//	cert_dir       = "/etc/halyard/certs"
//
//	unmanaged_devices        = ["eth1"]
//	managed_software_devices = ["wlan1"]
//	reserved_profiles        = ["default"]
//
//	wifi {
//	  interface         = "wlan0"
//	  virtual_interface = "wlan1"
//	}
//
// Every key is optional; [Default] supplies the rest. Keys can be overridden
// with HALYARD_* environment variables, see [ApplyEnv].
//
// # Validation
//
// [Config.Validate] runs struct-tag validation and domain checks, and returns
// every problem at once as [ValidationErrors].
package config
