package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/halyard/internal/brand"
)

// LoadOptions controls how configs are loaded.
type LoadOptions struct {
	// AllowMissing returns the defaults when the file does not exist.
	AllowMissing bool
	// LookupEnv resolves HALYARD_* overrides. Nil disables overrides.
	LookupEnv func(string) (string, bool)
}

// DefaultLoadOptions returns the options used by the daemon.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		AllowMissing: true,
		LookupEnv:    os.LookupEnv,
	}
}

// LoadFile loads and validates a config file (HCL or JSON).
func LoadFile(path string) (*Config, error) {
	return LoadFileWithOptions(path, DefaultLoadOptions())
}

// LoadFileWithOptions loads a config file with explicit options.
func LoadFileWithOptions(path string, opts LoadOptions) (*Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && opts.AllowMissing:
		cfg := Default()
		return finish(cfg, opts)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadBytes(data, path, opts)
}

// LoadBytes parses config source. The filename extension selects the
// syntax: ".json" is JSON, anything else is HCL.
func LoadBytes(data []byte, filename string, opts LoadOptions) (*Config, error) {
	if strings.ToLower(filepath.Ext(filename)) != ".json" {
		filename = strings.TrimSuffix(filename, filepath.Ext(filename)) + ".hcl"
	}

	cfg := Default()
	if err := hclsimple.Decode(filename, data, evalContext(opts.LookupEnv), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return finish(cfg, opts)
}

func finish(cfg *Config, opts LoadOptions) (*Config, error) {
	cfg.applyDefaults()
	if opts.LookupEnv != nil {
		if err := ApplyEnv(cfg, opts.LookupEnv); err != nil {
			return nil, err
		}
	}
	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, errs.Errors()
	}
	return cfg, nil
}

// applyDefaults fills fields a partially specified block left empty.
func (c *Config) applyDefaults() {
	def := DefaultWifi()
	if c.Wifi == nil {
		c.Wifi = def
		return
	}
	if c.Wifi.Interface == "" {
		c.Wifi.Interface = def.Interface
	}
	if c.Wifi.VirtualInterface == "" {
		c.Wifi.VirtualInterface = def.VirtualInterface
	}
	if c.Wifi.IWPath == "" {
		c.Wifi.IWPath = def.IWPath
	}
}

// evalContext exposes env.NAME and state_dir to config expressions, e.g.
// cert_dir = "${state_dir}/certs".
func evalContext(lookup func(string) (string, bool)) *hcl.EvalContext {
	env := map[string]cty.Value{}
	if lookup != nil {
		for _, kv := range os.Environ() {
			name, _, _ := strings.Cut(kv, "=")
			if v, ok := lookup(name); ok {
				env[name] = cty.StringVal(v)
			}
		}
	}
	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal = cty.MapVal(env)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env":       envVal,
			"state_dir": cty.StringVal(brand.GetStateDir()),
		},
	}
}

// ApplyEnv overrides cfg from HALYARD_* variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	prefix := brand.ConfigEnvPrefix + "_"
	str := func(key string, dst *string) {
		if v, ok := lookup(prefix + key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(prefix + key); ok {
			*dst = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
		}
	}

	str("LISTEN", &cfg.Listen)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("BACKEND", &cfg.Backend)
	str("CERT_DIR", &cfg.CertDir)
	str("STATE_DB", &cfg.StateDB)
	str("STATUS_REFRESH", &cfg.StatusRefresh)
	str("SHELL_TIMEOUT", &cfg.ShellTimeout)
	list("UNMANAGED_DEVICES", &cfg.UnmanagedDevices)
	list("RESERVED_PROFILES", &cfg.ReservedProfiles)

	if v, ok := lookup(prefix + "LOG_JSON"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_JSON: %w", prefix, err)
		}
		cfg.LogJSON = b
	}
	if cfg.Wifi == nil {
		cfg.Wifi = DefaultWifi()
	}
	str("WIFI_INTERFACE", &cfg.Wifi.Interface)
	return nil
}
