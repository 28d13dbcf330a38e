package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// EncodeHCL renders cfg as HCL source.
func EncodeHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(cfg, f.Body())
	return hclwrite.Format(f.Bytes())
}

// EncodeJSON renders cfg as indented JSON.
func EncodeJSON(cfg *Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// SaveFile writes cfg to path, choosing the syntax from the extension. The
// previous file, if any, is kept as path.bak.
func SaveFile(path string, cfg *Config) error {
	var data []byte
	if filepath.Ext(path) == ".json" {
		var err error
		if data, err = EncodeJSON(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	} else {
		data = EncodeHCL(cfg)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if old, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", old, 0644); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp, path)
}
