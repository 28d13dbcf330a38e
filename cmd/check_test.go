package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCheck_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "valid.hcl")

	validConfig := `
listen            = "127.0.0.1:9000"
backend           = "memory"
cert_dir          = "/etc/halyard/certs"
unmanaged_devices = ["lo", "eth1"]
reserved_profiles = ["default"]

wifi {
  interface = "wlan0"
}
`
	if err := os.WriteFile(configPath, []byte(validConfig), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var out bytes.Buffer
	if err := RunCheck(&out, configPath, true); err != nil {
		t.Fatalf("RunCheck() error = %v", err)
	}
	for _, want := range []string{"Configuration valid!", "Backend: memory", "eth1", "default"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.hcl")

	invalidConfig := `
wifi {
    # Missing closing brace
`
	if err := os.WriteFile(configPath, []byte(invalidConfig), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if err := RunCheck(&bytes.Buffer{}, configPath, false); err == nil {
		t.Error("RunCheck() error = nil, want parse error")
	}
}

func TestRunCheck_SemanticError(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.hcl")
	if err := os.WriteFile(configPath, []byte(`backend = "netplan"`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	err := RunCheck(&bytes.Buffer{}, configPath, false)
	if err == nil || !strings.Contains(err.Error(), "backend") {
		t.Errorf("RunCheck() error = %v, want backend validation error", err)
	}
}

func TestRunCheck_MissingFile(t *testing.T) {
	if err := RunCheck(&bytes.Buffer{}, filepath.Join(t.TempDir(), "absent.hcl"), false); err == nil {
		t.Error("RunCheck() accepted a missing file")
	}
	if err := RunCheck(&bytes.Buffer{}, "", false); err == nil {
		t.Error("RunCheck() accepted an empty path")
	}
}

func TestRunInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "halyard.hcl")

	var out bytes.Buffer
	if err := RunInitConfig(&out, path, false); err != nil {
		t.Fatalf("RunInitConfig() error = %v", err)
	}
	if err := RunInitConfig(&out, path, false); err == nil {
		t.Error("RunInitConfig() overwrote an existing file without --force")
	}
	if err := RunInitConfig(&out, path, true); err != nil {
		t.Fatalf("RunInitConfig(force) error = %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("backup not written: %v", err)
	}

	if err := RunCheck(&bytes.Buffer{}, path, false); err != nil {
		t.Errorf("generated config does not validate: %v", err)
	}
}

func TestRunShowConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halyard.hcl")
	if err := os.WriteFile(path, []byte(`listen = "0.0.0.0:8800"`+"\n"+`backend = "memory"`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var hcl bytes.Buffer
	if err := RunShowConfig(&hcl, path, false); err != nil {
		t.Fatalf("RunShowConfig() error = %v", err)
	}
	if !strings.Contains(hcl.String(), `"0.0.0.0:8800"`) || !strings.Contains(hcl.String(), "wifi {") {
		t.Errorf("unexpected HCL:\n%s", hcl.String())
	}

	var js bytes.Buffer
	if err := RunShowConfig(&js, path, true); err != nil {
		t.Fatalf("RunShowConfig(json) error = %v", err)
	}
	if !strings.Contains(js.String(), `"listen": "0.0.0.0:8800"`) {
		t.Errorf("unexpected JSON:\n%s", js.String())
	}
}
