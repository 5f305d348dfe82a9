package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyACM0
network:
  channel: 15
  pan_id: 0x1A62
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("Baud = %d, want 115200", cfg.Serial.Baud)
	}
	if cfg.Bus.MaxConcurrentReq != 8 {
		t.Errorf("MaxConcurrentReq = %d, want 8", cfg.Bus.MaxConcurrentReq)
	}
	timeout, err := cfg.RequestTimeout()
	if err != nil || timeout.Seconds() != 6 {
		t.Errorf("RequestTimeout = %v, %v", timeout, err)
	}
}

func TestLoadRejectsInvalidChannel(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyACM0
network:
  channel: 40
  pan_id: 0x1A62
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for out-of-range channel")
	}
}

func TestLoadRejectsMissingPort(t *testing.T) {
	path := writeConfig(t, `
network:
  channel: 15
  pan_id: 0x1A62
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing serial.port")
	}
}

func TestChannelMask(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyACM0
network:
  channel: 15
  pan_id: 0x1A62
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChannelMask() != 1<<15 {
		t.Errorf("ChannelMask = %#x, want %#x", cfg.ChannelMask(), uint32(1<<15))
	}
}
