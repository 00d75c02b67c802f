package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 9000 {
		t.Errorf("ListenPort = %d, want 9000", cfg.ListenPort)
	}
	if cfg.NetflowQueue != 50000 {
		t.Errorf("NetflowQueue = %d, want 50000", cfg.NetflowQueue)
	}
	if cfg.NetflowWorkers != 50 {
		t.Errorf("NetflowWorkers = %d, want 50", cfg.NetflowWorkers)
	}
	if cfg.CymruResolver != "8.8.8.8:53" {
		t.Errorf("CymruResolver = %q, want 8.8.8.8:53", cfg.CymruResolver)
	}
	if cfg.ResolveTimeout != 2*time.Second {
		t.Errorf("ResolveTimeout = %v, want 2s", cfg.ResolveTimeout)
	}
	if cfg.ForwardEnable {
		t.Error("ForwardEnable should default false")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gixflow.yaml")
	yaml := "listen_port: 9500\nip2asn: true\npinned_prefixes:\n  - 10.5.0.0/16\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 9500 {
		t.Errorf("ListenPort = %d, want 9500", cfg.ListenPort)
	}
	if !cfg.IP2ASN {
		t.Error("IP2ASN should be true from file")
	}
	if len(cfg.PinnedPrefixes) != 1 || cfg.PinnedPrefixes[0].String() != "10.5.0.0/16" {
		t.Errorf("PinnedPrefixes = %v, want [10.5.0.0/16]", cfg.PinnedPrefixes)
	}
}

func TestFlagOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gixflow.yaml")
	if err := os.WriteFile(path, []byte("listen_port: 9500\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, map[string]interface{}{"listen_port": 9600})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 9600 {
		t.Errorf("ListenPort = %d, want 9600 (flag should win)", cfg.ListenPort)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	_, err := Load("", map[string]interface{}{"listen_port": 70000})
	if err == nil {
		t.Fatal("expected an error for an out-of-range listen_port")
	}
}

func TestLoadRejectsForwardWithoutHost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gixflow.yaml")
	yaml := "forwardto_enable: true\nforwardto_ip: \"\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(path, nil)
	if err == nil {
		t.Fatal("expected an error when forwarding is enabled without a target host")
	}
}
