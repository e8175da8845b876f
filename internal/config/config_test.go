package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/amadeus.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amadeus.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "amadeus.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "amadeus.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amadeus.yaml")
	os.WriteFile(path, []byte("bridge:\n  node_name: ${AMADEUS_TEST_NODE}\n"), 0600)
	os.Setenv("AMADEUS_TEST_NODE", "host-a")
	defer os.Unsetenv("AMADEUS_TEST_NODE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Bridge.NodeName != "host-a" {
		t.Errorf("node_name = %q, want %q", cfg.Bridge.NodeName, "host-a")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amadeus.yaml")
	os.WriteFile(path, []byte("{}\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("listen.port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.Bridge.ServiceName != "Amadeus/Message/Service" {
		t.Errorf("bridge.service_name = %q, want default", cfg.Bridge.ServiceName)
	}
	if cfg.Memo.DBPath != filepath.Join(cfg.DataDir, "memo.db") {
		t.Errorf("memo.db_path = %q, want derived from data_dir", cfg.Memo.DBPath)
	}
}

func TestValidate_ListenPortOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Listen.Port = 70000

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range listen.port")
	}
}

func TestValidate_BridgeEnabledMissingBroker(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Enabled = true
	cfg.Bridge.Broker = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bridge.enabled without broker")
	}
}

func TestBridgeConfig_Configured(t *testing.T) {
	tests := []struct {
		name string
		cfg  BridgeConfig
		want bool
	}{
		{"all set", BridgeConfig{Enabled: true, NodeName: "n", ServiceName: "s", Broker: "tcp://x:1883"}, true},
		{"disabled", BridgeConfig{Enabled: false, NodeName: "n", ServiceName: "s", Broker: "tcp://x:1883"}, false},
		{"no broker", BridgeConfig{Enabled: true, NodeName: "n", ServiceName: "s"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "not-a-level"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}
