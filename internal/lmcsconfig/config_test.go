package lmcsconfig

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	StorageType string `yaml:"storageType"`
	BufferSize  int    `yaml:"bufferSize"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadIntoDecodesYAML(t *testing.T) {
	path := writeFile(t, "storageType: aol\nbufferSize: 250\n")

	var cfg testConfig
	if err := LoadInto(path, &cfg); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	if cfg.StorageType != "aol" || cfg.BufferSize != 250 {
		t.Fatalf("LoadInto = %+v", cfg)
	}
}

func TestLoadIntoMissingFileReturnsError(t *testing.T) {
	var cfg testConfig
	if err := LoadInto(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadIntoInvalidYAMLReturnsError(t *testing.T) {
	path := writeFile(t, "storageType: [unterminated\n")

	var cfg testConfig
	if err := LoadInto(path, &cfg); err == nil {
		t.Fatal("expected decode error for invalid YAML")
	}
}

func TestLoadReturnsRawMap(t *testing.T) {
	path := writeFile(t, "storageType: json\nbufferSize: 10\n")

	raw, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if raw["storageType"] != "json" {
		t.Fatalf("Load = %v", raw)
	}
}
