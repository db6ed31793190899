package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("max upload bytes = %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Convert.DefaultFormat != "webp" {
		t.Fatalf("default format = %q", cfg.Convert.DefaultFormat)
	}
	if cfg.Storage.Endpoint != "" {
		t.Fatalf("storage should be unconfigured by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[log]
level = "debug"
format = "json"

[server]
addr = ":9090"
max_upload_bytes = 1048576

[convert]
default_format = "avif"

[storage]
endpoint = "localhost:9000"
bucket = "converted"
access_key = "ak"
secret_key = "sk"
use_ssl = true
public_base_url = "https://cdn.example.com"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.MaxUploadBytes != 1<<20 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Convert.DefaultFormat != "avif" {
		t.Fatalf("convert = %+v", cfg.Convert)
	}
	if cfg.Storage.Bucket != "converted" || !cfg.Storage.UseSSL {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}
