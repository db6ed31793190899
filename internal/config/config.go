// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultMaxUploadBytes = 50 << 20
	DefaultFormat         = "webp"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
	Convert ConvertConfig `toml:"convert"`
	Storage StorageConfig `toml:"storage"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address and the upload body limit.
type ServerConfig struct {
	Addr           string `toml:"addr"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// ConvertConfig holds conversion defaults.
type ConvertConfig struct {
	// DefaultFormat is the output format used when a request omits the
	// format selector.
	DefaultFormat string `toml:"default_format"`
}

// StorageConfig holds the S3-compatible sink settings. Leaving the
// credentials empty disables the upload endpoint entirely.
type StorageConfig struct {
	Endpoint      string `toml:"endpoint"`
	Region        string `toml:"region"`
	Bucket        string `toml:"bucket"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	UseSSL        bool   `toml:"use_ssl"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:           DefaultHTTPAddr,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
		Convert: ConvertConfig{
			DefaultFormat: DefaultFormat,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
