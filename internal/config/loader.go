package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}

	// Model
	if cfg.Model.APIKey == "" {
		slog.Warn("model.api_key is empty; the model-realtime WebSocket dial will fail at call time")
	}
	if cfg.Model.Greeting == "" {
		slog.Warn("model.greeting is empty; calls will open with silence until the caller speaks")
	}

	// Carrier
	if cfg.Carrier.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("carrier.session_ttl must not be negative"))
	}
	if cfg.Carrier.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("carrier.tool_timeout must not be negative"))
	}

	// Upload
	if cfg.Upload.BaseURL == "" {
		slog.Warn("upload.base_url is empty; request_image_upload will issue links with no host")
	}
	if cfg.Upload.TTL < 0 {
		errs = append(errs, fmt.Errorf("upload.ttl must not be negative"))
	}

	return errors.Join(errs...)
}
