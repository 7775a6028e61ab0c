// Package config provides the configuration schema and loader for the
// Voicebridge telephony voice agent.
package config

import "time"

// Config is the root configuration structure for Voicebridge. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Carrier    CarrierConfig    `yaml:"carrier"`
	Upload     UploadConfig     `yaml:"upload"`
	Diagnostic DiagnosticConfig `yaml:"diagnostic"`
}

// ServerConfig holds network and logging settings for the Voicebridge
// HTTP/WebSocket server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds how long graceful shutdown waits for in-flight
	// calls to end before the process exits anyway.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogLevel is a validated log verbosity string.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ModelConfig configures the outbound connection to the model-realtime
// WebSocket endpoint (spec §6).
type ModelConfig struct {
	// APIKey authenticates the model-realtime WebSocket dial.
	APIKey string `yaml:"api_key"`

	// Model selects the realtime model (e.g. "gpt-4o-realtime-preview").
	Model string `yaml:"model"`

	// BaseURL overrides the model-realtime endpoint. Leave empty to use the
	// built-in default.
	BaseURL string `yaml:"base_url"`

	// FallbackBaseURLs are additional model-realtime endpoints (e.g. a
	// standby region) tried in order if BaseURL's dial fails or its circuit
	// breaker is open. Empty means no failover — a dial failure against
	// BaseURL fails the call outright.
	FallbackBaseURLs []string `yaml:"fallback_base_urls"`

	// Voice selects the model's synthesized voice.
	Voice string `yaml:"voice"`

	// Instructions is the system prompt injected into every call's
	// session.update.
	Instructions string `yaml:"instructions"`

	// Greeting is the fixed opening line spoken at the start of every call.
	Greeting string `yaml:"greeting"`
}

// CarrierConfig holds settings governing one call's lifetime on the carrier
// signaling side.
type CarrierConfig struct {
	// SessionTTL is the idle-session lifetime setting. It is validated (it
	// must not be negative) but no component reads it: a session leaves the
	// Session Store only when its call ends.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// ToolTimeout is the per-tool-dispatch time limit setting. It is
	// validated (it must not be negative) but the Bridge does not apply it:
	// tool calls run without a time limit of their own.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// UploadConfig configures the photo-upload collaborator (spec §4.4).
type UploadConfig struct {
	// BaseURL is the public base URL upload links are built against, e.g.
	// "https://uploads.example.com".
	BaseURL string `yaml:"base_url"`

	// TTL is how long an issued upload token remains valid. Zero (or a
	// negative value) uses the 24-hour default.
	TTL time.Duration `yaml:"ttl"`
}

// DiagnosticConfig configures the appliance troubleshooting knowledge base.
type DiagnosticConfig struct {
	// KnowledgeFile names a YAML troubleshooting knowledge file. Nothing
	// loads it: internal/diagnostic always uses its built-in defaults.
	KnowledgeFile string `yaml:"knowledge_file"`
}
