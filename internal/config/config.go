// Package config provides the configuration schema and loader for the
// vocalink client.
package config

import "github.com/MrWong99/vocalink/pkg/audio"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, loaded from a YAML file via
// [Load] or [LoadFromReader].
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Backend BackendConfig `yaml:"backend"`
	Audio   AudioConfig   `yaml:"audio"`
	Debug   DebugConfig   `yaml:"debug"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// AgentConfig locates the agent server's duplex message channel.
type AgentConfig struct {
	// URL is the base WebSocket URL of the agent endpoint; the session ID
	// is appended as the final path element
	// (e.g. "wss://agent.example.com/ws/vicidial").
	URL string `yaml:"url"`
}

// BackendConfig locates the non-realtime side-channel endpoints. Optional:
// when BaseURL is empty, session metadata is not fetched and the call log
// is not persisted.
type BackendConfig struct {
	// BaseURL is the HTTP base URL of the backend (e.g.
	// "https://agent.example.com").
	BaseURL string `yaml:"base_url"`
}

// AudioConfig holds capture and playback parameters.
type AudioConfig struct {
	// TargetRate is the wire sample rate in Hz. Default: 16000.
	TargetRate int `yaml:"target_rate"`

	// ChunkSize is the samples-per-frame count for outbound audio.
	// Default: 1024.
	ChunkSize int `yaml:"chunk_size"`

	// CaptureRate is the microphone capture rate in Hz. When it differs
	// from TargetRate the capture pipeline resamples; when equal, the
	// resampler is bypassed. Default: 48000.
	CaptureRate int `yaml:"capture_rate"`

	// PlaybackRate is the output device rate in Hz. Default: 48000.
	PlaybackRate int `yaml:"playback_rate"`

	// QueueDepth is the capture frame channel capacity. Default: 32.
	QueueDepth int `yaml:"queue_depth"`
}

// DebugConfig configures the local diagnostics HTTP listener.
type DebugConfig struct {
	// ListenAddr serves /healthz, /readyz and /metrics when non-empty
	// (e.g. "127.0.0.1:9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	if c.Audio.TargetRate == 0 {
		c.Audio.TargetRate = audio.TargetSampleRate
	}
	if c.Audio.ChunkSize == 0 {
		c.Audio.ChunkSize = audio.DefaultChunkSize
	}
	if c.Audio.CaptureRate == 0 {
		c.Audio.CaptureRate = 48000
	}
	if c.Audio.PlaybackRate == 0 {
		c.Audio.PlaybackRate = 48000
	}
	if c.Audio.QueueDepth == 0 {
		c.Audio.QueueDepth = 32
	}
}
