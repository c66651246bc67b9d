// Package config provides configuration management for nodecast using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultServerTimeout    = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultUpstreamTimeout  = 15 * time.Second
	defaultRetryAttempts    = 3
	defaultRetryDelay       = 1 * time.Second
	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = 30 * time.Second
	defaultAudioBitrate     = "192k"
	defaultAudioSampleRate  = 48000
	defaultStderrTailLines  = 100
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	EPG       EPGConfig       `mapstructure:"epg"`
	Player    PlayerConfig    `mapstructure:"player"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// UpstreamConfig holds upstream HTTP fetch configuration. The timeout covers
// connection and header receipt; relayed stream bodies are unbounded.
type UpstreamConfig struct {
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	CircuitThreshold int           `mapstructure:"circuit_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// ResolverConfig holds delivery-mode policy configuration.
type ResolverConfig struct {
	// RelayHosts are origin host suffixes known to reject direct browser
	// fetches; streams from these hosts start in relayed mode.
	RelayHosts []string `mapstructure:"relay_hosts"`
	// HLSURLHints are URL substrings that mark a stream as HLS for the
	// adaptive-engine playback tier.
	HLSURLHints []string `mapstructure:"hls_url_hints"`
}

// TranscodeConfig holds transcoder process configuration.
type TranscodeConfig struct {
	// FFmpegPath overrides ffmpeg binary discovery (empty = auto-detect).
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	// AudioBitrate is the fixed output audio bitrate, e.g. "192k".
	AudioBitrate string `mapstructure:"audio_bitrate"`
	// AudioSampleRate is the fixed output sample rate in Hz.
	AudioSampleRate int `mapstructure:"audio_sample_rate"`
	// MaxConcurrent caps simultaneous transcoder processes. Zero means
	// unlimited, matching the historical behaviour.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// StderrTailLines bounds the in-memory stderr capture per process.
	StderrTailLines int `mapstructure:"stderr_tail_lines"`
}

// EPGConfig holds the external EPG collaborator endpoint.
type EPGConfig struct {
	// BaseURL of the EPG service for now/next lookups. Empty disables EPG
	// fetches; the playback engine treats that as a non-fatal condition.
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PlayerConfig holds defaults for the settings snapshot consumed by the
// resolver when the external settings provider supplies nothing.
type PlayerConfig struct {
	ForceProxy             bool          `mapstructure:"force_proxy"`
	ForceTranscode         bool          `mapstructure:"force_transcode"`
	ForceRemux             bool          `mapstructure:"force_remux"`
	StreamFormat           string        `mapstructure:"stream_format"`
	ArrowKeysChangeChannel bool          `mapstructure:"arrow_keys_change_channel"`
	OverlayDuration        time.Duration `mapstructure:"overlay_duration"`
	RememberVolume         bool          `mapstructure:"remember_volume"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with NODECAST_ and use underscores for
// nesting. Example: NODECAST_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/nodecast")
		v.AddConfigPath("$HOME/.nodecast")
	}

	// Environment variable settings
	v.SetEnvPrefix("NODECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so defaults are in
// place for viper's precedence handling.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Upstream defaults
	v.SetDefault("upstream.connect_timeout", defaultUpstreamTimeout)
	v.SetDefault("upstream.retry_attempts", defaultRetryAttempts)
	v.SetDefault("upstream.retry_delay", defaultRetryDelay)
	v.SetDefault("upstream.circuit_threshold", defaultCircuitThreshold)
	v.SetDefault("upstream.circuit_timeout", defaultCircuitTimeout)
	v.SetDefault("upstream.user_agent", "nodecast/1.0")

	// Resolver defaults
	v.SetDefault("resolver.relay_hosts", []string{"pluto.tv"})
	v.SetDefault("resolver.hls_url_hints", []string{".m3u8", "format=m3u8"})

	// Transcode defaults
	v.SetDefault("transcode.ffmpeg_path", "")
	v.SetDefault("transcode.audio_bitrate", defaultAudioBitrate)
	v.SetDefault("transcode.audio_sample_rate", defaultAudioSampleRate)
	v.SetDefault("transcode.max_concurrent", 0)
	v.SetDefault("transcode.stderr_tail_lines", defaultStderrTailLines)

	// EPG defaults
	v.SetDefault("epg.base_url", "")
	v.SetDefault("epg.timeout", 10*time.Second)

	// Player defaults
	v.SetDefault("player.force_proxy", false)
	v.SetDefault("player.force_transcode", false)
	v.SetDefault("player.force_remux", false)
	v.SetDefault("player.stream_format", "mp4")
	v.SetDefault("player.arrow_keys_change_channel", true)
	v.SetDefault("player.overlay_duration", 5*time.Second)
	v.SetDefault("player.remember_volume", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Upstream.ConnectTimeout <= 0 {
		return fmt.Errorf("upstream.connect_timeout must be positive")
	}

	if c.Transcode.AudioSampleRate < 8000 {
		return fmt.Errorf("transcode.audio_sample_rate must be at least 8000")
	}
	if c.Transcode.MaxConcurrent < 0 {
		return fmt.Errorf("transcode.max_concurrent must not be negative")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExternalBaseURL returns the URL clients should use to reach this server.
// Falls back to a localhost URL when base_url is unset and the bind host is
// a wildcard address.
func (c *ServerConfig) ExternalBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	host := c.Host
	if host == "0.0.0.0" || host == "::" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Port)
}
