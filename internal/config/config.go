// Package config provides the configuration structure for kokoro-mcp.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	toml "github.com/pelletier/go-toml/v2"
)

// Defaults applied by Normalize for fields left unset.
const (
	DefaultStorageDir           = "mp3"
	DefaultSweepIntervalMinutes = 60
	DefaultUploadBackend        = "s3"
	DefaultUploadPrefix         = "mp3"
	DefaultUploadTimeoutSeconds = 60
	DefaultServiceURL           = "http://localhost:8880"
	DefaultVoice                = "af_heart"
	DefaultSpeed                = 1.0
	DefaultLanguage             = "en-us"
	DefaultTTSTimeoutSeconds    = 300
	DefaultWorkers              = 2
	DefaultChunkChars           = 1000
	DefaultTransport            = "streamable-http"
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 9876
)

// Supported server transports.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
)

// Supported upload backends.
const (
	BackendS3   = "s3"
	BackendNATS = "nats"
)

// Validation errors.
var (
	// ErrStorageDirRequired indicates the artifact directory is unset.
	ErrStorageDirRequired = errors.New("storage dir is required")

	// ErrNegativeRetention indicates a retention window below zero days.
	ErrNegativeRetention = errors.New("retention days must not be negative")

	// ErrInvalidSpeed indicates a non-positive synthesis speed.
	ErrInvalidSpeed = errors.New("tts speed must be positive")

	// ErrInvalidWorkers indicates a worker pool size below one.
	ErrInvalidWorkers = errors.New("tts workers must be at least 1")

	// ErrInvalidChunkChars indicates a chunk size below one character.
	ErrInvalidChunkChars = errors.New("tts chunk size must be at least 1")

	// ErrInvalidTransport indicates an unknown server transport name.
	ErrInvalidTransport = errors.New("transport must be stdio, streamable-http, or sse")

	// ErrInvalidBackend indicates an unknown upload backend name.
	ErrInvalidBackend = errors.New("upload backend must be s3 or nats")

	// ErrBucketRequired indicates uploads are enabled without a bucket.
	ErrBucketRequired = errors.New("upload bucket is required when upload is enabled")
)

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// StorageConfig controls where artifacts live on disk and how long they are
// retained. A retention of zero days disables the sweep entirely.
type StorageConfig struct {
	Dir                  string `toml:"dir"`
	RetentionDays        int    `toml:"retention_days"`
	SweepIntervalMinutes int    `toml:"sweep_interval_minutes"`
	DeleteAfterUpload    bool   `toml:"delete_after_upload"`
}

// RetentionAge returns the maximum artifact age before the sweeper removes
// it, or zero when retention is disabled.
func (s StorageConfig) RetentionAge() time.Duration {
	if s.RetentionDays <= 0 {
		return 0
	}

	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// SweepInterval returns the pause between retention sweeps.
func (s StorageConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

// UploadConfig controls the remote archival of artifacts.
type UploadConfig struct {
	Enabled        bool   `toml:"enabled"`
	Backend        string `toml:"backend"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	NATSURL        string `toml:"nats_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the per-upload deadline.
func (u UploadConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// TTSConfig holds the speech synthesis settings.
type TTSConfig struct {
	ServiceURL     string  `toml:"service_url"`
	Voice          string  `toml:"voice"`
	Speed          float64 `toml:"speed"`
	Language       string  `toml:"language"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Workers        int     `toml:"workers"`
	ChunkChars     int     `toml:"chunk_chars"`
}

// Timeout returns the per-request synthesis deadline.
func (t TTSConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// ServerConfig holds the request server settings.
type ServerConfig struct {
	Transport string `toml:"transport"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
}

// Addr returns the listen address for the HTTP transports.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Config is the root configuration structure.
type Config struct {
	Paths   PathsConfig   `toml:"paths"`
	Storage StorageConfig `toml:"storage"`
	Upload  UploadConfig  `toml:"upload"`
	TTS     TTSConfig     `toml:"tts"`
	Server  ServerConfig  `toml:"server"`
}

// Load loads the configuration for kokoro-mcp through the configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.Normalize()

	return &cfg, nil
}

// LoadFile loads the configuration from a local TOML file.
func LoadFile(path string) (*Config, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", readErr)
	}

	var cfg Config

	unmarshalErr := toml.Unmarshal(data, &cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", unmarshalErr)
	}

	cfg.Normalize()

	return &cfg, nil
}

// Normalize fills unset fields with their defaults. Flag overrides apply
// after this, so Validate runs separately.
func (c *Config) Normalize() {
	if c.Storage.Dir == "" {
		c.Storage.Dir = DefaultStorageDir
	}

	if c.Storage.SweepIntervalMinutes <= 0 {
		c.Storage.SweepIntervalMinutes = DefaultSweepIntervalMinutes
	}

	if c.Upload.Backend == "" {
		c.Upload.Backend = DefaultUploadBackend
	}

	if c.Upload.Prefix == "" {
		c.Upload.Prefix = DefaultUploadPrefix
	}

	if c.Upload.TimeoutSeconds <= 0 {
		c.Upload.TimeoutSeconds = DefaultUploadTimeoutSeconds
	}

	if c.TTS.ServiceURL == "" {
		c.TTS.ServiceURL = DefaultServiceURL
	}

	if c.TTS.Voice == "" {
		c.TTS.Voice = DefaultVoice
	}

	if c.TTS.Speed == 0 {
		c.TTS.Speed = DefaultSpeed
	}

	if c.TTS.Language == "" {
		c.TTS.Language = DefaultLanguage
	}

	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = DefaultTTSTimeoutSeconds
	}

	if c.TTS.Workers <= 0 {
		c.TTS.Workers = DefaultWorkers
	}

	if c.TTS.ChunkChars <= 0 {
		c.TTS.ChunkChars = DefaultChunkChars
	}

	if c.Server.Transport == "" {
		c.Server.Transport = DefaultTransport
	}

	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return ErrStorageDirRequired
	}

	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeRetention, c.Storage.RetentionDays)
	}

	if c.TTS.Speed <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidSpeed, c.TTS.Speed)
	}

	if c.TTS.Workers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.TTS.Workers)
	}

	if c.TTS.ChunkChars < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkChars, c.TTS.ChunkChars)
	}

	switch c.Server.Transport {
	case TransportStdio, TransportStreamableHTTP, TransportSSE:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidTransport, c.Server.Transport)
	}

	if c.Upload.Enabled {
		switch c.Upload.Backend {
		case BackendS3, BackendNATS:
		default:
			return fmt.Errorf("%w: got %q", ErrInvalidBackend, c.Upload.Backend)
		}

		if c.Upload.Bucket == "" {
			return ErrBucketRequired
		}
	}

	return nil
}
