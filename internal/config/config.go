package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rcarmo/go-bmp/internal/codec"
)

// globalConfig stores the configuration loaded with command-line overrides
// so the handler sees the same settings the server was started with.
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Codec    CodecConfig    `json:"codec"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// LoadOptions holds command-line override options
type LoadOptions struct {
	Host        string
	Port        string
	LogLevel    string
	Compression string
	Strict      bool
	Truecolor32 bool
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string        `json:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port         string        `json:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"readTimeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `json:"idleTimeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
}

// CodecConfig holds BMP encode/decode settings
type CodecConfig struct {
	Strict           bool   `json:"strict" env:"BMP_STRICT" default:"false"`
	Compression      string `json:"compression" env:"BMP_COMPRESSION" default:"none"`
	Truecolor32      bool   `json:"truecolor32" env:"BMP_TRUECOLOR32" default:"false"`
	MaxWidth         int    `json:"maxWidth" env:"BMP_MAX_WIDTH" default:"8192"`
	MaxHeight        int    `json:"maxHeight" env:"BMP_MAX_HEIGHT" default:"8192"`
	MaxPixels        int64  `json:"maxPixels" env:"BMP_MAX_PIXELS" default:"16777216"`
	MaxMessageSize   int64  `json:"maxMessageSize" env:"BMP_MAX_MESSAGE_SIZE" default:"67108864"`
	FrameCompression string `json:"frameCompression" env:"BMP_FRAME_COMPRESSION" default:"zstd"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string `json:"allowedOrigins" env:"ALLOWED_ORIGINS" default:""`
	EnableTLS      bool     `json:"enableTLS" env:"ENABLE_TLS" default:"false"`
	TLSCertFile    string   `json:"tlsCertFile" env:"TLS_CERT_FILE" default:""`
	TLSKeyFile     string   `json:"tlsKeyFile" env:"TLS_KEY_FILE" default:""`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"text"`
	File   string `json:"file" env:"LOG_FILE" default:""`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := &Config{}

	// Server config
	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", "0.0.0.0")
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", "8080")
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	config.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", 120*time.Second)

	// Codec config
	config.Codec.Strict = getBoolWithDefault("BMP_STRICT", false) || opts.Strict
	config.Codec.Compression = getOverrideOrEnv(opts.Compression, "BMP_COMPRESSION", "none")
	config.Codec.Truecolor32 = getBoolWithDefault("BMP_TRUECOLOR32", false) || opts.Truecolor32
	config.Codec.MaxWidth = getIntWithDefault("BMP_MAX_WIDTH", 8192)
	config.Codec.MaxHeight = getIntWithDefault("BMP_MAX_HEIGHT", 8192)
	config.Codec.MaxPixels = int64(getIntWithDefault("BMP_MAX_PIXELS", 1<<24))
	config.Codec.MaxMessageSize = int64(getIntWithDefault("BMP_MAX_MESSAGE_SIZE", 64<<20))
	config.Codec.FrameCompression = getEnvWithDefault("BMP_FRAME_COMPRESSION", "zstd")

	// Security config
	config.Security.AllowedOrigins = getStringSliceWithDefault("ALLOWED_ORIGINS", []string{})
	config.Security.EnableTLS = getBoolWithDefault("ENABLE_TLS", false)
	config.Security.TLSCertFile = getEnvWithDefault("TLS_CERT_FILE", "")
	config.Security.TLSKeyFile = getEnvWithDefault("TLS_KEY_FILE", "")

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", "info")
	config.Logging.Format = getEnvWithDefault("LOG_FORMAT", "text")
	config.Logging.File = getEnvWithDefault("LOG_FILE", "")

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// GetGlobalConfig returns the configuration stored by the last successful
// LoadWithOverrides call, or nil.
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

// EncoderOptions converts the codec section into encoder options. The
// configuration is validated, so the compression mode always parses.
func (c CodecConfig) EncoderOptions() codec.Options {
	mode, _ := codec.ParseCompressionMode(c.Compression)
	return codec.Options{Compression: mode, Truecolor32: c.Truecolor32}
}

// DecoderOptions converts the codec section into decoder options.
func (c CodecConfig) DecoderOptions() codec.DecodeOptions {
	return codec.DecodeOptions{Strict: c.Strict, MaxWidth: c.MaxWidth, MaxHeight: c.MaxHeight, MaxPixels: c.MaxPixels}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	if _, err := codec.ParseCompressionMode(c.Codec.Compression); err != nil {
		return err
	}

	if c.Codec.MaxWidth <= 0 || c.Codec.MaxHeight <= 0 || c.Codec.MaxPixels <= 0 {
		return fmt.Errorf("max dimensions must be positive")
	}

	if c.Codec.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive")
	}

	validFrameCompression := map[string]bool{
		"none": true,
		"zstd": true,
	}

	if !validFrameCompression[c.Codec.FrameCompression] {
		return fmt.Errorf("invalid frame compression: %s", c.Codec.FrameCompression)
	}

	if c.Security.EnableTLS {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return fmt.Errorf("TLS certificate and key files must be specified when TLS is enabled")
		}

		if _, err := os.Stat(c.Security.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file does not exist: %s", c.Security.TLSCertFile)
		}

		if _, err := os.Stat(c.Security.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file does not exist: %s", c.Security.TLSKeyFile)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitString(value, ",")
	}
	return defaultValue
}

// getOverrideOrEnv returns command-line override value, env value, or default
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func splitString(s, sep string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
