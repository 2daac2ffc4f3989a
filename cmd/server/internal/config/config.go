package config

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. Values come from an optional
// YAML file named by CONFIG_FILE, with environment variables taking
// precedence over the file for every key.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Health    HealthConfig    `yaml:"health"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Env  string `yaml:"env"`  // dev, staging, production
	Port string `yaml:"port"`
	// MaxUploadSize bounds request bodies in bytes.
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

// LogConfig covers structured logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	// FilePath enables rotating file output when set.
	FilePath string `yaml:"file_path"`
}

// AudioConfig covers pipeline working storage and fusion defaults.
type AudioConfig struct {
	// TempDir is the root for per-request working directories.
	TempDir string `yaml:"temp_dir"`
	// DefaultStrategy is the fusion strategy when a request names none
	// (slice or assign).
	DefaultStrategy string `yaml:"default_strategy"`
	DefaultBeamSize int    `yaml:"default_beam_size"`
}

// ProvidersConfig covers the inference sidecars.
type ProvidersConfig struct {
	DiarizerURL   string `yaml:"diarizer_url"`
	RecognizerURL string `yaml:"recognizer_url"`
	// HuggingFaceToken is forwarded to the diarizer for model hub access.
	HuggingFaceToken string `yaml:"hugging_face_token"`
	// Device selects the inference device: auto probes for a GPU, cuda and
	// cpu force one.
	Device string `yaml:"device"`
	// Reentrancy flags; non-reentrant providers are serialized.
	DiarizerReentrant   bool `yaml:"diarizer_reentrant"`
	RecognizerReentrant bool `yaml:"recognizer_reentrant"`
}

// HealthConfig covers provider health probing.
type HealthConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	FailThreshold int           `yaml:"fail_threshold"`
}

// ModelProfile is the recognizer tuning derived from the resolved device.
type ModelProfile struct {
	Device      string
	ComputeType string
	Model       string
}

// GlobalConfig is the process-wide configuration instance.
var GlobalConfig *Config

// LoadConfig builds the configuration: file values first (when CONFIG_FILE
// is set), then environment overrides, then defaults for anything missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Server.Env = getEnv("ENV", fallback(cfg.Server.Env, "dev"))
	cfg.Server.Port = getEnv("PORT", fallback(cfg.Server.Port, "8000"))
	cfg.Server.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", fallbackInt64(cfg.Server.MaxUploadSize, 100<<20))

	cfg.Log.Level = getEnv("LOG_LEVEL", fallback(cfg.Log.Level, "info"))
	cfg.Log.FilePath = getEnv("LOG_FILE", cfg.Log.FilePath)

	cfg.Audio.TempDir = getEnv("TEMP_AUDIO_DIR", fallback(cfg.Audio.TempDir, "./temp_audio"))
	cfg.Audio.DefaultStrategy = getEnv("DEFAULT_STRATEGY", fallback(cfg.Audio.DefaultStrategy, "slice"))
	cfg.Audio.DefaultBeamSize = getEnvInt("DEFAULT_BEAM_SIZE", fallbackInt(cfg.Audio.DefaultBeamSize, 5))

	cfg.Providers.DiarizerURL = getEnv("DIARIZER_API_URL", fallback(cfg.Providers.DiarizerURL, "http://localhost:8001"))
	cfg.Providers.RecognizerURL = getEnv("RECOGNIZER_API_URL", fallback(cfg.Providers.RecognizerURL, "http://localhost:8002"))
	cfg.Providers.HuggingFaceToken = getEnv("HUGGING_FACE_TOKEN", cfg.Providers.HuggingFaceToken)
	cfg.Providers.Device = getEnv("DEVICE", fallback(cfg.Providers.Device, "auto"))
	cfg.Providers.DiarizerReentrant = getEnvBool("DIARIZER_REENTRANT", cfg.Providers.DiarizerReentrant)
	cfg.Providers.RecognizerReentrant = getEnvBool("RECOGNIZER_REENTRANT", cfg.Providers.RecognizerReentrant)

	cfg.Health.CheckInterval = getEnvDuration("HEALTH_CHECK_INTERVAL", fallbackDuration(cfg.Health.CheckInterval, 5*time.Minute))
	cfg.Health.FailThreshold = getEnvInt("HEALTH_CHECK_FAIL_THRESHOLD", fallbackInt(cfg.Health.FailThreshold, 3))

	GlobalConfig = cfg
	return cfg, nil
}

// ValidateConfig checks the loaded configuration, collecting every problem
// rather than stopping at the first.
func ValidateConfig(cfg *Config) error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	if cfg.Server.MaxUploadSize <= 0 {
		errors = append(errors, "MAX_UPLOAD_SIZE must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	validStrategies := map[string]bool{"slice": true, "assign": true}
	if !validStrategies[cfg.Audio.DefaultStrategy] {
		errors = append(errors, fmt.Sprintf("invalid DEFAULT_STRATEGY: %s (must be: slice, assign)", cfg.Audio.DefaultStrategy))
	}

	if cfg.Audio.DefaultBeamSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid DEFAULT_BEAM_SIZE: %d (must be >= 1)", cfg.Audio.DefaultBeamSize))
	}

	validDevices := map[string]bool{"auto": true, "cuda": true, "cpu": true}
	if !validDevices[cfg.Providers.Device] {
		errors = append(errors, fmt.Sprintf("invalid DEVICE: %s (must be: auto, cuda, cpu)", cfg.Providers.Device))
	}

	if cfg.Providers.DiarizerURL == "" {
		errors = append(errors, "DIARIZER_API_URL is required")
	}
	if cfg.Providers.RecognizerURL == "" {
		errors = append(errors, "RECOGNIZER_API_URL is required")
	}

	if cfg.Health.CheckInterval < time.Second {
		errors = append(errors, "HEALTH_CHECK_INTERVAL must be at least 1s")
	}
	if cfg.Health.FailThreshold < 1 {
		errors = append(errors, "HEALTH_CHECK_FAIL_THRESHOLD must be >= 1")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// ResolveModelProfile maps the configured device to recognizer settings.
// "auto" probes for nvidia-smi; a GPU host gets the large model with fp16,
// CPU hosts get the base model with int8 quantization.
func (c *Config) ResolveModelProfile() ModelProfile {
	device := c.Providers.Device
	if device == "auto" {
		if hasNvidiaGPU() {
			device = "cuda"
		} else {
			device = "cpu"
		}
	}
	if device == "cuda" {
		return ModelProfile{Device: "cuda", ComputeType: "float16", Model: "large-v2"}
	}
	return ModelProfile{Device: "cpu", ComputeType: "int8", Model: "base"}
}

func hasNvidiaGPU() bool {
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetServerAddr returns the HTTP listen address.
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig renders the configuration for startup logs, masking secrets.
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Max Upload Size: %d bytes
  Logging:
    - Level: %s
    - File: %s
  Audio:
    - Temp Dir: %s
    - Default Strategy: %s
    - Default Beam Size: %d
  Providers:
    - Diarizer URL: %s
    - Recognizer URL: %s
    - Hub Token: %s
    - Device: %s
  Health:
    - Check Interval: %s
    - Fail Threshold: %d`,
		c.Server.Env,
		c.Server.Port,
		c.Server.MaxUploadSize,
		c.Log.Level,
		fallback(c.Log.FilePath, "<stdout only>"),
		c.Audio.TempDir,
		c.Audio.DefaultStrategy,
		c.Audio.DefaultBeamSize,
		c.Providers.DiarizerURL,
		c.Providers.RecognizerURL,
		maskSecret(c.Providers.HuggingFaceToken),
		c.Providers.Device,
		c.Health.CheckInterval,
		c.Health.FailThreshold,
	)
}

// helpers

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func fallback(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func fallbackInt(value, defaultValue int) int {
	if value != 0 {
		return value
	}
	return defaultValue
}

func fallbackInt64(value, defaultValue int64) int64 {
	if value != 0 {
		return value
	}
	return defaultValue
}

func fallbackDuration(value, defaultValue time.Duration) time.Duration {
	if value != 0 {
		return value
	}
	return defaultValue
}

func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
