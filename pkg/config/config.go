// Package config provides configuration management for FaceTrack.
// It loads configuration from YAML files with sensible defaults and
// lets environment variables override individual settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Attendance modes.
const (
	ModeLedger  = "ledger"
	ModeSession = "session"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds all FaceTrack configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Roster      RosterConfig      `yaml:"roster"`
	Storage     StorageConfig     `yaml:"storage"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	RequestTimeout int    `yaml:"request_timeout"` // seconds
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

// RecognitionConfig holds face recognition settings.
type RecognitionConfig struct {
	// Threshold is the maximum descriptor distance accepted as a match.
	Threshold float64 `yaml:"threshold"`
	ModelPath string  `yaml:"model_path"`
	UseCNN    bool    `yaml:"use_cnn"`
	// MaxFrameWidth downscales wider frames before detection. Zero keeps
	// the original size.
	MaxFrameWidth int `yaml:"max_frame_width"`
}

// AttendanceConfig holds attendance policy settings.
type AttendanceConfig struct {
	Mode     string `yaml:"mode"`
	Timezone string `yaml:"timezone"`
	// Cooldown is the minimum number of seconds between two recorded
	// events for the same identity. Zero records every match.
	Cooldown int `yaml:"cooldown"`
}

// RosterConfig holds roster loading settings.
type RosterConfig struct {
	FacesDir        string `yaml:"faces_dir"`
	RequireEnrolled bool   `yaml:"require_enrolled"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	Backend           string `yaml:"backend"`
	DataDir           string `yaml:"data_dir"`
	AttendanceDir     string `yaml:"attendance_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
}

// DatabaseConfig holds PostgreSQL settings for the postgres backend.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/facetrack")
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			RequestTimeout: 30,
			MaxBodyBytes:   10 << 20,
		},
		Recognition: RecognitionConfig{
			Threshold:     0.6,
			ModelPath:     filepath.Join(dataDir, "models"),
			UseCNN:        false,
			MaxFrameWidth: 640,
		},
		Attendance: AttendanceConfig{
			Mode:     ModeLedger,
			Timezone: "Local",
			Cooldown: 60,
		},
		Roster: RosterConfig{
			FacesDir:        "",
			RequireEnrolled: false,
		},
		Storage: StorageConfig{
			Backend:           BackendFile,
			DataDir:           dataDir,
			AttendanceDir:     filepath.Join(dataDir, "attendance_logs"),
			EncryptionEnabled: true,
		},
		Database: DatabaseConfig{
			URL:      "",
			MaxConns: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   filepath.Join(dataDir, "facetrack.log"),
			Format: "text",
		},
	}
}

// Load loads configuration from the specified file.
// On error the defaults are returned alongside the error.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
// A file that exists but cannot be read or parsed is an error.
func LoadDefault() (*Config, error) {
	paths := []string{"/etc/facetrack/facetrack.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config/facetrack/facetrack.yaml"))
	}
	return loadFirst(paths...)
}

// loadFirst loads the first of paths that exists, or the defaults when none does.
func loadFirst(paths ...string) (*Config, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// ApplyEnv overrides settings from FACETRACK_* environment variables.
// DATABASE_URL is honoured as well since most Postgres tooling sets it.
func (c *Config) ApplyEnv() {
	c.Server.Host = envString("FACETRACK_HOST", c.Server.Host)
	c.Server.Port = envInt("FACETRACK_PORT", c.Server.Port)
	c.Recognition.Threshold = envFloat("FACETRACK_THRESHOLD", c.Recognition.Threshold)
	c.Recognition.ModelPath = envString("FACETRACK_MODEL_PATH", c.Recognition.ModelPath)
	c.Attendance.Mode = envString("FACETRACK_MODE", c.Attendance.Mode)
	c.Attendance.Timezone = envString("FACETRACK_TIMEZONE", c.Attendance.Timezone)
	c.Attendance.Cooldown = envInt("FACETRACK_COOLDOWN", c.Attendance.Cooldown)
	c.Roster.FacesDir = envString("FACETRACK_FACES_DIR", c.Roster.FacesDir)
	c.Storage.Backend = envString("FACETRACK_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.DataDir = envString("FACETRACK_DATA_DIR", c.Storage.DataDir)
	c.Storage.AttendanceDir = envString("FACETRACK_ATTENDANCE_DIR", c.Storage.AttendanceDir)
	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Logging.Level = envString("FACETRACK_LOG_LEVEL", c.Logging.Level)
}

// envString returns the variable's value, or def when unset or empty.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt reads an environment variable as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return def
}

// envFloat reads an environment variable as a positive float.
func envFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return def
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %d", c.Server.RequestTimeout)
	}

	if c.Recognition.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %f", c.Recognition.Threshold)
	}
	if c.Recognition.MaxFrameWidth < 0 {
		return fmt.Errorf("max_frame_width must not be negative, got %d", c.Recognition.MaxFrameWidth)
	}

	switch c.Attendance.Mode {
	case ModeLedger, ModeSession:
	default:
		return fmt.Errorf("invalid attendance mode: %s (must be ledger or session)", c.Attendance.Mode)
	}
	if c.Attendance.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %d", c.Attendance.Cooldown)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case BackendFile:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be file or postgres)", c.Storage.Backend)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// Location resolves the attendance time zone. "Local" and "" mean the host's zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Attendance.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Attendance.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Attendance.Timezone, err)
	}
	return loc, nil
}

// CooldownDuration returns the attendance cooldown as a duration.
func (c *Config) CooldownDuration() time.Duration {
	return time.Duration(c.Attendance.Cooldown) * time.Second
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Roster.FacesDir = ExpandPath(c.Roster.FacesDir)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Storage.AttendanceDir = ExpandPath(c.Storage.AttendanceDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for storage and logging.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := os.MkdirAll(c.Storage.AttendanceDir, 0755); err != nil {
		return fmt.Errorf("failed to create attendance directory: %w", err)
	}

	if err := os.MkdirAll(c.Recognition.ModelPath, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
