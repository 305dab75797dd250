// Package config provides YAML-based configuration with .env and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "maritimeviz.yaml"

// AppConfig is the root configuration document.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Ingest   IngestConfig   `yaml:"ingest"`
	GFW      GFWConfig      `yaml:"gfw"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Security SecurityConfig `yaml:"security"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                  int    `yaml:"port"`
	BindAddress           string `yaml:"bind_address"`
	EnableCORS            bool   `yaml:"enable_cors"`
	AllowOrigins          string `yaml:"allow_origins"`
	ReadTimeoutSeconds    int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds   int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds    int    `yaml:"idle_timeout_seconds"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	BodyLimit             string `yaml:"body_limit"`
}

// StorageConfig contains file and database locations
type StorageConfig struct {
	DataDirectory     string `yaml:"data_directory"`
	UploadsDirectory  string `yaml:"uploads_directory"`
	TempDirectory     string `yaml:"temp_directory"`
	DatabasePath      string `yaml:"database_path"`
	DuckDBThreads     int    `yaml:"duckdb_threads"`
	DuckDBMemoryLimit string `yaml:"duckdb_memory_limit"`
}

// IngestConfig controls file processing.
type IngestConfig struct {
	MaxConcurrentJobs      int    `yaml:"max_concurrent_jobs"`
	MinChunkSize           int    `yaml:"min_chunk_size"`
	AvgLineBytes           int    `yaml:"avg_line_bytes"`
	UseLineCount           bool   `yaml:"use_line_count"`
	Workers                int    `yaml:"workers"` // 0 picks from CPU count
	BatchSize              int    `yaml:"batch_size"`
	JobMaxAgeMinutes       int    `yaml:"job_max_age_minutes"`
	CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes"`
	InboxDirectory         string `yaml:"inbox_directory"`
	Schedule               string `yaml:"schedule"` // cron spec, empty disables the inbox scan
}

// GFWConfig configures the Global Fishing Watch client.
type GFWConfig struct {
	BaseURL         string `yaml:"base_url"`
	Token           string `yaml:"token,omitempty"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheSize       int    `yaml:"cache_size"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

// KafkaConfig configures the optional position report stream.
type KafkaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	BatchSize int      `yaml:"batch_size"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion bool   `yaml:"allow_file_deletion"`
	AuthSecret        string `yaml:"auth_secret,omitempty"`
	AllowedFileTypes  string `yaml:"allowed_file_types"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	RequestLogging bool   `yaml:"request_logging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                  8089,
			BindAddress:           "0.0.0.0",
			EnableCORS:            true,
			AllowOrigins:          "*",
			ReadTimeoutSeconds:    30,
			WriteTimeoutSeconds:   30,
			IdleTimeoutSeconds:    120,
			RequestTimeoutSeconds: 120,
			BodyLimit:             "2G",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			TempDirectory:     "./data/temp",
			DatabasePath:      "./data/ais_data.duckdb",
			DuckDBThreads:     4,
			DuckDBMemoryLimit: "1GB",
		},
		Ingest: IngestConfig{
			MaxConcurrentJobs:      1,
			MinChunkSize:           500,
			AvgLineBytes:           90,
			BatchSize:              5000,
			JobMaxAgeMinutes:       60,
			CleanupIntervalMinutes: 5,
			InboxDirectory:         "./data/inbox",
		},
		GFW: GFWConfig{
			BaseURL:         "https://gateway.api.globalfishingwatch.org/v3",
			TimeoutSeconds:  30,
			CacheSize:       256,
			CacheTTLMinutes: 60,
		},
		Kafka: KafkaConfig{
			Topic:     "ais.positions",
			BatchSize: 100,
		},
		Security: SecurityConfig{
			AllowFileDeletion: true,
			AllowedFileTypes:  ".txt,.nmea,.ais,.log",
		},
		Log: LogConfig{
			Level:          "info",
			Format:         "json",
			RequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file, creating it with defaults
// when it does not exist. A .env file in the working directory is loaded
// first; variables already set in the environment win.
func LoadConfig(configPath string) (*AppConfig, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	var config *AppConfig
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		config = DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		config = DefaultConfig()
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads the given .env files if they exist.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Save saves the configuration as YAML. Secrets are not written.
func (c *AppConfig) Save(configPath string) error {
	out := *c
	out.GFW.Token = ""
	out.Security.AuthSecret = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# maritimeviz configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.moveDataDirectory(dataDir)
	}
	if dbPath := os.Getenv("DUCKDB_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
	if tempDir := os.Getenv("DUCKDB_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}
	if token := os.Getenv("GFW_API_TOKEN"); token != "" {
		c.GFW.Token = token
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
		c.Kafka.Enabled = true
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		c.Kafka.Topic = topic
	}
	if secret := os.Getenv("AUTH_SECRET"); secret != "" {
		c.Security.AuthSecret = secret
	}
}

// moveDataDirectory points the data directory at dir and carries along every
// path that lived under the old one. Paths configured elsewhere stay put.
func (c *AppConfig) moveDataDirectory(dir string) {
	old := c.Storage.DataDirectory
	c.Storage.DataDirectory = dir
	if old == "" {
		return
	}
	for _, p := range []*string{
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
		&c.Storage.DatabasePath,
		&c.Ingest.InboxDirectory,
	} {
		if *p == "" || filepath.IsAbs(*p) != filepath.IsAbs(old) {
			continue
		}
		rel, err := filepath.Rel(old, *p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		*p = filepath.Join(dir, rel)
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
		&c.Storage.DatabasePath,
		&c.Ingest.InboxDirectory,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// Validate reports the first setting that cannot work.
func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Storage.DatabasePath == "" {
		return errors.New("storage.database_path is required")
	}
	if c.Ingest.MaxConcurrentJobs < 1 {
		return errors.New("ingest.max_concurrent_jobs must be at least 1")
	}
	if c.Ingest.MinChunkSize < 1 {
		return errors.New("ingest.min_chunk_size must be at least 1")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// Duration helpers.

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c IngestConfig) JobMaxAge() time.Duration {
	return time.Duration(c.JobMaxAgeMinutes) * time.Minute
}

func (c IngestConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

func (c GFWConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c GFWConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// AllowedExtensions returns the allowed upload extensions, e.g. [".nmea", ".txt"].
func (c SecurityConfig) AllowedExtensions() []string {
	return splitList(c.AllowedFileTypes)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
		filepath.Dir(c.Storage.DatabasePath),
	}
	if c.Ingest.Schedule != "" {
		dirs = append(dirs, c.Ingest.InboxDirectory)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
