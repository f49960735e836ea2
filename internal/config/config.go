// Package config provides configuration loading and structs for the kilimo server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Dataset DatasetConfig `yaml:"dataset"`
	Matcher MatcherConfig `yaml:"matcher"`
	Storage StorageConfig `yaml:"storage"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AskRateLimit is the sustained number of asks per second; 0 disables limiting.
	AskRateLimit float64 `yaml:"ask_rate_limit"`
	AskBurst     int     `yaml:"ask_burst"`
}

// Dataset source kinds.
const (
	SourceFile     = "file"
	SourceObject   = "object"
	SourceDatabase = "database"
)

// DatasetConfig says where the advisory records come from and how columns are named.
type DatasetConfig struct {
	Source  string        `yaml:"source"`
	Path    string        `yaml:"path"`
	Format  string        `yaml:"format"` // xlsx or csv; empty means from the file extension
	Sheet   string        `yaml:"sheet"`
	Columns ColumnsConfig `yaml:"columns"`
	Object  ObjectConfig  `yaml:"object"`
}

// ColumnsConfig maps record fields to header names.
type ColumnsConfig struct {
	Question   string `yaml:"question"`
	Answer     string `yaml:"answer"`
	CustomerID string `yaml:"customer_id"`
	County     string `yaml:"county"`
	About      string `yaml:"about"`
	Category   string `yaml:"category"`
	Response   string `yaml:"response"`
}

// ObjectConfig locates the dataset in S3-compatible object storage.
// Empty credentials fall back to the AWS_* / MINIO_* environment variables.
type ObjectConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          *bool  `yaml:"use_ssl"`
}

// UseSSLOrDefault returns whether to use TLS; defaults to true when unset.
func (o *ObjectConfig) UseSSLOrDefault() bool {
	if o.UseSSL != nil {
		return *o.UseSSL
	}
	return true
}

// MatcherConfig holds question matching settings.
type MatcherConfig struct {
	// MinSimilarity is the score below which an ask reports no match.
	MinSimilarity float64 `yaml:"min_similarity"`
	// Permissive returns the first record with score 0 when nothing overlaps.
	Permissive bool `yaml:"permissive"`
	StopWords  bool `yaml:"stop_words"`
	Stemming   bool `yaml:"stemming"`
	// DefaultLimit is how many answers an ask returns when it does not say.
	DefaultLimit int `yaml:"default_limit"`
}

// StorageConfig holds the SQLite database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	LogAsks      *bool  `yaml:"log_asks"`
}

// LogAsksOrDefault returns whether asks are logged; defaults to true when unset.
func (s *StorageConfig) LogAsksOrDefault() bool {
	if s.LogAsks != nil {
		return *s.LogAsks
	}
	return true
}

// WatchConfig holds dataset file watch settings.
type WatchConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// EnabledOrDefault returns whether to watch the dataset file; defaults to true when unset.
func (w *WatchConfig) EnabledOrDefault() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Dataset.Source == SourceFile {
		cfg.Dataset.Path = expandPath(cfg.Dataset.Path, configDir)
	}

	return &cfg, nil
}

// Validate checks values that have no sensible default.
func Validate(cfg *Config) error {
	switch cfg.Dataset.Source {
	case SourceFile:
		if cfg.Dataset.Path == "" {
			return fmt.Errorf("dataset.path is required for source %q", SourceFile)
		}
	case SourceObject:
		if cfg.Dataset.Object.Endpoint == "" || cfg.Dataset.Object.Bucket == "" || cfg.Dataset.Object.Key == "" {
			return fmt.Errorf("dataset.object endpoint, bucket and key are required for source %q", SourceObject)
		}
	case SourceDatabase:
	default:
		return fmt.Errorf("unknown dataset source %q (supported: file, object, database)", cfg.Dataset.Source)
	}
	if cfg.Matcher.MinSimilarity < 0 || cfg.Matcher.MinSimilarity > 1 {
		return fmt.Errorf("matcher.min_similarity must be within [0,1], got %v", cfg.Matcher.MinSimilarity)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
