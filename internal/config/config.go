package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vigilant-eye/facewatch/internal/recognition"
)

const (
	defaultMinCosine = 0.4
	maxUnitDistance  = 2.0
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Vision    VisionConfig    `yaml:"vision"`
	Matching  MatchingConfig  `yaml:"matching"`
	Gallery   GalleryConfig   `yaml:"gallery"`
	Detection DetectionConfig `yaml:"detection"`
	Stats     StatsConfig     `yaml:"stats"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// APIKeys maps an API key to the user id stamped on detections made with it.
	// An empty map disables authentication; detections are then anonymous.
	APIKeys        map[string]string `yaml:"api_keys"`
	MaxUploadBytes int64             `yaml:"max_upload_bytes"`
	MetricsPort    int               `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL         string `yaml:"url"`
	WorkerCount int    `yaml:"worker_count"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	IntraOpThreads     int     `yaml:"intra_op_threads"`
	SharedLibraryPath  string  `yaml:"shared_library_path"`
}

// MatchingConfig holds the acceptance test applied to the best gallery candidate.
// A candidate is accepted when its Euclidean distance is <= Tolerance.
//
// ArcFace embeddings are L2-normalised, so distances fall in [0, 2]. When
// Tolerance is unset it is derived from MinCosine (default 0.4).
type MatchingConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	MinCosine float64 `yaml:"min_cosine"`
}

type GalleryConfig struct {
	// EmbeddingCacheTTL keeps reference embeddings between requests, keyed by
	// citizen id and picture key. Zero rebuilds every request.
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl"`
}

type DetectionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type StatsConfig struct {
	DefaultWindowDays int    `yaml:"default_window_days"`
	MaxWindowDays     int    `yaml:"max_window_days"`
	TopMatches        int    `yaml:"top_matches"`
	RecentEvents      int    `yaml:"recent_events"`
	Timezone          string `yaml:"timezone"`
}

// Location resolves Timezone, falling back to UTC.
func (s StatsConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory, if present, is loaded into the
// environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings that would break the matching or reporting contract.
func (c *Config) Validate() error {
	if c.Matching.Tolerance <= 0 || c.Matching.Tolerance > maxUnitDistance {
		return fmt.Errorf("matching.tolerance must be in (0, %v], got %v", maxUnitDistance, c.Matching.Tolerance)
	}
	if c.Stats.DefaultWindowDays > c.Stats.MaxWindowDays {
		return fmt.Errorf("stats.default_window_days (%d) exceeds stats.max_window_days (%d)",
			c.Stats.DefaultWindowDays, c.Stats.MaxWindowDays)
	}
	if c.Stats.Timezone != "" {
		if _, err := time.LoadLocation(c.Stats.Timezone); err != nil {
			return fmt.Errorf("stats.timezone: %w", err)
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.NATS.WorkerCount == 0 {
		cfg.NATS.WorkerCount = 4
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facewatch"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Matching.Tolerance == 0 {
		if cfg.Matching.MinCosine == 0 {
			cfg.Matching.MinCosine = defaultMinCosine
		}
		cfg.Matching.Tolerance = recognition.CosineTolerance(cfg.Matching.MinCosine)
	}
	if cfg.Detection.Timeout == 0 {
		cfg.Detection.Timeout = 60 * time.Second
	}
	if cfg.Stats.DefaultWindowDays == 0 {
		cfg.Stats.DefaultWindowDays = 30
	}
	if cfg.Stats.MaxWindowDays == 0 {
		cfg.Stats.MaxWindowDays = 365
	}
	if cfg.Stats.TopMatches == 0 {
		cfg.Stats.TopMatches = 10
	}
	if cfg.Stats.RecentEvents == 0 {
		cfg.Stats.RecentEvents = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	// FW_API_KEYS is a comma-separated list of key=user_id pairs.
	if v := os.Getenv("FW_API_KEYS"); v != "" {
		cfg.Server.APIKeys = parseKeyPairs(v)
	}
	if v := os.Getenv("FW_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FW_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FW_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FW_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FW_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FW_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FW_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NATS.WorkerCount = n
		}
	}
	if v := os.Getenv("FW_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FW_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FW_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FW_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FW_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FW_MATCH_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Tolerance = f
		}
	}
	if v := os.Getenv("FW_MATCH_MIN_COSINE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.MinCosine = f
		}
	}
	if v := os.Getenv("FW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func parseKeyPairs(v string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		key, user, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" || user == "" {
			continue
		}
		out[key] = user
	}
	return out
}
