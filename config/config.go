// Package config loads service settings. Values come from built-in defaults,
// then an optional YAML file, then environment variables (a .env file is
// loaded into the environment first when present).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"deepfakeapi/utils"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Video      VideoConfig      `yaml:"video"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Media      MediaConfig      `yaml:"media"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	RequestLog RequestLogConfig `yaml:"request_log"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Auth       AuthConfig       `yaml:"auth"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	// Addresses or CIDR ranges whose X-Forwarded-For and X-Real-IP headers
	// are believed. Empty trusts no header.
	TrustedProxies    []string      `yaml:"trusted_proxies"`
}

type StorageConfig struct {
	UploadDir    string `yaml:"upload_dir"`
	TempDir      string `yaml:"temp_dir"`
	FramesDir    string `yaml:"frames_dir"`
	URLImagePath string `yaml:"url_image_path"`
	MaxFileSize  int64  `yaml:"max_file_size"`
}

type VideoConfig struct {
	DefaultMaxFrames int `yaml:"default_max_frames"`
	MaxFramesCap     int `yaml:"max_frames_cap"`
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type MediaConfig struct {
	CloudName   string `yaml:"cloud_name"`
	APIKey      string `yaml:"api_key"`
	APISecret   string `yaml:"api_secret"`
	ImageFolder string `yaml:"image_folder"`
	VideoFolder string `yaml:"video_folder"`
	URLFolder   string `yaml:"url_folder"`
}

// Enabled reports whether hosted media credentials are configured.
func (m MediaConfig) Enabled() bool {
	return m.CloudName != "" && m.APIKey != "" && m.APISecret != ""
}

// RateLimitConfig holds limit strings such as "10 per minute" or
// "100 per day;20 per hour".
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled"`
	Predict string `yaml:"predict"`
	Video   string `yaml:"video"`
	URL     string `yaml:"url"`
	Default string `yaml:"default"`
}

type RequestLogConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the settings the service runs with when nothing is
// configured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":5000",
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			AllowedOrigins:    []string{"*"},
		},
		Storage: StorageConfig{
			UploadDir:    "uploads",
			TempDir:      "temp",
			FramesDir:    "temp/frames",
			URLImagePath: "temp/url_image.jpg",
			MaxFileSize:  50 * 1024 * 1024,
		},
		Video: VideoConfig{
			DefaultMaxFrames: 20,
			MaxFramesCap:     100,
		},
		Fetch: FetchConfig{
			Timeout:   10 * time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Media: MediaConfig{
			ImageFolder: "deepfake-uploads",
			VideoFolder: "deepfake-videos",
			URLFolder:   "deepfake-url-images",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Predict: "10 per minute",
			Video:   "5 per minute",
			URL:     "15 per minute",
			Default: "100 per day;20 per hour",
		},
		RequestLog: RequestLogConfig{
			Path:       "logs/requests.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Log: LogConfig{
			Level: "info",
		},
		Redis: RedisConfig{
			CacheTTL: 5 * time.Minute,
		},
		Mongo: MongoConfig{
			Database: "deepfake",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "deepfake",
		},
	}
}

// Load builds the configuration. path may be empty, in which case CONFIG_FILE
// is consulted.
func Load(path string) (*Config, error) {
	// .env is optional; the process environment always wins over it.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	e := envReader{}

	if port := os.Getenv("PORT"); port != "" {
		if port[0] != ':' {
			port = ":" + port
		}
		c.Server.Addr = port
	}
	e.str("SERVER_ADDR", &c.Server.Addr)
	e.duration("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	e.duration("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	e.list("CORS_ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	e.list("TRUSTED_PROXIES", &c.Server.TrustedProxies)

	e.str("UPLOAD_DIR", &c.Storage.UploadDir)
	e.str("TEMP_DIR", &c.Storage.TempDir)
	e.str("FRAMES_DIR", &c.Storage.FramesDir)
	e.str("URL_IMAGE_PATH", &c.Storage.URLImagePath)
	var maxMB int
	if e.integer("MAX_FILE_SIZE_MB", &maxMB) {
		c.Storage.MaxFileSize = int64(maxMB) * 1024 * 1024
	}

	e.integer("VIDEO_DEFAULT_MAX_FRAMES", &c.Video.DefaultMaxFrames)
	e.integer("VIDEO_MAX_FRAMES_CAP", &c.Video.MaxFramesCap)

	e.duration("FETCH_TIMEOUT", &c.Fetch.Timeout)
	e.str("FETCH_USER_AGENT", &c.Fetch.UserAgent)

	e.str("CLOUDINARY_CLOUD_NAME", &c.Media.CloudName)
	e.str("CLOUDINARY_API_KEY", &c.Media.APIKey)
	e.str("CLOUDINARY_API_SECRET", &c.Media.APISecret)
	e.str("MEDIA_IMAGE_FOLDER", &c.Media.ImageFolder)
	e.str("MEDIA_VIDEO_FOLDER", &c.Media.VideoFolder)
	e.str("MEDIA_URL_FOLDER", &c.Media.URLFolder)

	e.boolean("RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	e.str("RATE_LIMIT_PREDICT", &c.RateLimit.Predict)
	e.str("RATE_LIMIT_VIDEO", &c.RateLimit.Video)
	e.str("RATE_LIMIT_URL", &c.RateLimit.URL)
	e.str("RATE_LIMIT_DEFAULT", &c.RateLimit.Default)

	e.str("REQUEST_LOG_FILE", &c.RequestLog.Path)
	e.integer("REQUEST_LOG_MAX_SIZE_MB", &c.RequestLog.MaxSizeMB)
	e.integer("REQUEST_LOG_MAX_BACKUPS", &c.RequestLog.MaxBackups)
	e.integer("REQUEST_LOG_MAX_AGE_DAYS", &c.RequestLog.MaxAgeDays)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.boolean("LOG_DEVELOPMENT", &c.Log.Development)

	e.str("REDIS_ADDR", &c.Redis.Addr)
	e.str("REDIS_PASSWORD", &c.Redis.Password)
	e.integer("REDIS_DB", &c.Redis.DB)
	e.duration("REDIS_CACHE_TTL", &c.Redis.CacheTTL)

	e.str("MONGO_URI", &c.Mongo.URI)
	e.str("MONGO_DATABASE", &c.Mongo.Database)

	e.str("JWT_SECRET", &c.Auth.JWTSecret)

	e.boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	e.str("METRICS_NAMESPACE", &c.Metrics.Namespace)

	return e.err
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Storage.MaxFileSize <= 0 {
		return fmt.Errorf("storage.max_file_size must be positive")
	}
	if c.Video.DefaultMaxFrames <= 0 {
		return fmt.Errorf("video.default_max_frames must be positive")
	}
	if c.Video.MaxFramesCap < c.Video.DefaultMaxFrames {
		return fmt.Errorf("video.max_frames_cap (%d) is below video.default_max_frames (%d)",
			c.Video.MaxFramesCap, c.Video.DefaultMaxFrames)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.RequestLog.Path == "" {
		return fmt.Errorf("request_log.path is required")
	}
	if _, err := utils.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	return nil
}

// envReader applies environment overrides and remembers the first parse
// failure.
type envReader struct {
	err error
}

func (e *envReader) fail(key, val string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("env %s=%q: %w", key, val, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e *envReader) integer(key string, dst *int) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return false
	}
	*dst = n
	return true
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}
