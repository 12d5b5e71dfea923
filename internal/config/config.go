package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Host string
	Env  string

	// Logging. Empty values let the logger pick per-environment defaults.
	LogLevel  string // "debug", "info", "warn", "error"
	LogFormat string // "text", "json"

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBPath     string

	// Storage configuration
	StorageBackend string // "disk", "memory", "s3"
	UploadDir      string // Base directory for stored blobs (disk backend)
	TempDir        string // Staging directory for uploads (defaults to system temp)
	S3Endpoint     string // Custom endpoint for S3-compatible services
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool // Path-style addressing (required for MinIO and friends)

	// Upload constraints
	MaxFileSize       int64
	AllowedExtensions []string
	HashChunkSize     int

	// Access gate
	AppSecret string

	// CORSAllowedOrigins is a list of allowed origins for CORS requests.
	// If empty, no CORS headers are sent (same-origin only).
	CORSAllowedOrigins []string

	// WebSocket configuration
	WSWriteTimeout time.Duration
	WSPongTimeout  time.Duration
	WSMaxFrameSize int64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Host:           getEnv("HOST", "0.0.0.0"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", ""),
		LogFormat:      getEnv("LOG_FORMAT", ""),
		DBType:         getEnv("DB_TYPE", "sqlite"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBName:         getEnv("DB_NAME", "flit"),
		DBUser:         getEnv("DB_USER", "flit"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBPath:         getEnv("DB_PATH", "./data/flit.db"),
		StorageBackend: getEnv("STORAGE_BACKEND", "disk"),
		UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
		TempDir:        getEnv("TEMP_DIR", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
		MaxFileSize:    getEnvSize("MAX_FILE_SIZE", "100M"),
		AllowedExtensions: getEnvStringSlice("ALLOWED_EXTENSIONS", []string{
			"jpg", "jpeg", "png", "gif", "pdf", "txt",
			"doc", "docx", "zip", "rar", "mp4", "mp3",
		}),
		HashChunkSize:      getEnvInt("HASH_CHUNK_SIZE", 64*1024),
		AppSecret:          getEnv("APP_SECRET", "changeme"),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		WSWriteTimeout:     getEnvDuration("WS_WRITE_TIMEOUT", "10s"),
		WSPongTimeout:      getEnvDuration("WS_PONG_TIMEOUT", "60s"),
		WSMaxFrameSize:     getEnvSize("WS_MAX_FRAME_SIZE", "8K"),
	}

	return cfg, nil
}

// Validate returns the list of configuration problems. The caller decides
// whether a problem is fatal (production) or just worth a warning.
func (c *Config) Validate() []error {
	var errs []error

	if c.AppSecret == "" || c.AppSecret == "changeme" {
		errs = append(errs, fmt.Errorf("APP_SECRET must be set to a non-default value"))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE must be greater than 0"))
	}
	if c.HashChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("HASH_CHUNK_SIZE must be greater than 0"))
	}
	if len(c.AllowedExtensions) == 0 {
		errs = append(errs, fmt.Errorf("ALLOWED_EXTENSIONS must not be empty"))
	}

	return errs
}

// IsAllowedExtension reports whether the filename carries an extension from
// the configured allow-list. Files without any extension are rejected.
func (c *Config) IsAllowedExtension(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return false
	}
	ext := strings.ToLower(filename[idx+1:])
	for _, allowed := range c.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvStringSlice parses a comma-separated env var into a string slice.
// Empty entries are filtered out. Returns defaultValue if env var is empty.
func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// parseSize converts human-readable sizes (e.g., "10G", "500M", "1K") to bytes
// Supports: B, K/KB, M/MB, G/GB, T/TB (case-insensitive)
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))

	// If it's just a number, treat as bytes
	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(sizeStr, "TB") || strings.HasSuffix(sizeStr, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "TB"), "T")
	case strings.HasSuffix(sizeStr, "GB") || strings.HasSuffix(sizeStr, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "GB"), "G")
	case strings.HasSuffix(sizeStr, "MB") || strings.HasSuffix(sizeStr, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "MB"), "M")
	case strings.HasSuffix(sizeStr, "KB") || strings.HasSuffix(sizeStr, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "KB"), "K")
	case strings.HasSuffix(sizeStr, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(sizeStr, "B")
	default:
		return 0, fmt.Errorf("invalid size format: %s (use B, K/KB, M/MB, G/GB, T/TB)", sizeStr)
	}

	// Numeric part supports decimals like "1.5G"
	val, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %s", sizeStr)
	}

	return int64(val * float64(multiplier)), nil
}

// getEnvSize parses size strings like "10G", "500M" or raw bytes
func getEnvSize(key string, defaultValue string) int64 {
	value := getEnv(key, defaultValue)
	size, err := parseSize(value)
	if err != nil {
		if defaultSize, defaultErr := parseSize(defaultValue); defaultErr == nil {
			return defaultSize
		}
		return 0
	}
	return size
}

// getEnvDuration parses duration strings like "24h", "30m"
func getEnvDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		if defaultDuration, defaultErr := time.ParseDuration(defaultValue); defaultErr == nil {
			return defaultDuration
		}
		return 0
	}
	return duration
}
