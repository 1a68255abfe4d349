package app

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
)

type Config struct {
	LogLevel  string
	LogFormat string

	Server ServerConfig
	Client ClientConfig
	Player PlayerConfig
}

// ServerConfig configures the reference backend (cmd/server).
type ServerConfig struct {
	HTTPAddr           string
	MetadataStore      string // mongo | memory
	ChunkStore         string // mongo | minio | memory
	MongoURI           string
	MongoDatabase      string
	S3Endpoint         string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	RedisAddr          string
	RedisPassword      string
	CORSAllowedOrigins []string
	MaxChunkBytes      int64
	MemoryMaxBytes     int64 // 0 = unlimited
}

// ClientConfig configures the upload client (cmd/vidctl).
type ClientConfig struct {
	BackendURL            string
	FFMPEGPath            string
	FFProbePath           string
	SegmentDuration       int
	VideoBitrate          string
	AudioBitrate          string
	ChunkBytes            int64
	RetryCount            int
	RetryDelay            time.Duration
	MaxConcurrentSegments int
	RedisAddr             string
	RedisPassword         string
}

// PlayerConfig configures the playback proxy (cmd/player).
type PlayerConfig struct {
	HTTPAddr              string
	BackendURL            string
	MaxConcurrentRequests int
	SegmentDuration       int
	SessionIdle           time.Duration
}

// LoadConfig reads .env and the optional CONFIG_FILE overlay into the
// process environment, then builds the config from it. Variables already
// set in the environment always win.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyOverlay(path); err != nil {
			return Config{}, err
		}
	}
	return configFromEnv(), nil
}

func configFromEnv() Config {
	redisAddr := getEnv("REDIS_ADDR", "")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	backendURL := getEnv("BACKEND_URL", "http://localhost:8080")

	return Config{
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		Server: ServerConfig{
			HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
			MetadataStore:      strings.ToLower(getEnv("METADATA_STORE", "mongo")),
			ChunkStore:         strings.ToLower(getEnv("CHUNK_STORE", "mongo")),
			MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:      getEnv("MONGO_DB", "canistream"),
			S3Endpoint:         getEnv("S3_ENDPOINT", "localhost:9000"),
			S3AccessKey:        getEnv("S3_ACCESS_KEY", ""),
			S3SecretKey:        getEnv("S3_SECRET_KEY", ""),
			S3Bucket:           getEnv("S3_BUCKET", "canistream"),
			S3UseSSL:           getEnvBool("S3_USE_SSL", false),
			RedisAddr:          redisAddr,
			RedisPassword:      redisPassword,
			CORSAllowedOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
			MaxChunkBytes:      getEnvInt64("MAX_CHUNK_BYTES", 2<<20),
			MemoryMaxBytes:     getEnvInt64("MEMORY_STORE_MAX_BYTES", 0),
		},
		Client: ClientConfig{
			BackendURL:            backendURL,
			FFMPEGPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
			FFProbePath:           getEnv("FFPROBE_PATH", "ffprobe"),
			SegmentDuration:       int(getEnvInt64("HLS_SEGMENT_DURATION", 2)),
			VideoBitrate:          getEnv("HLS_VIDEO_BITRATE", ""),
			AudioBitrate:          getEnv("HLS_AUDIO_BITRATE", "128k"),
			ChunkBytes:            getEnvInt64("UPLOAD_CHUNK_BYTES", 1<<20),
			RetryCount:            int(getEnvInt64("UPLOAD_RETRY_COUNT", 3)),
			RetryDelay:            getEnvDuration("UPLOAD_RETRY_DELAY", 2*time.Second),
			MaxConcurrentSegments: int(getEnvInt64("UPLOAD_MAX_CONCURRENT_SEGMENTS", 3)),
			RedisAddr:             redisAddr,
			RedisPassword:         redisPassword,
		},
		Player: PlayerConfig{
			HTTPAddr:              getEnv("PLAYER_ADDR", ":8090"),
			BackendURL:            backendURL,
			MaxConcurrentRequests: int(getEnvInt64("PLAYER_MAX_CONCURRENT_REQUESTS", 2)),
			SegmentDuration:       int(getEnvInt64("PLAYER_SEGMENT_DURATION", 4)),
			SessionIdle:           getEnvDuration("PLAYER_SESSION_IDLE", 10*time.Minute),
		},
	}
}

// applyOverlay copies a flat YAML map of KEY: value pairs into the
// environment, skipping keys that are already set.
func applyOverlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	values := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for key, value := range values {
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		var s string
		switch v := value.(type) {
		case nil:
			continue
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			s = strings.Join(parts, ",")
		default:
			s = fmt.Sprint(v)
		}
		if err := os.Setenv(key, s); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
