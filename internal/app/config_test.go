package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "CONFIG_FILE",
	"HTTP_ADDR", "METADATA_STORE", "CHUNK_STORE", "MONGO_URI", "MONGO_DB",
	"S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET", "S3_USE_SSL",
	"REDIS_ADDR", "REDIS_PASSWORD", "CORS_ALLOWED_ORIGINS", "MAX_CHUNK_BYTES",
	"MEMORY_STORE_MAX_BYTES",
	"BACKEND_URL", "FFMPEG_PATH", "FFPROBE_PATH", "HLS_SEGMENT_DURATION",
	"HLS_VIDEO_BITRATE", "HLS_AUDIO_BITRATE", "UPLOAD_CHUNK_BYTES",
	"UPLOAD_RETRY_COUNT", "UPLOAD_RETRY_DELAY", "UPLOAD_MAX_CONCURRENT_SEGMENTS",
	"PLAYER_ADDR", "PLAYER_MAX_CONCURRENT_REQUESTS", "PLAYER_SEGMENT_DURATION",
	"PLAYER_SESSION_IDLE",
}

// clearConfigEnv unsets every key LoadConfig reads. t.Setenv first so the
// original values are restored after the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

type field struct {
	name string
	got  any
	want any
}

func checkFields(t *testing.T, fields []field) {
	t.Helper()
	for _, tt := range fields {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	checkFields(t, []field{
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"Server.HTTPAddr", cfg.Server.HTTPAddr, ":8080"},
		{"Server.MetadataStore", cfg.Server.MetadataStore, "mongo"},
		{"Server.ChunkStore", cfg.Server.ChunkStore, "mongo"},
		{"Server.MongoURI", cfg.Server.MongoURI, "mongodb://localhost:27017"},
		{"Server.MongoDatabase", cfg.Server.MongoDatabase, "canistream"},
		{"Server.S3Bucket", cfg.Server.S3Bucket, "canistream"},
		{"Server.S3UseSSL", cfg.Server.S3UseSSL, false},
		{"Server.RedisAddr", cfg.Server.RedisAddr, ""},
		{"Server.MaxChunkBytes", cfg.Server.MaxChunkBytes, int64(2 << 20)},
		{"Server.MemoryMaxBytes", cfg.Server.MemoryMaxBytes, int64(0)},
		{"Client.BackendURL", cfg.Client.BackendURL, "http://localhost:8080"},
		{"Client.FFMPEGPath", cfg.Client.FFMPEGPath, "ffmpeg"},
		{"Client.FFProbePath", cfg.Client.FFProbePath, "ffprobe"},
		{"Client.SegmentDuration", cfg.Client.SegmentDuration, 2},
		{"Client.VideoBitrate", cfg.Client.VideoBitrate, ""},
		{"Client.AudioBitrate", cfg.Client.AudioBitrate, "128k"},
		{"Client.ChunkBytes", cfg.Client.ChunkBytes, int64(1 << 20)},
		{"Client.RetryCount", cfg.Client.RetryCount, 3},
		{"Client.RetryDelay", cfg.Client.RetryDelay, 2 * time.Second},
		{"Client.MaxConcurrentSegments", cfg.Client.MaxConcurrentSegments, 3},
		{"Player.HTTPAddr", cfg.Player.HTTPAddr, ":8090"},
		{"Player.BackendURL", cfg.Player.BackendURL, "http://localhost:8080"},
		{"Player.MaxConcurrentRequests", cfg.Player.MaxConcurrentRequests, 2},
		{"Player.SegmentDuration", cfg.Player.SegmentDuration, 4},
		{"Player.SessionIdle", cfg.Player.SessionIdle, 10 * time.Minute},
	})

	if len(cfg.Server.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins: got %v, want nil/empty", cfg.Server.CORSAllowedOrigins)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearConfigEnv(t)
	setEnvs(t, map[string]string{
		"LOG_LEVEL":                      "DEBUG",
		"LOG_FORMAT":                     "JSON",
		"HTTP_ADDR":                      ":9090",
		"METADATA_STORE":                 "Memory",
		"CHUNK_STORE":                    "MINIO",
		"S3_ENDPOINT":                    "minio:9000",
		"S3_USE_SSL":                     "true",
		"REDIS_ADDR":                     "redis:6379",
		"CORS_ALLOWED_ORIGINS":           "http://localhost:3000, https://example.com",
		"MAX_CHUNK_BYTES":                "4194304",
		"BACKEND_URL":                    "http://canister:8080",
		"HLS_SEGMENT_DURATION":           "6",
		"HLS_VIDEO_BITRATE":              "2M",
		"UPLOAD_CHUNK_BYTES":             "524288",
		"UPLOAD_RETRY_COUNT":             "5",
		"UPLOAD_RETRY_DELAY":             "500ms",
		"UPLOAD_MAX_CONCURRENT_SEGMENTS": "8",
		"PLAYER_ADDR":                    ":7000",
		"PLAYER_MAX_CONCURRENT_REQUESTS": "4",
		"PLAYER_SESSION_IDLE":            "90s",
	})

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	checkFields(t, []field{
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"Server.HTTPAddr", cfg.Server.HTTPAddr, ":9090"},
		{"Server.MetadataStore", cfg.Server.MetadataStore, "memory"},
		{"Server.ChunkStore", cfg.Server.ChunkStore, "minio"},
		{"Server.S3Endpoint", cfg.Server.S3Endpoint, "minio:9000"},
		{"Server.S3UseSSL", cfg.Server.S3UseSSL, true},
		{"Server.RedisAddr", cfg.Server.RedisAddr, "redis:6379"},
		{"Server.MaxChunkBytes", cfg.Server.MaxChunkBytes, int64(4 << 20)},
		{"Client.RedisAddr", cfg.Client.RedisAddr, "redis:6379"},
		{"Client.BackendURL", cfg.Client.BackendURL, "http://canister:8080"},
		{"Client.SegmentDuration", cfg.Client.SegmentDuration, 6},
		{"Client.VideoBitrate", cfg.Client.VideoBitrate, "2M"},
		{"Client.ChunkBytes", cfg.Client.ChunkBytes, int64(512 << 10)},
		{"Client.RetryCount", cfg.Client.RetryCount, 5},
		{"Client.RetryDelay", cfg.Client.RetryDelay, 500 * time.Millisecond},
		{"Client.MaxConcurrentSegments", cfg.Client.MaxConcurrentSegments, 8},
		{"Player.HTTPAddr", cfg.Player.HTTPAddr, ":7000"},
		{"Player.BackendURL", cfg.Player.BackendURL, "http://canister:8080"},
		{"Player.MaxConcurrentRequests", cfg.Player.MaxConcurrentRequests, 4},
		{"Player.SessionIdle", cfg.Player.SessionIdle, 90 * time.Second},
	})

	wantOrigins := []string{"http://localhost:3000", "https://example.com"}
	if len(cfg.Server.CORSAllowedOrigins) != len(wantOrigins) {
		t.Fatalf("CORSAllowedOrigins: got %d entries, want %d", len(cfg.Server.CORSAllowedOrigins), len(wantOrigins))
	}
	for i, got := range cfg.Server.CORSAllowedOrigins {
		if got != wantOrigins[i] {
			t.Errorf("CORSAllowedOrigins[%d]: got %q, want %q", i, got, wantOrigins[i])
		}
	}
}

func TestLoadConfigFileOverlay(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "canistream.yaml")
	content := `http_addr: ":7070"
MONGO_DB: overlay
UPLOAD_RETRY_COUNT: 7
S3_USE_SSL: true
CORS_ALLOWED_ORIGINS:
  - http://a.example
  - http://b.example
REDIS_ADDR:
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	setEnvs(t, map[string]string{
		"CONFIG_FILE": path,
		"MONGO_DB":    "from-env",
	})
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	checkFields(t, []field{
		{"HTTPAddr from file", cfg.Server.HTTPAddr, ":7070"},
		{"env wins over file", cfg.Server.MongoDatabase, "from-env"},
		{"number from file", cfg.Client.RetryCount, 7},
		{"bool from file", cfg.Server.S3UseSSL, true},
		{"null skipped", cfg.Server.RedisAddr, ""},
		{"origins from list", strings.Join(cfg.Server.CORSAllowedOrigins, ","), "http://a.example,http://b.example"},
	})
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("just: [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.yaml")},
		{"invalid yaml", bad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("CONFIG_FILE", tt.path)
			if _, err := LoadConfig(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGetEnvInt64InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int64
		want     int64
	}{
		{"empty string", "", 42, 42},
		{"not a number", "abc", 42, 42},
		{"negative number", "-5", 42, 42},
		{"zero", "0", 42, 0},
		{"valid positive", "100", 42, 100},
		{"whitespace around number", "  50  ", 42, 50},
		{"float", "3.14", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envVal)
			got := getEnvInt64("TEST_INT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvInt64(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", nil},
		{"whitespace only", "   ", nil},
		{"single value", "http://localhost:3000", []string{"http://localhost:3000"}},
		{"multiple values", "a,b,c", []string{"a", "b", "c"}},
		{"values with spaces", " a , b , c ", []string{"a", "b", "c"}},
		{"trailing comma", "a,b,", []string{"a", "b"}},
		{"empty entries filtered", "a,,b,,c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCSV(tt.input)
			if tt.want == nil {
				if got != nil {
					t.Errorf("parseCSV(%q) = %v, want nil", tt.input, got)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseCSV(%q) returned %d elements, want %d", tt.input, len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("parseCSV(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("TEST_EXISTING", "hello")

	if got := getEnv("TEST_EXISTING", "default"); got != "hello" {
		t.Errorf("getEnv(existing) = %q, want %q", got, "hello")
	}

	// Unset to test fallback
	t.Setenv("TEST_MISSING_XYZ", "")
	os.Unsetenv("TEST_MISSING_XYZ")
	if got := getEnv("TEST_MISSING_XYZ", "default"); got != "default" {
		t.Errorf("getEnv(missing) = %q, want %q", got, "default")
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name   string
		envVal string
		want   time.Duration
	}{
		{"empty", "", time.Second},
		{"valid", "250ms", 250 * time.Millisecond},
		{"bare number", "5", time.Second},
		{"negative", "-1s", time.Second},
		{"zero", "0s", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION_VAR", tt.envVal)
			if got := getEnvDuration("TEST_DURATION_VAR", time.Second); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.envVal, got, tt.want)
			}
		})
	}
}

func TestLogLevelCaseInsensitive(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		debugOn  bool
		wantJSON bool
	}{
		{"default text info", "", "", false, false},
		{"json debug", "debug", "JSON", true, true},
		{"warning alias", "warning", "text", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.level, tt.format)
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debugOn {
				t.Fatalf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			logger.Error("hello", slog.String("videoId", "v1"))
			out := buf.String()
			if tt.wantJSON != strings.HasPrefix(out, "{") {
				t.Fatalf("unexpected format: %q", out)
			}
			if !strings.Contains(out, "v1") {
				t.Fatalf("missing attribute: %q", out)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for raw, want := range tests {
		if got := ParseLogLevel(raw); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
