package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds every environment-derived setting. It is built once in main
// and passed explicitly to each component; nothing reads the environment
// after startup.
type Config struct {
	Host      string
	Port      string
	UploadDir string

	SessionSecret  string
	AccessPassword string
	APIKey         string

	MaxFileSize       int64
	MaxFilesPerUpload int
	AllowedExtensions []string
	AllowedMIMETypes  []string

	EnableCORS  bool
	CORSOrigins []string

	LogLevel slog.Level
}

const (
	defaultPort           = "31533"
	defaultHost           = "localhost"
	defaultUploadDir      = "uploads"
	defaultPassword       = "change-me-123"
	defaultSessionSecret  = "defaultSessionSecret123"
	defaultAPIKey         = "defaultApiKey123"
	defaultMaxFileSize    = 10 << 20 // 10 MiB
	defaultMaxFilesUpload = 10
)

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (Config, error) {
	cfg := Config{
		Host:              getEnv("HOST", defaultHost),
		Port:              getEnv("PORT", defaultPort),
		UploadDir:         getEnv("UPLOAD_DIR", defaultUploadDir),
		SessionSecret:     getEnv("SESSION_SECRET", defaultSessionSecret),
		AccessPassword:    getEnv("ACCESS_PASSWORD", defaultPassword),
		APIKey:            getEnv("API_KEY", defaultAPIKey),
		MaxFileSize:       defaultMaxFileSize,
		MaxFilesPerUpload: defaultMaxFilesUpload,
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"},
		AllowedMIMETypes: []string{
			"image/jpeg", "image/jpg", "image/png",
			"image/gif", "image/webp", "image/bmp",
		},
		EnableCORS:  os.Getenv("ENABLE_CORS") == "true",
		CORSOrigins: []string{"*"},
		LogLevel:    parseLogLevel(os.Getenv("LOG_LEVEL")),
	}

	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_FILE_SIZE %q", v)
		}
		cfg.MaxFileSize = n
	}
	if v := os.Getenv("MAX_FILES_PER_UPLOAD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_FILES_PER_UPLOAD %q", v)
		}
		cfg.MaxFilesPerUpload = n
	}
	if v := os.Getenv("ALLOWED_IMAGE_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitList(v)
	}
	if v := os.Getenv("ALLOWED_MIME_TYPES"); v != "" {
		cfg.AllowedMIMETypes = splitList(v)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		return Config{}, fmt.Errorf("invalid port %q", cfg.Port)
	}

	if !filepath.IsAbs(cfg.UploadDir) {
		abs, err := filepath.Abs(cfg.UploadDir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve upload dir: %w", err)
		}
		cfg.UploadDir = abs
	}

	return cfg, nil
}

// AllowedExtension reports whether ext (including the leading dot) is in the
// allow-list. Comparison is case-insensitive.
func (c Config) AllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range c.AllowedExtensions {
		if strings.ToLower(strings.TrimSpace(e)) == ext {
			return true
		}
	}
	return false
}

// AllowedMIME reports whether mimeType is in the allow-list.
func (c Config) AllowedMIME(mimeType string) bool {
	for _, m := range c.AllowedMIMETypes {
		if strings.TrimSpace(m) == mimeType {
			return true
		}
	}
	return false
}

// MaxRequestBytes bounds an entire multipart request body: a full batch of
// maximum-size files plus form overhead. Anything larger is cut off before
// it can spool to disk.
func (c Config) MaxRequestBytes() int64 {
	return c.MaxFileSize*int64(c.MaxFilesPerUpload) + (1 << 20)
}

// MaxFileSizeMB rounds the byte limit to whole megabytes for user-facing
// messages.
func (c Config) MaxFileSizeMB() int {
	return int((c.MaxFileSize + (1 << 19)) >> 20)
}

func parseLogLevel(v string) slog.Level {
	switch v {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
