package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultAcceptedTypes covers the common image/video/audio mimes the
// dashboard accepts out of the box.
var DefaultAcceptedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"video/mp4",
	"video/quicktime",
	"video/webm",
	"audio/mpeg",
	"audio/wav",
	"audio/ogg",
}

type Config struct {
	MaxFiles      int
	MaxFileSizeMB int
	AcceptedTypes []string

	// Optional collaborators; empty values leave them unwired.
	UploadURL    string
	KafkaBrokers []string
	KafkaTopic   string
	DatabaseURL  string
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		MaxFiles:      10,
		MaxFileSizeMB: 50,
		AcceptedTypes: DefaultAcceptedTypes,
		UploadURL:     os.Getenv("UPLOAD_URL"),
		KafkaTopic:    os.Getenv("KAFKA_TOPIC"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
	}

	var err error
	if cfg.MaxFiles, err = intEnv("INGEST_MAX_FILES", cfg.MaxFiles); err != nil {
		return Config{}, err
	}
	if cfg.MaxFileSizeMB, err = intEnv("INGEST_MAX_FILE_SIZE_MB", cfg.MaxFileSizeMB); err != nil {
		return Config{}, err
	}
	if cfg.MaxFiles <= 0 {
		return Config{}, fmt.Errorf("INGEST_MAX_FILES must be positive, got: %d", cfg.MaxFiles)
	}
	if cfg.MaxFileSizeMB <= 0 {
		return Config{}, fmt.Errorf("INGEST_MAX_FILE_SIZE_MB must be positive, got: %d", cfg.MaxFileSizeMB)
	}

	if v := os.Getenv("INGEST_ACCEPTED_TYPES"); v != "" {
		cfg.AcceptedTypes = splitList(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}

	return cfg, nil
}

// MaxFileSizeBytes converts the configured megabyte ceiling to bytes.
func (c Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// AcceptedTypeSet returns the whitelist in the form the admission policy
// consumes.
func (c Config) AcceptedTypeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.AcceptedTypes))
	for _, t := range c.AcceptedTypes {
		set[t] = struct{}{}
	}
	return set
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
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
