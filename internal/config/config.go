// Package config resolves runtime configuration from flags, the
// environment, and an optional .env file.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	StorePath string
	StoreDSN  string

	TemplateDir   string
	TemplateWatch bool

	HistoryTTL time.Duration
	Archive    ArchiveConfig

	LLM LLMConfig

	AutonomyDefault bool
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LLMConfig selects the generation backend. Rate limiting is tuned by
// the generator itself via LLM_RPS and LLM_BURST.
type LLMConfig struct {
	APIKey string
	Model  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:            *port,
		Env:             env,
		StorePath:       firstNonEmpty(strings.TrimSpace(os.Getenv("BLOCK_STORE_PATH")), "data/blocks.json"),
		StoreDSN:        strings.TrimSpace(os.Getenv("BLOCK_STORE_PG_DSN")),
		TemplateDir:     firstNonEmpty(strings.TrimSpace(os.Getenv("TEMPLATE_DIR")), "templates"),
		TemplateWatch:   envBool("TEMPLATE_WATCH", false),
		HistoryTTL:      envHours("HISTORY_TTL_HOURS", 24*time.Hour),
		Archive:         loadArchiveConfig(),
		LLM:             loadLLMConfig(),
		AutonomyDefault: envBool("AUTONOMY_DEFAULT", true),
	}, nil
}

func loadArchiveConfig() ArchiveConfig {
	endpoint := strings.TrimSpace(os.Getenv("HISTORY_S3_ENDPOINT"))
	return ArchiveConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("HISTORY_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("HISTORY_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("HISTORY_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("HISTORY_S3_BUCKET")), "blockflow-history"),
		UseSSL:    envBool("HISTORY_S3_USE_SSL", false),
	}
}

func loadLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:  firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_MODEL")), "gemini-2.0-flash"),
	}
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envHours(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return time.Duration(v) * time.Hour
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
