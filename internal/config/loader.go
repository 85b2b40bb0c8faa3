package config

import (
	"os"
	"strconv"
	"strings"
)

// Load reads process configuration from the environment, applying the
// same defaults spelled out in spec.md §6.
func Load() (Config, error) {
	var cfg Config

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")
	cfg.LogFormat = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "json")

	cfg.S3 = S3Config{
		Bucket:       strings.TrimSpace(os.Getenv("MATRIC_S3_BUCKET")),
		Region:       strings.TrimSpace(os.Getenv("MATRIC_S3_REGION")),
		Endpoint:     strings.TrimSpace(os.Getenv("MATRIC_S3_ENDPOINT")),
		AccessKey:    strings.TrimSpace(os.Getenv("MATRIC_S3_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("MATRIC_S3_SECRET_KEY")),
		UsePathStyle: parseBool(os.Getenv("MATRIC_S3_USE_PATH_STYLE")),
		SSE: S3SSEConfig{
			Mode:     strings.TrimSpace(os.Getenv("MATRIC_S3_SSE_MODE")),
			KMSKeyID: strings.TrimSpace(os.Getenv("MATRIC_S3_SSE_KMS_KEY_ID")),
		},
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("MATRIC_REDIS_URL"))

	if brokers := strings.TrimSpace(os.Getenv("MATRIC_KAFKA_BROKERS")); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	cfg.KafkaTopic = strings.TrimSpace(os.Getenv("MATRIC_KAFKA_TOPIC"))

	cfg.ClickHouseDSN = strings.TrimSpace(os.Getenv("MATRIC_CLICKHOUSE_DSN"))
	cfg.QdrantURL = strings.TrimSpace(os.Getenv("MATRIC_QDRANT_URL"))

	cfg.AnthropicAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.GoogleAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))

	cfg.OllamaBaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("OLLAMA_BASE")), strings.TrimSpace(os.Getenv("OLLAMA_URL")))
	cfg.OllamaGenModel = strings.TrimSpace(os.Getenv("OLLAMA_GEN_MODEL"))
	cfg.OllamaVisionModel = strings.TrimSpace(os.Getenv("OLLAMA_VISION_MODEL"))
	cfg.WhisperBaseURL = strings.TrimSpace(os.Getenv("WHISPER_BASE_URL"))
	cfg.WhisperModel = strings.TrimSpace(os.Getenv("WHISPER_MODEL"))

	cfg.Obs = ObsConfig{
		ServiceName:    firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "matricd"),
		ServiceVersion: strings.TrimSpace(os.Getenv("SERVICE_VERSION")),
		Environment:    strings.TrimSpace(os.Getenv("ENVIRONMENT")),
		OTLP:           strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}

	cfg.Argon = ArgonConfig{
		MemoryKiB:   parseUint32(os.Getenv("ARGON2_MEMORY_KIB"), 65536),
		Time:        parseUint32(os.Getenv("ARGON2_TIME"), 3),
		Parallelism: uint8(parseUint32(os.Getenv("ARGON2_PARALLELISM"), 4)),
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}

func parseUint32(s string, def uint32) uint32 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return def
	}
	return uint32(v)
}
