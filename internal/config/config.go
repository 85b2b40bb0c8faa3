// Package config loads matricd's process configuration from environment
// variables, in the teacher's plain os.Getenv idiom (internal/config's
// original YAML/viper surface served a much larger agent platform and had
// no equivalent here — see loader.go for the full variable list).
package config

// S3Config configures the object store used for attachment bytes and
// wrapped-keystore backups.
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool
	Prefix                string
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// S3SSEConfig configures server-side encryption on S3 puts, if any.
type S3SSEConfig struct {
	Mode  string // "", "sse-s3", "sse-kms"
	KMSKeyID string
}

// ArgonConfig tunes the Argon2id cost parameters used to wrap private-key
// keystores; see pke.WrapPrivateKey.
type ArgonConfig struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
}

// Config is the fully resolved process configuration.
type Config struct {
	DatabaseURL string

	LogLevel  string
	LogFormat string

	S3 S3Config

	RedisURL string

	KafkaBrokers []string
	KafkaTopic   string

	ClickHouseDSN string

	QdrantURL string

	AnthropicAPIKey string
	GoogleAPIKey    string

	OllamaBaseURL     string
	OllamaGenModel    string
	OllamaVisionModel string
	WhisperBaseURL    string
	WhisperModel      string

	Argon ArgonConfig

	Obs ObsConfig
}

// ObsConfig configures the OpenTelemetry tracing/metrics exporters.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}
