package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings read from the environment
type Config struct {
	Port         string
	DatabasePath string
	SourcesFile  string

	FetchWorkers         int
	FeedTimeout          time.Duration
	MaxSources           int
	MaxArticlesPerSource int
	StagingFlushSize     int
	PromotionBatchSize   int
	StagingRetention     time.Duration

	S3 S3Config

	Redis        RedisConfig
	BloomEnabled bool

	CohereAPIKey       string
	CohereModel        string
	ReadabilityEnabled bool

	CronSchedule string

	Kafka KafkaConfig
}

// S3Config selects the bucket used for cached article blobs.
// Required: Bucket. Everything else falls back to the AWS default chain.
type S3Config struct {
	Bucket        string
	Region        string
	Profile       string
	Prefix        string
	UsePathStyle  bool
	PublicBaseURL string
}

// RedisConfig holds the Redis connection used for the run lock and bloom filter
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures the pipeline trigger consumer
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Load reads configuration from the environment, loading .env first if present
func Load() Config {
	// Non-fatal if missing
	_ = godotenv.Load()

	cfg := Config{
		Port:         GetEnvOrDefault("PORT", "8080"),
		DatabasePath: GetEnvOrDefault("DATABASE_PATH", "threatfeed.db"),
		SourcesFile:  GetEnvOrDefault("SOURCES_FILE", ""),

		FetchWorkers:         GetEnvIntOrDefault("FETCH_WORKERS", FetchWorkers),
		FeedTimeout:          GetEnvDurationOrDefault("FEED_TIMEOUT", FeedTimeout),
		MaxSources:           GetEnvIntOrDefault("MAX_SOURCES", MaxSourcesPerRun),
		MaxArticlesPerSource: GetEnvIntOrDefault("MAX_ARTICLES_PER_SOURCE", MaxArticlesPerSource),
		StagingFlushSize:     GetEnvIntOrDefault("STAGING_FLUSH_SIZE", StagingFlushSize),
		PromotionBatchSize:   GetEnvIntOrDefault("PROMOTION_BATCH_SIZE", PromotionBatchSize),
		StagingRetention:     time.Duration(GetEnvIntOrDefault("STAGING_RETENTION_DAYS", 7)) * 24 * time.Hour,

		S3: S3Config{
			Bucket:        strings.TrimSpace(os.Getenv("S3_BUCKET")),
			Region:        strings.TrimSpace(os.Getenv("S3_REGION")),
			Profile:       strings.TrimSpace(os.Getenv("S3_PROFILE")),
			Prefix:        normalizePrefix(os.Getenv("S3_PREFIX")),
			UsePathStyle:  strings.EqualFold(strings.TrimSpace(os.Getenv("S3_USE_PATH_STYLE")), "true"),
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("S3_PUBLIC_BASE_URL")), "/"),
		},

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       GetEnvIntOrDefault("REDIS_DB", 0),
		},
		BloomEnabled: GetEnvBoolOrDefault("BLOOM_ENABLED", false),

		CohereAPIKey:       strings.TrimSpace(os.Getenv("COHERE_API_KEY")),
		CohereModel:        GetEnvOrDefault("COHERE_MODEL", "command-r"),
		ReadabilityEnabled: GetEnvBoolOrDefault("READABILITY_ENABLED", true),

		CronSchedule: strings.TrimSpace(os.Getenv("CRON_SCHEDULE")),

		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   GetEnvOrDefault("KAFKA_TOPIC", "threatfeed-pipeline-triggers"),
			GroupID: GetEnvOrDefault("KAFKA_GROUP_ID", "threatfeed-pipeline"),
		},
	}

	return cfg
}

// GetEnvOrDefault returns the env value for key, or defaultVal when unset or empty
func GetEnvOrDefault(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// GetEnvIntOrDefault parses a positive integer env value
func GetEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && n >= 0 {
			return n
		}
	}
	return defaultVal
}

// GetEnvBoolOrDefault parses a boolean env value
func GetEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}

// GetEnvDurationOrDefault accepts Go duration strings ("20s") or plain seconds ("20")
func GetEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	return strings.Trim(prefix, "/") + "/"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
