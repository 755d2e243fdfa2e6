package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting for the optimization
// service. All keys have defaults, matching spec.md §6.
type Config struct {
	// Server
	Port string
	Env  string

	// Redis (optional durability extension, §9)
	RedisURL     string
	QueueEnabled bool

	// CORS
	AllowedOrigins []string

	// Object storage (BlobSink)
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Download URL base (CDN/origin), tail is the minted newFilePath
	S3CustomDomain string

	// TTL Store / Context Registry
	DefaultTTLSeconds      int
	CleanupIntervalMillis  int
	ClientContextTTLSecond int

	// Upload limits
	MaxFileSizeBytes int64

	// Image defaults
	DefaultQuality int

	// Worker pool
	QueueConcurrency int
	MaxRetries       int

	// Logging
	LogLevel string
}

// Load reads configuration from the environment, falling back to a local
// .env file in development, exactly as the teacher's internal/config does.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueEnabled: parseBool(getEnv("QUEUE_ENABLED", "false"), false),

		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "*")),

		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3Region:       getEnv("S3_REGION", "auto"),
		S3Bucket:       getEnv("S3_BUCKET", "optimized-images"),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3UsePathStyle: parseBool(getEnv("S3_USE_PATH_STYLE", "true"), true),
		S3CustomDomain: getEnv("S3_CUSTOM_DOMAIN", ""),

		DefaultTTLSeconds:      parseInt(getEnv("DEFAULT_TTL", "3600"), 3600),
		CleanupIntervalMillis:  parseInt(getEnv("CLEANUP_INTERVAL", "300000"), 300000),
		ClientContextTTLSecond: parseInt(getEnv("CLIENT_CONTEXT_TTL", "3600"), 3600),

		MaxFileSizeBytes: int64(parseInt(getEnv("MAX_FILE_SIZE", "52428800"), 52428800)),

		DefaultQuality: parseInt(getEnv("DEFAULT_QUALITY", "80"), 80),

		QueueConcurrency: parseInt(getEnv("QUEUE_CONCURRENCY", "4"), 4),
		MaxRetries:       parseInt(getEnv("MAX_RETRIES", "3"), 3),

		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseBool(s string, defaultValue bool) bool {
	value, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseInt(s string, defaultValue int) int {
	value, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if start < i {
				result = append(result, s[start:i])
			}
			start = i + 1
		}
	}
	return result
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DefaultTTL returns the context/entry TTL as a time.Duration.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// CleanupInterval returns the TTL-store sweep interval as a time.Duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMillis) * time.Millisecond
}
