// Package config reads the harvester settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreSurrealDB = "surrealdb"
	StoreMongo     = "mongo"
	StoreBolt      = "bolt"
)

// Blob drivers. An empty driver disables blob offload.
const (
	BlobNone  = ""
	BlobS3    = "s3"
	BlobMinio = "minio"
	BlobBolt  = "bolt"
)

// Config holds all configuration values.
type Config struct {
	Store string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// MongoDB connection
	MongoURI      string
	MongoDatabase string

	BoltPath string

	// Blob offload of oversized page graphs
	BlobDriver          string
	BlobEndpoint        string
	BlobRegion          string
	BlobAccessKey       string
	BlobSecretKey       string
	BlobSecure          bool
	GraphsBucket        string
	MaxInlineGraphBytes int

	// Harvest behaviour
	AutoarchiveGraceDays int
	MaxItems             int
	PreviewMaxItems      int
	JobsRetentionDays    int
	HTTPTimeout          time.Duration
	UserAgent            string

	// Cross-run lock
	LockRedisURL string
	LockTTL      time.Duration

	// NSQ
	NsqdAddr       string
	NsqLookupdAddr string
	NsqTopic       string
	NsqChannel     string
	NsqMaxInFlight int

	ServerPort int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		Store: getEnv("HARVEST_STORE", StoreSurrealDB),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "harvest"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "catalog"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "catalog"),

		BoltPath: getEnv("BOLT_PATH", "harvest.db"),

		BlobDriver:          strings.ToLower(os.Getenv("HARVEST_BLOB_DRIVER")),
		BlobEndpoint:        os.Getenv("HARVEST_BLOB_ENDPOINT"),
		BlobRegion:          getEnv("HARVEST_BLOB_REGION", "us-east-1"),
		BlobAccessKey:       os.Getenv("HARVEST_BLOB_ACCESS_KEY"),
		BlobSecretKey:       os.Getenv("HARVEST_BLOB_SECRET_KEY"),
		BlobSecure:          getBool("HARVEST_BLOB_SECURE", true),
		GraphsBucket:        getEnv("HARVEST_GRAPHS_BUCKET", "harvest-graphs"),
		MaxInlineGraphBytes: getInt("HARVEST_GRAPHS_MAX_INLINE_BYTES", 15_000_000),

		AutoarchiveGraceDays: getInt("HARVEST_AUTOARCHIVE_GRACE_DAYS", 7),
		MaxItems:             getInt("HARVEST_MAX_ITEMS", 0),
		PreviewMaxItems:      getInt("HARVEST_PREVIEW_MAX_ITEMS", 20),
		JobsRetentionDays:    getInt("HARVEST_JOBS_RETENTION_DAYS", 30),
		HTTPTimeout:          getDuration("HARVEST_HTTP_TIMEOUT", 60*time.Second),
		UserAgent:            os.Getenv("HARVEST_USER_AGENT"),

		LockRedisURL: os.Getenv("HARVEST_LOCK_REDIS_URL"),
		LockTTL:      getDuration("HARVEST_LOCK_TTL", 2*time.Hour),

		NsqdAddr:       getEnv("NSQD_ADDR", "127.0.0.1:4150"),
		NsqLookupdAddr: os.Getenv("NSQ_LOOKUPD_ADDR"),
		NsqTopic:       getEnv("NSQ_TOPIC", "harvest"),
		NsqChannel:     getEnv("NSQ_CHANNEL", "harvester"),
		NsqMaxInFlight: getInt("NSQ_MAX_IN_FLIGHT", 1),

		ServerPort: getInt("HARVEST_SERVER_PORT", 8585),

		LogFile:  getEnv("HARVEST_LOG_FILE", "/tmp/catalog-harvester.log"),
		LogLevel: parseLogLevel(getEnv("HARVEST_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getInt falls back to defaultVal when the variable is unset or not a number.
func getInt(key string, defaultVal int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return v
}

func getBool(key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return v
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return v
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
