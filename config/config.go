package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr        string
	RedisDB          int
	ResetSearchIndex bool

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	SearchAPIURL  string
	DetailAPIURL  string
	DetailPageURL string
	CityID        string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	MaxPages       int
	MaxImages      int
	FetchTimeoutMs int

	SnapshotDir string
	TempDir     string
	ChromeBin   string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "divar"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "divar123"),
		PostgresDB:       getEnv("POSTGRES_DB", "divar_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		ResetSearchIndex: getEnvBool("RESET_SEARCH_INDEX", false),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "property-images"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioPublicURL: getEnv("MINIO_PUBLIC_URL", ""),

		SearchAPIURL:  getEnv("SEARCH_API_URL", "https://api.divar.ir/v8/postlist/w/search"),
		DetailAPIURL:  getEnv("DETAIL_API_URL", "https://api.divar.ir/v8/posts-v2/web/%s"),
		DetailPageURL: getEnv("DETAIL_PAGE_URL", "https://divar.ir/v/%s"),
		CityID:        getEnv("CITY_ID", "1"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		MaxPages:       getEnvInt("MAX_PAGES", 5),
		MaxImages:      getEnvInt("MAX_IMAGES", 5),
		FetchTimeoutMs: getEnvInt("FETCH_TIMEOUT_MS", 20000),

		SnapshotDir: getEnv("SNAPSHOT_DIR", "./output_json"),
		TempDir:     getEnv("TEMP_DIR", "./temp_images"),
		ChromeBin:   getEnv("CHROME_BIN", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// ImageStorageConfigured reports whether object-storage credentials are
// present. Without them the run proceeds with image offload disabled.
func (c *Config) ImageStorageConfigured() bool {
	return c.MinioEndpoint != "" && c.MinioAccessKey != "" && c.MinioSecretKey != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
