package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// UnknownZonePolicy decides what happens to a listing whose zone is not in
// the gazetteer and that no other tier could place.
type UnknownZonePolicy string

const (
	// PolicyFallback places the listing at the randomized island center.
	PolicyFallback UnknownZonePolicy = "fallback"
	// PolicyReject drops the listing.
	PolicyReject UnknownZonePolicy = "reject"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	FeedURLs       []string
	PostsPerFeed   int

	InputPath     string
	CSVOutputPath string
	ChromeBin     string

	GeocoderEnabled   bool
	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderRPS       float64

	UnknownZonePolicy UnknownZonePolicy
	TuningPath        string
	LogLevel          string

	Tuning Tuning
}

// Load reads the .env file and returns a populated Config struct. When
// TUNING_PATH names a YAML file its values override the default tuning.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "listings"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "listings123"),
		PostgresDB:       getEnv("POSTGRES_DB", "realestate_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		FeedURLs:       getEnvList("FEED_URLS"),
		PostsPerFeed:   getEnvInt("POSTS_PER_FEED", 12),

		InputPath:     getEnv("INPUT_PATH", ""),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/raw_records.csv"),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		GeocoderEnabled:   getEnvBool("GEOCODER_ENABLED", true),
		GeocoderURL:       getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", "margarita-listings/1.0"),
		GeocoderRPS:       getEnvFloat("GEOCODER_RPS", 1),

		UnknownZonePolicy: parsePolicy(getEnv("UNKNOWN_ZONE_POLICY", string(PolicyFallback))),
		TuningPath:        getEnv("TUNING_PATH", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),

		Tuning: DefaultTuning(),
	}

	if cfg.TuningPath != "" {
		tuning, err := LoadTuning(cfg.TuningPath)
		if err != nil {
			log.Printf("[config] Ignoring tuning file %s: %v", cfg.TuningPath, err)
		} else {
			cfg.Tuning = tuning
		}
	}

	return cfg
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

func parsePolicy(s string) UnknownZonePolicy {
	if UnknownZonePolicy(strings.ToLower(strings.TrimSpace(s))) == PolicyReject {
		return PolicyReject
	}
	return PolicyFallback
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

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
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

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
