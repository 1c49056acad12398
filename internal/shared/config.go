package shared

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	MySQLDSN   string
	SQLitePath string
	RedisAddr  string
	RedisDB    int
	RedisPass  string
	CacheTTL   time.Duration

	PlacesBase   string
	PlacesKey    string
	PlacesRPS    int
	PlacesRadius int
	PlacesType   string

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	BlobPublicBase string
	// MediaRoot is the only directory local review media is read from.
	MediaRoot string

	ProbeURL string
	ProbeTTL time.Duration

	SyncWorkers  int
	SyncInterval time.Duration

	DefaultLat, DefaultLon float64
	GateRadiusMeters       float64
	GateCooldown           time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, seeds variables that are not already set.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return def
	}
	c := Config{
		AppEnv:           env("APP_ENV", "prod"),
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		MetricsAddr:      env("METRICS_ADDR", ""),
		MySQLDSN:         env("MYSQL_DSN", "root:root@tcp(localhost:3306)/docaria?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		SQLitePath:       env("SQLITE_PATH", "docaria-cache.db"),
		RedisAddr:        env("REDIS_ADDR", "localhost:6379"),
		RedisPass:        env("REDIS_PASSWORD", ""),
		RedisDB:          atoi("REDIS_DB", 0),
		CacheTTL:         time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		PlacesBase:       env("PLACES_BASE_URL", "https://maps.googleapis.com"),
		PlacesKey:        env("PLACES_API_KEY", ""),
		PlacesRPS:        atoi("PLACES_RPS", 5),
		PlacesRadius:     atoi("PLACES_RADIUS", 1000),
		PlacesType:       env("PLACES_TYPE", "cafe"),
		S3Bucket:         env("S3_BUCKET", "docaria-media"),
		S3Region:         env("S3_REGION", "eu-west-1"),
		S3Endpoint:       env("S3_ENDPOINT", ""),
		BlobPublicBase:   env("BLOB_PUBLIC_BASE", ""),
		MediaRoot:        env("MEDIA_ROOT", "media"),
		ProbeURL:         env("PROBE_URL", "https://clients3.google.com/generate_204"),
		ProbeTTL:         time.Duration(atoi("PROBE_TTL_SECONDS", 5)) * time.Second,
		SyncWorkers:      atoi("SYNC_WORKERS", 4),
		SyncInterval:     time.Duration(atoi("SYNC_INTERVAL_SECONDS", 60)) * time.Second,
		DefaultLat:       atof("DEFAULT_LAT", 40.442492),
		DefaultLon:       atof("DEFAULT_LON", -79.942553),
		GateRadiusMeters: atof("GATE_RADIUS_METERS", 50),
		GateCooldown:     time.Duration(atoi("GATE_COOLDOWN_MINUTES", 30)) * time.Minute,
	}
	if c.BlobPublicBase == "" {
		c.BlobPublicBase = "https://" + c.S3Bucket + ".s3." + c.S3Region + ".amazonaws.com"
	}
	if abs, err := filepath.Abs(c.MediaRoot); err == nil {
		c.MediaRoot = abs
	}
	if c.PlacesKey == "" {
		log.Warn().Msg("PLACES_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
