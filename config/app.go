package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the service settings read from the environment.
type App struct {
	Port string

	CVisionBaseURL  string // profile + artifact BFF
	ManageCVBaseURL string // stage trigger API
	HTTPTimeout     time.Duration

	PollInterval    time.Duration
	PollTimeout     time.Duration
	PollMaxAttempts int
	PollRatePerSec  float64 // shared fetch budget across all poll loops, 0 disables

	Stage1PollInterval    time.Duration
	Stage1PollMaxAttempts int

	ProfileCacheTTL time.Duration
	ProfileCache    string // "redis" (shared) or "memory" (per instance)
	EventTTL        time.Duration

	MongoDB           string
	GCSArtifactBucket string
	GCSCredentials    string

	Stage2Stream  string
	Stage2Group   string
	Stage2Workers int

	CORSAllowOrigins []string
}

// Load reads .env when present, then the environment.
func Load() (*App, error) {
	_ = godotenv.Load()

	a := &App{
		Port:            envString("PORT", "8080"),
		CVisionBaseURL:  strings.TrimRight(os.Getenv("CVISION_BFF_API_BASE"), "/"),
		ManageCVBaseURL: strings.TrimRight(os.Getenv("MANAGE_CV_API_BASE"), "/"),
		HTTPTimeout:     envDuration("HTTP_TIMEOUT", 15*time.Second),

		PollInterval:    envDuration("POLL_INTERVAL", 2500*time.Millisecond),
		PollTimeout:     envDuration("POLL_TIMEOUT", 10*time.Minute),
		PollMaxAttempts: envInt("POLL_MAX_ATTEMPTS", 200),
		PollRatePerSec:  envFloat("POLL_RATE_PER_SEC", 20),

		Stage1PollInterval:    envDuration("STAGE1_POLL_INTERVAL", 2*time.Second),
		Stage1PollMaxAttempts: envInt("STAGE1_POLL_MAX_ATTEMPTS", 300),

		ProfileCacheTTL: envDuration("PROFILE_CACHE_TTL", 5*time.Second),
		ProfileCache:    strings.ToLower(envString("PROFILE_CACHE", "redis")),
		EventTTL:        envDuration("EVENT_TTL", 24*time.Hour),

		MongoDB:           envString("MONGO_DB", "cvision"),
		GCSArtifactBucket: os.Getenv("GCS_ARTIFACT_BUCKET"),
		GCSCredentials:    os.Getenv("GCS_CREDENTIALS_FILE"),

		Stage2Stream:  envString("STAGE2_STREAM", "stage2:requests"),
		Stage2Group:   envString("STAGE2_GROUP", "stage2-workers"),
		Stage2Workers: envInt("STAGE2_WORKERS", 4),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"http://localhost:5173"}),
	}

	if a.CVisionBaseURL == "" {
		return nil, errors.New("CVISION_BFF_API_BASE environment variable is not set")
	}
	if a.ManageCVBaseURL == "" {
		return nil, errors.New("MANAGE_CV_API_BASE environment variable is not set")
	}
	return a, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envDuration accepts Go durations ("2s") or plain milliseconds ("2500").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
		return n
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
		return f
	}
	return def
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
