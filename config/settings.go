package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/ims_backend/utils"
)

// Settings is the process configuration, read once at startup.
type Settings struct {
	Port     string
	LogLevel string
	GoEnv    string

	DBDriver string
	DBDSN    string

	SyncServerURL      string
	SyncAPIKey         string
	SyncJWTSecret      string
	SyncSiteId         string
	SyncConflictPolicy string
	SyncInterval       time.Duration
	SyncHTTPTimeout    time.Duration

	RedisAddress string

	PubSubProjectId    string
	SyncSubscriptionId string
	SyncTopicId        string

	APISecret          string
	TokenLifespan      time.Duration
	APIAuthRequired    bool
	CORSAllowedOrigins []string
}

// LoadSettings loads .env (if present) and reads the environment.
func LoadSettings() Settings {
	// Load env from .env
	godotenv.Load()

	s := Settings{
		Port:               envDefault("PORT", "8080"),
		LogLevel:           envDefault("LOG_LEVEL", "info"),
		GoEnv:              strings.TrimSpace(os.Getenv("GO_ENV")),
		DBDriver:           strings.ToLower(envDefault("DB_DRIVER", DriverSqlite)),
		DBDSN:              envDefault("DB_DSN", "ims.db"),
		SyncServerURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("SYNC_SERVER_URL")), "/"),
		SyncAPIKey:         strings.TrimSpace(os.Getenv("SYNC_API_KEY")),
		SyncJWTSecret:      strings.TrimSpace(os.Getenv("SYNC_JWT_SECRET")),
		SyncSiteId:         envDefault("SYNC_SITE_ID", "site-1"),
		SyncConflictPolicy: envDefault("SYNC_CONFLICT_POLICY", "last-write-wins"),
		SyncInterval:       time.Duration(utils.IntFromEnv("SYNC_INTERVAL_SECONDS", 0)) * time.Second,
		SyncHTTPTimeout:    time.Duration(utils.IntFromEnv("SYNC_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		RedisAddress:       strings.TrimSpace(os.Getenv("REDIS_ADDRESS")),
		PubSubProjectId:    getPubSubProjectID(),
		SyncSubscriptionId: strings.TrimSpace(os.Getenv("SYNC_PUBSUB_SUBSCRIPTION")),
		SyncTopicId:        strings.TrimSpace(os.Getenv("SYNC_PUBSUB_TOPIC")),
		APISecret:          strings.TrimSpace(os.Getenv("API_SECRET")),
		TokenLifespan:      time.Duration(utils.IntFromEnv("TOKEN_HOUR_LIFESPAN", 12)) * time.Hour,
		APIAuthRequired:    utils.EnvBoolDefault("API_AUTH_REQUIRED", false),
		CORSAllowedOrigins: utils.SplitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
	return s
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.GoEnv, "production")
}

func envDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
