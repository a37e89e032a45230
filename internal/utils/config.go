package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerPort string
	Postgres   PostgresConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Logging    LoggingConfig
	LLM        LLMConfig
	Realtime   RealtimeConfig
	Cache      CacheConfig
	Uploads    UploadConfig
}

type PostgresConfig struct {
	DSN               string
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

type LLMConfig struct {
	PrimaryEndpoint  string
	BackupEndpoint   string
	ActiveEndpoint   string
	APIKey           string
	Model            string
	Timeout          time.Duration
	SummaryThreshold int
	RecentKeep       int
}

func (l LLMConfig) BaseURL() string {
	if strings.TrimSpace(l.ActiveEndpoint) != "" {
		return l.ActiveEndpoint
	}
	return l.PrimaryEndpoint
}

// Enabled reports whether an assistant can be reached at all.
func (l LLMConfig) Enabled() bool {
	return strings.TrimSpace(l.APIKey) != "" && strings.TrimSpace(l.BaseURL()) != ""
}

type RealtimeConfig struct {
	// Backend is one of "memory", "postgres", "redis" or "websocket".
	Backend         string
	PostgresChannel string
	RedisPrefix     string
	WebsocketURL    string
	ReloadDebounce  time.Duration
}

type CacheConfig struct {
	SnapshotDSN     string
	SwitchDebounce  time.Duration
	MaxSavedThreads int
	InitialProject  string
	SaveTimeout     time.Duration
}

type UploadConfig struct {
	Endpoint    string
	Concurrency int64
	Timeout     time.Duration
}

func LoadConfig() (*Config, error) {
	port := envOrDefault("PORT", "8080")

	pgPort, err := strconv.Atoi(envOrDefault("POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}
	maxConns := parseInt32(envOrDefault("POSTGRES_MAX_CONNS", "8"), 8)
	minConns := parseInt32(envOrDefault("POSTGRES_MIN_CONNS", "1"), 1)

	logging := LoggingConfig{
		Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
		Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
		EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
		ServiceName:  envOrDefault("SERVICE_NAME", "evalboard"),
	}

	primaryEndpoint := envOrDefault("LLM_PRIMARY_ENDPOINT", "https://openai.qiniu.com/v1")
	backupEndpoint := envOrDefault("LLM_BACKUP_ENDPOINT", "https://api.qnaigc.com/v1")

	backend := strings.ToLower(strings.TrimSpace(envOrDefault("REALTIME_BACKEND", "memory")))
	switch backend {
	case "memory", "postgres", "redis", "websocket":
	default:
		return nil, fmt.Errorf("unsupported REALTIME_BACKEND %q", backend)
	}

	cfg := &Config{
		ServerPort: port,
		Postgres: PostgresConfig{
			DSN:               os.Getenv("POSTGRES_DSN"),
			Host:              envOrDefault("POSTGRES_HOST", "localhost"),
			Port:              pgPort,
			User:              envOrDefault("POSTGRES_USER", "postgres"),
			Password:          os.Getenv("POSTGRES_PASSWORD"),
			Database:          envOrDefault("POSTGRES_DB", "evalboard"),
			MaxConns:          maxConns,
			MinConns:          minConns,
			MaxConnLifetime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_LIFETIME", "1h"), time.Hour),
			MaxConnIdleTime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_IDLE", "30m"), 30*time.Minute),
			HealthCheckPeriod: parseDuration(envOrDefault("POSTGRES_HEALTH_CHECK_PERIOD", "1m"), time.Minute),
			ConnectTimeout:    parseDuration(envOrDefault("POSTGRES_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            os.Getenv("MONGO_URI"),
			Database:       envOrDefault("MONGO_DATABASE", "evalboard"),
			ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       int(parseInt32(envOrDefault("REDIS_DB", "0"), 0)),
		},
		Logging: logging,
		LLM: LLMConfig{
			PrimaryEndpoint:  primaryEndpoint,
			BackupEndpoint:   backupEndpoint,
			ActiveEndpoint:   envOrDefault("LLM_API_ENDPOINT", primaryEndpoint),
			APIKey:           os.Getenv("LLM_API_KEY"),
			Model:            envOrDefault("LLM_MODEL", "deepseek-v3"),
			Timeout:          parseDuration(envOrDefault("LLM_TIMEOUT", "60s"), time.Minute),
			SummaryThreshold: int(parseInt32(envOrDefault("LLM_SUMMARY_THRESHOLD", "12"), 12)),
			RecentKeep:       int(parseInt32(envOrDefault("LLM_RECENT_KEEP", "6"), 6)),
		},
		Realtime: RealtimeConfig{
			Backend:         backend,
			PostgresChannel: envOrDefault("REALTIME_PG_CHANNEL", "evalboard_changes"),
			RedisPrefix:     envOrDefault("REALTIME_REDIS_PREFIX", "evalboard:changes"),
			WebsocketURL:    os.Getenv("REALTIME_WS_URL"),
			ReloadDebounce:  parseDuration(envOrDefault("REALTIME_RELOAD_DEBOUNCE", "300ms"), 300*time.Millisecond),
		},
		Cache: CacheConfig{
			SnapshotDSN:     envOrDefault("CACHE_SNAPSHOT_DSN", "file://./data/evalboard-snapshot.json"),
			SwitchDebounce:  parseDuration(envOrDefault("CACHE_SWITCH_DEBOUNCE", "100ms"), 100*time.Millisecond),
			MaxSavedThreads: int(parseInt32(envOrDefault("CACHE_MAX_SAVED_THREADS", "20"), 20)),
			InitialProject:  os.Getenv("CACHE_INITIAL_PROJECT"),
			SaveTimeout:     parseDuration(envOrDefault("CACHE_SAVE_TIMEOUT", "5s"), 5*time.Second),
		},
		Uploads: UploadConfig{
			Endpoint:    os.Getenv("UPLOAD_ENDPOINT"),
			Concurrency: int64(parseInt32(envOrDefault("UPLOAD_CONCURRENCY", "3"), 3)),
			Timeout:     parseDuration(envOrDefault("UPLOAD_TIMEOUT", "2m"), 2*time.Minute),
		},
	}

	if cfg.Realtime.Backend == "websocket" && strings.TrimSpace(cfg.Realtime.WebsocketURL) == "" {
		return nil, fmt.Errorf("REALTIME_WS_URL is required for the websocket realtime backend")
	}

	return cfg, nil
}

func (c PostgresConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Configured reports whether a Postgres connection was asked for.
func (c PostgresConfig) Configured() bool {
	return c.DSN != "" || c.Password != ""
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt32(value string, fallback int32) int32 {
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return int32(i)
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}
