package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver   string
	SQLitePath string
	Postgres   struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
	}

	Workers          int
	UpdateInterval   time.Duration
	ScheduleInterval time.Duration
	RequestTimeout   time.Duration
	RateLimit        int
	RatePeriod       time.Duration

	InvidiousURL  string
	YoutubeAPIKey string
	YoutubeSource string

	DownloadDir    string
	FilenameFormat string
	YtdlpFormat    string

	MinifluxEndpoint string
	MinifluxAPIKey   string
	FeedInterval     time.Duration

	RedisURL string
	APIPort  int
	LogLevel slog.Level
}

// Load reads the configuration from the environment, after adding the
// variables from .env in the working directory if there is one.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file. Variables already set in the
// environment win over the ones in the file.
func LoadFile(envFile string) (Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("could not read %s: %w", envFile, err)
	}

	var (
		cfg  Config
		errs []error
	)
	duration := func(param, def string) time.Duration {
		d, err := time.ParseDuration(getParam(param, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", param, err))
		}
		return d
	}
	integer := func(param, def string) int {
		n, err := strconv.Atoi(getParam(param, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", param, err))
		}
		return n
	}

	cfg.DBDriver = getParam("DB_DRIVER", "sqlite")
	cfg.SQLitePath = getParam("SQLITE_PATH", "data/vidl.sqlite")
	cfg.Postgres.Host = getParam("POSTGRES_HOST", "localhost")
	cfg.Postgres.Port = getParam("POSTGRES_PORT", "5432")
	cfg.Postgres.User = getParam("POSTGRES_USER", "vidl")
	cfg.Postgres.Password = getParam("POSTGRES_PASSWORD", "vidl")
	cfg.Postgres.Database = getParam("POSTGRES_DB", "vidl")

	cfg.Workers = integer("WORKERS", "4")
	cfg.UpdateInterval = duration("UPDATE_INTERVAL", "60m")
	cfg.ScheduleInterval = duration("SCHEDULE_INTERVAL", "5m")
	cfg.RequestTimeout = duration("REQUEST_TIMEOUT", "30s")
	cfg.RateLimit = integer("RATE_LIMIT", "10")
	cfg.RatePeriod = duration("RATE_PERIOD", "60s")

	cfg.InvidiousURL = getParam("INVIDIOUS_URL", "https://invidious.fdn.fr")
	cfg.YoutubeAPIKey = getParam("YOUTUBE_API_KEY", "")
	cfg.YoutubeSource = getParam("YOUTUBE_SOURCE", "invidious")

	cfg.DownloadDir = getParam("DOWNLOAD_DIR", "download")
	cfg.FilenameFormat = getParam("FILENAME_FORMAT", "")
	cfg.YtdlpFormat = getParam("YTDLP_FORMAT", "")

	cfg.MinifluxEndpoint = getParam("MINIFLUX_ENDPOINT", "")
	cfg.MinifluxAPIKey = getParam("MINIFLUX_APIKEY", "")
	cfg.FeedInterval = duration("FEED_INTERVAL", "1m")

	cfg.RedisURL = getParam("REDIS_URL", "")
	cfg.APIPort = integer("API_PORT", "8080")
	if err := cfg.LogLevel.UnmarshalText([]byte(getParam("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unknown driver %q", cfg.DBDriver))
	}
	switch cfg.YoutubeSource {
	case "invidious":
	case "api":
		if cfg.YoutubeAPIKey == "" {
			errs = append(errs, errors.New("YOUTUBE_API_KEY is required when YOUTUBE_SOURCE is api"))
		}
	default:
		errs = append(errs, fmt.Errorf("YOUTUBE_SOURCE: unknown source %q", cfg.YoutubeSource))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS: need at least one worker, got %d", cfg.Workers))
	}
	if cfg.RateLimit < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT: need at least one request, got %d", cfg.RateLimit))
	}
	for param, d := range map[string]time.Duration{
		"SCHEDULE_INTERVAL": cfg.ScheduleInterval,
		"RATE_PERIOD":       cfg.RatePeriod,
		"FEED_INTERVAL":     cfg.FeedInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", param, d))
		}
	}

	return cfg, errors.Join(errs...)
}

func getParam(param, def string) string {
	if val, ok := os.LookupEnv(param); ok {
		return strings.TrimSpace(val)
	}
	return def
}
