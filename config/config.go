package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"lunchbot/models"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config is the process configuration. Values come from .env, then the
// environment, then command-line flags, later sources winning.
type Config struct {
	Port                string
	DatabasePath        string
	SlackBotToken       string
	SlackSigningSecret  string
	SeedFile            string
	GinMode             string
	LogLevel            string
	DispatchTimeout     time.Duration
	DispatchConcurrency int
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Load reads configuration for the lunchbot server. args are the
// command-line arguments without the program name.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		DatabasePath:        getEnv("DATABASE_PATH", "lunchbot.db"),
		SlackBotToken:       os.Getenv("SLACK_BOT_TOKEN"),
		SlackSigningSecret:  os.Getenv("SLACK_SIGNING_SECRET"),
		SeedFile:            os.Getenv("SEED_FILE"),
		GinMode:             getEnv("GIN_MODE", "release"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DispatchTimeout:     getEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),
		DispatchConcurrency: getEnvInt("DISPATCH_CONCURRENCY", 8),
	}

	flags := pflag.NewFlagSet("lunchbot", pflag.ContinueOnError)
	flags.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	flags.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path (\":memory:\" for a throwaway store)")
	flags.StringVar(&cfg.SeedFile, "seed", cfg.SeedFile, "YAML file of restaurants loaded into an empty catalog")
	flags.StringVar(&cfg.GinMode, "gin-mode", cfg.GinMode, "gin mode: debug, release or test")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	flags.DurationVar(&cfg.DispatchTimeout, "dispatch-timeout", cfg.DispatchTimeout, "deadline for one batch of direct messages")
	flags.IntVar(&cfg.DispatchConcurrency, "dispatch-concurrency", cfg.DispatchConcurrency, "direct messages sent in parallel")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.SlackBotToken == "" {
		return Config{}, errors.New("SLACK_BOT_TOKEN is required")
	}
	if cfg.DispatchConcurrency < 1 {
		cfg.DispatchConcurrency = 1
	}
	return cfg, nil
}

// NewLogger builds the process logger.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// OpenDB connects to the SQLite database at path and migrates all models.
func OpenDB(path string) (*gorm.DB, error) {
	dsn := path
	memory := path == ":memory:"
	if memory {
		dsn = "file::memory:"
	} else {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(log.New(os.Stderr, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(
		&models.Restaurant{},
		&models.PendingRestaurant{},
		&models.Filter{},
		&models.Session{},
		&models.Participant{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
