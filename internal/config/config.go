package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"embedbot/internal/models"
)

const DefaultTokenFile = "token.txt"

// Config holds all runtime configuration. The bot token comes from a file,
// everything else from the environment (optionally seeded from .env).
type Config struct {
	Telegram TelegramConfig
	Pipeline PipelineConfig
	Tools    ToolsConfig
	Ops      OpsConfig
	Tracker  TrackerConfig
	Logging  LoggingConfig
}

type TelegramConfig struct {
	TokenFile string
	Token     string
	APIURL    string
}

type PipelineConfig struct {
	TempDir             string
	MaxConcurrent       int // 0 spawns one goroutine per request with no cap
	QueueCapacity       int
	Timeout             time.Duration // 0 disables the per-request deadline
	ProgressMinInterval time.Duration
	HTTPTimeout         time.Duration
}

type ToolsConfig struct {
	FetchTool              string
	ProbeTool              string
	MaxConcurrentDownloads int
}

type OpsConfig struct {
	Addr              string
	AllowedOrigins    []string
	IPAllowlist       []string
	RequireAPIKey     bool
	APIKeys           []string
	RequestsPerSecond float64
	BurstSize         int
}

type TrackerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Result splits the config into parts for fx injection.
type Result struct {
	fx.Out

	Config   *Config
	Telegram *TelegramConfig
	Pipeline *PipelineConfig
	Tools    *ToolsConfig
	Ops      *OpsConfig
	Tracker  *TrackerConfig
	Logging  *LoggingConfig
}

// Out returns an fx constructor that loads configuration with the given token file.
func Out(tokenFile string) func() (Result, error) {
	return func() (Result, error) {
		cfg, err := Load(tokenFile)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Config:   cfg,
			Telegram: &cfg.Telegram,
			Pipeline: &cfg.Pipeline,
			Tools:    &cfg.Tools,
			Ops:      &cfg.Ops,
			Tracker:  &cfg.Tracker,
			Logging:  &cfg.Logging,
		}, nil
	}
}

// Load reads the token file and the environment. An empty tokenFile means
// DefaultTokenFile.
func Load(tokenFile string) (*Config, error) {
	_ = godotenv.Load()

	if tokenFile == "" {
		tokenFile = DefaultTokenFile
	}
	token, err := ReadToken(tokenFile)
	if err != nil {
		return nil, err
	}

	cfg := FromEnv()
	cfg.Telegram.TokenFile = tokenFile
	cfg.Telegram.Token = token

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds everything except the token.
func FromEnv() *Config {
	return &Config{
		Telegram: TelegramConfig{
			APIURL: getEnv("TELEGRAM_API_URL", ""),
		},
		Pipeline: PipelineConfig{
			TempDir:             getEnv("TEMP_DIR", os.TempDir()),
			MaxConcurrent:       getEnvInt("MAX_CONCURRENT_PIPELINES", 0),
			QueueCapacity:       getEnvInt("PIPELINE_QUEUE_CAPACITY", 1000),
			Timeout:             getEnvDuration("PIPELINE_TIMEOUT", 0),
			ProgressMinInterval: getEnvDuration("PROGRESS_MIN_INTERVAL", 0),
			HTTPTimeout:         getEnvDuration("HTTP_TIMEOUT", 0),
		},
		Tools: ToolsConfig{
			FetchTool:              getEnv("FETCH_TOOL", "yt-dlp"),
			ProbeTool:              getEnv("PROBE_TOOL", "ffprobe"),
			MaxConcurrentDownloads: getEnvInt("MAX_CONCURRENT_DOWNLOADS", 0),
		},
		Ops: OpsConfig{
			Addr:              getEnv("OPS_ADDR", ""),
			AllowedOrigins:    splitAndTrim(getEnv("ALLOWED_ORIGINS", "*")),
			IPAllowlist:       splitAndTrim(getEnv("IP_ALLOWLIST", "")),
			RequireAPIKey:     getEnvBool("REQUIRE_API_KEY", false),
			APIKeys:           splitAndTrim(getEnv("API_KEYS", "")),
			RequestsPerSecond: getEnvFloat("REQUESTS_PER_SECOND", 20),
			BurstSize:         getEnvInt("BURST_SIZE", 40),
		},
		Tracker: TrackerConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           getEnvDuration("TRACKER_TTL", time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "console")),
		},
	}
}

// ReadToken returns the trimmed contents of the token file.
func ReadToken(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &MissingTokenError{File: path}
		}
		return "", fmt.Errorf("read token file %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// MissingTokenError is the one startup-fatal condition.
type MissingTokenError struct {
	File string
}

func (e *MissingTokenError) Error() string {
	return fmt.Sprintf("Put your Telegram bot token to '%s' file", e.File)
}

func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return &MissingTokenError{File: c.Telegram.TokenFile}
	}
	if c.Pipeline.MaxConcurrent < 0 {
		return fmt.Errorf("MAX_CONCURRENT_PIPELINES must not be negative")
	}
	if c.Pipeline.MaxConcurrent > 0 && c.Pipeline.QueueCapacity <= 0 {
		return fmt.Errorf("PIPELINE_QUEUE_CAPACITY must be positive when MAX_CONCURRENT_PIPELINES is set")
	}
	if c.Tools.FetchTool == "" || c.Tools.ProbeTool == "" {
		return fmt.Errorf("FETCH_TOOL and PROBE_TOOL are required: %w", models.ErrMissingTool)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		pt := strings.TrimSpace(p)
		if pt != "" {
			res = append(res, pt)
		}
	}
	return res
}
