package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	DBUser      string `yaml:"db_user"`
	DBPassword  string `yaml:"db_password"`
	DBHost      string `yaml:"db_host"`
	DBPort      string `yaml:"db_port"`
	DBName      string `yaml:"db_name"`
	DBMinConns  int    `yaml:"db_min_conns"`
	DBMaxConns  int    `yaml:"db_max_conns"`

	JWTSecret      string `yaml:"jwt_secret_key"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`

	// vLLM server
	VLLMBaseURL       string `yaml:"vllm_base_url"`
	VLLMModel         string `yaml:"vllm_model"`
	LLMTimeoutSeconds int    `yaml:"llm_timeout_seconds"`
	PromptsFile       string `yaml:"prompts_file"`

	// BCRP statistics API
	BCRPBaseURL         string `yaml:"bcrp_base_url"`
	BCRPDefaultSeries   string `yaml:"bcrp_default_series"`
	BCRPCacheTTLSeconds int    `yaml:"bcrp_cache_ttl_seconds"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	MaxUploadMB   int    `yaml:"max_upload_mb"`
	CORSOrigins   string `yaml:"cors_origins"`
	HTTPPort      string `yaml:"http_port"`
	LogDir        string `yaml:"log_dir"`
	HistoryWindow int    `yaml:"history_window"`
}

func defaults() Config {
	return Config{
		DBHost:              "localhost",
		DBPort:              "5432",
		DBName:              "velvet_rag",
		DBMinConns:          5,
		DBMaxConns:          20,
		JWTExpiryHours:      24 * 7,
		VLLMBaseURL:         "http://localhost:8000",
		VLLMModel:           "Qwen/Qwen2.5-7B-Instruct",
		LLMTimeoutSeconds:   300,
		BCRPBaseURL:         "https://estadisticas.bcrp.gob.pe/estadisticas/series/api",
		BCRPDefaultSeries:   "PN01288PM",
		BCRPCacheTTLSeconds: 3600,
		RedisAddr:           "localhost:6379",
		MinioEndpoint:       "localhost:9000",
		MinioBucket:         "velvet-uploads",
		MaxUploadMB:         25,
		CORSOrigins:         "http://localhost:3000",
		HTTPPort:            "8000",
		LogDir:              "./logs",
		HistoryWindow:       10,
	}
}

// LoadConfig reads .env (if present), then the yaml file named by
// VELVET_CONFIG (if set), then lets environment variables override both.
func LoadConfig() (Config, error) {
	// a missing .env is fine, the process env may already be populated
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("VELVET_CONFIG"); path != "" {
		if err := loadFile(filepath.Clean(path), &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.DBMinConns = getEnvInt("DB_MIN_CONNS", cfg.DBMinConns)
	cfg.DBMaxConns = getEnvInt("DB_MAX_CONNS", cfg.DBMaxConns)

	cfg.JWTSecret = getEnv("JWT_SECRET_KEY", cfg.JWTSecret)
	cfg.JWTExpiryHours = getEnvInt("JWT_EXPIRY_HOURS", cfg.JWTExpiryHours)

	cfg.VLLMBaseURL = getEnv("VLLM_BASE_URL", cfg.VLLMBaseURL)
	cfg.VLLMModel = getEnv("VLLM_MODEL", cfg.VLLMModel)
	cfg.LLMTimeoutSeconds = getEnvInt("LLM_TIMEOUT_SECONDS", cfg.LLMTimeoutSeconds)
	cfg.PromptsFile = getEnv("PROMPTS_FILE", cfg.PromptsFile)

	cfg.BCRPBaseURL = getEnv("BCRP_BASE_URL", cfg.BCRPBaseURL)
	cfg.BCRPDefaultSeries = getEnv("BCRP_DEFAULT_SERIES", cfg.BCRPDefaultSeries)
	cfg.BCRPCacheTTLSeconds = getEnvInt("BCRP_CACHE_TTL_SECONDS", cfg.BCRPCacheTTLSeconds)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)

	cfg.MinioEndpoint = getEnv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getEnv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getEnv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getEnv("MINIO_USE_SSL", strconv.FormatBool(cfg.MinioUseSSL)) == "true"

	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.CORSOrigins = getEnv("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogDir = getEnv("LOG_DIR", cfg.LogDir)
	cfg.HistoryWindow = getEnvInt("HISTORY_WINDOW", cfg.HistoryWindow)
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var problems []string
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET_KEY is required")
	}
	if c.DBMinConns <= 0 || c.DBMaxConns <= 0 {
		problems = append(problems, "database pool sizes must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		problems = append(problems, "DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}
	if c.MaxUploadMB <= 0 {
		problems = append(problems, "MAX_UPLOAD_MB must be positive")
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// DSN returns DATABASE_URL or builds one from the DB_* parts.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c Config) BCRPCacheTTL() time.Duration {
	return time.Duration(c.BCRPCacheTTLSeconds) * time.Second
}

func (c Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryHours) * time.Hour
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Origins splits CORS_ORIGINS on commas.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
