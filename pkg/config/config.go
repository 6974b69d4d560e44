package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Generation GenerationConfig
	Tokens     TokensConfig
	Payments   PaymentsConfig
	Documents  DocumentsConfig
	Progress   ProgressConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GenerationConfig governs the generation job runner.
type GenerationConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	StageDelay        time.Duration
	StatusCacheTTL    time.Duration
}

// TokensConfig defines token ledger behaviour, including per-grade generation costs.
type TokensConfig struct {
	CostPass        int
	CostMerit       int
	CostDistinction int
	ResetInterval   time.Duration
	BalanceCacheTTL time.Duration
}

// PaymentsConfig governs manual bank-transfer payment matching.
type PaymentsConfig struct {
	ExpiryWindow  time.Duration
	SweepInterval time.Duration
}

// DocumentsConfig controls export storage for generated coursework.
type DocumentsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// ProgressConfig tunes the websocket progress channel.
type ProgressConfig struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	OutboundBuffer int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Generation = GenerationConfig{
		WorkerConcurrency: v.GetInt("GENERATION_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("GENERATION_WORKER_RETRIES"),
		StageDelay:        parseDuration(v.GetString("GENERATION_STAGE_DELAY"), 0),
		StatusCacheTTL:    parseDuration(v.GetString("GENERATION_STATUS_CACHE_TTL"), 5*time.Second),
	}

	cfg.Tokens = TokensConfig{
		CostPass:        v.GetInt("TOKEN_COST_PASS"),
		CostMerit:       v.GetInt("TOKEN_COST_MERIT"),
		CostDistinction: v.GetInt("TOKEN_COST_DISTINCTION"),
		ResetInterval:   parseDuration(v.GetString("TOKEN_RESET_INTERVAL"), time.Hour),
		BalanceCacheTTL: parseDuration(v.GetString("TOKEN_BALANCE_CACHE_TTL"), time.Minute),
	}

	cfg.Payments = PaymentsConfig{
		ExpiryWindow:  parseDuration(v.GetString("PAYMENT_EXPIRY_WINDOW"), 2*time.Hour),
		SweepInterval: parseDuration(v.GetString("PAYMENT_SWEEP_INTERVAL"), 5*time.Minute),
	}

	cfg.Documents = DocumentsConfig{
		StorageDir:      v.GetString("DOCUMENTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Progress = ProgressConfig{
		WriteTimeout:   parseDuration(v.GetString("PROGRESS_WRITE_TIMEOUT"), 10*time.Second),
		PongTimeout:    parseDuration(v.GetString("PROGRESS_PONG_TIMEOUT"), 60*time.Second),
		PingInterval:   parseDuration(v.GetString("PROGRESS_PING_INTERVAL"), 25*time.Second),
		OutboundBuffer: v.GetInt("PROGRESS_OUTBOUND_BUFFER"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "gradeforge")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GENERATION_WORKER_CONCURRENCY", 2)
	v.SetDefault("GENERATION_WORKER_RETRIES", 1)
	v.SetDefault("GENERATION_STAGE_DELAY", "0s")
	v.SetDefault("GENERATION_STATUS_CACHE_TTL", "5s")

	v.SetDefault("TOKEN_COST_PASS", 10)
	v.SetDefault("TOKEN_COST_MERIT", 15)
	v.SetDefault("TOKEN_COST_DISTINCTION", 20)
	v.SetDefault("TOKEN_RESET_INTERVAL", "1h")
	v.SetDefault("TOKEN_BALANCE_CACHE_TTL", "1m")

	v.SetDefault("PAYMENT_EXPIRY_WINDOW", "2h")
	v.SetDefault("PAYMENT_SWEEP_INTERVAL", "5m")

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./documents")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "24h")

	v.SetDefault("PROGRESS_WRITE_TIMEOUT", "10s")
	v.SetDefault("PROGRESS_PONG_TIMEOUT", "60s")
	v.SetDefault("PROGRESS_PING_INTERVAL", "25s")
	v.SetDefault("PROGRESS_OUTBOUND_BUFFER", 16)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
