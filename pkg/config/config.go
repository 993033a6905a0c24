package config

import (
	"errors"
	"io/fs"
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
	Cache      SummaryCacheConfig
	Scheduling SchedulingConfig
	Behavior   BehaviorConfig
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
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig controls zap output and the optional rotating file sink.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SummaryCacheConfig governs caching of attendance summaries in Redis.
type SummaryCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// SchedulingConfig tunes conflict checking and lesson generation.
type SchedulingConfig struct {
	// GenerationMaxDays bounds the date range a single generation call may expand.
	GenerationMaxDays int
	// BlockOnWarning makes warning-severity conflicts block schedule creation too.
	BlockOnWarning bool
	// GenerationWorkers sizes the background generation queue.
	GenerationWorkers int
	GenerationRetries int
}

// Behavior point bounds enforced by the behavior_records check constraint.
const (
	BehaviorPointsFloor   = -10
	BehaviorPointsCeiling = 10
)

// BehaviorConfig bounds individual behavior point entries. It may only narrow the stored range.
type BehaviorConfig struct {
	MinPoints int
	MaxPoints int
}

func clampBehavior(cfg BehaviorConfig) BehaviorConfig {
	if cfg.MinPoints < BehaviorPointsFloor || cfg.MinPoints > BehaviorPointsCeiling {
		cfg.MinPoints = BehaviorPointsFloor
	}
	if cfg.MaxPoints > BehaviorPointsCeiling || cfg.MaxPoints < BehaviorPointsFloor {
		cfg.MaxPoints = BehaviorPointsCeiling
	}
	if cfg.MinPoints > cfg.MaxPoints {
		cfg.MinPoints, cfg.MaxPoints = BehaviorPointsFloor, BehaviorPointsCeiling
	}
	return cfg
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:      v.GetString("LOG_LEVEL"),
		Format:     v.GetString("LOG_FORMAT"),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	cfg.Cache = SummaryCacheConfig{
		Enabled: v.GetBool("ENABLE_SUMMARY_CACHE"),
		TTL:     parseDuration(v.GetString("SUMMARY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Scheduling = SchedulingConfig{
		GenerationMaxDays: v.GetInt("GENERATION_MAX_DAYS"),
		BlockOnWarning:    v.GetBool("CONFLICT_BLOCK_ON_WARNING"),
		GenerationWorkers: v.GetInt("GENERATION_WORKERS"),
		GenerationRetries: v.GetInt("GENERATION_RETRIES"),
	}

	cfg.Behavior = clampBehavior(BehaviorConfig{
		MinPoints: v.GetInt("BEHAVIOR_MIN_POINTS"),
		MaxPoints: v.GetInt("BEHAVIOR_MAX_POINTS"),
	})

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_schedule")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)

	v.SetDefault("ENABLE_SUMMARY_CACHE", false)
	v.SetDefault("SUMMARY_CACHE_TTL", "5m")

	v.SetDefault("GENERATION_MAX_DAYS", 366)
	v.SetDefault("CONFLICT_BLOCK_ON_WARNING", false)
	v.SetDefault("GENERATION_WORKERS", 2)
	v.SetDefault("GENERATION_RETRIES", 3)

	v.SetDefault("BEHAVIOR_MIN_POINTS", BehaviorPointsFloor)
	v.SetDefault("BEHAVIOR_MAX_POINTS", BehaviorPointsCeiling)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
