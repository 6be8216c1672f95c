// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Gamification GamificationConfig `mapstructure:"gamification"`
	Leaderboard  LeaderboardConfig  `mapstructure:"leaderboard"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	// UserHeader is the trusted header the upstream auth gateway sets with the session user id.
	UserHeader string `mapstructure:"user_header"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	RunMigrations   bool   `mapstructure:"run_migrations"`
}

// DSN returns the libpq-style connection string used by GORM.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the postgres:// URL used by golang-migrate.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GamificationConfig contains the XP, level, streak and reward rules.
type GamificationConfig struct {
	XPPerLevel            int64            `mapstructure:"xp_per_level"`
	MaxLevel              int              `mapstructure:"max_level"`
	MaxStreakDays         int              `mapstructure:"max_streak_days"`
	StreakBonusThreshold  int              `mapstructure:"streak_bonus_threshold"`
	StreakBonusMultiplier float64          `mapstructure:"streak_bonus_multiplier"`
	RewardCrystalsPerXP   float64          `mapstructure:"reward_crystals_per_xp"`
	DailyLoginXP          int64            `mapstructure:"daily_login_xp"`
	QuizXP                int64            `mapstructure:"quiz_xp"`
	MaxAwardXP            int64            `mapstructure:"max_award_xp"` // ceiling on a single award's base amount
	AllowQuizRetakeCredit bool             `mapstructure:"allow_quiz_retake_credit"`
	XPRewards             map[string]int64 `mapstructure:"xp_rewards"` // fixed XP per task/lesson/module/course
	Timezone              string           `mapstructure:"timezone"`
	RankTablePath         string           `mapstructure:"rank_table_path"`
}

// GetLocation returns the timezone used for calendar-day and period boundaries.
func (c *GamificationConfig) GetLocation() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// LeaderboardConfig contains leaderboard pagination and caching settings.
type LeaderboardConfig struct {
	UpdateInterval  time.Duration `mapstructure:"update_interval"`
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
}

// SchedulerConfig contains the leaderboard cache warming schedule.
type SchedulerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	WarmSchedule string `mapstructure:"warm_schedule"` // cron expression, e.g. "@every 5m"
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// setDefaults registers the default values for every optional setting.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.user_header", "X-User-ID")

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.postgres.run_migrations", true)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("gamification.xp_per_level", 100)
	v.SetDefault("gamification.max_level", 100)
	v.SetDefault("gamification.max_streak_days", 365)
	v.SetDefault("gamification.streak_bonus_threshold", 3)
	v.SetDefault("gamification.streak_bonus_multiplier", 1.5)
	v.SetDefault("gamification.reward_crystals_per_xp", 0.1)
	v.SetDefault("gamification.daily_login_xp", 10)
	v.SetDefault("gamification.quiz_xp", 50)
	v.SetDefault("gamification.max_award_xp", 10000)
	v.SetDefault("gamification.xp_rewards", map[string]int64{
		"task":   20,
		"lesson": 50,
		"module": 150,
		"course": 500,
	})
	v.SetDefault("gamification.timezone", "UTC")

	v.SetDefault("leaderboard.update_interval", 5*time.Minute)
	v.SetDefault("leaderboard.default_page_size", 20)
	v.SetDefault("leaderboard.max_page_size", 100)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.warm_schedule", "@every 5m")

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/lms-gamification/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")
	_ = v.BindEnv("server.user_header", "SERVER_USER_HEADER")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.postgres.run_migrations", "POSTGRES_RUN_MIGRATIONS")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Gamification rules
	_ = v.BindEnv("gamification.xp_per_level", "XP_PER_LEVEL")
	_ = v.BindEnv("gamification.max_level", "MAX_LEVEL")
	_ = v.BindEnv("gamification.max_streak_days", "MAX_STREAK_DAYS")
	_ = v.BindEnv("gamification.streak_bonus_threshold", "STREAK_BONUS_THRESHOLD")
	_ = v.BindEnv("gamification.streak_bonus_multiplier", "STREAK_BONUS_MULTIPLIER")
	_ = v.BindEnv("gamification.reward_crystals_per_xp", "REWARD_CRYSTALS_PER_XP")
	_ = v.BindEnv("gamification.max_award_xp", "MAX_AWARD_XP")
	_ = v.BindEnv("gamification.timezone", "GAMIFICATION_TIMEZONE")
	_ = v.BindEnv("gamification.rank_table_path", "RANK_TABLE_PATH")

	// Leaderboard configuration
	_ = v.BindEnv("leaderboard.update_interval", "LEADERBOARD_UPDATE_INTERVAL")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.warm_schedule", "SCHEDULER_WARM_SCHEDULE")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}

	g := c.Gamification
	if g.XPPerLevel <= 0 {
		return fmt.Errorf("gamification.xp_per_level must be positive")
	}
	if g.MaxLevel < 1 {
		return fmt.Errorf("gamification.max_level must be at least 1")
	}
	if g.MaxStreakDays < 1 {
		return fmt.Errorf("gamification.max_streak_days must be at least 1")
	}
	if g.StreakBonusMultiplier < 1 {
		return fmt.Errorf("gamification.streak_bonus_multiplier must be >= 1")
	}
	if g.RewardCrystalsPerXP < 0 {
		return fmt.Errorf("gamification.reward_crystals_per_xp must not be negative")
	}
	if g.MaxAwardXP <= 0 {
		return fmt.Errorf("gamification.max_award_xp must be positive")
	}
	if _, err := g.GetLocation(); err != nil {
		return fmt.Errorf("invalid gamification.timezone %q: %w", g.Timezone, err)
	}

	l := c.Leaderboard
	if l.UpdateInterval <= 0 {
		return fmt.Errorf("leaderboard.update_interval must be positive")
	}
	if l.DefaultPageSize < 1 || l.MaxPageSize < l.DefaultPageSize {
		return fmt.Errorf("leaderboard page sizes must satisfy 1 <= default_page_size <= max_page_size")
	}

	return nil
}
