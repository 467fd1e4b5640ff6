package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Interleave InterleaveConfig `mapstructure:"interleave"`
	Digest     DigestConfig     `mapstructure:"digest"`
	Rewards    RewardConfig     `mapstructure:"rewards"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Mail       MailConfig       `mapstructure:"mail"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	BaseURL      string        `mapstructure:"base_url"`
	WebAddress   string        `mapstructure:"web_address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		FeedbackEvents   string `mapstructure:"feedback_events"`
		DigestDispatched string `mapstructure:"digest_dispatched"`
	} `mapstructure:"topics"`
}

// InterleaveConfig parameterises the interleaving scheduler.
type InterleaveConfig struct {
	RecommendationsPerUser int `mapstructure:"recommendations_per_user"`
	TopicsPerBatch         int `mapstructure:"topics_per_batch"`
	SystemsPerUser         int `mapstructure:"systems_per_user"`
	UsersPerBatch          int `mapstructure:"users_per_batch"`
}

// DigestConfig parameterises the digest dispatcher. Weekday uses Go's
// time.Weekday numbering (0 = Sunday), so the default 5 is Friday.
type DigestConfig struct {
	ArticlesPerDate int           `mapstructure:"articles_per_date"`
	Weekday         int           `mapstructure:"weekday"`
	Subject         string        `mapstructure:"subject"`
	MailTimeout     time.Duration `mapstructure:"mail_timeout"`
}

// RewardConfig holds the scalar weights of the reward aggregator.
type RewardConfig struct {
	ClickedEmailWeight float64            `mapstructure:"clicked_email_weight"`
	ClickedWebWeight   float64            `mapstructure:"clicked_web_weight"`
	SavedWeight        float64            `mapstructure:"saved_weight"`
	StateWeights       map[string]float64 `mapstructure:"state_weights"`
}

// IngestionConfig holds the validation caps of the ingestion surface.
type IngestionConfig struct {
	MaxUsersPerRecommendation int `mapstructure:"max_users_per_recommendation"`
	MaxRecommendationsPerUser int `mapstructure:"max_recommendations_per_user"`
	MaxExplanationLen         int `mapstructure:"max_explanation_len"`
	MaxTopicLength            int `mapstructure:"max_topic_length"`
}

type AuthConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Window  time.Duration `mapstructure:"window"`
}

// MailConfig configures the SES sender. With empty credentials the digest
// dispatcher falls back to a log-only sender (useful in development).
type MailConfig struct {
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	Region      string `mapstructure:"region"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("server.web_address", "http://localhost:8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.feedback_events", "feedback.events")
	viper.SetDefault("kafka.topics.digest_dispatched", "digest.dispatched")

	// Interleaving defaults
	viper.SetDefault("interleave.recommendations_per_user", 10)
	viper.SetDefault("interleave.topics_per_batch", 3)
	viper.SetDefault("interleave.systems_per_user", 3)
	viper.SetDefault("interleave.users_per_batch", 1000)

	// Digest defaults
	viper.SetDefault("digest.articles_per_date", 3)
	viper.SetDefault("digest.weekday", 5)
	viper.SetDefault("digest.subject", "ArXiv Digest")
	viper.SetDefault("digest.mail_timeout", "10s")

	// Reward defaults
	viper.SetDefault("rewards.clicked_email_weight", 1.0)
	viper.SetDefault("rewards.clicked_web_weight", 1.0)
	viper.SetDefault("rewards.saved_weight", 1.0)
	viper.SetDefault("rewards.state_weights", map[string]float64{
		"USER_ADDED":                  1.0,
		"SYSTEM_RECOMMENDED_ACCEPTED": 1.0,
		"USER_REJECTED":               0.0,
		"SYSTEM_RECOMMENDED_REJECTED": 0.0,
		"EXPIRED":                     0.0,
		"REFRESHED":                   0.0,
	})

	// Ingestion defaults
	viper.SetDefault("ingestion.max_users_per_recommendation", 100)
	viper.SetDefault("ingestion.max_recommendations_per_user", 10)
	viper.SetDefault("ingestion.max_explanation_len", 400)
	viper.SetDefault("ingestion.max_topic_length", 50)

	// Auth defaults
	viper.SetDefault("auth.rate_limit.default", 1000)
	viper.SetDefault("auth.rate_limit.window", "1h")

	// Mail defaults
	viper.SetDefault("mail.from_address", "digest@localhost")
	viper.SetDefault("mail.from_name", "ArXiv Digest")
	viper.SetDefault("mail.region", "us-east-1")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
