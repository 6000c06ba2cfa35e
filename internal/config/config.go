package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Models         ModelConfig          `mapstructure:"models"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig configures the recommendation cache. An empty URL disables it.
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	DB         int           `mapstructure:"db"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Neo4jConfig configures the similarity graph export. An empty URL disables it.
type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// KafkaConfig configures event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		UserInteractions string `mapstructure:"user_interactions"`
		ModelTraining    string `mapstructure:"model_training"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecommendationConfig struct {
	Collaborative CollaborativeConfig `mapstructure:"collaborative"`
	Content       ContentConfig       `mapstructure:"content"`
	Retrain       RetrainConfig       `mapstructure:"retrain"`
	Caching       CachingConfig       `mapstructure:"caching"`
	Graph         GraphConfig         `mapstructure:"graph"`
	DefaultLimit  int                 `mapstructure:"default_limit"`
	MaxLimit      int                 `mapstructure:"max_limit"`
}

type CollaborativeConfig struct {
	NComponents     int     `mapstructure:"n_components"`
	MinInteractions float64 `mapstructure:"min_interactions"`
	Neighbours      int     `mapstructure:"neighbours"`
}

type ContentConfig struct {
	MaxFeatures int `mapstructure:"max_features"`
}

// Retrain modes. In background mode a stale read answers from the current
// models and signals the ModelTrainer. In inline mode the read retrains
// synchronously before answering and the caller absorbs the latency.
const (
	RetrainModeBackground = "background"
	RetrainModeInline     = "inline"
)

type RetrainConfig struct {
	IntervalHours      int           `mapstructure:"interval_hours"`
	MinNewInteractions int64         `mapstructure:"min_new_interactions"`
	Mode               string        `mapstructure:"mode"`
	CheckInterval      time.Duration `mapstructure:"check_interval"`
}

func (r RetrainConfig) Interval() time.Duration {
	return time.Duration(r.IntervalHours) * time.Hour
}

type CachingConfig struct {
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
}

type GraphConfig struct {
	EdgesPerNode int `mapstructure:"edges_per_node"`
}

type ModelConfig struct {
	Dir string `mapstructure:"dir"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per client over a sliding window. It needs
// Redis; zero requests disables it.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
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

	// Database defaults
	viper.SetDefault("database.url", "postgres://localhost:5432/shopwise")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Neo4j defaults
	viper.SetDefault("neo4j.url", "")
	viper.SetDefault("neo4j.username", "neo4j")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.topics.user_interactions", "user-interactions")
	viper.SetDefault("kafka.topics.model_training", "model-training")

	// Auth defaults
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.token_ttl", "24h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Algorithm defaults
	viper.SetDefault("recommendation.collaborative.n_components", 50)
	viper.SetDefault("recommendation.collaborative.min_interactions", 5)
	viper.SetDefault("recommendation.collaborative.neighbours", 10)
	viper.SetDefault("recommendation.content.max_features", 1000)
	viper.SetDefault("recommendation.default_limit", 10)
	viper.SetDefault("recommendation.max_limit", 100)

	// Retraining defaults
	viper.SetDefault("recommendation.retrain.interval_hours", 24)
	viper.SetDefault("recommendation.retrain.min_new_interactions", 100)
	// Reads never block on training by default; set "inline" for synchronous retraining
	viper.SetDefault("recommendation.retrain.mode", RetrainModeBackground)
	viper.SetDefault("recommendation.retrain.check_interval", "15m")

	// Caching defaults
	viper.SetDefault("recommendation.caching.recommendations_ttl", "15m")

	// Graph export defaults
	viper.SetDefault("recommendation.graph.edges_per_node", 10)

	// Model defaults
	viper.SetDefault("models.dir", "./models")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
	viper.SetDefault("security.rate_limit.requests", 1000)
	viper.SetDefault("security.rate_limit.window", "1m")
}
