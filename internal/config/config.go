package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Text       TextConfig       `mapstructure:"text"`
	Image      ImageConfig      `mapstructure:"image"`
	Generation GenerationConfig `mapstructure:"generation"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the gorm driver and its connection settings.
// Driver is one of "sqlite", "sqlite_pure", "postgres" or "mysql".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogSQL          bool          `mapstructure:"log_sql"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" || c.Driver == "mysql" {
		return c.URL
	}
	if c.URL != "" {
		return c.URL
	}
	return c.Path
}

// StorageConfig selects where generated images go. Type "local" writes under Dir.
type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Dir       string `mapstructure:"dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

// TextConfig configures the text generation backend.
// Provider "http" uses the OpenAI-compatible REST client, "eino" the eino chat model.
type TextConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

type ImageConfig struct {
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

type GenerationConfig struct {
	RateLimitDelay      time.Duration `mapstructure:"rate_limit_delay"`
	ImageRateLimitDelay time.Duration `mapstructure:"image_rate_limit_delay"`
}

// CatalogConfig points at the template directory. An empty Dir uses the built-in templates.
type CatalogConfig struct {
	Dir   string   `mapstructure:"dir"`
	Files []string `mapstructure:"files"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets come from the environment only
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("storage.public_url", "S3_PUBLIC_URL")
	v.BindEnv("text.api_key", "OPENAI_API_KEY")
	v.BindEnv("text.base_url", "OPENAI_BASE_URL")
	v.BindEnv("text.model", "TEXT_MODEL")
	v.BindEnv("image.api_key", "IMAGE_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("image.base_url", "IMAGE_BASE_URL", "OPENAI_BASE_URL")
	v.BindEnv("image.model", "IMAGE_MODEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/councilgen.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.type", "s3compatible")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "councilgen")
	v.SetDefault("storage.dir", "./data/media")
	v.SetDefault("storage.prefix", "generated")

	v.SetDefault("text.provider", "http")
	v.SetDefault("text.model", "gpt-4o-mini")
	v.SetDefault("text.base_url", "https://api.openai.com/v1")
	v.SetDefault("text.max_tokens", 4096)
	v.SetDefault("text.timeout", 120*time.Second)
	v.SetDefault("text.retry_count", 3)

	v.SetDefault("image.model", "dall-e-3")
	v.SetDefault("image.base_url", "https://api.openai.com/v1")
	v.SetDefault("image.timeout", 180*time.Second)
	v.SetDefault("image.retry_count", 3)

	v.SetDefault("generation.rate_limit_delay", 0)
	v.SetDefault("generation.image_rate_limit_delay", time.Second)

	v.SetDefault("catalog.dir", "")
	v.SetDefault("catalog.files", []string{
		"service-pages",
		"guide-pages",
		"directory-entries",
		"news-articles",
		"homepage",
	})
}
