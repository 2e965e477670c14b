// Package config loads runtime configuration from a YAML file with
// environment-variable overrides, using viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Databases map[string]DatabaseConfig `mapstructure:"databases"`
	Redis     RedisConfig               `mapstructure:"redis"`
	JWT       JWTConfig                 `mapstructure:"jwt"`
	AI        AIConfig                  `mapstructure:"ai"`
}

type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	Mode        string   `mapstructure:"mode"` // debug / release
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"` // sqlite file path or full DSN
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expire time.Duration `mapstructure:"expire"`
}

// AIConfig selects the active provider and carries per-provider settings.
type AIConfig struct {
	Provider  string                    `mapstructure:"provider"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

type ProviderConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// Load reads configuration from the provided directory (defaults to ".").
// Missing files are tolerated; defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "."
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.AutomaticEnv()
	v.SetEnvPrefix("CLARICHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVariables(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.address", "CLARICHAT_ADDRESS")
	v.BindEnv("server.mode", "CLARICHAT_MODE")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("ai.provider", "CLARICHAT_PROVIDER")
	v.BindEnv("ai.providers.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("ai.providers.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("ai.providers.claude.api_key", "CLAUDE_API_KEY")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8090")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})

	v.SetDefault("databases.sqlite3.dsn", "./data/clarichat.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "dev-secret-change-me")
	v.SetDefault("jwt.expire", "168h")

	// Gemini through its OpenAI-compatible endpoint is the default provider.
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.providers.openai.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("ai.providers.openai.model", "gemini-2.0-flash")
	v.SetDefault("ai.providers.openai.max_tokens", 800)
	v.SetDefault("ai.providers.openai.temperature", 0.2)
}
