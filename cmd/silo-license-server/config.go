package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EternisAI/silo-license/internal/api/http"
	"github.com/EternisAI/silo-license/internal/db"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

const redacted = "[REDACTED]"

type Config struct {
	Log     LogConfig       `mapstructure:"log"`
	Http    http.Config     `mapstructure:"http"`
	Store   StoreConfig     `mapstructure:"store"`
	License licenses.Config `mapstructure:"license"`
	Receipt receipt.Config  `mapstructure:"receipt"`
	Redis   RedisConfig     `mapstructure:"redis"`
}

type StoreConfig struct {
	Driver  string        `mapstructure:"driver"`
	DB      db.Config     `mapstructure:"db"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Url string `mapstructure:"url"`
}

var config Config

func ParseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", LOG_LEVEL_INFO)
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.admin_api_key", "")
	v.SetDefault("http.admin_api_key_hash", "")
	v.SetDefault("http.cors_origins", "")
	v.SetDefault("http.rate_limit.requests", 60)
	v.SetDefault("http.rate_limit.period", "1m")
	v.SetDefault("store.driver", StoreDriverMemory)
	v.SetDefault("store.db.url", "")
	v.SetDefault("store.db.schema", "")
	v.SetDefault("store.db.max_conns", 10)
	v.SetDefault("store.sqlite.path", "data/licenses.db")
	v.SetDefault("store.timeout", licenses.DefaultStoreTimeout)
	v.SetDefault("license.key_prefix", licenses.DefaultKeyPrefix)
	v.SetDefault("license.default_duration_months", licenses.DefaultDurationMonths)
	v.SetDefault("license.default_max_activations", licenses.DefaultMaxActivations)
	v.SetDefault("receipt.secret", "")
	v.SetDefault("receipt.issuer", receipt.DefaultIssuer)
	v.SetDefault("receipt.ttl", receipt.DefaultTTL)
	v.SetDefault("redis.url", "")
}

// loadConfig reads application.yaml and the environment into a Config.
// Nested keys map to upper-case env vars with "." replaced by "_", so
// store.db.url is read from STORE_DB_URL.
func loadConfig(v *viper.Viper) (Config, error) {
	setDefaults(v)

	v.SetConfigName("application")
	v.AddConfigPath(".")
	v.AddConfigPath("./cmd/silo-license-server")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.License.StoreTimeout <= 0 {
		cfg.License.StoreTimeout = cfg.Store.Timeout
	}
	return cfg, nil
}

// redactedJSON renders cfg for the debug dump with every secret masked.
func redactedJSON(cfg Config) ([]byte, error) {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.Http.AdminAPIKey)
	mask(&cfg.Http.AdminAPIKeyHash)
	mask(&cfg.Receipt.Secret)
	mask(&cfg.Store.DB.Url)
	mask(&cfg.Redis.Url)
	return json.MarshalIndent(cfg, "", "  ")
}

func InitConfig() {
	var err error

	_ = godotenv.Load()

	config, err = loadConfig(viper.GetViper())
	if err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := redactedJSON(config)
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
