package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name, e.g.
// PAGESCAN_DATABASE_URL for database.url.
const EnvPrefix = "PAGESCAN"

// ErrGeminiKeyRequired is returned when the in-process recognizer is selected
// without an API key.
var ErrGeminiKeyRequired = errors.New("llm.gemini_api_key is required when worker.mode is gemini")

// keys without defaults still need binding so AutomaticEnv can see them on Unmarshal.
var boundKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"worker.url",
	"worker.callback_base_url",
	"worker.secret",
	"storage.dir",
	"storage.bucket",
	"storage.public_base_url",
	"llm.gemini_api_key",
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from config files.
func Load() (*Config, error) {
	return load("")
}

// LoadFromFile is Load with an explicit config file path.
func LoadFromFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and the rules that span groups.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if cfg.Worker.Mode == "gemini" && cfg.LLM.GeminiAPIKey == "" {
		return fmt.Errorf("configuration validation failed: %w", ErrGeminiKeyRequired)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("scan.job_timeout", 10*time.Minute)
	v.SetDefault("scan.reaper_schedule", "@every 1m")
	v.SetDefault("scan.reaper_batch_size", 100)
	v.SetDefault("scan.max_images", 10)
	v.SetDefault("scan.max_upload_bytes", int64(25<<20))

	v.SetDefault("worker.mode", "http")
	v.SetDefault("worker.request_timeout", 30*time.Second)

	v.SetDefault("storage.backend", "local")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.request_timeout", 60*time.Second)

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.stuck_task_age", 30*time.Minute)
}
