package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Scan     ScanConfig     `mapstructure:"scan"     validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"            validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains the settings for owner bearer tokens.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// ScanConfig controls scan submission limits and the timeout reaper.
type ScanConfig struct {
	// JobTimeout is how long a job may stay pending or processing before the
	// reaper fails it.
	JobTimeout      time.Duration `mapstructure:"job_timeout"      validate:"required,gt=0"`
	ReaperSchedule  string        `mapstructure:"reaper_schedule"  validate:"required"`
	ReaperBatchSize int           `mapstructure:"reaper_batch_size" validate:"gt=0"`
	MaxImages       int           `mapstructure:"max_images"       validate:"gt=0,lte=50"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// WorkerConfig selects how recognition jobs are dispatched.
// In "http" mode jobs are POSTed to URL and the worker calls back with Secret.
// In "gemini" mode recognition runs in-process.
type WorkerConfig struct {
	Mode            string        `mapstructure:"mode"              validate:"required,oneof=http gemini"`
	URL             string        `mapstructure:"url"               validate:"required_if=Mode http,omitempty,url"`
	CallbackBaseURL string        `mapstructure:"callback_base_url" validate:"required_if=Mode http,omitempty,url"`
	Secret          string        `mapstructure:"secret"            validate:"required,min=16"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   validate:"gt=0"`
}

// StorageConfig selects where uploaded page images are kept.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"         validate:"required,oneof=local gcs"`
	Dir           string `mapstructure:"dir"             validate:"required_if=Backend local"`
	Bucket        string `mapstructure:"bucket"          validate:"required_if=Backend gcs"`
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
}

// LLMConfig contains the Gemini settings used by the in-process recognizer.
type LLMConfig struct {
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	ModelName      string        `mapstructure:"model_name"      validate:"required"`
	MaxRetries     int           `mapstructure:"max_retries"     validate:"gte=0,lte=10"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// TaskConfig contains settings for the background task runner.
type TaskConfig struct {
	WorkerCount  int           `mapstructure:"worker_count"   validate:"required,gt=0"`
	QueueSize    int           `mapstructure:"queue_size"     validate:"required,gt=0"`
	StuckTaskAge time.Duration `mapstructure:"stuck_task_age" validate:"required,gt=0"`
}
