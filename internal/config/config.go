package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	AWS      AWSConfig      `yaml:"aws" mapstructure:"aws"`
	S3       S3Config       `yaml:"s3" mapstructure:"s3"`
	Textract TextractConfig `yaml:"textract" mapstructure:"textract"`
	Text     TextConfig     `yaml:"text" mapstructure:"text"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Assist   AssistConfig   `yaml:"assist" mapstructure:"assist"`
	Worker   WorkerConfig   `yaml:"worker" mapstructure:"worker"`
	Pricing  PricingConfig  `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// AWSConfig holds shared AWS client settings. Empty keys fall back to the
// SDK's default credential chain.
type AWSConfig struct {
	Region          string `yaml:"region" mapstructure:"region"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`

	RetryMaxAttempts int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryBackoffMS   int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// S3Config locates uploaded documents and the OCR text cache.
type S3Config struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	DisableOCRCache bool   `yaml:"disable_ocr_cache" mapstructure:"disable_ocr_cache"`
}

// TextractConfig controls OCR job polling.
type TextractConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	TimeoutSecs    int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PollInterval returns the poll interval as a duration.
func (c TextractConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Timeout returns the polling ceiling as a duration.
func (c TextractConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// TextConfig configures text acquisition.
type TextConfig struct {
	Parser        string `yaml:"parser" mapstructure:"parser"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PageLimit     int    `yaml:"page_limit" mapstructure:"page_limit"`
	OCRThreshold  int    `yaml:"ocr_threshold" mapstructure:"ocr_threshold"`
	MinOCRChars   int    `yaml:"min_ocr_chars" mapstructure:"min_ocr_chars"`
}

// LLMConfig configures structured extraction.
type LLMConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider"`
	OpenAIKey       string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	AnthropicKey    string `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	PrimaryModel    string `yaml:"primary_model" mapstructure:"primary_model"`
	SecondaryModel  string `yaml:"secondary_model" mapstructure:"secondary_model"`
	TimeoutMS       int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	MaxOutputTokens int    `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
}

// Timeout returns the per-call LLM timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// CacheConfig configures the extraction result cache.
type CacheConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	TTLSecs int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// RedisConfig holds Redis connection settings for the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// AssistConfig configures the regex assist stage.
type AssistConfig struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// WorkerConfig configures upload batch processing.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// PricingConfig holds per-model LLM token pricing. Models is a list rather
// than a map because model names contain the viper key delimiter.
type PricingConfig struct {
	Models []ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Model       string  `yaml:"model" mapstructure:"model"`
	Input       float64 `yaml:"input" mapstructure:"input"`
	Output      float64 `yaml:"output" mapstructure:"output"`
	CachedInput float64 `yaml:"cached_input" mapstructure:"cached_input"`
}

// legacyEnv maps config keys to the unprefixed environment names used by
// earlier deployments.
var legacyEnv = map[string]string{
	"llm.openai_api_key":     "OPENAI_API_KEY",
	"llm.primary_model":      "OPENAI_MODEL_PRIMARY",
	"llm.secondary_model":    "OPENAI_MODEL_SECONDARY",
	"llm.timeout_ms":         "OPENAI_TIMEOUT_MS",
	"cache.ttl_secs":         "OPENAI_EXTRACT_CACHE_TTL_SEC",
	"text.page_limit":        "OPENAI_PAGE_LIMIT",
	"s3.bucket":              "S3_BUCKET",
	"s3.prefix":              "S3_PREFIX",
	"s3.disable_ocr_cache":   "DISABLE_OCR_CACHE",
	"aws.region":             "AWS_REGION",
	"aws.access_key_id":      "AWS_ACCESS_KEY_ID",
	"aws.secret_access_key":  "AWS_SECRET_ACCESS_KEY",
	"store.database_url":     "DATABASE_URL",
	"llm.anthropic_api_key":  "ANTHROPIC_API_KEY",
	"redis.addr":             "REDIS_ADDR",
	"server.allowed_origins": "CORS_ORIGINS",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NICSAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "NICSAN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "crm-extract.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("aws.region", "ap-south-1")
	v.SetDefault("aws.retry_max_attempts", 3)
	v.SetDefault("aws.retry_backoff_ms", 250)
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.disable_ocr_cache", false)
	v.SetDefault("textract.poll_interval_ms", 2000)
	v.SetDefault("textract.timeout_secs", 120)
	v.SetDefault("text.parser", "pdf")
	v.SetDefault("text.pdftotext_path", "pdftotext")
	v.SetDefault("text.page_limit", 4)
	v.SetDefault("text.ocr_threshold", 500)
	v.SetDefault("text.min_ocr_chars", 20)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.primary_model", "gpt-4o-mini")
	v.SetDefault("llm.secondary_model", "gpt-4.1-mini")
	v.SetDefault("llm.timeout_ms", 4000)
	v.SetDefault("llm.max_output_tokens", 1024)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_secs", 120)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "crm-extract:")
	v.SetDefault("assist.debug", false)
	v.SetDefault("worker.concurrency", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "serve", "extract", "process":
		if c.S3.Bucket == "" {
			errs = append(errs, "s3.bucket is required")
		}
		switch c.LLM.Provider {
		case "openai":
			if c.LLM.OpenAIKey == "" {
				errs = append(errs, "llm.openai_api_key is required")
			}
		case "anthropic":
			if c.LLM.AnthropicKey == "" {
				errs = append(errs, "llm.anthropic_api_key is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("llm.provider %q must be openai or anthropic", c.LLM.Provider))
		}
		if c.LLM.TimeoutMS <= 0 {
			errs = append(errs, "llm.timeout_ms must be > 0")
		}
		if c.Text.PageLimit < 1 {
			errs = append(errs, "text.page_limit must be >= 1")
		}
		if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
			errs = append(errs, fmt.Sprintf("cache.backend %q must be memory or redis", c.Cache.Backend))
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "process" && (c.Worker.Concurrency < 1 || c.Worker.Concurrency > 32) {
			errs = append(errs, "worker.concurrency must be between 1 and 32")
		}
	case "upload":
		if c.S3.Bucket == "" {
			errs = append(errs, "s3.bucket is required")
		}
	case "migrate", "export":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
