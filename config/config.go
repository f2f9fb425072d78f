package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/pkg/email"
	"github.com/bouwupdate/intake-api/pkg/messaging/redis"
	"github.com/bouwupdate/intake-api/pkg/storage"
	"github.com/bouwupdate/intake-api/pkg/transport"
)

const envPrefix = "INTAKE"

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url" validate:"required_if=Enabled true"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type StorageConfig struct {
	// Driver selects the repository backend.
	Driver string   `mapstructure:"driver" validate:"oneof=postgres memory"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type GeminiConfig struct {
	APIKey           string `mapstructure:"api_key"`
	ClassifierModel  string `mapstructure:"classifier_model"`
	TranscriberModel string `mapstructure:"transcriber_model"`
}

type WhatsAppConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	AccountSID      string        `mapstructure:"account_sid"`
	AuthToken       string        `mapstructure:"auth_token"`
	From            string        `mapstructure:"from"`
	Timeout         time.Duration `mapstructure:"timeout"`
	VerifySignature bool          `mapstructure:"verify_signature"`
	// PublicURL is the externally visible webhook URL used for signatures.
	PublicURL string `mapstructure:"public_url"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"required_if=Enabled true"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" validate:"required_if=Enabled true"`
	Issuer    string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

type PipelineConfig struct {
	AdapterTimeout   time.Duration `mapstructure:"adapter_timeout" validate:"gt=0"`
	FeedbackDelay    time.Duration `mapstructure:"feedback_delay" validate:"gte=0"`
	VoiceLinkWindow  time.Duration `mapstructure:"voice_link_window" validate:"gt=0"`
	ChannelCacheTTL  time.Duration `mapstructure:"channel_cache_ttl"`
	InviteCodeTTL    time.Duration `mapstructure:"invite_code_ttl" validate:"gt=0"`
	Workers          int           `mapstructure:"workers" validate:"min=1"`
	QueueSize        int           `mapstructure:"queue_size" validate:"gte=0"`
	NotifyMaxWorkers int           `mapstructure:"notify_max_workers" validate:"min=1"`
	// RecoverAfter is how long a message may sit in RECEIVED before the
	// worker schedules it again.
	RecoverAfter time.Duration `mapstructure:"recover_after" validate:"gt=0"`
}

type InferenceConfig struct {
	WindowSize              int     `mapstructure:"window_size" validate:"min=1,max=10"`
	BoostMinHits            int     `mapstructure:"boost_min_hits" validate:"min=1"`
	Boost                   float64 `mapstructure:"boost" validate:"gte=0,lte=1"`
	BoostCap                float64 `mapstructure:"boost_cap" validate:"gte=0,lte=1"`
	OverrideMinHits         int     `mapstructure:"override_min_hits" validate:"min=1"`
	OverrideBase            float64 `mapstructure:"override_base" validate:"gte=0,lte=1"`
	OverridePerHit          float64 `mapstructure:"override_per_hit" validate:"gte=0,lte=1"`
	OverrideCap             float64 `mapstructure:"override_cap" validate:"gte=0,lte=1"`
	NextRatio               float64 `mapstructure:"next_ratio" validate:"gte=0,lte=1"`
	NextRatioMinConfidence  float64 `mapstructure:"next_ratio_min_confidence" validate:"gte=0,lte=1"`
	MinCompletionIndicators int     `mapstructure:"min_completion_indicators" validate:"min=1"`
	JumpMinWindow           int     `mapstructure:"jump_min_window" validate:"min=1"`
	JumpMinConfidence       float64 `mapstructure:"jump_min_confidence" validate:"gte=0,lte=1"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	BatchSize    int           `mapstructure:"batch_size" validate:"min=1"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Inference InferenceConfig `mapstructure:"inference"`
	Log       LogConfig       `mapstructure:"log"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// secrets are read straight from the environment so they never need to be
// written into config.yml.
type secrets struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	WhatsAppToken    string `envconfig:"WHATSAPP_AUTH_TOKEN"`
	AWSAccessKey     string `envconfig:"AWS_ACCESS_KEY"`
	AWSSecretKey     string `envconfig:"AWS_SECRET_KEY"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "intake")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.s3.region", "eu-west-1")

	v.SetDefault("gemini.classifier_model", "gemini-1.5-flash")
	v.SetDefault("gemini.transcriber_model", "gemini-1.5-flash")

	v.SetDefault("whatsapp.timeout", 15*time.Second)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("pipeline.adapter_timeout", 30*time.Second)
	v.SetDefault("pipeline.feedback_delay", 2*time.Second)
	v.SetDefault("pipeline.voice_link_window", 5*time.Minute)
	v.SetDefault("pipeline.channel_cache_ttl", 10*time.Minute)
	v.SetDefault("pipeline.invite_code_ttl", 24*time.Hour)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.notify_max_workers", 5)
	v.SetDefault("pipeline.recover_after", 2*time.Minute)

	d := phase.DefaultThresholds()
	v.SetDefault("inference.window_size", d.WindowSize)
	v.SetDefault("inference.boost_min_hits", d.BoostMinHits)
	v.SetDefault("inference.boost", d.Boost)
	v.SetDefault("inference.boost_cap", d.BoostCap)
	v.SetDefault("inference.override_min_hits", d.OverrideMinHits)
	v.SetDefault("inference.override_base", d.OverrideBase)
	v.SetDefault("inference.override_per_hit", d.OverridePerHit)
	v.SetDefault("inference.override_cap", d.OverrideCap)
	v.SetDefault("inference.next_ratio", d.NextRatio)
	v.SetDefault("inference.next_ratio_min_confidence", d.NextRatioMinConfidence)
	v.SetDefault("inference.min_completion_indicators", d.MinCompletionIndicators)
	v.SetDefault("inference.jump_min_window", d.JumpMinWindow)
	v.SetDefault("inference.jump_min_confidence", d.JumpMinConfidence)

	v.SetDefault("log.level", "info")

	v.SetDefault("worker.poll_interval", time.Minute)
	v.SetDefault("worker.batch_size", 50)
}

// LoadConfig reads config.yml from the usual locations, applies INTAKE_*
// environment overrides and validates the result. A missing file is not an
// error; defaults and the environment are enough to start.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	override := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	override(&c.Database.Password, s.DatabasePassword)
	override(&c.Gemini.APIKey, s.GeminiAPIKey)
	override(&c.WhatsApp.AuthToken, s.WhatsAppToken)
	override(&c.Storage.S3.AccessKey, s.AWSAccessKey)
	override(&c.Storage.S3.SecretKey, s.AWSSecretKey)
	override(&c.SMTP.Password, s.SMTPPassword)
	override(&c.Auth.JWTSecret, s.JWTSecret)
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Inference.OverrideBase > c.Inference.OverrideCap {
		return errors.New("invalid config: inference.override_base exceeds inference.override_cap")
	}
	return nil
}

func (c *InferenceConfig) ToThresholds() phase.Thresholds {
	return phase.Thresholds{
		WindowSize:              c.WindowSize,
		BoostMinHits:            c.BoostMinHits,
		Boost:                   c.Boost,
		BoostCap:                c.BoostCap,
		OverrideMinHits:         c.OverrideMinHits,
		OverrideBase:            c.OverrideBase,
		OverridePerHit:          c.OverridePerHit,
		OverrideCap:             c.OverrideCap,
		NextRatio:               c.NextRatio,
		NextRatioMinConfidence:  c.NextRatioMinConfidence,
		MinCompletionIndicators: c.MinCompletionIndicators,
		JumpMinWindow:           c.JumpMinWindow,
		JumpMinConfidence:       c.JumpMinConfidence,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *S3Config) ToStorageConfig() storage.S3Config {
	return storage.S3Config{
		Region:    c.Region,
		Bucket:    c.Bucket,
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
	}
}

func (c *WhatsAppConfig) ToTransportConfig() transport.Config {
	return transport.Config{
		AccountSID: c.AccountSID,
		AuthToken:  c.AuthToken,
		From:       c.From,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
	}
}

func (c *SMTPConfig) ToEmailConfig() email.Config {
	return email.Config{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}
