// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"mediaforge/internal/domain/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	GatewayAddr    string        `yaml:"gateway_addr"`
	WorkerAddr     string        `yaml:"worker_addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	Mode       string        `yaml:"mode"` // hmac | jwks
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	JWKSURL    string        `yaml:"jwks_url"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

type AIConfig struct {
	DefaultProvider string `yaml:"default_provider"` // imagen | openai | bedrock | noop
	DefaultModel    string `yaml:"default_model"`
	NegativePrompt  string `yaml:"negative_prompt"`

	GeminiKey      string `yaml:"gemini_key"`
	GeminiURL      string `yaml:"gemini_url"`
	VertexProject  string `yaml:"vertex_project"`
	VertexLocation string `yaml:"vertex_location"`

	OpenAIKey     string `yaml:"openai_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`

	BedrockRegion string `yaml:"bedrock_region"`
	BedrockModel  string `yaml:"bedrock_model"`

	BrandBackendURL    string `yaml:"brand_backend_url"`
	BrandModel         string `yaml:"brand_model"`
	TrainingMode       string `yaml:"training_mode"` // http | mock
	TrainingBackendURL string `yaml:"training_backend_url"`
	ModelsBucket       string `yaml:"models_bucket"`

	MockTrainingDelay time.Duration `yaml:"mock_training_delay"`
	ConcurrentLimit   int           `yaml:"concurrent_limit"` // max concurrent backend calls
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	TrainingTimeout   time.Duration `yaml:"training_timeout"`
	PromptMaxTokens   int           `yaml:"prompt_max_tokens"`
	TokenEncoding     string        `yaml:"token_encoding"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"` // fs | s3
	Root          string `yaml:"root"`
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type QueueConfig struct {
	Group     string        `yaml:"group"`
	Consumer  string        `yaml:"consumer"`
	Block     time.Duration `yaml:"block"`
	ReadCount int64         `yaml:"read_count"`
	MaxLen    int64         `yaml:"max_len"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type WatchdogConfig struct {
	Interval             time.Duration `yaml:"interval"`
	GenerationStaleAfter time.Duration `yaml:"generation_stale_after"`
	TrainingStaleAfter   time.Duration `yaml:"training_stale_after"`
	RequeueAfter         time.Duration `yaml:"requeue_after"`
	BatchSize            int           `yaml:"batch_size"`
}

type CreditsConfig struct {
	ResetInterval time.Duration `yaml:"reset_interval"`
}

type OutboxConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Grace     time.Duration `yaml:"grace"`
	BatchSize int           `yaml:"batch_size"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	Log       LogConfig           `yaml:"log"`
	HTTP      HTTPConfig          `yaml:"http"`
	Database  DatabaseConfig      `yaml:"database"`
	Redis     RedisConfig         `yaml:"redis"`
	Auth      AuthConfig          `yaml:"auth"`
	AI        AIConfig            `yaml:"ai"`
	Storage   StorageConfig       `yaml:"storage"`
	Queue     QueueConfig         `yaml:"queue"`
	Worker    WorkerConfig        `yaml:"worker"`
	Watchdog  WatchdogConfig      `yaml:"watchdog"`
	Credits   CreditsConfig       `yaml:"credits"`
	Outbox    OutboxConfig        `yaml:"outbox"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
	CORS      CORSConfig          `yaml:"cors"`
	Plans     map[string]int      `yaml:"plans"`
	Styles    []model.StylePreset `yaml:"styles"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev from the command line and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads a YAML file, expanding ${VAR} references from the environment
// (after loading .env if present), then applies defaults and validation.
func Load(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.GatewayAddr == "" {
		cfg.HTTP.GatewayAddr = ":8080"
	}
	if cfg.HTTP.WorkerAddr == "" {
		cfg.HTTP.WorkerAddr = ":8081"
	}
	cfg.HTTP.ReadTimeout = orDuration(cfg.HTTP.ReadTimeout, 15*time.Second)
	cfg.HTTP.WriteTimeout = orDuration(cfg.HTTP.WriteTimeout, 30*time.Second)
	cfg.HTTP.RequestTimeout = orDuration(cfg.HTTP.RequestTimeout, 20*time.Second)
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "hmac"
	}
	cfg.Auth.CacheTTL = orDuration(cfg.Auth.CacheTTL, time.Hour)

	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = "imagen"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "imagen-3.0-generate-002"
	}
	if cfg.AI.NegativePrompt == "" {
		cfg.AI.NegativePrompt = "blurry, low quality, distorted, text, watermark, signature"
	}
	if cfg.AI.VertexLocation == "" {
		cfg.AI.VertexLocation = "us-central1"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-image-1"
	}
	if cfg.AI.BedrockModel == "" {
		cfg.AI.BedrockModel = "amazon.titan-image-generator-v2:0"
	}
	if cfg.AI.BrandModel == "" {
		cfg.AI.BrandModel = "sdxl-lora"
	}
	if cfg.AI.TrainingMode == "" {
		cfg.AI.TrainingMode = "mock"
	}
	if cfg.AI.ModelsBucket == "" {
		cfg.AI.ModelsBucket = "mediaforge-lora-models"
	}
	cfg.AI.MockTrainingDelay = orDuration(cfg.AI.MockTrainingDelay, 30*time.Second)
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	cfg.AI.GenerationTimeout = orDuration(cfg.AI.GenerationTimeout, 5*time.Minute)
	cfg.AI.TrainingTimeout = orDuration(cfg.AI.TrainingTimeout, 30*time.Minute)
	if cfg.AI.PromptMaxTokens <= 0 {
		cfg.AI.PromptMaxTokens = 480
	}
	if cfg.AI.TokenEncoding == "" {
		cfg.AI.TokenEncoding = "cl100k_base"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "fs"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "./data/blobs"
	}

	if cfg.Queue.Group == "" {
		cfg.Queue.Group = "mediaforge-workers"
	}
	if cfg.Queue.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Queue.Consumer = "worker-" + host
	}
	cfg.Queue.Block = orDuration(cfg.Queue.Block, 5*time.Second)
	if cfg.Queue.ReadCount <= 0 {
		cfg.Queue.ReadCount = 10
	}
	if cfg.Queue.MaxLen <= 0 {
		cfg.Queue.MaxLen = 100000
	}

	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 8
	}

	cfg.Watchdog.Interval = orDuration(cfg.Watchdog.Interval, time.Minute)
	cfg.Watchdog.GenerationStaleAfter = orDuration(cfg.Watchdog.GenerationStaleAfter, 15*time.Minute)
	cfg.Watchdog.TrainingStaleAfter = orDuration(cfg.Watchdog.TrainingStaleAfter, 2*time.Hour)
	cfg.Watchdog.RequeueAfter = orDuration(cfg.Watchdog.RequeueAfter, 5*time.Minute)
	if cfg.Watchdog.BatchSize <= 0 {
		cfg.Watchdog.BatchSize = 100
	}

	cfg.Credits.ResetInterval = orDuration(cfg.Credits.ResetInterval, time.Hour)

	cfg.Outbox.Interval = orDuration(cfg.Outbox.Interval, 10*time.Second)
	cfg.Outbox.Grace = orDuration(cfg.Outbox.Grace, 30*time.Second)
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 100
	}

	if cfg.RateLimit.Requests <= 0 {
		cfg.RateLimit.Requests = 30
	}
	cfg.RateLimit.Window = orDuration(cfg.RateLimit.Window, time.Minute)

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = map[string]int{model.PlanFree: 10, model.PlanBusiness: 200}
	}
	if len(cfg.Styles) == 0 {
		cfg.Styles = DefaultStyles()
	}
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	switch strings.ToLower(cfg.Auth.Mode) {
	case "hmac":
		if cfg.Auth.HMACSecret == "" {
			return errors.New("auth.hmac_secret is required in hmac mode")
		}
	case "jwks":
		if cfg.Auth.JWKSURL == "" {
			return errors.New("auth.jwks_url is required in jwks mode")
		}
	default:
		return fmt.Errorf("auth.mode %q is not supported", cfg.Auth.Mode)
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "fs":
	case "s3":
		if cfg.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for s3")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
	for _, s := range cfg.Styles {
		if s.ID == "" {
			return errors.New("styles: every style needs an id")
		}
	}
	return nil
}

// DefaultStyles are the preset prompt modifiers shipped with the product.
func DefaultStyles() []model.StylePreset {
	return []model.StylePreset{
		{ID: "google", Name: "Google", Modifier: "clean, modern, vibrant colors, Google Material Design style, minimalist"},
		{ID: "notion", Name: "Notion", Modifier: "friendly, soft colors, illustration style, warm and approachable"},
		{ID: "saasthetic", Name: "SaaSthetic", Modifier: "modern SaaS aesthetic, gradient colors, sleek line art style"},
		{ID: "clayframe", Name: "Clayframe", Modifier: "3D clay render, soft lighting, playful 3D illustration style"},
		{ID: "flat2d", Name: "Flat 2D", Modifier: "flat 2D design, bold colors, geometric shapes, modern flat illustration"},
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
