package main

import (
	"fmt"
	"os"
	"time"

	"codeblack/internal/common/cache"
	commonmw "codeblack/internal/common/http/middleware"
	"codeblack/internal/common/mq"
	"codeblack/internal/common/storage"
	"codeblack/internal/contest/auth"
	"codeblack/internal/contest/integrity"
	"codeblack/internal/contest/realtime"
	"codeblack/internal/contest/state"
	"codeblack/internal/contest/submit"
	"codeblack/internal/judge/evaluator"
	"codeblack/internal/judge/sandbox"
	"codeblack/internal/judge/scoring"
	"codeblack/pkg/utils/logger"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:3000"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultGracePeriod     = 60 * time.Second
	defaultMirrorTTL       = 24 * time.Hour
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	CORS      commonmw.CORSConfig      `yaml:"cors"`
	RateLimit commonmw.RateLimitConfig `yaml:"rateLimit"`
}

// ContestConfig holds round and pipeline settings.
type ContestConfig struct {
	ProblemsPath  string              `yaml:"problemsPath" validate:"required"`
	Rounds        []state.RoundConfig `yaml:"rounds" validate:"dive"`
	GracePeriod   time.Duration       `yaml:"gracePeriod"`
	CheckInterval time.Duration       `yaml:"checkInterval"`
	// Grading is immediate or deferred.
	Grading          submit.GradingMode    `yaml:"grading" validate:"omitempty,oneof=immediate deferred"`
	MaxCodeBytes     int                   `yaml:"maxCodeBytes"`
	BatchConcurrency int                   `yaml:"batchConcurrency"`
	Scoring          *scoring.Policy       `yaml:"scoring"`
	Review           *scoring.ReviewPolicy `yaml:"review"`
	Integrity        integrity.Config      `yaml:"integrity"`
}

// SandboxConfig holds worker and process isolation settings.
type SandboxConfig struct {
	sandbox.Config `yaml:",inline"`
	InitPath       string `yaml:"initPath"`
	DenyNetwork    bool   `yaml:"denyNetwork"`
	MaxProcs       int64  `yaml:"maxProcs"`
}

// RedisConfig enables the submission mirror when Enabled is set.
type RedisConfig struct {
	Enabled           bool          `yaml:"enabled"`
	TTL               time.Duration `yaml:"ttl"`
	cache.RedisConfig `yaml:",inline"`
}

// StorageConfig enables source archiving when Enabled is set.
type StorageConfig struct {
	Enabled             bool `yaml:"enabled"`
	storage.MinIOConfig `yaml:",inline"`
}

// EventsConfig enables result events when Enabled is set.
type EventsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Topic          string `yaml:"topic"`
	mq.KafkaConfig `yaml:",inline"`
}

// AppConfig holds contest-service configuration.
type AppConfig struct {
	Server   ServerConfig             `yaml:"server"`
	Logger   logger.Config            `yaml:"logger"`
	Auth     auth.Config              `yaml:"auth"`
	Contest  ContestConfig            `yaml:"contest"`
	Sandbox  SandboxConfig            `yaml:"sandbox"`
	Judge    evaluator.ExternalConfig `yaml:"judge"`
	Redis    RedisConfig              `yaml:"redis"`
	Storage  StorageConfig            `yaml:"storage"`
	Events   EventsConfig             `yaml:"events"`
	Realtime realtime.Config          `yaml:"realtime"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnv lets deployments keep secrets out of the config file.
func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("CODEBLACK_JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("CODEBLACK_PASSCODE_HASH"); v != "" {
		cfg.Auth.CompetitorPasscodeHash = v
	}
	if v := os.Getenv("CODEBLACK_ADMIN_HASH"); v != "" {
		for i := range cfg.Auth.Accounts {
			if cfg.Auth.Accounts[i].Role == state.RoleAdmin {
				cfg.Auth.Accounts[i].PasswordHash = v
			}
		}
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Contest.ProblemsPath == "" {
		cfg.Contest.ProblemsPath = "configs/problems.yaml"
	}
	if len(cfg.Contest.Rounds) == 0 {
		cfg.Contest.Rounds = state.DefaultRounds()
	}
	if cfg.Contest.GracePeriod == 0 {
		cfg.Contest.GracePeriod = defaultGracePeriod
	}
	if cfg.Contest.Grading == "" {
		cfg.Contest.Grading = submit.GradingImmediate
	}

	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = defaultMirrorTTL
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = "contest.results"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "codeblack-submissions"
	}
}

func (c ContestConfig) scoringPolicy() scoring.Policy {
	if c.Scoring != nil {
		return *c.Scoring
	}
	return scoring.DefaultPolicy()
}

func (c ContestConfig) reviewPolicy() scoring.ReviewPolicy {
	if c.Review != nil {
		return *c.Review
	}
	return scoring.DefaultReviewPolicy()
}
