package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"luxuryestates/pkg/config"
)

type Config struct {
	Debug   bool                 `yaml:"debug"`
	DB      config.DBConfig      `yaml:"db"`
	MQ      config.MQConfig      `yaml:"mq"`
	Redis   config.RedisConfig   `yaml:"redis"`
	JWT     config.JWTConfig     `yaml:"jwt"`
	Server  config.ServerConfig  `yaml:"server"`
	Mail    config.MailConfig    `yaml:"mail"`
	Storage config.StorageConfig `yaml:"storage"`
	Stripe  config.StripeConfig  `yaml:"stripe"`
	Otel    config.OtelConfig    `yaml:"otel"`
	App     AppConfig            `yaml:"app"`
	Alerts  AlertsConfig         `yaml:"alerts"`
	Outbox  OutboxConfig         `yaml:"outbox"`
	Cache   CacheConfig          `yaml:"cache"`
	Worker  WorkerConfig         `yaml:"worker"`
}

type AppConfig struct {
	// ClientURL 前端地址，用于拼接房源详情链接和支付回跳地址
	ClientURL        string `yaml:"client_url"`
	PlaceholderImage string `yaml:"placeholder_image"`
	// AgentInbox 联系经纪人表单的收件地址
	AgentInbox string `yaml:"agent_inbox"`
}

type AlertsConfig struct {
	// Async 为 true 时邮件由 worker 经 MQ 发送，否则在请求内发送
	Async             bool `yaml:"async"`
	BatchSize         int  `yaml:"batch_size"`
	FanoutConcurrency int  `yaml:"fanout_concurrency"`
	DedupTTLSeconds   int  `yaml:"dedup_ttl_seconds"`
}

type OutboxConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	BatchSize  int `yaml:"batch_size"`
	MaxRetries int `yaml:"max_retries"`
}

type CacheConfig struct {
	SearchTTLSeconds int `yaml:"search_ttl_seconds"`
}

// WorkerConfig 只被 cmd/worker 使用
type WorkerConfig struct {
	HealthPort string `yaml:"health_port"`
	Prefetch   int    `yaml:"prefetch"`
}

func (c AlertsConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

func (c OutboxConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (c CacheConfig) SearchTTL() time.Duration {
	return time.Duration(c.SearchTTLSeconds) * time.Second
}

// Load 读取 CONFIG_DIR 下的 base.yaml 与 CONFIG_ENV 对应的覆盖文件
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, dir string) (*Config, error) {
	var cfg Config
	if err := config.Decode(env, dir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideMailFromEnv(&cfg.Mail)
	config.OverrideStorageFromEnv(&cfg.Storage)
	config.OverrideStripeFromEnv(&cfg.Stripe)
	if url := os.Getenv("CLIENT_URL"); url != "" {
		cfg.App.ClientURL = url
	}
	if v := os.Getenv("ALERTS_ASYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Alerts.Async = b
		}
	}

	applyDefaults(&cfg)

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.DB.SlowQueryMs == 0 {
		cfg.DB.SlowQueryMs = 200
	}
	if cfg.MQ.MaxRetries == 0 {
		cfg.MQ.MaxRetries = 3
	}
	if cfg.App.PlaceholderImage == "" {
		cfg.App.PlaceholderImage = "https://example.com/placeholder-property.jpg"
	}
	if cfg.Alerts.BatchSize <= 0 {
		cfg.Alerts.BatchSize = 2
	}
	if cfg.Alerts.FanoutConcurrency <= 0 {
		cfg.Alerts.FanoutConcurrency = 8
	}
	if cfg.Alerts.DedupTTLSeconds <= 0 {
		cfg.Alerts.DedupTTLSeconds = 24 * 60 * 60
	}
	if cfg.Outbox.IntervalMs <= 0 {
		cfg.Outbox.IntervalMs = 1000
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.MaxRetries <= 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.Cache.SearchTTLSeconds <= 0 {
		cfg.Cache.SearchTTLSeconds = 60
	}
	if cfg.Worker.HealthPort == "" {
		cfg.Worker.HealthPort = ":8085"
	}
	if cfg.Worker.Prefetch <= 0 {
		cfg.Worker.Prefetch = 10
	}
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = "usd"
	}
}
