package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	AI       AIConfig
	Chat     ChatConfig
	Auth     AuthConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if c.Chat.MaxMessageLength < 1 {
		return fmt.Errorf("invalid CHAT_MAX_MESSAGE_LENGTH value %d", c.Chat.MaxMessageLength)
	}
	if c.Chat.HistoryLimit < 1 {
		c.Chat.HistoryLimit = 1
	}
	if c.Chat.MaxPageSize < 1 {
		c.Chat.MaxPageSize = 100
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	// REST 路由的请求超时必须覆盖生成的最坏耗时，否则超时中间件会在回复后再写 504
	if budget := c.AI.WorstCaseLatency(); c.Server.RequestTimeout > 0 && c.Server.RequestTimeout < budget {
		return fmt.Errorf("SERVER_REQUEST_TIMEOUT %s is shorter than the generation budget %s", c.Server.RequestTimeout, budget)
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadHeaderTimeout time.Duration `env:"SERVER_READ_HEADER_TIMEOUT" envDefault:"5s"`
	RequestTimeout    time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout   time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins       []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Addr 解析服务器监听地址，允许 "8080"、":8080" 或 "127.0.0.1:8080"。
func (c ServerConfig) Addr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		return ":8080"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func (c ServerConfig) validate() error {
	if strings.Contains(strings.TrimSpace(c.Port), " ") {
		return fmt.Errorf("invalid PORT value: %q", c.Port)
	}
	return nil
}

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig 描述消息存储配置。
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"memory"`
	DSN             string        `env:"DATABASE_URL"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

func (c *DatabaseConfig) validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER is %s", c.Driver)
		}
		return nil
	default:
		return fmt.Errorf("invalid DB_DRIVER value %q", c.Driver)
	}
}

// AI providers.
const (
	ProviderAuto     = "auto"
	ProviderArk      = "ark"
	ProviderGemini   = "gemini"
	ProviderFallback = "fallback"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string `env:"AI_PROVIDER" envDefault:"auto"`

	APIKey      string  `env:"ARK_API_KEY"`
	AccessKey   string  `env:"ARK_ACCESS_KEY"`
	SecretKey   string  `env:"ARK_SECRET_KEY"`
	Model       string  `env:"ARK_MODEL"`
	BaseURL     string  `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string  `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature float64 `env:"AI_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int     `env:"AI_MAX_TOKENS" envDefault:"1024"`

	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`

	Timeout          time.Duration `env:"AI_TIMEOUT" envDefault:"30s"`
	RetryMaxAttempts int           `env:"AI_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"AI_RETRY_BASE_DELAY" envDefault:"500ms"`
	RetryMaxDelay    time.Duration `env:"AI_RETRY_MAX_DELAY" envDefault:"5s"`
	RetryJitter      float64       `env:"AI_RETRY_JITTER" envDefault:"0.2"`
}

// MaxRetryAttempts 是 AI_RETRY_MAX_ATTEMPTS 允许的上限。
const MaxRetryAttempts = 10

// WorstCaseLatency 估算一次生成在全部重试耗尽时的最长耗时：每次尝试的超时加上各次退避（含抖动）。
func (c AIConfig) WorstCaseLatency() time.Duration {
	attempts := c.RetryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	total := time.Duration(attempts) * c.Timeout

	wait := c.RetryBaseDelay
	for i := 1; i < attempts; i++ {
		step := wait
		if c.RetryMaxDelay > 0 && step > c.RetryMaxDelay {
			step = c.RetryMaxDelay
		}
		total += time.Duration(float64(step) * (1 + c.RetryJitter))
		wait *= 2
	}
	return total
}

// ArkEnabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// GeminiEnabled 表示是否提供了 Gemini API Key。
func (c AIConfig) GeminiEnabled() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// ResolveProvider 返回实际使用的生成后端。auto 模式依次尝试 Ark、Gemini，最后回退到关键词回复。
func (c AIConfig) ResolveProvider() string {
	switch c.Provider {
	case ProviderArk, ProviderGemini, ProviderFallback:
		return c.Provider
	}
	if c.ArkEnabled() {
		return ProviderArk
	}
	if c.GeminiEnabled() {
		return ProviderGemini
	}
	return ProviderFallback
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	temperature := float32(c.Temperature)
	maxTokens := c.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func (c *AIConfig) validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case ProviderAuto, ProviderFallback:
	case ProviderArk:
		if !c.ArkEnabled() {
			return fmt.Errorf("AI_PROVIDER=ark requires ARK_MODEL and ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
		}
	case ProviderGemini:
		if !c.GeminiEnabled() {
			return fmt.Errorf("AI_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("invalid AI_PROVIDER value %q", c.Provider)
	}
	if c.RetryMaxAttempts < 1 {
		c.RetryMaxAttempts = 1
	}
	if c.RetryMaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("invalid AI_RETRY_MAX_ATTEMPTS value %d: must be at most %d", c.RetryMaxAttempts, MaxRetryAttempts)
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return fmt.Errorf("invalid AI_RETRY_JITTER value %v: must be within [0,1]", c.RetryJitter)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// ChatConfig 控制对话编排行为。
type ChatConfig struct {
	HistoryLimit     int `env:"CHAT_HISTORY_LIMIT" envDefault:"10"`
	MaxMessageLength int `env:"CHAT_MAX_MESSAGE_LENGTH" envDefault:"2000"`
	DefaultPageSize  int `env:"CHAT_HISTORY_PAGE_SIZE" envDefault:"20"`
	MaxPageSize      int `env:"CHAT_HISTORY_MAX_PAGE_SIZE" envDefault:"100"`
}

// AuthConfig 描述 JWT 校验配置。
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
	UserClaim string `env:"JWT_USER_CLAIM" envDefault:"user_id"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	File       string `env:"LOG_FILE" envDefault:"./logs/app.log"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
	Compress   bool   `env:"LOG_COMPRESS" envDefault:"true"`
}
