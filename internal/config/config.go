package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pelletier/go-toml/v2"
)

const (
	BackendCharacterAI = "characterai"
	BackendArk         = "ark"

	DefaultCharacterAICharacter = "dxDIxJrhmT4IE22Gih1OqvER0JZpDkTD5bvui3fh-Qs"
	DefaultArkCharacter         = "socrates"
)

// ErrMissingToken 表示未配置上游凭证。
var ErrMissingToken = errors.New("TOKEN environment variable is not set")

// Config 聚合整个服务的配置项。
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	CharacterAI CharacterAIConfig `toml:"characterai"`
	AI          AIConfig          `toml:"ark"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// UpstreamConfig 选择对话后端及其凭证。
type UpstreamConfig struct {
	Backend            string `toml:"backend"`
	Token              string `toml:"token"`
	DefaultCharacterID string `toml:"default_character_id"`
}

// CharacterAIConfig 描述 Character.AI 的接口地址。
type CharacterAIConfig struct {
	BaseURL            string `toml:"base_url"`
	WSURL              string `toml:"ws_url"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
}

// HTTPTimeout 返回账号接口的超时时间。
func (c CharacterAIConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// AIConfig 描述本地后端使用的大模型配置。
type AIConfig struct {
	APIKey      string   `toml:"api_key"`
	AccessKey   string   `toml:"access_key"`
	SecretKey   string   `toml:"secret_key"`
	Model       string   `toml:"model"`
	BaseURL     string   `toml:"base_url"`
	Region      string   `toml:"region"`
	Temperature *float64 `toml:"temperature"`
	TopP        *float64 `toml:"top_p"`
	MaxTokens   *int     `toml:"max_tokens"`
	Username    string   `toml:"username"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or ARK_ACCESS_KEY and ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// Default 返回内置默认配置。
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Upstream: UpstreamConfig{Backend: BackendCharacterAI},
		CharacterAI: CharacterAIConfig{
			BaseURL:            "https://plus.character.ai",
			WSURL:              "wss://neo.character.ai/ws/",
			HTTPTimeoutSeconds: 30,
		},
		AI: AIConfig{
			BaseURL:  "https://ark.cn-beijing.volces.com/api/v3",
			Region:   "cn-beijing",
			Username: "guest",
		},
	}
}

// Load 依次叠加默认值、可选的 TOML 配置文件和环境变量，后者优先。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyServerEnv(&cfg.Server)
	applyUpstreamEnv(&cfg.Upstream)
	if err := applyCharacterAIEnv(&cfg.CharacterAI); err != nil {
		return nil, err
	}
	if err := applyAIEnv(&cfg.AI); err != nil {
		return nil, err
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) finalize() error {
	addr, err := normalizeAddr(c.Server.Addr)
	if err != nil {
		return err
	}
	c.Server.Addr = addr

	c.Upstream.Backend = strings.ToLower(strings.TrimSpace(c.Upstream.Backend))
	switch c.Upstream.Backend {
	case "", BackendCharacterAI:
		c.Upstream.Backend = BackendCharacterAI
		// 仅 Character.AI 后端需要 TOKEN
		if c.Upstream.Token == "" {
			return ErrMissingToken
		}
		if c.Upstream.DefaultCharacterID == "" {
			c.Upstream.DefaultCharacterID = DefaultCharacterAICharacter
		}
	case BackendArk:
		if !c.AI.Enabled() {
			return fmt.Errorf("ark backend requires ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and Model")
		}
		if c.Upstream.DefaultCharacterID == "" {
			c.Upstream.DefaultCharacterID = DefaultArkCharacter
		}
	default:
		return fmt.Errorf("invalid UPSTREAM_BACKEND value: %q", c.Upstream.Backend)
	}

	if c.CharacterAI.HTTPTimeoutSeconds < 1 {
		c.CharacterAI.HTTPTimeoutSeconds = 30 // 默认30秒
	}
	return nil
}

// normalizeAddr 允许用户传入 "8080"、":8080" 或 "127.0.0.1:8080"。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		return ":8080", nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func applyServerEnv(c *ServerConfig) {
	c.Addr = getEnvOrDefault("PORT", c.Addr)
}

func applyUpstreamEnv(c *UpstreamConfig) {
	c.Backend = getEnvOrDefault("UPSTREAM_BACKEND", c.Backend)
	c.Token = getEnvOrDefault("TOKEN", c.Token)
	c.DefaultCharacterID = getEnvOrDefault("DEFAULT_CHARACTER_ID", c.DefaultCharacterID)
}

func applyCharacterAIEnv(c *CharacterAIConfig) error {
	c.BaseURL = strings.TrimRight(getEnvOrDefault("CAI_BASE_URL", c.BaseURL), "/")
	c.WSURL = getEnvOrDefault("CAI_WS_URL", c.WSURL)

	timeout, err := parseOptionalIntEnv("CAI_HTTP_TIMEOUT")
	if err != nil {
		return err
	}
	if timeout != nil {
		c.HTTPTimeoutSeconds = *timeout
	}
	return nil
}

func applyAIEnv(c *AIConfig) error {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return err
	}
	if temperature != nil {
		c.Temperature = temperature
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return err
	}
	if topP != nil {
		c.TopP = topP
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return err
	}
	if maxTokens != nil {
		c.MaxTokens = maxTokens
	}

	c.APIKey = getEnvOrDefault("ARK_API_KEY", c.APIKey)
	c.AccessKey = getEnvOrDefault("ARK_ACCESS_KEY", c.AccessKey)
	c.SecretKey = getEnvOrDefault("ARK_SECRET_KEY", c.SecretKey)
	c.Model = getEnvOrDefault("Model", c.Model)
	c.BaseURL = getEnvOrDefault("ARK_BASE_URL", c.BaseURL)
	c.Region = getEnvOrDefault("ARK_REGION", c.Region)
	c.Username = getEnvOrDefault("LOCAL_USERNAME", c.Username)
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
