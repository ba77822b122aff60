// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/retry"
	"agent-platform/pkg/secrets"
)

// Config 应用配置结构体
type Config struct {
	Agent      AgentConfig      `mapstructure:"agent"`
	Model      ModelConfig      `mapstructure:"model"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
	Search     SearchConfig     `mapstructure:"search"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	JobStore   JobStoreConfig   `mapstructure:"jobstore"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	API        APIConfig        `mapstructure:"api"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Secrets    secrets.Config   `mapstructure:"secrets"`
}

// AgentConfig 规划循环配置
type AgentConfig struct {
	MaxSteps       int           `mapstructure:"max_steps"`       // 步数预算，硬上限
	MaxTime        time.Duration `mapstructure:"max_time"`        // 墙钟上限，0 表示不限，仅在步与步之间检查
	MaxTokens      int           `mapstructure:"max_tokens"`      // 单次模型调用的输出上限
	DecisionFormat string        `mapstructure:"decision_format"` // tool_call | subgoal；为空时取模型配置
	OutputTypes    []string      `mapstructure:"output_types"`    // base | final | direct
	Verbose        bool          `mapstructure:"verbose"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Defaults  DefaultsConfig            `mapstructure:"defaults"`
	Retry     retry.Policy              `mapstructure:"retry"`
	Timeout   time.Duration             `mapstructure:"timeout"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name           string  `mapstructure:"name"`
	ContextWindow  int     `mapstructure:"context_window"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	DecisionFormat string  `mapstructure:"decision_format"` // 该模型擅长的决策输出格式
}

// DefaultsConfig 默认模型，格式 provider.model_key
type DefaultsConfig struct {
	Planner string `mapstructure:"planner"`
	Tool    string `mapstructure:"tool"`

	// Action DECIDE 与命令生成使用的模型；为空时使用 Planner
	Action string `mapstructure:"action"`
}

// RateLimitsConfig 限流配置
type RateLimitsConfig struct {
	LLM map[string]LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig 单个 LLM Provider 的限流配置
type LLMRateLimitConfig struct {
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// SearchConfig 搜索后端配置
type SearchConfig struct {
	Provider   string       `mapstructure:"provider"` // google | brave
	NumResults int          `mapstructure:"num_results"`
	Google     GoogleConfig `mapstructure:"google"`
	Brave      BraveConfig  `mapstructure:"brave"`
	Cache      CacheConfig  `mapstructure:"cache"`
}

// GoogleConfig Google Custom Search 配置
type GoogleConfig struct {
	APIKey  string `mapstructure:"api_key"`
	CX      string `mapstructure:"cx"`
	BaseURL string `mapstructure:"base_url"`
}

// BraveConfig Brave Search 配置
type BraveConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// CacheConfig 搜索结果缓存配置
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // none | memory | redis
	Addr     string        `mapstructure:"addr"`
	DB       int           `mapstructure:"db"`
	Password string        `mapstructure:"password"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ToolsConfig 工具配置
type ToolsConfig struct {
	Enabled      []string           `mapstructure:"enabled"` // 为空时启用全部内置工具
	WebAgent     WebAgentConfig     `mapstructure:"web_agent"`
	URLExtractor URLExtractorConfig `mapstructure:"url_extractor"`
	Perplexity   PerplexityConfig   `mapstructure:"perplexity"`
}

// WebAgentConfig 搜索子代理配置
type WebAgentConfig struct {
	MaxTurns int    `mapstructure:"max_turns"`
	Model    string `mapstructure:"model"` // provider.model_key，为空时用 model.defaults.tool
}

// URLExtractorConfig 网页正文抽取配置
type URLExtractorConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

// PerplexityConfig Perplexity 工具配置（OpenAI 兼容接口）
type PerplexityConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// JobStoreConfig 会话记录存储配置
type JobStoreConfig struct {
	Type string `mapstructure:"type"` // memory | file | postgres
	DSN  string `mapstructure:"dsn"`  // type=postgres 时必填
	Dir  string `mapstructure:"dir"`  // type=file 时的输出目录
}

// BatchConfig 批量求解配置
type BatchConfig struct {
	DataFile    string `mapstructure:"data_file"`
	Concurrency int    `mapstructure:"concurrency"`
	OutputDir   string `mapstructure:"output_dir"`
	Skip        bool   `mapstructure:"skip_existing"` // 已存在输出文件时跳过
}

// ScoringConfig 评分配置
type ScoringConfig struct {
	MaxWorkers   int    `mapstructure:"max_workers"`
	ResponseType string `mapstructure:"response_type"` // final_output | direct_output | base_response
}

// APIConfig API 服务配置
type APIConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`

	// ImageRoot /api/solve 请求中的图片路径只能位于该目录；为空时 API 不接受图片路径
	ImageRoot string `mapstructure:"image_root"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.max_steps", 10)
	v.SetDefault("agent.max_time", "0s")
	v.SetDefault("agent.max_tokens", 4000)
	v.SetDefault("agent.output_types", []string{"final", "direct"})
	v.SetDefault("model.retry.max_attempts", 5)
	v.SetDefault("model.retry.min_wait", "3s")
	v.SetDefault("model.retry.max_wait", "8s")
	v.SetDefault("model.retry.multiplier", 1.5)
	v.SetDefault("model.timeout", "120s")
	v.SetDefault("search.provider", "google")
	v.SetDefault("search.num_results", 10)
	v.SetDefault("search.cache.type", "memory")
	v.SetDefault("search.cache.ttl", "24h")
	v.SetDefault("tools.web_agent.max_turns", 2)
	v.SetDefault("tools.url_extractor.max_chars", 100000)
	v.SetDefault("jobstore.type", "memory")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.output_dir", "results")
	v.SetDefault("scoring.max_workers", 16)
	v.SetDefault("scoring.response_type", "direct_output")
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("monitoring.tracing.service_name", "agent-platform")
}

// LoadConfig 加载配置文件；configPath 为空时只使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	store, err := secrets.NewStore(config.Secrets)
	if err != nil {
		return nil, err
	}
	if err := ResolveSecrets(context.Background(), &config, store); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ResolveSecrets 解析配置中的 ${ENV} 与 secret:// 凭证引用
func ResolveSecrets(ctx context.Context, config *Config, store secrets.Store) error {
	resolve := func(field string, v *string) error {
		out, err := secrets.Resolve(ctx, store, *v)
		if err != nil {
			return perrors.Wrapf(err, "resolve %s", field)
		}
		*v = out
		return nil
	}
	for name, pc := range config.Model.Providers {
		if err := resolve("model.providers."+name+".api_key", &pc.APIKey); err != nil {
			return err
		}
		config.Model.Providers[name] = pc
	}
	fields := map[string]*string{
		"search.google.api_key":       &config.Search.Google.APIKey,
		"search.google.cx":            &config.Search.Google.CX,
		"search.brave.api_key":        &config.Search.Brave.APIKey,
		"search.cache.password":       &config.Search.Cache.Password,
		"tools.perplexity.api_key":    &config.Tools.Perplexity.APIKey,
		"jobstore.dsn":                &config.JobStore.DSN,
		"secrets.vault.token":         &config.Secrets.Vault.Token,
		"monitoring.tracing.endpoint": &config.Monitoring.Tracing.ExportEndpoint,
	}
	for field, ptr := range fields {
		if err := resolve(field, ptr); err != nil {
			return err
		}
	}
	return nil
}

// Validate 校验与运行无关凭证的结构性配置；凭证缺失在组件构造时报告
func (c *Config) Validate() error {
	if c.Agent.MaxSteps < 1 {
		return &perrors.ConfigurationError{Key: "agent.max_steps", Reason: "must be at least 1"}
	}
	switch c.Agent.DecisionFormat {
	case "", "tool_call", "subgoal":
	default:
		return &perrors.ConfigurationError{Key: "agent.decision_format", Reason: fmt.Sprintf("unsupported value %q", c.Agent.DecisionFormat)}
	}
	for _, t := range c.Agent.OutputTypes {
		switch t {
		case "base", "final", "direct":
		default:
			return &perrors.ConfigurationError{Key: "agent.output_types", Reason: fmt.Sprintf("unsupported value %q", t)}
		}
	}
	if c.JobStore.Type == "postgres" && c.JobStore.DSN == "" {
		return perrors.MissingConfig("jobstore.dsn")
	}
	return nil
}

// ParseModelKey 解析 provider.model_key 形式的默认模型键
func ParseModelKey(key string) (provider, modelKey string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &perrors.ConfigurationError{Key: "model.defaults", Reason: fmt.Sprintf("expected provider.model_key, got %q", key)}
	}
	return parts[0], parts[1], nil
}

// LookupModel 根据 provider.model_key 返回提供商与模型配置
func (c *Config) LookupModel(key string) (string, ProviderConfig, ModelInfo, error) {
	provider, modelKey, err := ParseModelKey(key)
	if err != nil {
		return "", ProviderConfig{}, ModelInfo{}, err
	}
	pc, ok := c.Model.Providers[provider]
	if !ok {
		return "", ProviderConfig{}, ModelInfo{}, &perrors.ConfigurationError{Key: "model.providers." + provider, Reason: "provider not configured"}
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return "", ProviderConfig{}, ModelInfo{}, &perrors.ConfigurationError{Key: "model.providers." + provider + ".models." + modelKey, Reason: "model not configured"}
	}
	return provider, pc, mi, nil
}
