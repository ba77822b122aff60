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

package app

import (
	"agent-platform/internal/model/llm"
	"agent-platform/pkg/config"
	"agent-platform/pkg/utils"
)

const (
	defaultPerplexityBaseURL = "https://api.perplexity.ai"
	defaultPerplexityModel   = "sonar"
)

// ModelClient 按 provider.model_key 构造的客户端及其生成参数
type ModelClient struct {
	Client         llm.Client
	Options        llm.GenerateOptions
	DecisionFormat string
}

// NewRateLimiterFromConfig 根据 rate_limits.llm 创建共享限流器
func NewRateLimiterFromConfig(cfg *config.Config) *llm.RateLimiter {
	limits := make(map[string]llm.LimitConfig, len(cfg.RateLimits.LLM))
	for provider, l := range cfg.RateLimits.LLM {
		limits[provider] = llm.LimitConfig{
			TokensPerMinute:   l.TokensPerMinute,
			RequestsPerMinute: l.RequestsPerMinute,
			MaxConcurrent:     l.MaxConcurrent,
		}
	}
	return llm.NewRateLimiter(limits, nil)
}

// NewModelClient 根据 model.providers 中的 provider.model_key 创建客户端；limiter 非 nil 时包装限流
func NewModelClient(cfg *config.Config, key string, limiter *llm.RateLimiter) (*ModelClient, error) {
	provider, pc, mi, err := cfg.LookupModel(key)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(llm.ClientConfig{
		Provider: provider,
		Model:    mi.Name,
		APIKey:   pc.APIKey,
		BaseURL:  pc.BaseURL,
		Retry:    cfg.Model.Retry,
		Timeout:  cfg.Model.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if limiter != nil {
		client = llm.NewRateLimitedClient(client, limiter)
	}
	maxTokens := utils.DefaultInt(mi.MaxTokens, cfg.Agent.MaxTokens)
	return &ModelClient{
		Client:         client,
		Options:        llm.GenerateOptions{Temperature: mi.Temperature, MaxTokens: maxTokens},
		DecisionFormat: mi.DecisionFormat,
	}, nil
}

// NewPerplexityClient 创建 Perplexity_Tool 使用的客户端；未配置 api_key 时返回 nil, nil
func NewPerplexityClient(cfg *config.Config, limiter *llm.RateLimiter) (llm.Client, error) {
	pc := cfg.Tools.Perplexity
	if pc.APIKey == "" {
		return nil, nil
	}
	baseURL := utils.CoalesceString(pc.BaseURL, defaultPerplexityBaseURL)
	model := utils.CoalesceString(pc.Model, defaultPerplexityModel)
	client, err := llm.NewClient(llm.ClientConfig{
		Provider: "perplexity",
		Model:    model,
		APIKey:   pc.APIKey,
		BaseURL:  baseURL,
		Retry:    cfg.Model.Retry,
		Timeout:  cfg.Model.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if limiter != nil {
		client = llm.NewRateLimitedClient(client, limiter)
	}
	return client, nil
}
