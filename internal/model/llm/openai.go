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

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"

	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/retry"
)

var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"qwen":       "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"perplexity": "https://api.perplexity.ai",
	"deepseek":   "https://api.deepseek.com/v1",
}

// OpenAIClient OpenAI 兼容 chat/completions 客户端（OpenAI、Qwen、Perplexity、vLLM 等）
type OpenAIClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	// keepToolRole 为 true 时原样发送 role=tool（vLLM 接受无 tool_call_id 的 tool 消息）
	keepToolRole bool
	client       *resty.Client
}

// NewOpenAIClient 创建 OpenAI 兼容客户端；BaseURL 为空时用提供商默认值或 OPENAI_BASE_URL
func NewOpenAIClient(cfg ClientConfig) (*OpenAIClient, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.Provider]
		if envURL := os.Getenv("OPENAI_BASE_URL"); envURL != "" && cfg.Provider == "openai" {
			baseURL = envURL
		}
	}
	return &OpenAIClient{
		provider: cfg.Provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
		client:   retry.NewClient(cfg.Retry, cfg.Timeout),
	}, nil
}

// NewVLLMClient 创建本地 vLLM 服务客户端；无需 API Key，但必须配置 BaseURL
func NewVLLMClient(cfg ClientConfig) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, perrors.MissingConfig("model.providers.vllm.base_url")
	}
	if cfg.Model == "" {
		return nil, perrors.MissingConfig("model.providers.vllm.models")
	}
	return &OpenAIClient{
		provider:     "vllm",
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		keepToolRole: true,
		client:       retry.NewClient(cfg.Retry, cfg.Timeout),
	}, nil
}

// GenerateWithContext 使用上下文生成文本
func (c *OpenAIClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	return c.ChatWithContext(ctx, SingleUser(prompt), options)
}

// ChatWithContext 使用上下文聊天
func (c *OpenAIClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	out, err := c.ChatCompletion(ctx, messages, options)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// ChatCompletion 调用 /chat/completions
func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []Message, options GenerateOptions) (*Completion, error) {
	request := map[string]interface{}{
		"model":       c.model,
		"messages":    c.convertMessages(messages),
		"temperature": options.Temperature,
	}
	if options.MaxTokens > 0 {
		request["max_tokens"] = options.MaxTokens
	}
	if options.TopP > 0 {
		request["top_p"] = options.TopP
	}
	if len(options.Stop) > 0 {
		request["stop"] = options.Stop
	}

	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request)
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}
	response, err := req.Post(c.baseURL + "/chat/completions")
	if rerr := remoteError(c.provider, response, err); rerr != nil {
		return nil, rerr
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string          `json:"finish_reason"`
			StopReason   json.RawMessage `json:"stop_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.provider, err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.provider)
	}
	choice := result.Choices[0]
	out := &Completion{Content: choice.Message.Content, FinishReason: choice.FinishReason}
	// vLLM 在命中停止序列时回报 stop_reason 字符串，命中 EOS 时为 null 或 token id
	var stop string
	if len(choice.StopReason) > 0 && json.Unmarshal(choice.StopReason, &stop) == nil {
		out.StopReason = stop
	}
	return out, nil
}

func (c *OpenAIClient) convertMessages(messages []Message) []map[string]interface{} {
	out := make([]map[string]interface{}, len(messages))
	for i, msg := range messages {
		role := msg.Role
		if role == RoleTool && !c.keepToolRole {
			role = RoleUser
		}
		if len(msg.Images) == 0 {
			out[i] = map[string]interface{}{"role": role, "content": msg.Content}
			continue
		}
		parts := []map[string]interface{}{{"type": "text", "text": msg.Content}}
		for _, img := range msg.Images {
			parts = append(parts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]string{"url": img.DataURL()},
			})
		}
		out[i] = map[string]interface{}{"role": role, "content": parts}
	}
	return out
}

// Model 返回模型名称
func (c *OpenAIClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *OpenAIClient) Provider() string {
	return c.provider
}
