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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"

	"agent-platform/pkg/retry"
)

// ClaudeClient Claude 客户端
type ClaudeClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	client   *resty.Client
}

// NewClaudeClient 创建新的 Claude 客户端
func NewClaudeClient(cfg ClientConfig) (*ClaudeClient, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
		if envURL := os.Getenv("ANTHROPIC_BASE_URL"); envURL != "" {
			baseURL = envURL
		}
	}
	return &ClaudeClient{
		provider: "claude",
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
		client:   retry.NewClient(cfg.Retry, cfg.Timeout),
	}, nil
}

// GenerateWithContext 使用上下文生成文本
func (c *ClaudeClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	return c.ChatWithContext(ctx, SingleUser(prompt), options)
}

// ChatWithContext 使用上下文聊天
func (c *ClaudeClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	out, err := c.ChatCompletion(ctx, messages, options)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// ChatCompletion 调用 /messages；system 消息合并为顶层 system 字段
func (c *ClaudeClient) ChatCompletion(ctx context.Context, messages []Message, options GenerateOptions) (*Completion, error) {
	var system []string
	claudeMessages := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
			continue
		case RoleTool:
			msg.Role = RoleUser
		}
		blocks := []map[string]interface{}{}
		for _, img := range msg.Images {
			blocks = append(blocks, map[string]interface{}{
				"type": "image",
				"source": map[string]string{
					"type":       "base64",
					"media_type": img.mime(),
					"data":       base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		blocks = append(blocks, map[string]interface{}{"type": "text", "text": msg.Content})
		claudeMessages = append(claudeMessages, map[string]interface{}{"role": msg.Role, "content": blocks})
	}

	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	request := map[string]interface{}{
		"model":       c.model,
		"messages":    claudeMessages,
		"temperature": options.Temperature,
		"max_tokens":  maxTokens,
	}
	if len(system) > 0 {
		request["system"] = strings.Join(system, "\n\n")
	}
	if len(options.Stop) > 0 {
		request["stop_sequences"] = options.Stop
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(request).
		Post(c.baseURL + "/messages")
	if rerr := remoteError(c.provider, response, err); rerr != nil {
		return nil, rerr
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason   string  `json:"stop_reason"`
		StopSequence *string `json:"stop_sequence"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, fmt.Errorf("decode claude response: %w", err)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("claude returned no content")
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := &Completion{Content: text.String(), FinishReason: result.StopReason}
	switch result.StopReason {
	case "end_turn", "stop_sequence":
		out.FinishReason = FinishStop
	case "max_tokens":
		out.FinishReason = FinishLength
	}
	if result.StopSequence != nil {
		out.StopReason = *result.StopSequence
	}
	return out, nil
}

// Model 返回模型名称
func (c *ClaudeClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *ClaudeClient) Provider() string {
	return c.provider
}
