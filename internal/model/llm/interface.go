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
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/retry"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// 结束原因（统一为 OpenAI 取值）
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Client LLM 客户端接口
type Client interface {
	// GenerateWithContext 单轮提示生成文本
	GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error)
	// ChatWithContext 多轮消息生成文本
	ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error)
	// ChatCompletion 多轮消息生成，并返回结束原因与命中的停止序列
	ChatCompletion(ctx context.Context, messages []Message, options GenerateOptions) (*Completion, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop"`
}

// Image 随消息发送的图片
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURL 返回 base64 data URL
func (i Image) DataURL() string {
	return "data:" + i.mime() + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

func (i Image) mime() string {
	if i.MIMEType != "" {
		return i.MIMEType
	}
	return http.DetectContentType(i.Data)
}

// Message 聊天消息
type Message struct {
	Role    string  `json:"role"` // system, user, assistant, tool
	Content string  `json:"content"`
	Images  []Image `json:"-"`
}

// Completion 一次生成的结果
type Completion struct {
	Content string
	// FinishReason stop | length | 提供商原值
	FinishReason string
	// StopReason 命中的停止序列；提供商不回报时为空
	StopReason string
}

// ClientConfig 客户端构造参数
type ClientConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Retry    retry.Policy
	Timeout  time.Duration
}

// NewClient 创建新的 LLM 客户端；凭证缺失时返回 ConfigurationError
func NewClient(cfg ClientConfig) (Client, error) {
	switch cfg.Provider {
	case "openai", "qwen", "perplexity", "deepseek":
		return NewOpenAIClient(cfg)
	case "vllm":
		return NewVLLMClient(cfg)
	case "claude", "anthropic":
		return NewClaudeClient(cfg)
	case "gemini":
		return NewGeminiClient(cfg)
	case "eino":
		return NewEinoClient(context.Background(), cfg)
	default:
		return nil, &perrors.ConfigurationError{Key: "model.providers." + cfg.Provider, Reason: "unsupported provider"}
	}
}

func requireKey(cfg ClientConfig) error {
	if cfg.APIKey == "" {
		return perrors.MissingConfig("model.providers." + cfg.Provider + ".api_key")
	}
	return nil
}

// SingleUser 将单轮提示包装为消息列表
func SingleUser(prompt string, images ...Image) []Message {
	return []Message{{Role: RoleUser, Content: prompt, Images: images}}
}

// remoteError 将 resty 调用结果转换为 RemoteCallError；成功时返回 nil
func remoteError(provider string, resp *resty.Response, err error) error {
	if err != nil {
		return &perrors.RemoteCallError{Op: "chat", Provider: provider, Attempts: retry.Attempts(resp), Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return &perrors.RemoteCallError{
			Op:       "chat",
			Provider: provider,
			Attempts: retry.Attempts(resp),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 512)),
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
